// Package dnsmsg wraps github.com/miekg/dns with the ergonomic, script-facing
// message model: typed section access, additive OPT mutation, and the
// canonical cache fingerprint.
package dnsmsg

import (
	"errors"
	"strings"

	"github.com/miekg/dns"
)

// MalformedMessage is returned by Decode when a buffer cannot be parsed as a
// well-formed DNS message (compression loops, truncated records, bad
// lengths — anything miekg/dns rejects while unpacking).
var MalformedMessage = errors.New("dnsmsg: malformed message")

// MaxUDPSize is the default wire size ceiling absent a larger EDNS buffer
// advertisement, per RFC 1035 §4.2.1.
const MaxUDPSize = 512

// Message is a mutable, script-facing wrapper around a *dns.Msg.
type Message struct {
	m *dns.Msg
}

// New wraps an empty DNS message.
func New() *Message {
	return &Message{m: new(dns.Msg)}
}

// Wrap adapts an existing *dns.Msg without copying it.
func Wrap(m *dns.Msg) *Message {
	return &Message{m: m}
}

// Decode parses buf into a Message, failing with MalformedMessage on any
// wire-format error.
func Decode(buf []byte) (*Message, error) {
	m := new(dns.Msg)
	if err := m.Unpack(buf); err != nil {
		return nil, MalformedMessage
	}
	return &Message{m: m}, nil
}

// Encode serialises the message. If the result would exceed the
// advertised UDP size (512 bytes, or the EDNS buffer size if larger), the
// TC flag is set and the answer, authority and additional sections are
// dropped (the question and any OPT record are kept), per RFC 1035
// §4.2.1 / RFC 6891.
func (msg *Message) Encode() ([]byte, error) {
	limit := MaxUDPSize
	if opt := msg.m.IsEdns0(); opt != nil {
		if int(opt.UDPSize()) > limit {
			limit = int(opt.UDPSize())
		}
	}

	buf, err := msg.m.Pack()
	if err != nil {
		return nil, err
	}

	if len(buf) <= limit {
		return buf, nil
	}

	trunc := msg.m.Copy()
	trunc.Truncated = true
	trunc.Answer = nil
	trunc.Ns = nil
	trunc.Extra = nil
	if opt := msg.m.IsEdns0(); opt != nil {
		trunc.Extra = []dns.RR{opt}
	}

	buf, err = trunc.Pack()
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Raw exposes the underlying *dns.Msg for code that needs the full
// miekg/dns surface (upstream clients, the cache layer).
func (msg *Message) Raw() *dns.Msg { return msg.m }

// Copy returns a deep copy, safe to hand to a concurrent goroutine.
func (msg *Message) Copy() *Message { return &Message{m: msg.m.Copy()} }

// Len reports the would-be wire size of the message.
func (msg *Message) Len() int { return msg.m.Len() }

// Header accessors.

func (msg *Message) ID() uint16          { return msg.m.Id }
func (msg *Message) SetID(id uint16)     { msg.m.Id = id }
func (msg *Message) QR() bool            { return msg.m.Response }
func (msg *Message) SetQR(v bool)        { msg.m.Response = v }
func (msg *Message) RD() bool            { return msg.m.RecursionDesired }
func (msg *Message) SetRD(v bool)        { msg.m.RecursionDesired = v }
func (msg *Message) RA() bool            { return msg.m.RecursionAvailable }
func (msg *Message) SetRA(v bool)        { msg.m.RecursionAvailable = v }
func (msg *Message) AA() bool            { return msg.m.Authoritative }
func (msg *Message) SetAA(v bool)        { msg.m.Authoritative = v }
func (msg *Message) Rcode() int          { return msg.m.Rcode }
func (msg *Message) SetRcode(rcode int)  { msg.m.Rcode = rcode }

// Question returns the first question, which is the only one the model
// addresses (multi-question queries are a non-goal and cannot occur in a
// wire-valid query).
func (msg *Message) Question() (name string, qtype, qclass uint16, ok bool) {
	if len(msg.m.Question) == 0 {
		return "", 0, 0, false
	}
	q := msg.m.Question[0]
	return q.Name, q.Qtype, q.Qclass, true
}

// SetQuestion replaces the question section with a single question.
func (msg *Message) SetQuestion(name string, qtype uint16) {
	msg.m.SetQuestion(dns.Fqdn(name), qtype)
}

// Answer, Authority, Additional give list-replacement access to each
// section. Records are treated as immutable once constructed; mutation is
// by replacing the whole list.
func (msg *Message) Answer() []dns.RR     { return msg.m.Answer }
func (msg *Message) SetAnswer(rr []dns.RR) { msg.m.Answer = rr }

func (msg *Message) Authority() []dns.RR      { return msg.m.Ns }
func (msg *Message) SetAuthority(rr []dns.RR) { msg.m.Ns = rr }

func (msg *Message) Additional() []dns.RR      { return msg.m.Extra }
func (msg *Message) SetAdditional(rr []dns.RR) { msg.m.Extra = rr }

// PushAnswer appends a single record to the answer section.
func (msg *Message) PushAnswer(rr dns.RR) {
	msg.m.Answer = append(msg.m.Answer, rr)
}

// PushOpt ensures an OPT pseudo-record exists and appends an EDNS0 option
// to it, creating the OPT record (with the default UDP size) if absent.
func (msg *Message) PushOpt(opt dns.EDNS0) {
	o := msg.m.IsEdns0()
	if o == nil {
		msg.m.SetEdns0(dns.DefaultMsgSize, false)
		o = msg.m.IsEdns0()
	}
	o.Option = append(o.Option, opt)
}

// ClearOpt removes the OPT pseudo-record entirely.
func (msg *Message) ClearOpt() {
	extra := make([]dns.RR, 0, len(msg.m.Extra))
	for _, rr := range msg.m.Extra {
		if rr.Header().Rrtype != dns.TypeOPT {
			extra = append(extra, rr)
		}
	}
	msg.m.Extra = extra
}

// Fingerprint is the canonical (lowercase qname, qtype, qclass) cache key
// for the first question, per §4.1/§4.3 of the specification. Differences
// in id, flags other than rd, or qname case never change the fingerprint.
type Fingerprint struct {
	Name   string
	Qtype  uint16
	Qclass uint16
}

// FingerprintOf derives the canonical fingerprint from a message's first
// question. ok is false for a message with no question.
func FingerprintOf(msg *Message) (Fingerprint, bool) {
	name, qtype, qclass, ok := msg.Question()
	if !ok {
		return Fingerprint{}, false
	}
	return Fingerprint{Name: strings.ToLower(name), Qtype: qtype, Qclass: qclass}, true
}

// SetServFail returns a new ServFail reply to req, preserving its id,
// qname, and qtype; req itself is not modified, per §4.8/§7 ("uncaught script errors
// produce a ServFail response for that query").
func SetServFail(req *Message) *Message {
	reply := new(dns.Msg)
	reply.SetRcode(req.m, dns.RcodeServerFailure)
	reply.RecursionAvailable = true
	return &Message{m: reply}
}

// Blackhole constructs a NoError response containing a single synthetic
// SOA record in the authority section, per §4.7.
func Blackhole(req *Message) *Message {
	reply := new(dns.Msg)
	reply.SetReply(req.m)
	reply.Rcode = dns.RcodeSuccess
	reply.Authoritative = true
	reply.RecursionAvailable = false

	name, _, qclass, ok := req.Question()
	if !ok {
		name, qclass = ".", dns.ClassINET
	}

	soa := &dns.SOA{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(name),
			Rrtype: dns.TypeSOA,
			Class:  qclass,
			Ttl:    86400,
		},
		Ns:      "localhost.",
		Mbox:    "hostmaster.localhost.",
		Serial:  1,
		Refresh: 86400,
		Retry:   7200,
		Expire:  3600000,
		Minttl:  86400,
	}
	reply.Ns = []dns.RR{soa}

	return &Message{m: reply}
}
