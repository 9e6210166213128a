package script

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/dop251/goja"
	"github.com/miekg/dns"

	"github.com/compassd/dcompass/internal/dnsmsg"
)

// messageHandleKey is the goja object property under which wrapMessage
// stashes the underlying *dnsmsg.Message, so unwrapMessage can recover
// it without re-serialising through JSON.
const messageHandleKey = "__dcompassMessage"

// wrapMessage exposes msg to the script as an object with header
// accessors and section/OPT mutators, per §4.1/§4.7.
func wrapMessage(vm *goja.Runtime, msg *dnsmsg.Message) *goja.Object {
	obj := vm.NewObject()

	_ = obj.Set(messageHandleKey, msg)

	_ = obj.Set("id", func(call goja.FunctionCall) goja.Value { return vm.ToValue(msg.ID()) })
	_ = obj.Set("qr", func(call goja.FunctionCall) goja.Value { return vm.ToValue(msg.QR()) })
	_ = obj.Set("rd", func(call goja.FunctionCall) goja.Value { return vm.ToValue(msg.RD()) })
	_ = obj.Set("ra", func(call goja.FunctionCall) goja.Value { return vm.ToValue(msg.RA()) })
	_ = obj.Set("aa", func(call goja.FunctionCall) goja.Value { return vm.ToValue(msg.AA()) })
	_ = obj.Set("rcode", func(call goja.FunctionCall) goja.Value { return vm.ToValue(msg.Rcode()) })

	_ = obj.Set("set_rcode", func(call goja.FunctionCall) goja.Value {
		msg.SetRcode(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	})
	_ = obj.Set("set_rd", func(call goja.FunctionCall) goja.Value {
		msg.SetRD(call.Argument(0).ToBoolean())
		return goja.Undefined()
	})

	_ = obj.Set("qname", func(call goja.FunctionCall) goja.Value {
		name, _, _, ok := msg.Question()
		if !ok {
			return goja.Undefined()
		}
		return vm.ToValue(name)
	})
	_ = obj.Set("qtype", func(call goja.FunctionCall) goja.Value {
		_, qtype, _, ok := msg.Question()
		if !ok {
			return goja.Undefined()
		}
		return vm.ToValue(dns.TypeToString[qtype])
	})
	_ = obj.Set("qclass", func(call goja.FunctionCall) goja.Value {
		_, _, qclass, ok := msg.Question()
		if !ok {
			return goja.Undefined()
		}
		return vm.ToValue(dns.ClassToString[qclass])
	})

	_ = obj.Set("push_answer", func(call goja.FunctionCall) goja.Value {
		rr, err := buildRR(msg, call.Argument(0).String(), call.Argument(1).String(), call.Argument(2).String(), uint32(call.Argument(3).ToInteger()))
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		msg.PushAnswer(rr)
		return goja.Undefined()
	})

	_ = obj.Set("answer_a_records", func(call goja.FunctionCall) goja.Value {
		var out []string
		for _, rr := range msg.Answer() {
			if a, ok := rr.(*dns.A); ok {
				out = append(out, a.A.String())
			}
		}
		return vm.ToValue(out)
	})

	_ = obj.Set("push_opt", func(call goja.FunctionCall) goja.Value {
		msg.PushOpt(&dns.EDNS0_LOCAL{
			Code: uint16(call.Argument(0).ToInteger()),
			Data: []byte(call.Argument(1).String()),
		})
		return goja.Undefined()
	})

	_ = obj.Set("clear_opt", func(call goja.FunctionCall) goja.Value {
		msg.ClearOpt()
		return goja.Undefined()
	})

	return obj
}

// buildRR constructs a resource record for push_answer. name defaults to
// the query's qname when empty, per §4.1's "additive mutation" model
// (scripts push answers for the question they're answering without
// having to restate the name). Only the record types a routing script
// plausibly synthesises are supported; anything else is a script error,
// not a silent no-op.
func buildRR(msg *dnsmsg.Message, rrtype, name, value string, ttl uint32) (dns.RR, error) {
	if name == "" {
		name, _, _, _ = msg.Question()
	}
	hdr := dns.RR_Header{Name: dns.Fqdn(name), Class: dns.ClassINET, Ttl: ttl}

	switch strings.ToUpper(rrtype) {
	case "A":
		hdr.Rrtype = dns.TypeA
		ip := parseIPv4(value)
		if ip == nil {
			return nil, fmt.Errorf("script: push_answer: invalid A address %q", value)
		}
		return &dns.A{Hdr: hdr, A: ip}, nil

	case "AAAA":
		hdr.Rrtype = dns.TypeAAAA
		ip := net.ParseIP(value)
		if ip == nil {
			return nil, fmt.Errorf("script: push_answer: invalid AAAA address %q", value)
		}
		return &dns.AAAA{Hdr: hdr, AAAA: ip}, nil

	case "CNAME":
		hdr.Rrtype = dns.TypeCNAME
		return &dns.CNAME{Hdr: hdr, Target: dns.Fqdn(value)}, nil

	case "TXT":
		hdr.Rrtype = dns.TypeTXT
		return &dns.TXT{Hdr: hdr, Txt: []string{value}}, nil

	default:
		return nil, fmt.Errorf("script: push_answer: unsupported record type %q", rrtype)
	}
}

// unwrapMessage recovers the *dnsmsg.Message a wrapMessage object holds.
func unwrapMessage(v goja.Value) (*dnsmsg.Message, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, errors.New("script: expected a message handle, got undefined")
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, errors.New("script: expected a message handle object")
	}

	exported := obj.Get(messageHandleKey)
	if exported == nil {
		return nil, errors.New("script: value is not a message handle")
	}

	msg, ok := exported.Export().(*dnsmsg.Message)
	if !ok {
		return nil, errors.New("script: value is not a message handle")
	}

	return msg, nil
}

func parseIPv4(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}
