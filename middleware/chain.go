// Package middleware implements the ambient server chain of §4.8/§4.9:
// a fixed sequence of Handlers wrapping the script router, each choosing
// whether to call Next before or after its own work.
package middleware

import (
	"context"

	"github.com/miekg/dns"

	"github.com/compassd/dcompass/internal/dnsmsg"
)

// Chain carries one query through the registered Handler sequence.
type Chain struct {
	Writer  ResponseWriter
	Request *dns.Msg

	handlers []Handler

	head  int
	count int
}

// NewChain returns a fresh Chain over handlers, ready for Reset.
func NewChain(handlers []Handler) *Chain {
	return &Chain{
		Writer:   &responseWriter{},
		handlers: handlers,
		count:    len(handlers),
	}
}

// Next invokes the next handler in the chain. The terminal handler (the
// script router, per §4.8) never calls Next; it always writes a reply.
func (ch *Chain) Next(ctx context.Context) {
	if ch.count == 0 {
		return
	}

	handler := ch.handlers[ch.head]
	ch.head = (ch.head + 1) % len(ch.handlers)
	ch.count--

	handler.ServeDNS(ctx, ch)
}

// Cancel drops the query without writing a reply, for a handler that
// gates admission (the access list, per §4.9) rather than answering.
func (ch *Chain) Cancel() {
	ch.count = 0
}

// CancelWithRcode stops the chain and writes a ServFail-shaped reply at
// rcode, preserving the request's id, qname, and qtype per §4.8's router
// contract ("synthesise ServFail preserving query id, qname, qtype").
// DNSSEC signalling is out of scope (spec.md's explicit non-goal), so
// unlike a DNSSEC-aware resolver this never inspects or sets the OPT DO
// bit; recursionAvailable is the only flag a caller controls.
func (ch *Chain) CancelWithRcode(rcode int, recursionAvailable bool) {
	reply := dnsmsg.SetServFail(dnsmsg.Wrap(ch.Request))
	reply.SetRcode(rcode)
	reply.Raw().RecursionAvailable = recursionAvailable

	_ = ch.Writer.WriteMsg(reply.Raw())

	ch.count = 0
}

// Reset rebinds the chain to a new query, ready for a fresh Next loop.
func (ch *Chain) Reset(w dns.ResponseWriter, r *dns.Msg) {
	ch.Writer.Reset(w)
	ch.Request = r
	ch.count = len(ch.handlers)
	ch.head = 0
}
