// Package router adapts the script-driven query router of §4.8 into the
// terminal stage of the ambient middleware chain (§4.9).
package router

import (
	"context"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"

	"github.com/compassd/dcompass/internal/dnsmsg"
	"github.com/compassd/dcompass/internal/script"
	"github.com/compassd/dcompass/middleware"
)

// Host is the subset of *script.Host the chain stage depends on.
type Host interface {
	Route(ctx context.Context, qctx script.QueryContext, req *dnsmsg.Message) (*dnsmsg.Message, error)
}

// Router is the last handler in every chain: it never calls ch.Next, it
// always writes a reply.
type Router struct {
	host Host
}

// Wire builds the terminal middleware.Handler stage around host. It does
// not register the stage; internal/bootstrap registers it last, so it
// runs last in the chain built by middleware.Setup.
func Wire(host Host) middleware.Handler {
	return &Router{host: host}
}

// Name returns the middleware name.
func (r *Router) Name() string { return "router" }

// ServeDNS implements middleware.Handler. A script failure is logged at
// warn and turned into a ServFail reply preserving id/qname/qtype,
// per §4.8/§7; it is never surfaced to the transport layer as an error.
func (r *Router) ServeDNS(ctx context.Context, ch *middleware.Chain) {
	req := dnsmsg.Wrap(ch.Request)

	qctx := script.QueryContext{
		RemoteAddr: ch.Writer.RemoteAddr(),
		Proto:      ch.Writer.Proto(),
	}

	resp, err := r.host.Route(ctx, qctx, req)
	if err != nil {
		zlog.Warn("script route failed, returning servfail", "error", err.Error())
		ch.CancelWithRcode(dns.RcodeServerFailure, true)
		return
	}

	_ = ch.Writer.WriteMsg(resp.Raw())
}
