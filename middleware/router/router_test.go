package router

import (
	"context"
	"errors"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"

	"github.com/compassd/dcompass/internal/dnsmsg"
	"github.com/compassd/dcompass/internal/script"
	"github.com/compassd/dcompass/middleware"
	"github.com/compassd/dcompass/mock"
)

type stubHost struct {
	resp *dnsmsg.Message
	err  error
}

func (s *stubHost) Route(ctx context.Context, qctx script.QueryContext, req *dnsmsg.Message) (*dnsmsg.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func Test_RouterWritesSuccess(t *testing.T) {
	reply := dnsmsg.New()
	reply.SetQuestion("example.com.", dns.TypeA)
	reply.SetRcode(dns.RcodeSuccess)

	r := Wire(&stubHost{resp: reply})
	assert.Equal(t, "router", r.Name())

	ch := middleware.NewChain([]middleware.Handler{})
	mw := mock.NewWriter("udp", "127.0.0.1:53")
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	ch.Reset(mw, req)

	r.ServeDNS(context.Background(), ch)

	assert.True(t, ch.Writer.Written())
	assert.Equal(t, dns.RcodeSuccess, ch.Writer.Rcode())
}

func Test_RouterServFailsOnScriptError(t *testing.T) {
	r := Wire(&stubHost{err: errors.New("boom")})

	ch := middleware.NewChain([]middleware.Handler{})
	mw := mock.NewWriter("udp", "127.0.0.1:53")
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	req.Id = 42
	ch.Reset(mw, req)

	r.ServeDNS(context.Background(), ch)

	assert.True(t, ch.Writer.Written())
	assert.Equal(t, dns.RcodeServerFailure, ch.Writer.Rcode())
	assert.Equal(t, uint16(42), ch.Writer.Msg().Id)
}
