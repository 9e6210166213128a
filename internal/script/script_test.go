package script

import (
	"context"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"

	"github.com/compassd/dcompass/internal/cache"
	"github.com/compassd/dcompass/internal/dnsmsg"
)

type fakeResolver struct {
	resp *dns.Msg
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, tag string, policy cache.Policy, req *dns.Msg) (*dns.Msg, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp.Copy(), nil
}

func Test_BlackholeRoute(t *testing.T) {
	const src = `
function init() {
	return {};
}
function route(upstreams, initTable, ctx, query) {
	if (query.qtype() === "AAAA") {
		return blackhole(query);
	}
	return query;
}
`
	h, err := New(src, &fakeResolver{})
	assert.NoError(t, err)

	req := dnsmsg.New()
	req.SetQuestion("aaaa-example.test.", dns.TypeAAAA)

	resp, err := h.Route(context.Background(), QueryContext{Proto: "udp"}, req)
	assert.NoError(t, err)
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode())
	assert.Len(t, resp.Authority(), 1)
}

func Test_PushAnswerAndPushOpt(t *testing.T) {
	const src = `
function init() {
	return {};
}
function route(upstreams, initTable, ctx, query) {
	query.push_answer("A", "", "93.184.216.34", 60);
	query.push_opt(8, "\x00\x01\x00\x00");
	query.set_rcode(0);
	return query;
}
`
	h, err := New(src, &fakeResolver{})
	assert.NoError(t, err)

	req := dnsmsg.New()
	req.SetQuestion("example.test.", dns.TypeA)

	resp, err := h.Route(context.Background(), QueryContext{Proto: "udp"}, req)
	assert.NoError(t, err)
	assert.Len(t, resp.Answer(), 1)

	a, ok := resp.Answer()[0].(*dns.A)
	assert.True(t, ok)
	assert.Equal(t, "93.184.216.34", a.A.String())

	opt := resp.Raw().IsEdns0()
	assert.NotNil(t, opt)
	assert.Len(t, opt.Option, 1)
}

func Test_PushAnswerRejectsUnsupportedType(t *testing.T) {
	const src = `
function init() {
	return {};
}
function route(upstreams, initTable, ctx, query) {
	query.push_answer("MX", "example.test.", "mail.example.test.", 60);
	return query;
}
`
	h, err := New(src, &fakeResolver{})
	assert.NoError(t, err)

	req := dnsmsg.New()
	req.SetQuestion("example.test.", dns.TypeA)

	_, err = h.Route(context.Background(), QueryContext{Proto: "udp"}, req)
	assert.Error(t, err)
}

func Test_GeoIpCreateDefaultFailsWithoutInstalledDatabase(t *testing.T) {
	const src = `
function init() {
	GeoIp.create_default();
	return {};
}
function route(upstreams, initTable, ctx, query) {
	return query;
}
`
	_, err := New(src, &fakeResolver{})
	assert.Error(t, err)

	var initErr *InitError
	assert.ErrorAs(t, err, &initErr)
}

func Test_SendRoute(t *testing.T) {
	const src = `
function init() {
	return {};
}
function route(upstreams, initTable, ctx, query) {
	return upstreams.send_default("up1", query);
}
`
	answer := new(dns.Msg)
	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	answer.SetReply(q)
	answer.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   []byte{93, 184, 216, 34},
	}}

	h, err := New(src, &fakeResolver{resp: answer})
	assert.NoError(t, err)

	req := dnsmsg.New()
	req.SetQuestion("example.com.", dns.TypeA)

	resp, err := h.Route(context.Background(), QueryContext{Proto: "udp"}, req)
	assert.NoError(t, err)
	assert.Len(t, resp.Answer(), 1)
}
