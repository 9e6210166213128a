package accesslist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compassd/dcompass/config"
	"github.com/compassd/dcompass/middleware"
	"github.com/compassd/dcompass/mock"
)

type tail struct{ called bool }

func (t *tail) Name() string                            { return "tail" }
func (t *tail) ServeDNS(ctx context.Context, ch *middleware.Chain) { t.called = true }

func Test_AccesslistDefaultAllowsEveryone(t *testing.T) {
	cfg := &config.Config{AccessList: []string{}}
	a := New(cfg)

	tl := &tail{}
	ch := middleware.NewChain([]middleware.Handler{tl})
	ch.Writer = mock.NewWriter("udp", "8.8.8.8:53")

	a.ServeDNS(context.Background(), ch)
	assert.True(t, tl.called)
}

func Test_AccesslistBlocksOutsideRange(t *testing.T) {
	cfg := &config.Config{AccessList: []string{"127.0.0.1/32"}}
	a := New(cfg)
	assert.Equal(t, "accesslist", a.Name())

	tl := &tail{}
	ch := middleware.NewChain([]middleware.Handler{tl})
	ch.Writer = mock.NewWriter("udp", "8.8.8.8:53")

	a.ServeDNS(context.Background(), ch)
	assert.False(t, tl.called)
}

func Test_AccesslistAllowsInsideRange(t *testing.T) {
	cfg := &config.Config{AccessList: []string{"127.0.0.1/32"}}
	a := New(cfg)

	tl := &tail{}
	ch := middleware.NewChain([]middleware.Handler{tl})
	ch.Writer = mock.NewWriter("udp", "127.0.0.1:53")

	a.ServeDNS(context.Background(), ch)
	assert.True(t, tl.called)
}

func Test_AccesslistSkipsMalformedCidr(t *testing.T) {
	cfg := &config.Config{AccessList: []string{"not-a-cidr", "127.0.0.1/32"}}
	a := New(cfg)

	tl := &tail{}
	ch := middleware.NewChain([]middleware.Handler{tl})
	ch.Writer = mock.NewWriter("udp", "127.0.0.1:53")

	a.ServeDNS(context.Background(), ch)
	assert.True(t, tl.called)
}
