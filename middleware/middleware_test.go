package middleware

import (
	"context"
	"testing"

	"github.com/compassd/dcompass/config"
	"github.com/stretchr/testify/assert"
)

type dummy struct{}

func (d *dummy) ServeDNS(ctx context.Context, ch *Chain) { ch.Next(ctx) }
func (d *dummy) Name() string                            { return "dummy" }

func Test_Middleware(t *testing.T) {
	Register("dummy", func(*config.Config) Handler {
		return &dummy{}
	})

	cfg := &config.Config{}

	d := Get("dummy")
	assert.Nil(t, d)

	SetConfig(cfg)

	err := Setup()
	assert.NoError(t, err)

	err = Setup()
	assert.Error(t, err)

	assert.True(t, len(List()) == 1)
	assert.True(t, len(Handlers()) == 1)

	d = Get("dummy")
	assert.NotNil(t, d)

	d = Get("none")
	assert.Nil(t, d)

	builtHandlers = []Handler{}
	d = Get("dummy")
	assert.Nil(t, d)
}
