// Package bootstrap wires a loaded config document into a runnable
// server: the upstream registry, the script host, the ambient
// middleware chain, and the UDP listener, per §4/§6.
package bootstrap

import (
	"fmt"

	"github.com/compassd/dcompass/config"
	"github.com/compassd/dcompass/internal/script"
	"github.com/compassd/dcompass/internal/upstream"
	"github.com/compassd/dcompass/middleware"
	"github.com/compassd/dcompass/middleware/accesslist"
	"github.com/compassd/dcompass/middleware/accesslog"
	"github.com/compassd/dcompass/middleware/metrics"
	mwrouter "github.com/compassd/dcompass/middleware/router"
	"github.com/compassd/dcompass/server"
)

// App holds the built components of a running server, kept together so
// Close can release every background task.
type App struct {
	Server   *server.Server
	Registry *upstream.Registry
}

// Close releases the upstream registry's background cache refresh tasks.
func (a *App) Close() {
	a.Registry.Close()
}

// Build validates cfg and assembles a runnable App without starting any
// listener, so -v can exercise every construction step without binding a
// socket.
func Build(cfg *config.Config) (*App, error) {
	specs, err := upstreamSpecs(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := upstream.NewRegistry(specs)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: building upstream registry: %w", err)
	}

	host, err := script.New(cfg.Script, registry)
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("bootstrap: compiling script: %w", err)
	}

	middleware.Register("accesslist", func(cfg *config.Config) middleware.Handler { return accesslist.New(cfg) })
	middleware.Register("accesslog", func(cfg *config.Config) middleware.Handler { return accesslog.New(cfg) })
	middleware.Register("metrics", func(cfg *config.Config) middleware.Handler { return metrics.New(cfg) })
	middleware.Register("router", func(cfg *config.Config) middleware.Handler { return mwrouter.Wire(host) })

	middleware.SetConfig(cfg)
	if err := middleware.Setup(); err != nil {
		registry.Close()
		return nil, fmt.Errorf("bootstrap: setting up middleware chain: %w", err)
	}

	return &App{
		Server:   server.New(cfg),
		Registry: registry,
	}, nil
}

// upstreamSpecs flattens the config document's method-object upstreams
// into the registry's build-time Spec shape.
func upstreamSpecs(cfg *config.Config) ([]upstream.Spec, error) {
	specs := make([]upstream.Spec, 0, len(cfg.Upstreams))

	for tag, u := range cfg.Upstreams {
		spec := upstream.Spec{Tag: tag}

		switch {
		case u.UDP != nil:
			spec.UDP = &upstream.UDPSpec{
				Addr:    u.UDP.Addr,
				Timeout: u.UDP.Timeout.Duration.Seconds(),
			}

		case u.TLS != nil:
			sendSNI := true
			if u.TLS.SNI != nil {
				sendSNI = *u.TLS.SNI
			}
			spec.TLS = &upstream.TLSSpec{
				Addr:     u.TLS.Addr,
				Domain:   u.TLS.Domain,
				SendSNI:  sendSNI,
				MaxReuse: u.TLS.MaxReuse,
				Timeout:  u.TLS.Timeout.Duration.Seconds(),
			}

		case u.HTTPS != nil:
			spec.HTTPS = &upstream.HTTPSSpec{
				URI:       u.HTTPS.URI,
				Timeout:   u.HTTPS.Timeout.Duration.Seconds(),
				Proxy:     u.HTTPS.Proxy,
				RateLimit: u.HTTPS.RateLimit,
			}

		case u.Hybrid != nil:
			spec.Hybrid = &upstream.HybridSpec{
				Children: u.Hybrid.Children,
				Strategy: strategyFromConfig(u.Hybrid.Strategy),
			}

		default:
			return nil, fmt.Errorf("bootstrap: upstream %q declares no method", tag)
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

func strategyFromConfig(s string) upstream.Strategy {
	if s == "fastest" {
		return upstream.Fastest
	}
	return upstream.Conclusive
}
