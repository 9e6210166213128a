// Package upstream implements the upstream abstraction of §3/§4.4–§4.6:
// plain UDP, DoT, and DoH clients, the racing "hybrid" multiplexer, and
// the build-time registry that resolves tags into a cycle-free DAG.
package upstream

import (
	"context"

	"github.com/miekg/dns"
)

// Upstream resolves a single query. Every variant — udp, tls, https, and
// hybrid — implements this one operation, per §3. The cache layer
// (internal/cache) is not an Upstream: the Registry wraps an upstream's
// Resolve in a cache.Cache and calls its LookupWithPolicy instead.
type Upstream interface {
	Name() string
	Resolve(ctx context.Context, req *dns.Msg) (*dns.Msg, error)
}
