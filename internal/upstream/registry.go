package upstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/compassd/dcompass/internal/cache"
)

// Spec describes one configured upstream before registry resolution,
// mirroring the method-object shape of §6.
type Spec struct {
	Tag string

	UDP *UDPSpec
	TLS *TLSSpec
	HTTPS *HTTPSSpec
	Hybrid *HybridSpec
}

type UDPSpec struct {
	Addr    string
	Timeout float64
}

type TLSSpec struct {
	Addr     string
	Domain   string
	SendSNI  bool
	MaxReuse int
	Timeout  float64
}

type HTTPSSpec struct {
	URI       string
	Timeout   float64
	Proxy     string
	RateLimit int
}

type HybridSpec struct {
	Children []string
	Strategy Strategy
}

// Registry is the build-time structure of §4.6: it resolves tag
// references (including hybrid children), detects cycles, and exposes
// Resolve(tag, policy, query). Cache state is instantiated per
// (tag, policy) pair the caller actually asks for, so policies remain
// independent, per §4.6.
type Registry struct {
	specs map[string]Spec
	built map[string]Upstream

	cachesMu sync.Mutex
	caches   map[cacheKey]*cache.Cache
}

type cacheKey struct {
	tag    string
	policy cache.Policy
}

// NewRegistry builds and seals a Registry from raw specs. It fails with
// *ConfigError{CyclicUpstream} if the hybrid dependency graph has a
// cycle, and with *ConfigError{UnknownTag} if a hybrid names an
// undeclared tag, per §4.5/§4.6.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{
		specs:  make(map[string]Spec, len(specs)),
		built:  make(map[string]Upstream, len(specs)),
		caches: make(map[cacheKey]*cache.Cache),
	}

	for _, s := range specs {
		r.specs[s.Tag] = s
	}

	order, err := topoSort(r.specs)
	if err != nil {
		return nil, err
	}

	for _, tag := range order {
		u, err := r.build(tag)
		if err != nil {
			return nil, err
		}
		r.built[tag] = u
	}

	return r, nil
}

func (r *Registry) build(tag string) (Upstream, error) {
	if u, ok := r.built[tag]; ok {
		return u, nil
	}

	spec, ok := r.specs[tag]
	if !ok {
		return nil, &ConfigError{Code: UnknownTag, Tag: tag}
	}

	switch {
	case spec.UDP != nil:
		return NewUDPClient(tag, spec.UDP.Addr, seconds(spec.UDP.Timeout)), nil

	case spec.TLS != nil:
		return NewTLSClient(tag, spec.TLS.Addr, spec.TLS.Domain, spec.TLS.SendSNI, spec.TLS.MaxReuse, seconds(spec.TLS.Timeout)), nil

	case spec.HTTPS != nil:
		return NewHTTPSClient(tag, spec.HTTPS.URI, seconds(spec.HTTPS.Timeout), spec.HTTPS.Proxy, spec.HTTPS.RateLimit)

	case spec.Hybrid != nil:
		children := make([]Upstream, 0, len(spec.Hybrid.Children))
		for _, childTag := range spec.Hybrid.Children {
			child, err := r.build(childTag)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return NewHybrid(tag, children, spec.Hybrid.Strategy), nil

	default:
		return nil, &ConfigError{Code: UnknownTag, Tag: tag, Err: fmt.Errorf("upstream %q declares no method", tag)}
	}
}

// Resolve dispatches a query to tag under policy. If policy is not
// Disabled, the call is wrapped with a per-(tag,policy) cache instance,
// lazily created on first use, per §4.6.
func (r *Registry) Resolve(ctx context.Context, tag string, policy cache.Policy, req *dns.Msg) (*dns.Msg, error) {
	u, ok := r.built[tag]
	if !ok {
		return nil, &ConfigError{Code: UnknownTag, Tag: tag}
	}

	if policy == cache.Disabled {
		return u.Resolve(ctx, req)
	}

	key := cacheKey{tag: tag, policy: policy}

	r.cachesMu.Lock()
	c, ok := r.caches[key]
	if !ok {
		c = cache.New(defaultCacheCapacity, func(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
			return u.Resolve(ctx, req)
		})
		r.caches[key] = c
	}
	r.cachesMu.Unlock()

	return c.LookupWithPolicy(ctx, req, policy)
}

// Close releases every cache instance's background refresh tasks.
func (r *Registry) Close() {
	r.cachesMu.Lock()
	defer r.cachesMu.Unlock()
	for _, c := range r.caches {
		c.Close()
	}
}

const defaultCacheCapacity = 65536

const defaultTimeout = 5 * time.Second

// seconds converts a config-file timeout (float seconds, defaulting to 5
// per §6) into a time.Duration.
func seconds(s float64) time.Duration {
	if s <= 0 {
		return defaultTimeout
	}
	return time.Duration(s * float64(time.Second))
}
