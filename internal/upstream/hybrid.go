package upstream

import (
	"context"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// Strategy selects what counts as a winning response from a hybrid's
// children. The specification's Open Question (§9) is resolved toward
// Conclusive by default, but left configurable per hybrid.
type Strategy int

const (
	// Conclusive waits for the first child whose rcode is NoError or
	// NXDomain, the spec's default resolution of its own Open Question.
	Conclusive Strategy = iota
	// Fastest returns the first response of any kind, including ServFail.
	Fastest
)

// Hybrid races its children concurrently and returns the first
// conclusive answer, cancelling the rest, per §4.5. Concurrency shape
// adapted from the project's middleware/resolver/parallel_lookup.go
// errgroup-based fan-out, generalised from "collect every NS address" to
// "return the first winner and cancel the losers."
type Hybrid struct {
	tag      string
	children []Upstream
	strategy Strategy
}

// NewHybrid builds a hybrid upstream racing children.
func NewHybrid(tag string, children []Upstream, strategy Strategy) *Hybrid {
	return &Hybrid{tag: tag, children: children, strategy: strategy}
}

func (h *Hybrid) Name() string { return h.tag }

func isConclusive(resp *dns.Msg) bool {
	return resp.Rcode == dns.RcodeSuccess || resp.Rcode == dns.RcodeNameError
}

func (h *Hybrid) Resolve(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	type result struct {
		resp *dns.Msg
		err  error
		tag  string
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, len(h.children))
	g, gctx := errgroup.WithContext(raceCtx)

	for _, child := range h.children {
		child := child
		g.Go(func() error {
			resp, err := child.Resolve(gctx, req.Copy())
			select {
			case results <- result{resp: resp, err: err, tag: child.Name()}:
			case <-raceCtx.Done():
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	errs := make(map[string]error)
	for res := range results {
		if res.err != nil {
			errs[res.tag] = res.err
			continue
		}

		if h.strategy == Fastest || isConclusive(res.resp) {
			cancel() // stop the remaining children
			return res.resp, nil
		}

		errs[res.tag] = &Error{Tag: res.tag, Code: Network, Message: "non-conclusive rcode"}
	}

	return nil, &HybridAllFailed{Tag: h.tag, Children: errs}
}
