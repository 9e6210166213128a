// Package metrics implements the ambient Prometheus counter stage of the
// server chain (§4.9): one dcompass_queries_total observation per
// answered query, labelled by qtype and rcode.
package metrics

import (
	"context"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compassd/dcompass/config"
	"github.com/compassd/dcompass/middleware"
)

// Metrics counts answered queries by qtype and rcode.
type Metrics struct {
	queries *prometheus.CounterVec
}

// New returns a new Metrics handler, registering its collector against
// the default Prometheus registry.
func New(cfg *config.Config) middleware.Handler {
	m := &Metrics{
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dcompass_queries_total",
				Help: "How many DNS queries were answered",
			},
			[]string{"qtype", "rcode"},
		),
	}

	_ = prometheus.Register(m.queries)

	return m
}

// Name returns the middleware name.
func (m *Metrics) Name() string {
	return "metrics"
}

// ServeDNS implements middleware.Handler.
func (m *Metrics) ServeDNS(ctx context.Context, ch *middleware.Chain) {
	ch.Next(ctx)

	w := ch.Writer
	if !w.Written() || ch.Request == nil || len(ch.Request.Question) == 0 {
		return
	}

	m.queries.With(prometheus.Labels{
		"qtype": dns.TypeToString[ch.Request.Question[0].Qtype],
		"rcode": dns.RcodeToString[w.Rcode()],
	}).Inc()
}
