// Package accesslist implements the access-control stage of the ambient
// server chain (§4.9): a client whose address is not covered by the
// configured CIDR ranges is dropped before the request ever reaches the
// script router.
package accesslist

import (
	"context"
	"net"

	"github.com/semihalev/zlog/v2"

	"github.com/compassd/dcompass/config"
	"github.com/compassd/dcompass/internal/matcher/cidr"
	"github.com/compassd/dcompass/middleware"
)

// AccessList drops queries from clients outside the configured ranges.
// An empty list allows everyone, matching the project's default-open
// convention.
type AccessList struct {
	set *cidr.CidrSet
}

// New builds an AccessList from cfg.AccessList.
func New(cfg *config.Config) middleware.Handler {
	a := &AccessList{set: cidr.New()}

	for _, c := range cfg.AccessList {
		if err := a.set.Add(c); err != nil {
			zlog.Error("access list parse cidr failed", "cidr", c, "error", err.Error())
			continue
		}
	}

	a.set.Seal()

	return a
}

// Name returns the middleware name.
func (a *AccessList) Name() string {
	return "accesslist"
}

// ServeDNS implements middleware.Handler.
func (a *AccessList) ServeDNS(ctx context.Context, ch *middleware.Chain) {
	if a.allowed(ch.Writer.RemoteAddr()) {
		ch.Next(ctx)
		return
	}

	ch.Cancel()
}

func (a *AccessList) allowed(addr net.Addr) bool {
	if a.set.Len() == 0 {
		return true
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	return a.set.Contains(ip)
}
