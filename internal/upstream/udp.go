package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/miekg/dns"
)

// UDPClient is a plain RFC 1035 UDP upstream, grounded on the
// dns.Exchange-based style of the project's
// middleware/forwarder/forwarder.go, generalised from a static server
// list to a single configured address with a per-call deadline.
type UDPClient struct {
	tag     string
	addr    string
	timeout time.Duration
}

// NewUDPClient builds a UDP upstream dialing addr with timeout.
func NewUDPClient(tag, addr string, timeout time.Duration) *UDPClient {
	return &UDPClient{tag: tag, addr: addr, timeout: timeout}
}

func (u *UDPClient) Name() string { return u.tag }

func (u *UDPClient) Resolve(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	client := &dns.Client{Net: "udp", Timeout: u.timeout}
	resp, _, err := client.ExchangeContext(ctx, req, u.addr)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(u.tag, Timeout, "udp exchange timed out", err)
		}
		return nil, newError(u.tag, Network, "udp exchange failed", err)
	}

	if resp.Truncated {
		return nil, newError(u.tag, Truncated, "response truncated over udp", nil)
	}

	return resp, nil
}
