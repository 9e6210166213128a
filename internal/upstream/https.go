package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

const dnsMessageMIME = "application/dns-message"

// HTTPSClient is a DNS-over-HTTPS upstream (RFC 8484), POSTing the wire
// message to a configured URI, with an optional SOCKS5/HTTP proxy and an
// optional token-bucket rate limit shared across all queries against
// this upstream, grounded on the project's
// middleware/ratelimit/ratelimit.go use of golang.org/x/time/rate, per
// §4.4/§5(c).
type HTTPSClient struct {
	tag     string
	uri     string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSClient builds a DoH upstream. proxyURL may be empty, or a
// socks5://, http://, or https:// proxy URL. qps <= 0 disables rate
// limiting.
func NewHTTPSClient(tag, uri string, timeout time.Duration, proxyURL string, qps int) (*HTTPSClient, error) {
	transport := &http.Transport{}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, &ConfigError{Code: BadURI, Tag: tag, Err: err}
		}

		switch u.Scheme {
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, &ConfigError{Code: BadURI, Tag: tag, Err: err}
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		default:
			transport.Proxy = http.ProxyURL(u)
		}
	}

	var limiter *rate.Limiter
	if qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(qps), qps)
	}

	return &HTTPSClient{
		tag:     tag,
		uri:     uri,
		timeout: timeout,
		client:  &http.Client{Transport: transport, Timeout: timeout},
		limiter: limiter,
	}, nil
}

func (h *HTTPSClient) Name() string { return h.tag }

func (h *HTTPSClient) Resolve(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, newError(h.tag, Timeout, "doh rate limit wait cancelled", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	wire, err := req.Pack()
	if err != nil {
		return nil, newError(h.tag, Network, "failed to pack query for doh", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.uri, bytes.NewReader(wire))
	if err != nil {
		return nil, newError(h.tag, Network, "failed to build doh request", err)
	}
	httpReq.Header.Set("Content-Type", dnsMessageMIME)
	httpReq.Header.Set("Accept", dnsMessageMIME)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(h.tag, Timeout, "doh request timed out", err)
		}
		return nil, newError(h.tag, Network, "doh request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Tag: h.tag, Code: HTTPStatus, Status: resp.StatusCode, Message: fmt.Sprintf("doh upstream returned %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(h.tag, Network, "failed to read doh response", err)
	}

	out := new(dns.Msg)
	if err := out.Unpack(body); err != nil {
		return nil, newError(h.tag, Network, "doh response unpack failed", err)
	}

	return out, nil
}
