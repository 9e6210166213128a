package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// pooledConn is a DoT connection tracked by TLSClient's pool, counting
// how many queries it has served against MaxReuse.
type pooledConn struct {
	conn    *dns.Conn
	uses    int
	lastUse time.Time
}

// TLSClient is a DNS-over-TLS upstream (RFC 7858) with a
// mutex-protected idle-connection pool and max_reuse accounting,
// grounded on the project's middleware/resolver/tcp_pool.go TCPConnPool,
// generalised from a root/TLD-keyed pool to one pool per configured
// upstream, per §4.4/§5(b). The number of idle connections the pool
// holds is not capped.
type TLSClient struct {
	tag       string
	addr      string
	domain    string // SNI/cert name
	sendSNI   bool
	maxReuse  int
	timeout   time.Duration

	mu   sync.Mutex
	idle []*pooledConn
}

// NewTLSClient builds a DoT upstream. sendSNI=false omits the SNI
// extension from the ClientHello while still verifying the peer
// certificate against domain.
func NewTLSClient(tag, addr, domain string, sendSNI bool, maxReuse int, timeout time.Duration) *TLSClient {
	return &TLSClient{
		tag:      tag,
		addr:     addr,
		domain:   domain,
		sendSNI:  sendSNI,
		maxReuse: maxReuse,
		timeout:  timeout,
	}
}

func (t *TLSClient) Name() string { return t.tag }

func (t *TLSClient) Resolve(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	pc, err := t.get(ctx)
	if err != nil {
		return nil, err
	}

	pc.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	if err := pc.conn.WriteMsg(req); err != nil {
		pc.conn.Close()
		return nil, newError(t.tag, ConnectionReset, "dot write failed", err)
	}

	pc.conn.SetReadDeadline(time.Now().Add(t.timeout))
	resp, err := pc.conn.ReadMsg()
	if err != nil {
		pc.conn.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(t.tag, Timeout, "dot read timed out", err)
		}
		return nil, newError(t.tag, ConnectionReset, "dot read failed", err)
	}

	pc.uses++
	pc.lastUse = time.Now()
	t.put(pc)

	return resp, nil
}

func (t *TLSClient) get(ctx context.Context) (*pooledConn, error) {
	t.mu.Lock()
	if n := len(t.idle); n > 0 {
		pc := t.idle[n-1]
		t.idle = t.idle[:n-1]
		t.mu.Unlock()
		return pc, nil
	}
	t.mu.Unlock()

	serverName := t.domain
	if !t.sendSNI {
		serverName = ""
	}

	dialer := &tls.Dialer{
		Config: &tls.Config{
			ServerName: serverName,
			VerifyConnection: func(cs tls.ConnectionState) error {
				return verifyAgainstName(cs, t.domain, t.sendSNI)
			},
			InsecureSkipVerify: !t.sendSNI, // VerifyConnection performs the real check when SNI is omitted
		},
	}

	rawConn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, newError(t.tag, TLSHandshake, "dot dial/handshake failed", err)
	}

	return &pooledConn{conn: &dns.Conn{Conn: rawConn}}, nil
}

func (t *TLSClient) put(pc *pooledConn) {
	if t.maxReuse > 0 && pc.uses >= t.maxReuse {
		pc.conn.Close()
		return
	}

	t.mu.Lock()
	t.idle = append(t.idle, pc)
	t.mu.Unlock()
}

// Close closes every pooled idle connection.
func (t *TLSClient) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, pc := range t.idle {
		pc.conn.Close()
	}
	t.idle = nil
}

// verifyAgainstName performs certificate verification against name when
// the caller disabled SNI but still wants cert validation performed
// against the configured domain, per §4.4 ("verification still uses the
// configured name").
func verifyAgainstName(cs tls.ConnectionState, name string, sendSNI bool) error {
	if sendSNI {
		return nil // already verified against ServerName during the handshake
	}
	if len(cs.PeerCertificates) == 0 {
		return errors.New("dot: no peer certificate presented")
	}
	opts := x509.VerifyOptions{
		DNSName:       name,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}
