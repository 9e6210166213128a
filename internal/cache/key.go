package cache

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// keyBuffer holds a reusable stack-sized buffer for key generation,
// adapted from the project's cache/key.go pooled-buffer key builder —
// dropped here is the CD-bit field, since the specification's
// fingerprint is exactly (qname, qtype, qclass), §4.1/§4.3.
type keyBuffer struct {
	buf [256]byte
}

var keyBufferPool = sync.Pool{
	New: func() any {
		return new(keyBuffer)
	},
}

// Key hashes the canonical fingerprint (lowercased qname, qtype, qclass)
// into a 64-bit cache key.
func Key(name string, qtype, qclass uint16) uint64 {
	kb := keyBufferPool.Get().(*keyBuffer)
	defer keyBufferPool.Put(kb)

	buf := kb.buf[:0]

	buf = append(buf, byte(qclass>>8), byte(qclass))
	buf = append(buf, byte(qtype>>8), byte(qtype))

	nameLen := len(name)
	if len(buf)+nameLen > len(kb.buf) {
		return xxhash.Sum64String(string(buf) + strings.ToLower(name))
	}

	for i := 0; i < nameLen; i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		buf = append(buf, c)
	}

	return xxhash.Sum64(buf)
}
