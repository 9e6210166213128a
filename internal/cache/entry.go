package cache

import (
	"time"

	"github.com/miekg/dns"
)

// entry is the stored cache value: the response message (deep-copied so
// the cache never aliases a caller's message), an insertion timestamp,
// and the TTL the policy derived at insert time. Shape adapted from the
// project's cache/item.go (newItem/toMsg) and generalised with the
// stored/ttl/origTTL fields from middleware/cache/types.go's CacheEntry.
type entry struct {
	rcode              int
	authenticatedData  bool
	recursionAvailable bool
	answer             []dns.RR
	ns                 []dns.RR
	extra              []dns.RR

	stored  time.Time
	ttl     time.Duration
	origTTL time.Duration

	policy Policy

	// refreshing is true while a background refresh for this entry's
	// key is in flight. Guarded by the owning cache's mutex.
	refreshing bool
}

func newEntry(m *dns.Msg, ttl time.Duration, policy Policy, now time.Time) *entry {
	e := &entry{
		rcode:              m.Rcode,
		authenticatedData:  m.AuthenticatedData,
		recursionAvailable: m.RecursionAvailable,
		stored:             now,
		ttl:                ttl,
		origTTL:            ttl,
		policy:             policy,
	}

	e.answer = make([]dns.RR, len(m.Answer))
	e.ns = make([]dns.RR, len(m.Ns))
	e.extra = make([]dns.RR, len(m.Extra))

	for i, r := range m.Answer {
		e.answer[i] = dns.Copy(r)
	}
	for i, r := range m.Ns {
		e.ns[i] = dns.Copy(r)
	}
	for i, r := range m.Extra {
		e.extra[i] = dns.Copy(r)
	}

	return e
}

// toMsg reconstructs a reply to req from the stored entry.
func (e *entry) toMsg(req *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(req)

	m.Authoritative = false
	m.AuthenticatedData = e.authenticatedData
	m.RecursionAvailable = e.recursionAvailable
	m.Rcode = e.rcode

	m.Answer = make([]dns.RR, len(e.answer))
	m.Ns = make([]dns.RR, len(e.ns))
	m.Extra = make([]dns.RR, len(e.extra))

	for i, r := range e.answer {
		m.Answer[i] = dns.Copy(r)
	}
	for i, r := range e.ns {
		m.Ns[i] = dns.Copy(r)
	}
	for i, r := range e.extra {
		m.Extra[i] = dns.Copy(r)
	}

	return m
}

// fresh reports whether now is still within the entry's TTL window.
// Standard and Persistent share this staleness test — both serve a stale
// hit immediately and trigger a background refresh, per §4.3. Neither
// policy actively evicts on expiry; only LRU pressure removes an entry
// from the index, which is what makes Persistent's "served until LRU
// eviction" guarantee hold for Standard too in this implementation.
func (e *entry) fresh(now time.Time) bool {
	return now.Before(e.stored.Add(e.ttl))
}
