package gotls

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"time"

	cache "github.com/patrickmn/go-cache"
	utls "github.com/refraction-networking/utls"
)

// DefaultTicketTTL is how long a cached session ticket is offered for reuse.
const DefaultTicketTTL = 2 * time.Hour

// TicketCache stores client session tickets keyed by peer ID. Tickets expire
// after the configured TTL regardless of the lifetime the server advertised.
// Server contexts sharing the cache also share one ticket key, so any of
// them can resume a session issued by another.
// It is safe for concurrent use.
type TicketCache struct {
	entries *cache.Cache
	key     [32]byte
}

// NewTicketCache creates a cache whose entries expire after ttl.
func NewTicketCache(ttl time.Duration) *TicketCache {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	c := &TicketCache{
		entries: cache.New(ttl, ttl/2),
	}
	rand.Read(c.key[:])
	return c
}

// Len returns the number of live tickets, including those of both backends.
func (c *TicketCache) Len() int {
	return c.entries.ItemCount()
}

// Forget drops any ticket stored for peerID.
func (c *TicketCache) Forget(peerID []byte) {
	key := hex.EncodeToString(peerID)
	c.entries.Delete(stdPrefix + key)
	c.entries.Delete(utlsPrefix + key)
}

const (
	stdPrefix  = "tls/"
	utlsPrefix = "utls/"
)

// peerSessions adapts TicketCache to the ClientSessionCache interface of
// either backend. The session key chosen by the TLS stack is ignored; the
// peer ID set on the context is used instead.
type peerSessions[S any] struct {
	entries *cache.Cache
	key     string
}

func (p *peerSessions[S]) Get(_ string) (*S, bool) {
	v, ok := p.entries.Get(p.key)
	if !ok {
		return nil, false
	}
	s, ok := v.(*S)
	return s, ok
}

func (p *peerSessions[S]) Put(_ string, s *S) {
	if s == nil {
		p.entries.Delete(p.key)
		return
	}
	p.entries.Set(p.key, s, cache.DefaultExpiration)
}

func (c *TicketCache) forStd(peerID []byte) tls.ClientSessionCache {
	return &peerSessions[tls.ClientSessionState]{
		entries: c.entries,
		key:     stdPrefix + hex.EncodeToString(peerID),
	}
}

func (c *TicketCache) forUTLS(peerID []byte) utls.ClientSessionCache {
	return &peerSessions[utls.ClientSessionState]{
		entries: c.entries,
		key:     utlsPrefix + hex.EncodeToString(peerID),
	}
}
