package rss

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// MaxConcurrencyPerDomain limits parallel feed requests to any single host.
const MaxConcurrencyPerDomain = 2

// DefaultDomainDelay is the minimum spacing between feed requests to the same host.
const DefaultDomainDelay = 500 * time.Millisecond

// hostSlot is the limiter state of one host.
type hostSlot struct {
	sem  chan struct{}
	mu   sync.Mutex
	next time.Time // earliest start of the next request
}

// hostLimiter spaces out and caps concurrent requests per host so that a manual
// refresh running next to the poller does not hammer one server.
type hostLimiter struct {
	delay time.Duration
	mu    sync.Mutex
	hosts map[string]*hostSlot
}

func newHostLimiter(delay time.Duration) *hostLimiter {
	return &hostLimiter{delay: delay, hosts: make(map[string]*hostSlot)}
}

func (l *hostLimiter) slot(host string) *hostSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.hosts[host]
	if !ok {
		s = &hostSlot{sem: make(chan struct{}, MaxConcurrencyPerDomain)}
		l.hosts[host] = s
	}
	return s
}

// wait blocks until a request to rawURL's host may start. The returned func
// must be called once the request is done.
func (l *hostLimiter) wait(ctx context.Context, rawURL string) (func(), error) {
	s := l.slot(hostOf(rawURL))
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-s.sem }

	s.mu.Lock()
	now := time.Now()
	start := now
	if s.next.After(now) {
		start = s.next
	}
	s.next = start.Add(l.delay)
	s.mu.Unlock()

	if d := start.Sub(now); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
