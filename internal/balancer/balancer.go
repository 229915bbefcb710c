// Package balancer implements the Load Balancer with Session Affinity
// (spec §4.7): plain round-robin for ordinary requests, sticky-by-session
// routing for duplex-socket upgrades, backed by periodic health polling.
package balancer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/amityvox/notifyhub/internal/config"
)

// Instance is one backend notifyhub instance behind the balancer.
type Instance struct {
	URL     *url.URL
	proxy   *httputil.ReverseProxy
	healthy atomic.Bool
}

// Balancer round-robins across healthy instances and pins sticky sessions
// (socket upgrades) to the instance that served their handshake.
type Balancer struct {
	cfg       config.BalancerConfig
	instances []*Instance
	next      atomic.Uint64

	mu     sync.RWMutex
	sticky map[string]int // session id -> instance index

	logger *slog.Logger
	client *http.Client
}

// New builds a Balancer from the configured instance URLs.
func New(cfg config.BalancerConfig, logger *slog.Logger) (*Balancer, error) {
	instances := make([]*Instance, 0, len(cfg.Instances))
	for _, raw := range cfg.Instances {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, err
		}
		inst := &Instance{URL: u, proxy: httputil.NewSingleHostReverseProxy(u)}
		inst.healthy.Store(true)
		instances = append(instances, inst)
	}

	return &Balancer{
		cfg:       cfg,
		instances: instances,
		sticky:    make(map[string]int),
		logger:    logger,
		client:    &http.Client{},
	}, nil
}

// ServeHTTP routes a plain HTTP request round-robin across healthy
// instances and hands WebSocket upgrade requests to ServeSticky.
func (b *Balancer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		b.ServeSticky(w, r)
		return
	}
	inst := b.pickRoundRobin()
	if inst == nil {
		http.Error(w, "no healthy instances", http.StatusServiceUnavailable)
		return
	}
	inst.proxy.ServeHTTP(w, r)
}

// ServeSticky routes a duplex-socket upgrade request to the instance pinned
// to the session identifier carried in the request's sticky cookie or
// sticky query parameter, minting a new one (and setting the cookie) on a
// session's first handshake.
func (b *Balancer) ServeSticky(w http.ResponseWriter, r *http.Request) {
	sessionID := b.sessionID(r)
	if sessionID == "" {
		sessionID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     b.cfg.StickyCookieName,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	inst := b.pickSticky(sessionID)
	if inst == nil {
		http.Error(w, "no healthy instances", http.StatusServiceUnavailable)
		return
	}
	inst.proxy.ServeHTTP(w, r)
}

// sessionID extracts the sticky session identifier from the request's
// cookie (preferred) or its query parameter (fallback for non-browser
// clients that can't easily send cookies on a handshake).
func (b *Balancer) sessionID(r *http.Request) string {
	if c, err := r.Cookie(b.cfg.StickyCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get(b.cfg.StickyCookieName)
}

func (b *Balancer) pickRoundRobin() *Instance {
	n := len(b.instances)
	if n == 0 {
		return nil
	}
	start := int(b.next.Add(1) % uint64(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if b.instances[idx].healthy.Load() {
			return b.instances[idx]
		}
	}
	return nil
}

func (b *Balancer) pickSticky(sessionID string) *Instance {
	n := len(b.instances)
	if n == 0 {
		return nil
	}

	b.mu.RLock()
	idx, pinned := b.sticky[sessionID]
	b.mu.RUnlock()

	if pinned && b.instances[idx].healthy.Load() {
		return b.instances[idx]
	}

	// First handshake for this session, or its pinned instance went
	// unhealthy: derive a stable hash-based placement among the healthy set.
	hashed := int(hashSession(sessionID) % uint64(n))
	for i := 0; i < n; i++ {
		candidate := (hashed + i) % n
		if b.instances[candidate].healthy.Load() {
			b.mu.Lock()
			b.sticky[sessionID] = candidate
			b.mu.Unlock()
			return b.instances[candidate]
		}
	}
	return nil
}

func hashSession(sessionID string) uint64 {
	sum := sha256.Sum256([]byte(sessionID))
	return binary.BigEndian.Uint64(sum[:8])
}

// HealthCheck polls every instance's health endpoint on the configured
// interval until ctx is canceled, marking instances healthy/unhealthy.
// Existing sticky sessions on a now-unhealthy instance are left in place
// (spec §4.7: "existing sticky sessions drain naturally on client
// disconnect") - only new placements avoid it.
func (b *Balancer) HealthCheck(ctx context.Context) error {
	interval, err := b.cfg.HealthCheckIntervalParsed()
	if err != nil {
		return err
	}
	timeout, err := b.cfg.HealthCheckTimeoutParsed()
	if err != nil {
		return err
	}
	b.client.Timeout = timeout

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.pollAll(ctx)
		}
	}
}

func (b *Balancer) pollAll(ctx context.Context) {
	for _, inst := range b.instances {
		go b.poll(ctx, inst)
	}
}

func (b *Balancer) poll(ctx context.Context, inst *Instance) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inst.URL.String()+"/health", nil)
	if err != nil {
		inst.healthy.Store(false)
		return
	}
	resp, err := b.client.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		if inst.healthy.Swap(false) {
			b.logger.Warn("instance marked unhealthy", slog.String("instance", inst.URL.String()))
		}
		return
	}
	defer resp.Body.Close()
	if !inst.healthy.Swap(true) {
		b.logger.Info("instance marked healthy", slog.String("instance", inst.URL.String()))
	}
}
