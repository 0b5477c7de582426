package proxy

import (
	"context"
	"crypto/tls"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RegistryOptions configures probing and rotation behavior.
type RegistryOptions struct {
	// ProbeURLs is the health-check battery. A proxy joins the reachable set
	// only when every probe returns a non-5xx, non-429 response.
	ProbeURLs []string

	// ProbeTimeout bounds one probe request.
	ProbeTimeout time.Duration

	// DisableCooldown is how long Disable keeps a proxy out of rotation
	// before unconditional reinstatement.
	DisableCooldown time.Duration

	// EmptyPoolWait is the backoff before GetRandom re-checks an empty
	// reachable set.
	EmptyPoolWait time.Duration
}

func (o RegistryOptions) withDefaults() RegistryOptions {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 15 * time.Second
	}
	if o.DisableCooldown <= 0 {
		o.DisableCooldown = 20 * time.Second
	}
	if o.EmptyPoolWait <= 0 {
		o.EmptyPoolWait = 20 * time.Second
	}
	return o
}

// Registry owns the proxy pool and its health state. The reachable set is
// mutated only by Refresh, Disable and the delayed reinstatement callback;
// readers operate on snapshots taken under the lock.
type Registry struct {
	opts RegistryOptions

	mu        sync.Mutex
	pool      []Descriptor
	status    map[string]Status
	reachable []Descriptor
}

// NewRegistry creates a Registry over the given descriptors. All proxies
// start in StatusUnknown and outside the reachable set until the first
// Refresh.
func NewRegistry(pool []Descriptor, opts RegistryOptions) *Registry {
	r := &Registry{
		opts:   opts.withDefaults(),
		pool:   pool,
		status: make(map[string]Status, len(pool)),
	}
	for _, d := range pool {
		r.status[d.Addr()] = StatusUnknown
	}
	return r
}

// Len returns the current reachable-set size.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reachable)
}

// PoolSize returns the number of loaded proxies regardless of health.
func (r *Registry) PoolSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool)
}

// Statuses returns a snapshot of per-proxy health, keyed by Addr.
func (r *Registry) Statuses() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Status, len(r.status))
	for k, v := range r.status {
		out[k] = v
	}
	return out
}

// Refresh probes every loaded proxy concurrently and rebuilds the reachable
// set from those that pass the full battery.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	pool := make([]Descriptor, len(r.pool))
	copy(pool, r.pool)
	r.mu.Unlock()

	zap.L().Info("proxy: refreshing pool", zap.Int("proxies", len(pool)))

	results := make([]Status, len(pool))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(20)
	for i, d := range pool {
		i, d := i, d
		g.Go(func() error {
			results[i] = r.probe(gCtx, d)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return eris.Wrap(ctx.Err(), "proxy: refresh cancelled")
	}

	r.mu.Lock()
	r.reachable = r.reachable[:0]
	for i, d := range pool {
		r.status[d.Addr()] = results[i]
		if results[i] == StatusReachable {
			r.reachable = append(r.reachable, d)
		}
	}
	reachable, total := len(r.reachable), len(pool)
	r.mu.Unlock()

	if reachable == 0 {
		zap.L().Warn("proxy: reachable set is empty after refresh", zap.Int("probed", total))
	} else {
		zap.L().Info("proxy: pool refreshed",
			zap.Int("reachable", reachable),
			zap.Int("total", total),
		)
	}
	return nil
}

// probe runs the full battery for one proxy. Strict AND: a single failing
// probe URL marks the proxy unreachable.
func (r *Registry) probe(ctx context.Context, d Descriptor) Status {
	client := r.probeClient(d)
	defer client.CloseIdleConnections()

	g, gCtx := errgroup.WithContext(ctx)
	oks := make([]bool, len(r.opts.ProbeURLs))
	for i, u := range r.opts.ProbeURLs {
		i, u := i, u
		g.Go(func() error {
			oks[i] = r.probeOne(gCtx, client, d, u)
			return nil
		})
	}
	_ = g.Wait()

	for _, ok := range oks {
		if !ok {
			return StatusUnreachable
		}
	}
	zap.L().Debug("proxy: probe ok", zap.String("proxy", d.Addr()))
	return StatusReachable
}

func (r *Registry) probeOne(ctx context.Context, client *http.Client, d Descriptor, probeURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		zap.L().Debug("proxy: probe failed",
			zap.String("proxy", d.Addr()),
			zap.String("url", probeURL),
			zap.Error(err),
		)
		return false
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		zap.L().Debug("proxy: probe rejected",
			zap.String("proxy", d.Addr()),
			zap.String("url", probeURL),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}
	return true
}

func (r *Registry) probeClient(d Descriptor) *http.Client {
	return &http.Client{
		Timeout: r.opts.ProbeTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(d.URL()),
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 0,
			}).DialContext,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			DisableKeepAlives:   true,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// GetRandom returns a uniformly random proxy from the reachable set. When
// the set is empty it waits EmptyPoolWait and re-checks, repeating until a
// proxy appears or ctx is done. It never fabricates a direct-connection
// result.
func (r *Registry) GetRandom(ctx context.Context) (Descriptor, error) {
	for {
		r.mu.Lock()
		n := len(r.reachable)
		var d Descriptor
		if n > 0 {
			d = r.reachable[rand.Intn(n)]
		}
		r.mu.Unlock()

		if n > 0 {
			return d, nil
		}

		zap.L().Warn("proxy: reachable set empty, waiting",
			zap.Duration("wait", r.opts.EmptyPoolWait),
		)
		timer := time.NewTimer(r.opts.EmptyPoolWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Descriptor{}, eris.Wrap(ctx.Err(), "proxy: no reachable proxy")
		case <-timer.C:
		}
	}
}

// Disable removes the proxy from the reachable set and schedules its
// unconditional reinstatement after the cooldown. The reinstated proxy is
// not re-probed first; Refresh is the only verification path.
func (r *Registry) Disable(d Descriptor) {
	addr := d.Addr()

	r.mu.Lock()
	r.status[addr] = StatusUnreachable
	kept := r.reachable[:0]
	removed := false
	for _, p := range r.reachable {
		if p.Addr() == addr {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	r.reachable = kept
	r.mu.Unlock()

	if !removed {
		return
	}
	zap.L().Warn("proxy: disabled",
		zap.String("proxy", addr),
		zap.Duration("cooldown", r.opts.DisableCooldown),
	)

	time.AfterFunc(r.opts.DisableCooldown, func() { r.reinstate(d) })
}

func (r *Registry) reinstate(d Descriptor) {
	addr := d.Addr()

	r.mu.Lock()
	for _, p := range r.reachable {
		if p.Addr() == addr {
			r.mu.Unlock()
			return
		}
	}
	r.status[addr] = StatusReachable
	r.reachable = append(r.reachable, d)
	r.mu.Unlock()

	zap.L().Info("proxy: reinstated after cooldown", zap.String("proxy", addr))
}
