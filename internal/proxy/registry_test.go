package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProxy runs an httptest server that plays the role of an HTTP proxy.
// Plain-HTTP probe requests arrive as absolute-URI GETs, so a vanilla
// handler can inspect the target host and answer per-target.
func fakeProxy(t *testing.T, respond func(targetHost string) int) (*httptest.Server, Descriptor) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(respond(r.Host))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	d, err := Parse("http://" + u.Host)
	require.NoError(t, err)
	return srv, d
}

func testOpts(probes ...string) RegistryOptions {
	return RegistryOptions{
		ProbeURLs:       probes,
		ProbeTimeout:    2 * time.Second,
		DisableCooldown: 50 * time.Millisecond,
		EmptyPoolWait:   20 * time.Millisecond,
	}
}

func TestRefreshAllProbesMustPass(t *testing.T) {
	_, good := fakeProxy(t, func(string) int { return http.StatusOK })
	_, flaky := fakeProxy(t, func(host string) int {
		if strings.HasPrefix(host, "probe-b") {
			return http.StatusBadGateway
		}
		return http.StatusOK
	})
	_, limited := fakeProxy(t, func(string) int { return http.StatusTooManyRequests })

	r := NewRegistry([]Descriptor{good, flaky, limited},
		testOpts("http://probe-a.test/", "http://probe-b.test/"))

	require.NoError(t, r.Refresh(context.Background()))

	assert.Equal(t, 1, r.Len())
	st := r.Statuses()
	assert.Equal(t, StatusReachable, st[good.Addr()])
	assert.Equal(t, StatusUnreachable, st[flaky.Addr()])
	assert.Equal(t, StatusUnreachable, st[limited.Addr()])
}

func TestRefreshAcceptsClientErrors(t *testing.T) {
	// Anti-bot 403s and plain 404s still prove the proxy forwards traffic;
	// only 5xx and 429 disqualify.
	_, forbidden := fakeProxy(t, func(string) int { return http.StatusForbidden })

	r := NewRegistry([]Descriptor{forbidden}, testOpts("http://probe-a.test/"))
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 1, r.Len())
}

func TestGetRandomBlocksUntilPoolNonEmpty(t *testing.T) {
	_, good := fakeProxy(t, func(string) int { return http.StatusOK })
	r := NewRegistry([]Descriptor{good}, testOpts("http://probe-a.test/"))

	got := make(chan Descriptor, 1)
	go func() {
		d, err := r.GetRandom(context.Background())
		if err == nil {
			got <- d
		}
	}()

	// Nothing reachable yet: the getter must wait, not return.
	select {
	case <-got:
		t.Fatal("GetRandom returned from an empty pool")
	case <-time.After(60 * time.Millisecond):
	}

	require.NoError(t, r.Refresh(context.Background()))

	select {
	case d := <-got:
		assert.Equal(t, good.Addr(), d.Addr())
	case <-time.After(2 * time.Second):
		t.Fatal("GetRandom did not pick up the refreshed pool")
	}
}

func TestGetRandomHonorsContext(t *testing.T) {
	r := NewRegistry(nil, testOpts("http://probe-a.test/"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.GetRandom(ctx)
	require.Error(t, err)
}

func TestDisableAndReinstate(t *testing.T) {
	_, good := fakeProxy(t, func(string) int { return http.StatusOK })
	r := NewRegistry([]Descriptor{good}, testOpts("http://probe-a.test/"))
	require.NoError(t, r.Refresh(context.Background()))
	require.Equal(t, 1, r.Len())

	r.Disable(good)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, StatusUnreachable, r.Statuses()[good.Addr()])

	// Reinstatement is unconditional after the cooldown, no re-probe.
	assert.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, StatusReachable, r.Statuses()[good.Addr()])
}

func TestDisableUnknownProxyIsNoop(t *testing.T) {
	_, good := fakeProxy(t, func(string) int { return http.StatusOK })
	r := NewRegistry([]Descriptor{good}, testOpts("http://probe-a.test/"))
	require.NoError(t, r.Refresh(context.Background()))

	stranger := Descriptor{Scheme: "http", Host: "10.9.9.9", Port: 1}
	r.Disable(stranger)
	assert.Equal(t, 1, r.Len())
}

func TestGetRandomIsUniformEnough(t *testing.T) {
	_, a := fakeProxy(t, func(string) int { return http.StatusOK })
	_, b := fakeProxy(t, func(string) int { return http.StatusOK })
	r := NewRegistry([]Descriptor{a, b}, testOpts("http://probe-a.test/"))
	require.NoError(t, r.Refresh(context.Background()))
	require.Equal(t, 2, r.Len())

	var hitA atomic.Int64
	for i := 0; i < 200; i++ {
		d, err := r.GetRandom(context.Background())
		require.NoError(t, err)
		if d.Addr() == a.Addr() {
			hitA.Add(1)
		}
	}
	// Loose bounds, just proving rotation happens.
	assert.Greater(t, hitA.Load(), int64(20))
	assert.Less(t, hitA.Load(), int64(180))
}
