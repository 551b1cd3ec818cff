package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/idpforge/internal/logging"
)

func TestProbeFor(t *testing.T) {
	assert.Equal(t, Probe{TCP: true}, ProbeFor("5432"))
	assert.Equal(t, Probe{TCP: true}, ProbeFor("6379"))
	assert.Equal(t, Probe{Path: "/-/healthy"}, ProbeFor("9090"))
	assert.Equal(t, Probe{Path: "/api/health"}, ProbeFor("3000"))
	assert.Equal(t, Probe{Path: "/health"}, ProbeFor("8888"))
	assert.Equal(t, Probe{Path: "/login"}, ProbeFor("8080"))
	assert.Equal(t, Probe{Path: "/"}, ProbeFor("8001"))
}

func TestRules(t *testing.T) {
	rules := Rules()
	require.Len(t, rules, 6)
	assert.Equal(t, "5432", rules[0].Port)
	assert.True(t, rules[1].Probe.TCP)
	assert.Equal(t, Rule{Port: "3000", Probe: Probe{Path: "/api/health"}}, rules[2])
}

func hostPort(t *testing.T, raw string) (string, string) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	return host, port
}

func TestCheck_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	c := NewChecker(time.Second, logging.Nop())
	res := c.Check(context.Background(), Target{Name: "web", Host: host, Port: port})
	assert.Equal(t, StatusHealthy, res.Status)
	assert.True(t, res.Healthy)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	host, port = hostPort(t, broken.URL)
	res = c.Check(context.Background(), Target{Name: "web", Host: host, Port: port})
	assert.Equal(t, StatusDown, res.Status)
	assert.False(t, res.Healthy)
	assert.NotEmpty(t, res.Error)
}

func TestCheck_NoPort(t *testing.T) {
	res := NewChecker(0, nil).Check(context.Background(), Target{Name: "worker"})
	assert.Equal(t, StatusDown, res.Status)
	assert.Equal(t, "no published port", res.Error)
}

func TestCheckAll_PreservesOrder(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, open, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, gone, err := net.SplitHostPort(closed.Addr().String())
	require.NoError(t, err)
	closed.Close()

	targets := []Target{
		{Name: "open", Host: "127.0.0.1", Port: open},
		{Name: "none"},
		{Name: "gone", Host: "127.0.0.1", Port: gone},
	}
	res := NewChecker(time.Second, logging.Nop()).CheckAll(context.Background(), targets)
	require.Len(t, res, 3)
	assert.Equal(t, "open", res[0].Name)
	assert.Equal(t, "none", res[1].Name)
	assert.Equal(t, "gone", res[2].Name)
	assert.Equal(t, StatusDown, res[1].Status)
	assert.Equal(t, StatusDown, res[2].Status)
}
