package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/soyeahso/idpforge/internal/agents"
	"github.com/soyeahso/idpforge/internal/agents/agentstest"
	"github.com/soyeahso/idpforge/internal/compose"
	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/health"
	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/soyeahso/idpforge/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newServer(t *testing.T, cfg config.PortalConfig) (*Server, agents.Deps) {
	t.Helper()
	d := agentstest.Deps(t)
	return New(cfg, d.Workspace, logging.Nop(), WithChecker(health.NewChecker(time.Second, logging.Nop()))), d
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const stack = `services:
  app:
    image: python:3.11-slim
    container_name: idp-dummy-app
    ports: ["8888:8888"]
  database:
    image: postgres:15-alpine
    ports: ["5432:5432"]
  worker:
    image: busybox
`

func TestHandler_EmptyWorkspace(t *testing.T) {
	s, _ := newServer(t, config.PortalConfig{})
	h := s.Handler()

	rec := get(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = get(t, h, "/api/services")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["total"])

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/config").Code)
	assert.Equal(t, "{}\n", get(t, h, "/api/decisions").Body.String())

	rec = get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No compose stack yet.")

	rec = get(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decode(t, rec)["error"])
}

func TestHandler_Seeded(t *testing.T) {
	s, d := newServer(t, config.PortalConfig{})
	agentstest.SeedPlatformConfig(t, d, func(c *workspace.PlatformConfig) {
		c.Platform.Name = "Acme <IDP>"
	})
	require.NoError(t, d.Workspace.WriteFile(workspace.ComposeFile, []byte(stack), 0o644))
	require.NoError(t, d.Workspace.WriteJSON(workspace.CICDDecisionsFile, workspace.CICDDecisions{
		CICD: workspace.CICDInfo{Provider: "Jenkins"},
	}))
	require.NoError(t, d.Workspace.WriteJSON(workspace.PortalDecisionsFile, workspace.PortalDecisions{
		WebPortal: workspace.PortalInfo{Framework: "FastAPI + Jinja2"},
	}))
	h := s.Handler()

	rec := get(t, h, "/api/services")
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["total"])
	first := body["services"].([]any)[0].(map[string]any)
	assert.Equal(t, "app", first["name"])
	assert.Equal(t, "http://localhost:8888", first["url"])

	rec = get(t, h, "/api/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "PostgreSQL")

	dec := decode(t, get(t, h, "/api/decisions"))
	assert.Contains(t, dec, "cicd-decisions")
	assert.Contains(t, dec, "web-portal-decisions")

	page := get(t, h, "/").Body.String()
	assert.Contains(t, page, "<title>Acme &lt;IDP&gt;</title>")
	assert.Contains(t, page, `<a href="http://localhost:8888">app</a>`)
	assert.Contains(t, page, `id="status-database"`)
	assert.Contains(t, page, "cicd-decisions")

	assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
}

func TestHandler_ServiceHealth(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer up.Close()
	u, err := url.Parse(up.URL)
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	s, d := newServer(t, config.PortalConfig{})
	manifest := fmt.Sprintf("services:\n  web:\n    image: nginx\n    ports: [\"%s:80\"]\n  worker:\n    image: busybox\n", port)
	require.NoError(t, d.Workspace.WriteFile(workspace.ComposeFile, []byte(manifest), 0o644))

	body := decode(t, get(t, s.Handler(), "/api/health"))
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["healthy"])
	services := body["services"].([]any)
	web := services[0].(map[string]any)
	assert.Equal(t, "web", web["name"])
	assert.Equal(t, string(health.StatusHealthy), web["status"])
	worker := services[1].(map[string]any)
	assert.Equal(t, string(health.StatusDown), worker["status"])
	assert.Equal(t, "no published port", worker["error"])

	http.DefaultClient.CloseIdleConnections()
}

func TestHandler_RateLimit(t *testing.T) {
	s, _ := newServer(t, config.PortalConfig{RateLimit: 2})
	h := s.Handler()
	assert.Equal(t, http.StatusOK, get(t, h, "/api/services").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/services").Code)
	rec := get(t, h, "/api/services")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
}

func TestHandler_CORS(t *testing.T) {
	s, _ := newServer(t, config.PortalConfig{AllowedOrigins: []string{"http://localhost:3000"}})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/services", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLocalTargets(t *testing.T) {
	got := LocalTargets([]compose.Endpoint{{Service: "app", ContainerName: "idp-dummy-app", Port: "8888", URL: "http://localhost:8888"}})
	assert.Equal(t, []health.Target{{Name: "app", Host: "localhost", Port: "8888", URL: "http://localhost:8888"}}, got)
}

func TestListenAddr(t *testing.T) {
	s, _ := newServer(t, config.PortalConfig{})
	assert.Equal(t, "127.0.0.1:8000", s.ListenAddr())
	s, _ = newServer(t, config.PortalConfig{Bind: "0.0.0.0", Port: 9100})
	assert.Equal(t, "0.0.0.0:9100", s.ListenAddr())
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestServe_PushesArtifactChanges(t *testing.T) {
	s, d := newServer(t, config.PortalConfig{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln, true) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", readEvent(t, conn).Type)
	require.Eventually(t, func() bool { return s.Hub().Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, d.Workspace.WriteFile(workspace.UserTaskFile, []byte("Build it"), 0o644))
	var got Event
	for got.Path != workspace.UserTaskFile {
		got = readEvent(t, conn)
	}
	assert.Equal(t, "artifact", got.Type)
	assert.Positive(t, got.Seq)

	conn.Close()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Zero(t, s.Hub().Count())
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, logging.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan Change, 16)
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx, func(c Change) { changes <- c })
		close(stopped)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	wait := func(path string) Change {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case c := <-changes:
				if c.Path == path {
					return c
				}
			case <-timeout:
				t.Fatalf("no change for %s", path)
			}
		}
	}

	require.NoError(t, os.Mkdir(filepath.Join(root, "cicd"), 0o755))
	assert.Equal(t, "create", wait("cicd").Op)

	require.NoError(t, os.WriteFile(filepath.Join(root, "cicd", "build.sh"), []byte("#!/bin/bash\n"), 0o755))
	wait("cicd/build.sh")

	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible"), nil, 0o644))
	assert.Equal(t, "visible", wait("visible").Path)
}
