package portal

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/soyeahso/idpforge/internal/agents/webportal"
	"github.com/soyeahso/idpforge/internal/compose"
	"github.com/soyeahso/idpforge/internal/health"
	"github.com/soyeahso/idpforge/internal/metrics"
	"github.com/soyeahso/idpforge/internal/version"
	"github.com/soyeahso/idpforge/internal/workspace"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// endpoints reads the compose stack. A missing or unreadable stack has no
// services.
func (s *Server) endpoints() []compose.Endpoint {
	data, err := s.ws.ReadFile(workspace.ComposeFile)
	if err != nil {
		return nil
	}
	f, err := compose.Parse(data)
	if err != nil {
		s.log.Debug().Err(err).Msg("compose stack unreadable")
		return nil
	}
	return f.Endpoints()
}

// LocalTargets addresses each published service through localhost, which
// is where the host-side portal reaches them.
func LocalTargets(eps []compose.Endpoint) []health.Target {
	out := make([]health.Target, 0, len(eps))
	for _, ep := range eps {
		out = append(out, health.Target{Name: ep.Service, Host: "localhost", Port: ep.Port, URL: ep.URL})
	}
	return out
}

type indexData struct {
	PlatformName string
	Stack        *workspace.Stack
	Services     []compose.Endpoint
	Decisions    []string
	Capabilities []workspace.Capability
	OutputDir    string
	GeneratedBy  string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		PlatformName: "IDP Portal",
		Services:     s.endpoints(),
		OutputDir:    s.ws.Root(),
		GeneratedBy:  version.GeneratedBy(),
	}
	if idp, err := webportal.Load(s.ws); err == nil {
		if idp.Config.Platform.Name != "" {
			data.PlatformName = idp.Config.Platform.Name
		}
		data.Stack = &idp.Config.Stack
		data.Capabilities = idp.Capabilities
		for name := range idp.Decisions {
			data.Decisions = append(data.Decisions, name)
		}
		sort.Strings(data.Decisions)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.log.Error().Err(err).Msg("rendering index")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   version.Version,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"clients":   s.hub.Count(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	eps := s.endpoints()
	if eps == nil {
		eps = []compose.Endpoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services": eps,
		"total":    len(eps),
	})
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	results := s.checker.CheckAll(r.Context(), LocalTargets(s.endpoints()))
	healthy := 0
	for _, res := range results {
		metrics.SetServiceUp(res.Name, res.Healthy)
		if res.Healthy {
			healthy++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services": results,
		"healthy":  healthy,
		"total":    len(results),
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	dec, err := s.ws.Decisions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if dec == nil {
		dec = map[string]json.RawMessage{}
	}
	if data, err := s.ws.ReadFile(workspace.PortalDecisionsFile); err == nil && json.Valid(data) {
		dec[strings.TrimSuffix(workspace.PortalDecisionsFile, ".json")] = data
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.ws.PlatformConfig()
	if workspace.IsNotExist(err) {
		writeError(w, http.StatusNotFound, "platform config not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
