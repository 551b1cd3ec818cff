// Package health probes the services of a generated stack. The same rules
// drive the native portal and the FastAPI portal the web portal agent
// writes.
package health

import (
	"context"
	"net"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/idpforge/internal/logging"
)

// Status is the outcome shown on the dashboard.
type Status string

const (
	StatusHealthy Status = "Healthy"
	StatusDown    Status = "Down"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 2 * time.Second

// maxParallel caps concurrent probes in CheckAll.
const maxParallel = 8

// tcpPorts are probed with a plain connect.
var tcpPorts = map[string]bool{"5432": true, "6379": true}

// httpPaths maps well-known ports to their health endpoints.
var httpPaths = map[string]string{
	"9090": "/-/healthy",
	"3000": "/api/health",
	"8888": "/health",
	"8080": "/login",
}

// Probe says how a port is checked.
type Probe struct {
	TCP  bool
	Path string
}

// ProbeFor returns the probe for port. Unknown ports get an HTTP GET of /.
func ProbeFor(port string) Probe {
	if tcpPorts[port] {
		return Probe{TCP: true}
	}
	if p, ok := httpPaths[port]; ok {
		return Probe{Path: p}
	}
	return Probe{Path: "/"}
}

// Rule pairs a port with its probe.
type Rule struct {
	Port  string
	Probe Probe
}

// Rules lists the well-known ports, TCP first, then by port.
func Rules() []Rule {
	var out []Rule
	for p := range tcpPorts {
		out = append(out, Rule{Port: p, Probe: Probe{TCP: true}})
	}
	for p, path := range httpPaths {
		out = append(out, Rule{Port: p, Probe: Probe{Path: path}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probe.TCP != out[j].Probe.TCP {
			return out[i].Probe.TCP
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// Target is one service to probe.
type Target struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port string `json:"port"`
	URL  string `json:"url,omitempty"`
}

// Result is the probe outcome for a target.
type Result struct {
	Target
	Status  Status `json:"status"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Checker runs probes.
type Checker struct {
	client  *http.Client
	dialer  net.Dialer
	timeout time.Duration
	log     *logging.Logger
}

// NewChecker returns a checker whose probes give up after timeout.
func NewChecker(timeout time.Duration, log *logging.Logger) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Checker{
		client:  &http.Client{Timeout: timeout},
		dialer:  net.Dialer{Timeout: timeout},
		timeout: timeout,
		log:     log,
	}
}

// Check probes one target. HTTP answers below 500 count as healthy.
func (c *Checker) Check(ctx context.Context, t Target) Result {
	res := Result{Target: t, Status: StatusDown}
	if t.Port == "" {
		res.Error = "no published port"
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addr := net.JoinHostPort(t.Host, t.Port)
	probe := ProbeFor(t.Port)
	var err error
	if probe.TCP {
		err = c.dial(ctx, addr)
	} else {
		err = c.get(ctx, "http://"+addr+probe.Path)
	}
	if err != nil {
		res.Error = err.Error()
		c.log.Debug().Str("service", t.Name).Str("addr", addr).Err(err).Msg("health check failed")
		return res
	}
	res.Status, res.Healthy = StatusHealthy, true
	return res
}

func (c *Checker) dial(ctx context.Context, addr string) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Checker) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// StatusError is an HTTP probe answered with a server error.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "unhealthy status " + http.StatusText(e.Code)
}

// CheckAll probes every target concurrently and returns results in target
// order.
func (c *Checker) CheckAll(ctx context.Context, targets []Target) []Result {
	out := make([]Result, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, t := range targets {
		g.Go(func() error {
			out[i] = c.Check(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
