package observability

// DashboardFile is the Grafana import envelope.
type DashboardFile struct {
	Dashboard Dashboard `json:"dashboard"`
}

type Dashboard struct {
	Title  string  `json:"title"`
	Panels []Panel `json:"panels"`
}

type Panel struct {
	Title   string   `json:"title"`
	Targets []Target `json:"targets"`
}

type Target struct {
	Expr string `json:"expr"`
}

func panel(title, expr string) Panel {
	return Panel{Title: title, Targets: []Target{{Expr: expr}}}
}

// AppMetrics tracks request rate, latency and errors.
func AppMetrics() Dashboard {
	return Dashboard{
		Title: "IDP Application Metrics",
		Panels: []Panel{
			panel("HTTP Request Rate", "rate(http_requests_total[5m])"),
			panel("Request Latency p95", "histogram_quantile(0.95, http_request_duration_seconds_bucket)"),
			panel("Error Rate", "rate(http_errors_total[5m])"),
		},
	}
}

// SystemMetrics tracks process and host resources.
func SystemMetrics() Dashboard {
	return Dashboard{
		Title: "IDP System Metrics",
		Panels: []Panel{
			panel("CPU Usage", "rate(process_cpu_seconds_total[5m])"),
			panel("Memory Usage", "process_resident_memory_bytes"),
			panel("Disk Usage", "node_filesystem_avail_bytes"),
		},
	}
}

// PrometheusConfig is docker-compose/prometheus.yml.
type PrometheusConfig struct {
	Global        Global         `yaml:"global"`
	ScrapeConfigs []ScrapeConfig `yaml:"scrape_configs"`
}

type Global struct {
	ScrapeInterval     string `yaml:"scrape_interval"`
	EvaluationInterval string `yaml:"evaluation_interval"`
}

type ScrapeConfig struct {
	JobName       string         `yaml:"job_name"`
	MetricsPath   string         `yaml:"metrics_path,omitempty"`
	StaticConfigs []StaticConfig `yaml:"static_configs"`
}

type StaticConfig struct {
	Targets []string `yaml:"targets,flow"`
}
