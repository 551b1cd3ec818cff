package compose

import (
	"regexp"
	"strings"

	"github.com/soyeahso/idpforge/internal/catalog"
)

// Service names the generated stack uses.
const (
	AppService       = "app"
	DatabaseService  = "database"
	CacheService     = "cache"
	ScannerService   = "security-scanner"
	CIRunnerService  = "ci-runner"
	PortalService    = "web-portal"
	DefaultNetwork   = "idp_network"
	AppContainerName = "idp-dummy-app"
	JenkinsJob       = "IDP-Pipeline" // Jenkins job the CI runner mounts the project into
	dockerSocket     = "/var/run/docker.sock:/var/run/docker.sock"
)

// StackOptions selects the images of the default stack. Zero entries fall
// back to PostgreSQL and Redis.
type StackOptions struct {
	Runtime  string
	Database catalog.Entry
	Cache    catalog.Entry
}

type dbProfile struct {
	port string
	data string
	env  Env
}

var dbProfiles = map[string]dbProfile{
	"postgres": {port: "5432:5432", data: "/var/lib/postgresql/data", env: Env{"POSTGRES_PASSWORD": "postgres", "POSTGRES_DB": "idp"}},
	"mysql":    {port: "3306:3306", data: "/var/lib/mysql", env: Env{"MYSQL_ROOT_PASSWORD": "mysql", "MYSQL_DATABASE": "idp"}},
	"mariadb":  {port: "3306:3306", data: "/var/lib/mysql", env: Env{"MARIADB_ROOT_PASSWORD": "mariadb", "MARIADB_DATABASE": "idp"}},
	"mongo":    {port: "27017:27017", data: "/data/db", env: Env{"MONGO_INITDB_DATABASE": "idp"}},
}

func profileFor(image string) dbProfile {
	name, _, _ := strings.Cut(image, ":")
	if p, ok := dbProfiles[name]; ok {
		return p
	}
	return dbProfiles["postgres"]
}

// DefaultStack builds the baseline stack: the dummy app, a database, a
// cache and Prometheus with Grafana, all on idp_network.
func DefaultStack(opts StackOptions) *File {
	dbImage := opts.Database.Image
	if dbImage == "" {
		dbImage = "postgres:15-alpine"
	}
	cacheImage := opts.Cache.Image
	if cacheImage == "" {
		cacheImage = "redis:7-alpine"
	}
	cachePort := "6379:6379"
	if strings.HasPrefix(cacheImage, "memcached") {
		cachePort = "11211:11211"
	}
	db := profileFor(dbImage)
	net := Names{DefaultNetwork}

	return &File{
		Version: "3.8",
		Services: map[string]Service{
			AppService: {
				Image:         catalog.RuntimeImage(opts.Runtime),
				ContainerName: AppContainerName,
				Command:       Command{"python -m http.server 8888"},
				Ports:         Ports{"8888:8888"},
				Networks:      net,
			},
			DatabaseService: {
				Image:         dbImage,
				ContainerName: "database",
				Ports:         Ports{db.port},
				Environment:   db.env,
				Volumes:       []string{"db_data:" + db.data},
				Networks:      net,
			},
			CacheService: {
				Image:         cacheImage,
				ContainerName: "cache",
				Ports:         Ports{cachePort},
				Networks:      net,
			},
			"prometheus": {
				Image:         "prom/prometheus:latest",
				ContainerName: "prometheus",
				Ports:         Ports{"9090:9090"},
				Volumes:       []string{"./prometheus.yml:/etc/prometheus/prometheus.yml", "prometheus_data:/prometheus"},
				Networks:      net,
			},
			"grafana": {
				Image:         "grafana/grafana:latest",
				ContainerName: "grafana",
				Ports:         Ports{"3000:3000"},
				Environment:   Env{"GF_SECURITY_ADMIN_PASSWORD": "admin"},
				Volumes:       []string{"grafana_data:/var/lib/grafana"},
				Networks:      net,
			},
		},
		Volumes: map[string]Volume{
			"db_data":         {},
			"grafana_data":    {},
			"prometheus_data": {},
		},
		Networks: map[string]Network{
			DefaultNetwork: {Driver: "bridge"},
		},
	}
}

// PrimaryNetworks returns the networks of the app service, or of the first
// service by name when there is no app.
func (f *File) PrimaryNetworks() Names {
	if svc, ok := f.Services[AppService]; ok {
		return svc.Networks
	}
	if names := f.ServiceNames(); len(names) > 0 {
		return f.Services[names[0]].Networks
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// AddScanner adds the security-scanner service. The project directory is
// mounted at /scan so a one-off run can scan it.
func (f *File) AddScanner(e catalog.Entry) string {
	f.Services[ScannerService] = Service{
		Image:         e.Image,
		ContainerName: slug(e.Name) + "-scanner",
		Volumes:       []string{"./:/scan"},
		Command:       Command{"--help"},
		Networks:      f.PrimaryNetworks(),
	}
	return ScannerService
}

// RunnerInfo describes the CI runner added to the stack.
type RunnerInfo struct {
	Service  string
	HasWebUI bool
	UIURL    string
}

// AddCIRunner adds the CI runner matching provider. Jenkins gets its web UI
// on 8080 and a persistent home volume.
func (f *File) AddCIRunner(e catalog.Entry) RunnerInfo {
	net := f.PrimaryNetworks()
	name := strings.ToLower(e.Name)
	switch {
	case strings.Contains(name, "jenkins"):
		f.Services[CIRunnerService] = Service{
			Image:         e.Image,
			ContainerName: "jenkins",
			Ports:         Ports{"8080:8080", "50000:50000"},
			Volumes: []string{
				"jenkins_data:/var/jenkins_home",
				"../jenkins_home/jobs:/var/jenkins_home/jobs",
				"../:/var/jenkins_home/workspace/" + JenkinsJob + ":rw",
				dockerSocket,
			},
			Environment: Env{"JAVA_OPTS": "-Djenkins.install.runSetupWizard=false"},
			User:        "root",
			Networks:    net,
		}
		if f.Volumes == nil {
			f.Volumes = map[string]Volume{}
		}
		f.Volumes["jenkins_data"] = Volume{}
		return RunnerInfo{Service: CIRunnerService, HasWebUI: true, UIURL: "http://localhost:8080"}
	case strings.Contains(name, "github"):
		f.Services[CIRunnerService] = Service{
			Image:         e.Image,
			ContainerName: "act-runner",
			Volumes:       []string{"./:/workspace", dockerSocket},
			WorkingDir:    "/workspace",
			Networks:      net,
		}
	case strings.Contains(name, "gitlab"):
		f.Services[CIRunnerService] = Service{
			Image:         e.Image,
			ContainerName: "gitlab-runner",
			Volumes:       []string{"./:/workspace", dockerSocket},
			Networks:      net,
		}
	default:
		f.Services[CIRunnerService] = Service{
			Image:         e.Image,
			ContainerName: "ci-runner",
			Volumes:       []string{"./:/workspace"},
			Networks:      net,
		}
	}
	return RunnerInfo{Service: CIRunnerService}
}

// AddPortal adds the generated FastAPI portal. It depends on the app and
// the database when those exist.
func (f *File) AddPortal() string {
	var deps Names
	for _, d := range []string{AppService, DatabaseService} {
		if _, ok := f.Services[d]; ok {
			deps = append(deps, d)
		}
	}
	f.Services[PortalService] = Service{
		Image:         "python:3.11-slim",
		ContainerName: "idp-portal",
		Ports:         Ports{"8001:8001"},
		Volumes:       []string{"../portal:/app", "..:/app/outputs"},
		WorkingDir:    "/app",
		Command: Command{"sh", "-c",
			"pip install -q fastapi uvicorn jinja2 pyyaml httpx && uvicorn main:app --host 0.0.0.0 --port 8001 --reload"},
		DependsOn: deps,
		Networks:  f.PrimaryNetworks(),
	}
	return PortalService
}
