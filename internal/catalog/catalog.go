// Package catalog maps the tool names an architect picks to the container
// images the generated stack runs.
package catalog

import (
	"regexp"
	"sort"
	"strings"
)

// Entry is one known tool.
type Entry struct {
	Name  string // canonical display name
	Image string // empty when the tool has no container form
}

// Catalog resolves tool names to images, case-insensitively.
type Catalog struct {
	scanners  map[string]Entry
	ciRunners map[string]Entry
	databases map[string]Entry
	caches    map[string]Entry
}

func index(entries ...Entry) map[string]Entry {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[normalize(e.Name)] = e
	}
	return m
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Default returns the built-in catalogue.
func Default() *Catalog {
	return &Catalog{
		scanners: index(
			Entry{Name: "Trivy", Image: "aquasec/trivy:latest"},
			Entry{Name: "Snyk", Image: "snyk/snyk:latest"},
			Entry{Name: "Grype", Image: "anchore/grype:latest"},
			Entry{Name: "Clair", Image: "quay.io/coreos/clair:latest"},
			Entry{Name: "AWS Inspector"},
		),
		ciRunners: index(
			Entry{Name: "Jenkins", Image: "jenkins/jenkins:lts"},
			Entry{Name: "GitHub Actions", Image: "nektos/act-environments-ubuntu:18.04"},
			Entry{Name: "GitLab CI", Image: "gitlab/gitlab-runner:latest"},
			Entry{Name: "CircleCI", Image: "circleci/circleci-cli:latest"},
		),
		databases: index(
			Entry{Name: "PostgreSQL", Image: "postgres:15-alpine"},
			Entry{Name: "MySQL", Image: "mysql:8-debian"},
			Entry{Name: "MongoDB", Image: "mongo:7"},
			Entry{Name: "MariaDB", Image: "mariadb:11"},
		),
		caches: index(
			Entry{Name: "Redis", Image: "redis:7-alpine"},
			Entry{Name: "Memcached", Image: "memcached:1.6-alpine"},
		),
	}
}

var providerRe = regexp.MustCompile(`^([^(]+)\s*\(Image:\s*([^)]+)\)`)

// ParseProvider splits "Trivy (Image: aquasec/trivy:0.50)" into the tool
// name and the explicit image. Without an image annotation the whole string
// is the name.
func ParseProvider(s string) (name, image string) {
	s = strings.TrimSpace(s)
	if m := providerRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return s, ""
}

func lookup(m map[string]Entry, s string) (Entry, bool) {
	name, image := ParseProvider(s)
	e, ok := m[normalize(name)]
	if image != "" {
		if !ok {
			e = Entry{Name: name}
		}
		e.Image = image
		return e, true
	}
	return e, ok
}

// Scanner resolves a security scanner. An explicit image annotation always
// resolves, even for tools the catalogue does not know.
func (c *Catalog) Scanner(s string) (Entry, bool) { return lookup(c.scanners, s) }

// CIRunner resolves a CI/CD provider.
func (c *Catalog) CIRunner(s string) (Entry, bool) {
	name, _ := ParseProvider(s)
	switch normalize(name) {
	case "github", "github actions", "gh actions":
		s = strings.Replace(s, name, "GitHub Actions", 1)
	case "gitlab", "gitlab ci", "gitlab-ci":
		s = strings.Replace(s, name, "GitLab CI", 1)
	case "circle", "circleci", "circle ci":
		s = strings.Replace(s, name, "CircleCI", 1)
	}
	return lookup(c.ciRunners, s)
}

// Database resolves a database engine. Postgres is accepted for PostgreSQL.
func (c *Catalog) Database(s string) (Entry, bool) {
	name, _ := ParseProvider(s)
	if n := normalize(name); n == "postgres" || n == "postgresql" {
		s = strings.Replace(s, name, "PostgreSQL", 1)
	}
	return lookup(c.databases, s)
}

// Cache resolves a cache engine.
func (c *Catalog) Cache(s string) (Entry, bool) { return lookup(c.caches, s) }

// RuntimeImage picks the base image for the dummy application.
func RuntimeImage(runtime string) string {
	if strings.Contains(runtime, "3.12") {
		return "python:3.12-slim"
	}
	return "python:3.11-slim"
}

// Scanners lists the known scanner names.
func (c *Catalog) Scanners() []string { return names(c.scanners) }

// CIRunners lists the known CI/CD provider names.
func (c *Catalog) CIRunners() []string { return names(c.ciRunners) }

func names(m map[string]Entry) []string {
	out := make([]string, 0, len(m))
	for _, e := range m {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}
