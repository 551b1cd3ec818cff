package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in, name, image string
	}{
		{"Trivy (Image: aquasec/trivy:0.50)", "Trivy", "aquasec/trivy:0.50"},
		{"  Jenkins (Image:jenkins/jenkins:lts-jdk17) ", "Jenkins", "jenkins/jenkins:lts-jdk17"},
		{"Snyk", "Snyk", ""},
		{"Grype (latest)", "Grype (latest)", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		name, image := ParseProvider(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.image, image, tt.in)
	}
}

func TestScanner(t *testing.T) {
	c := Default()

	e, ok := c.Scanner("trivy")
	assert.True(t, ok)
	assert.Equal(t, Entry{Name: "Trivy", Image: "aquasec/trivy:latest"}, e)

	e, ok = c.Scanner("Trivy (Image: aquasec/trivy:0.50)")
	assert.True(t, ok)
	assert.Equal(t, "aquasec/trivy:0.50", e.Image)

	e, ok = c.Scanner("AWS Inspector")
	assert.True(t, ok)
	assert.Empty(t, e.Image)

	_, ok = c.Scanner("Nessus")
	assert.False(t, ok)

	e, ok = c.Scanner("Nessus (Image: tenable/nessus:latest)")
	assert.True(t, ok)
	assert.Equal(t, Entry{Name: "Nessus", Image: "tenable/nessus:latest"}, e)
}

func TestCIRunner(t *testing.T) {
	c := Default()
	tests := map[string]string{
		"Jenkins":        "jenkins/jenkins:lts",
		"github actions": "nektos/act-environments-ubuntu:18.04",
		"GitHub":         "nektos/act-environments-ubuntu:18.04",
		"GitLab":         "gitlab/gitlab-runner:latest",
		"circleci":       "circleci/circleci-cli:latest",
	}
	for in, image := range tests {
		e, ok := c.CIRunner(in)
		assert.True(t, ok, in)
		assert.Equal(t, image, e.Image, in)
	}

	_, ok := c.CIRunner("bash scripts")
	assert.False(t, ok)
}

func TestDatabaseAndCache(t *testing.T) {
	c := Default()

	e, ok := c.Database("Postgres")
	assert.True(t, ok)
	assert.Equal(t, "PostgreSQL", e.Name)
	assert.Equal(t, "postgres:15-alpine", e.Image)

	e, ok = c.Database("mongodb")
	assert.True(t, ok)
	assert.Equal(t, "mongo:7", e.Image)

	e, ok = c.Cache("REDIS")
	assert.True(t, ok)
	assert.Equal(t, "redis:7-alpine", e.Image)

	_, ok = c.Cache("In-Memory")
	assert.False(t, ok)
}

func TestRuntimeImage(t *testing.T) {
	assert.Equal(t, "python:3.12-slim", RuntimeImage("Python 3.12"))
	assert.Equal(t, "python:3.11-slim", RuntimeImage("Go 1.22"))
}

func TestNames(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"AWS Inspector", "Clair", "Grype", "Snyk", "Trivy"}, c.Scanners())
	assert.Equal(t, []string{"CircleCI", "GitHub Actions", "GitLab CI", "Jenkins"}, c.CIRunners())
}
