package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  SessionKey
		want string
	}{
		{"default", DefaultSessionKey(), "idp_orchestrator_app:idp_user:idp_session_001"},
		{"custom", SessionKey{AppName: "a", UserID: "u", SessionID: "s"}, "a:u:s"},
		{"empty", SessionKey{}, "::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestRunDurationAndArtifacts(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	r := Run{
		StartedAt: start,
		Stages: []StageResult{
			{Agent: "platform_architect", Artifacts: []Artifact{{Path: "platform-config.yaml"}, {Path: "platform-decisions.json"}}},
			{Agent: "infrastructure", Artifacts: []Artifact{{Path: "docker-compose/app-stack.yml"}}},
			{Agent: "security", Status: StageFailed},
		},
	}
	assert.Zero(t, r.Duration())
	assert.Equal(t, 3, r.ArtifactCount())

	r.FinishedAt = start.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, r.Duration())
}
