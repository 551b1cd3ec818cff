package domain

// AgentInfo is the listing form of a pipeline agent.
type AgentInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Emoji       string   `json:"emoji,omitempty"`
	Description string   `json:"description"`
	OutputKey   string   `json:"outputKey"`
	Tools       []string `json:"tools"`
}
