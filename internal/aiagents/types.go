package aiagents

import "time"

// Agent is the configuration of an LLM responder.
type Agent struct {
	ID               string
	CompanyID        string
	Name             string
	SystemPrompt     string
	ContextInfo      string
	Model            string
	Temperature      float32
	TransferKeywords []string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
