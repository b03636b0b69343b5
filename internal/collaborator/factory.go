package collaborator

import (
	"gumshoe/internal/config"
	"gumshoe/internal/logging"
)

// Clients bundles the generator and classifier behind the shared scheduler.
type Clients struct {
	Generator  Generator
	Classifier Classifier
	Scheduler  *Scheduler
}

// NewFromConfig builds the collaborator clients for the configured provider.
// Unknown providers fall back to the offline heuristic pair.
func NewFromConfig(cfg config.LLMConfig) *Clients {
	sched := NewScheduler(cfg.MaxConcurrent)
	timeout := config.ParseDurationOr(cfg.Timeout, 0)

	var gen Generator
	var cls Classifier

	switch cfg.Provider {
	case "openai":
		client := NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		})
		gen, cls = client, client
	case "gemini":
		client := NewGeminiClient(GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: timeout,
		})
		gen, cls = client, client
	default:
		if cfg.Provider != "heuristic" && cfg.Provider != "" {
			logging.CollaboratorWarn("Unknown LLM provider %q, using the offline heuristic pair", cfg.Provider)
		}
		gen = &TemplateGenerator{}
		cls = &HeuristicClassifier{}
	}

	logging.Collaborator("Collaborator clients ready: generator=%s classifier=%s slots=%d",
		gen.Name(), cls.Name(), cfg.MaxConcurrent)

	return &Clients{
		Generator:  &ScheduledGenerator{Scheduler: sched, Client: gen},
		Classifier: &ScheduledClassifier{Scheduler: sched, Client: cls},
		Scheduler:  sched,
	}
}
