package config

import (
	"os"
)

// applyEnvOverrides lets the environment win over file and defaults.
// Provider precedence when no provider is set explicitly: an OpenAI key
// selects openai, a Gemini key selects gemini, otherwise the heuristic
// fallback stays.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GUMSHOE_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("GUMSHOE_ARCHIVE_DB"); v != "" {
		c.Store.ArchivePath = v
	}
	if v := os.Getenv("GUMSHOE_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("GUMSHOE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("GUMSHOE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}

	openaiKey := os.Getenv("OPENAI_API_KEY")
	geminiKey := os.Getenv("GEMINI_API_KEY")

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = openaiKey
		}
	case "gemini":
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = geminiKey
		}
	default:
		if openaiKey != "" {
			c.LLM.Provider = "openai"
			c.LLM.APIKey = openaiKey
		} else if geminiKey != "" {
			c.LLM.Provider = "gemini"
			c.LLM.APIKey = geminiKey
		}
	}

	if geminiKey != "" && c.Retrieval.APIKey == "" {
		c.Retrieval.APIKey = geminiKey
		if c.Retrieval.Provider == "" || c.Retrieval.Provider == "hash" {
			c.Retrieval.Provider = "genai"
		}
	}
}
