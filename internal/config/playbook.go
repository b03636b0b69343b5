package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Playbook holds per-category acquisition guidance templates. When a phase
// opens an evidence request, its category is looked up here to pre-fill the
// commands/file-locations guidance shown to the user.
type Playbook struct {
	Entries map[string]PlaybookEntry `yaml:"entries"`
}

// PlaybookEntry is the guidance template for one evidence category.
type PlaybookEntry struct {
	Label         string   `yaml:"label"`
	Commands      []string `yaml:"commands"`
	FileLocations []string `yaml:"file_locations"`
	UILocations   []string `yaml:"ui_locations"`
	Alternatives  []string `yaml:"alternatives"`
	Prerequisites []string `yaml:"prerequisites"`
	Critical      bool     `yaml:"critical"`
}

// DefaultPlaybook returns built-in guidance covering every evidence category.
func DefaultPlaybook() *Playbook {
	return &Playbook{
		Entries: map[string]PlaybookEntry{
			"symptoms": {
				Label:         "Observed symptoms and error output",
				Commands:      []string{"journalctl -u <service> --since '1 hour ago'", "kubectl logs <pod> --tail=200"},
				FileLocations: []string{"/var/log/syslog", "application error log"},
				Critical:      true,
			},
			"timeline": {
				Label:         "When the problem started and what happened around it",
				Commands:      []string{"last reboot", "kubectl get events --sort-by=.lastTimestamp"},
				Alternatives:  []string{"monitoring dashboard annotations", "deploy pipeline history"},
				Critical:      true,
			},
			"changes": {
				Label:         "Recent changes to code, config, or infrastructure",
				Commands:      []string{"git log --since='2 days ago' --oneline", "terraform plan"},
				UILocations:   []string{"CI/CD deployment history"},
			},
			"configuration": {
				Label:         "Current configuration of the affected component",
				Commands:      []string{"kubectl describe deployment <name>", "cat /etc/<service>/*.conf"},
				Prerequisites: []string{"read access to the affected host or namespace"},
			},
			"scope": {
				Label:        "How many users, hosts, or requests are affected",
				Commands:     []string{"grep -c ERROR /var/log/app.log"},
				UILocations:  []string{"error-rate dashboard", "status page incident scope"},
				Critical:     true,
			},
			"metrics": {
				Label:       "Resource and performance metrics for the affected window",
				Commands:    []string{"top -b -n1", "free -m", "df -h"},
				UILocations: []string{"CPU/memory/latency dashboards"},
			},
			"environment": {
				Label:         "Runtime environment details",
				Commands:      []string{"uname -a", "kubectl version", "env | sort"},
				FileLocations: []string{"Dockerfile", "deployment manifest"},
			},
		},
	}
}

// LoadPlaybook reads a playbook YAML, falling back to the built-in defaults
// when the file is absent. Entries present in the file override defaults
// per category.
func LoadPlaybook(path string) (*Playbook, error) {
	pb := DefaultPlaybook()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pb, nil
		}
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}

	var loaded Playbook
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse playbook: %w", err)
	}
	for category, entry := range loaded.Entries {
		pb.Entries[category] = entry
	}

	return pb, nil
}

// Lookup returns the guidance template for a category, falling back to the
// built-in default entry when the category is unknown.
func (p *Playbook) Lookup(category string) (PlaybookEntry, bool) {
	entry, ok := p.Entries[category]
	return entry, ok
}

// PlaybookHolder is a swap-in-place holder so a watcher can hot-reload the
// playbook while phase logic keeps reading it.
type PlaybookHolder struct {
	mu sync.RWMutex
	pb *Playbook
}

// NewPlaybookHolder wraps a playbook for concurrent read/replace.
func NewPlaybookHolder(pb *Playbook) *PlaybookHolder {
	if pb == nil {
		pb = DefaultPlaybook()
	}
	return &PlaybookHolder{pb: pb}
}

// Get returns the current playbook.
func (h *PlaybookHolder) Get() *Playbook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pb
}

// Replace swaps in a new playbook.
func (h *PlaybookHolder) Replace(pb *Playbook) {
	if pb == nil {
		return
	}
	h.mu.Lock()
	h.pb = pb
	h.mu.Unlock()
}
