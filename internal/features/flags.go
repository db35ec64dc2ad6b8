package features

import (
	"sort"
	"sync"
	"time"
)

// Flag is a runtime toggle for an optional part of the bot
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	// FlagAIClassification sends posts to the configured provider. Off means heuristic-only.
	FlagAIClassification = "ai_classification"
	FlagWebhookRateLimit = "webhook_rate_limit"
	FlagApprovalExpiry   = "approval_expiry"
	FlagDeliveryMonitor  = "delivery_monitor"
	FlagTemplateReload   = "template_reload"
)

// FlagDefinition describes a known flag and its default
type FlagDefinition struct {
	Name         string
	Description  string
	DefaultValue bool
}

var DefaultFlags = []FlagDefinition{
	{FlagAIClassification, "Classify wins with the AI provider", true},
	{FlagWebhookRateLimit, "Rate limit lifecycle webhooks per client IP", true},
	{FlagApprovalExpiry, "Drop consent requests older than approvals.ttl_hours", true},
	{FlagDeliveryMonitor, "Publish queue gauges and warn on stale deliveries", true},
	{FlagTemplateReload, "Reload the trigger template file when it changes", true},
}

// FlagManager holds flag state behind a RWMutex
type FlagManager struct {
	flags map[string]*Flag
	mu    sync.RWMutex
}

// NewFlagManager returns a manager seeded with DefaultFlags
func NewFlagManager() *FlagManager {
	fm := &FlagManager{flags: make(map[string]*Flag, len(DefaultFlags))}
	now := time.Now()
	for _, def := range DefaultFlags {
		fm.flags[def.Name] = &Flag{
			Name:        def.Name,
			Enabled:     def.DefaultValue,
			Description: def.Description,
			UpdatedAt:   now,
		}
	}
	return fm
}

// IsEnabled reports the flag state. Unknown flags are off.
func (fm *FlagManager) IsEnabled(name string) bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, ok := fm.flags[name]
	return ok && flag.Enabled
}

// Set changes a known flag
func (fm *FlagManager) Set(name string, enabled bool) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	flag, ok := fm.flags[name]
	if !ok {
		return ErrFlagNotFound{Name: name}
	}
	flag.Enabled = enabled
	flag.UpdatedAt = time.Now()
	return nil
}

// List returns copies of all flags sorted by name
func (fm *FlagManager) List() []Flag {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	out := make([]Flag, 0, len(fm.flags))
	for _, flag := range fm.flags {
		out = append(out, *flag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type ErrFlagNotFound struct {
	Name string
}

func (e ErrFlagNotFound) Error() string {
	return "feature flag not found: " + e.Name
}
