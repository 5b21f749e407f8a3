// Package ai builds the embedders and text generators the learning
// subsystem consumes. Providers register a factory in init(); import a
// provider package for its side effect to make it available:
//
//	import _ "github.com/itsneelabh/gomind-learning/ai/providers/gemini"
//
// The built-in "hash" provider needs no credentials and embeds offline.
package ai

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/itsneelabh/gomind-learning/core"
)

// ErrCapabilityUnsupported is returned by factories for a capability their
// provider does not offer (e.g. embeddings from a chat-only API).
var ErrCapabilityUnsupported = errors.New("capability not supported by provider")

// ProviderFactory builds embedders and text generators for one provider.
type ProviderFactory interface {
	// Name returns the provider's name as used in configuration
	Name() string

	// Description returns a human-readable description
	Description() string

	// DetectEnvironment checks if this provider can be used with current environment
	// Returns priority (higher = preferred) and availability
	DetectEnvironment() (priority int, available bool)

	// NewEmbedder returns an embedder producing vectors of the given dimension
	NewEmbedder(cfg core.AIConfig, dimension int) (core.Embedder, error)

	// NewGenerator returns a text generator
	NewGenerator(cfg core.AIConfig) (core.TextGenerator, error)
}

// ProviderRegistry manages registered AI providers
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// Global registry instance
var registry = &ProviderRegistry{
	providers: make(map[string]ProviderFactory),
}

// Register registers a new provider factory.
// This is typically called from init() functions in provider packages.
func Register(factory ProviderFactory) error {
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}

	name := factory.Name()
	if name == "" {
		return fmt.Errorf("factory.Name() cannot be empty")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.providers[name]; exists {
		return fmt.Errorf("provider '%s' already registered", name)
	}

	registry.providers[name] = factory
	return nil
}

// MustRegister registers a provider and panics on error.
func MustRegister(factory ProviderFactory) {
	if err := Register(factory); err != nil {
		panic(fmt.Sprintf("failed to register provider: %v", err))
	}
}

// GetProvider retrieves a registered provider by name
func GetProvider(name string) (ProviderFactory, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	factory, exists := registry.providers[name]
	return factory, exists
}

// ListProviders returns all registered provider names
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderInfo contains information about a registered provider
type ProviderInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Priority    int    `json:"priority"`
}

// GetProviderInfo returns information about all registered providers,
// highest priority first.
func GetProviderInfo() []ProviderInfo {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	info := make([]ProviderInfo, 0, len(registry.providers))
	for name, factory := range registry.providers {
		priority, available := factory.DetectEnvironment()
		info = append(info, ProviderInfo{
			Name:        name,
			Description: factory.Description(),
			Available:   available,
			Priority:    priority,
		})
	}

	sort.Slice(info, func(i, j int) bool {
		if info[i].Priority != info[j].Priority {
			return info[i].Priority > info[j].Priority
		}
		return info[i].Name < info[j].Name
	})

	return info
}

// detectBestProvider picks the highest-priority available provider.
// The hash provider is always available, so this never fails once it is registered.
func detectBestProvider() (string, error) {
	for _, p := range GetProviderInfo() {
		if p.Available {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no AI provider available: %w", core.ErrMissingConfiguration)
}
