package sources

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/cal-comb/app/event"
)

// Config is one calendar declared as a YAML file
type Config struct {
	ID       string         // Derived from filename (without .yml extension)
	Name     string         `yaml:"name"`
	URL      string         `yaml:"url"`
	Kind     event.Kind     `yaml:"kind"`
	Color    string         `yaml:"color"`
	Settings ConfigSettings `yaml:"settings"`
	Filters  []event.Filter `yaml:"filters"`
}

type ConfigSettings struct {
	Enabled       *bool `yaml:"enabled"`
	SyncFrequency int   `yaml:"sync_frequency"` // seconds
}

func (c *Config) Enabled() bool {
	return c.Settings.Enabled == nil || *c.Settings.Enabled
}

func (c *Config) Calendar() event.Calendar {
	return event.Calendar{
		ID:            c.ID,
		Name:          c.Name,
		Color:         c.Color,
		Kind:          c.Kind,
		URL:           c.URL,
		Enabled:       c.Enabled(),
		SyncFrequency: c.Settings.SyncFrequency,
		Filters:       c.Filters,
	}
}

type ConfigCache struct {
	calendarsDir string
	cache        map[string]*Config
	mu           sync.RWMutex
}

func NewConfigCache(calendarsDir string) *ConfigCache {
	return &ConfigCache{
		calendarsDir: calendarsDir,
		cache:        make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.calendarsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.calendarsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		id := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(id)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "calendar", id, "kind", config.Kind, "enabled", config.Enabled())
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(id string) (*Config, error) {
	configFile := cc.getConfigFilePath(id)
	config, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	config.ID = id
	if config.Name == "" {
		config.Name = id
	}

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.ID] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(id string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[id]
	if !ok {
		return nil, fmt.Errorf("calendar config with id '%s' not found", id)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	return maps.Clone(cc.cache)
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Kind == "" {
		config.Kind = event.KindFeed
	}

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if config.URL == "" {
		return fmt.Errorf("calendar URL is required")
	}
	if config.ID == event.DefaultCalendarID {
		return fmt.Errorf("calendar id '%s' is reserved", event.DefaultCalendarID)
	}

	if config.Kind != event.KindFeed && config.Kind != event.KindPage {
		return fmt.Errorf("invalid calendar kind: %s", config.Kind)
	}

	if config.Settings.SyncFrequency < 0 {
		return fmt.Errorf("sync frequency must be non-negative")
	}

	return ValidateFilters(config.Filters)
}

// ValidateFilters checks that every rule names a known field and matches something
func ValidateFilters(filters []event.Filter) error {
	for i, filter := range filters {
		if !FilterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(id string) string {
	return filepath.Join(cc.calendarsDir, id+".yml")
}
