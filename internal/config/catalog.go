package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"catchup-notify/internal/domain/entity"

	"gopkg.in/yaml.v3"
)

//go:embed notification_catalog.yaml
var defaultCatalogYAML []byte

// TypeConfig holds per-type defaults.
type TypeConfig struct {
	Priority string `yaml:"priority"`
}

// NotificationCatalog is the versioned list of notification types producers may send.
type NotificationCatalog struct {
	Catalog struct {
		Version int                   `yaml:"version"`
		Types   map[string]TypeConfig `yaml:"types"`
	} `yaml:"catalog"`
}

// LoadNotificationCatalog loads the catalog from a YAML file.
// An empty path loads the embedded default.
func LoadNotificationCatalog(path string) (*NotificationCatalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		// #nosec G304 -- path comes from NOTIFICATION_CATALOG_PATH, set by the operator
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}
		data = b
	}
	return ParseNotificationCatalog(data)
}

// ParseNotificationCatalog parses and validates catalog YAML.
func ParseNotificationCatalog(data []byte) (*NotificationCatalog, error) {
	var c NotificationCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := validateCatalog(&c); err != nil {
		return nil, fmt.Errorf("catalog validation failed: %w", err)
	}
	return &c, nil
}

// DefaultNotificationCatalog returns the embedded catalog. It panics if the
// embedded file is invalid, which is caught by tests.
func DefaultNotificationCatalog() *NotificationCatalog {
	c, err := ParseNotificationCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func validateCatalog(c *NotificationCatalog) error {
	if c.Catalog.Version != entity.CatalogVersion {
		return fmt.Errorf("catalog version %d does not match supported version %d", c.Catalog.Version, entity.CatalogVersion)
	}

	for _, t := range entity.NotificationTypes() {
		if _, ok := c.Catalog.Types[string(t)]; !ok {
			return fmt.Errorf("type %q is missing", t)
		}
	}

	names := make([]string, 0, len(c.Catalog.Types))
	for name := range c.Catalog.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !entity.NotificationType(name).IsValid() {
			return fmt.Errorf("unknown type %q", name)
		}
		if p := c.Catalog.Types[name].Priority; !entity.Priority(p).IsValid() {
			return fmt.Errorf("type %q has invalid priority %q", name, p)
		}
	}
	return nil
}

// Version returns the catalog version.
func (c *NotificationCatalog) Version() int {
	return c.Catalog.Version
}

// Supports reports whether t is listed in the catalog.
func (c *NotificationCatalog) Supports(t entity.NotificationType) bool {
	_, ok := c.Catalog.Types[string(t)]
	return ok
}

// DefaultPriority returns the priority used when a producer omits one.
func (c *NotificationCatalog) DefaultPriority(t entity.NotificationType) entity.Priority {
	if tc, ok := c.Catalog.Types[string(t)]; ok {
		return entity.Priority(tc.Priority)
	}
	return entity.PriorityNormal
}
