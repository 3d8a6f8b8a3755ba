// Package catalog provides the department catalog used to resolve call
// transfer targets.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
)

// Header is a custom SIP header attached to a transfer command.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Department is one configured transfer target.
type Department struct {
	Name    string   `json:"name"`
	SIPURI  string   `json:"sip_uri"`
	Headers []Header `json:"headers,omitempty"`
}

// Validate checks that the department has the fields required for a transfer.
func (d *Department) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("department name is required")
	}
	if d.SIPURI == "" {
		return fmt.Errorf("sip_uri is required")
	}
	return nil
}

// Catalog is an immutable snapshot of configured departments, keyed by name.
// Sessions capture one snapshot at creation and never observe later reloads.
type Catalog map[string]Department

// Names returns the department names in sorted order.
// Used to build the transfer tool's enum deterministically.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the department with the given name.
func (c Catalog) Lookup(name string) (Department, bool) {
	dept, ok := c[name]
	return dept, ok
}

// Empty reports whether no departments are configured.
func (c Catalog) Empty() bool {
	return len(c) == 0
}

// fileConfig is the JSON configuration structure.
type fileConfig struct {
	Departments []Department `json:"departments"`
}

// Loader provides thread-safe access to the department configuration.
// Uses copy-on-write semantics for lock-free reads.
type Loader struct {
	catalog atomic.Pointer[Catalog]
	path    string
	logger  *slog.Logger
}

// New creates a Loader from a JSON config file.
// An empty path yields an empty catalog (transfers disabled).
func New(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loader{
		path:   path,
		logger: logger,
	}

	if path == "" {
		empty := Catalog{}
		l.catalog.Store(&empty)
		return l, nil
	}

	if err := l.Reload(); err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}

	return l, nil
}

// Snapshot returns the current catalog.
// Thread-safe: uses atomic load for lock-free reads.
func (l *Loader) Snapshot() Catalog {
	cat := l.catalog.Load()
	if cat == nil {
		return Catalog{}
	}
	return *cat
}

// Reload reloads configuration from the file.
// Thread-safe: atomic swap after successful parse.
func (l *Loader) Reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	cat := make(Catalog, len(cfg.Departments))
	for i := range cfg.Departments {
		dept := cfg.Departments[i]
		if err := dept.Validate(); err != nil {
			return fmt.Errorf("department %d (%s): %w", i, dept.Name, err)
		}
		if _, dup := cat[dept.Name]; dup {
			return fmt.Errorf("department %d (%s): duplicate name", i, dept.Name)
		}
		cat[dept.Name] = dept
	}

	l.catalog.Store(&cat)

	l.logger.Info("[Catalog] Loaded departments",
		"path", l.path,
		"count", len(cat),
	)
	return nil
}
