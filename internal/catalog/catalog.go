// Package catalog persists table schemas as JSON sidecar files and
// rehydrates every table manager found on disk at startup.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jochuuuu/reldb/internal/table"
	"github.com/jochuuuu/reldb/internal/types"
)

const metaSuffix = "_meta.json"

// Catalog owns every open table in a storage directory, keyed by name.
type Catalog struct {
	dataDir  string
	indexDir string

	mu     sync.RWMutex
	tables map[string]*table.Manager
}

// Open creates dataDir/indexDir if needed and loads every table whose
// sidecar schema descriptor and heap file both exist on disk.
func Open(dataDir, indexDir string) (*Catalog, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("catalog: create data dir: %w", err)
	}
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return nil, fmt.Errorf("catalog: create index dir: %w", err)
	}
	c := &Catalog{dataDir: dataDir, indexDir: indexDir, tables: make(map[string]*table.Manager)}
	if err := c.loadExisting(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) loadExisting() error {
	entries, err := os.ReadDir(c.dataDir)
	if err != nil {
		return fmt.Errorf("catalog: read data dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		tableName := strings.TrimSuffix(entry.Name(), metaSuffix)
		schema, err := c.readSchema(tableName)
		if err != nil {
			// A corrupt or unreadable descriptor doesn't abort startup for
			// every other table; it just leaves this one unloaded.
			continue
		}
		heapPath := filepath.Join(c.dataDir, tableName+".heap")
		if _, err := os.Stat(heapPath); err != nil {
			continue
		}
		mgr, err := table.Open(schema, c.dataDir, c.indexDir)
		if err != nil {
			continue
		}
		c.tables[tableName] = mgr
	}
	return nil
}

func (c *Catalog) schemaPath(tableName string) string {
	return filepath.Join(c.dataDir, tableName+metaSuffix)
}

func (c *Catalog) readSchema(tableName string) (types.Schema, error) {
	data, err := os.ReadFile(c.schemaPath(tableName))
	if err != nil {
		return types.Schema{}, err
	}
	var schema types.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return types.Schema{}, fmt.Errorf("catalog: decode schema for %q: %w", tableName, err)
	}
	return schema, nil
}

func (c *Catalog) writeSchema(schema types.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode schema for %q: %w", schema.TableName, err)
	}
	return os.WriteFile(c.schemaPath(schema.TableName), data, 0644)
}

// CreateTable defines a new table: writes its schema descriptor, opens its
// heap file and indexes, and registers it. Fails if a table with the same
// name already exists.
func (c *Catalog) CreateTable(schema types.Schema) (*table.Manager, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[schema.TableName]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", schema.TableName)
	}
	if err := c.writeSchema(schema); err != nil {
		return nil, err
	}
	mgr, err := table.Open(schema, c.dataDir, c.indexDir)
	if err != nil {
		return nil, fmt.Errorf("catalog: open table %q: %w", schema.TableName, err)
	}
	c.tables[schema.TableName] = mgr
	return mgr, nil
}

// Table returns the named table's manager, or false if no such table
// has been created.
func (c *Catalog) Table(name string) (*table.Manager, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mgr, ok := c.tables[name]
	return mgr, ok
}

// TableNames returns every registered table name.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}
