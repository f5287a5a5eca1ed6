package queryspec

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"duck-export/internal/sqlbuild"
)

// Entity maps a queryable entity name to its backing table and the fields
// callers may project, filter and order on.
type Entity struct {
	Table  string   `yaml:"table"`
	Fields []string `yaml:"fields"`
}

// Catalog restricts which entities and fields a query may reference.
// Entity names are matched case-insensitively.
type Catalog struct {
	entities map[string]Entity
}

type catalogFile struct {
	Entities map[string]Entity `yaml:"entities"`
}

// LoadCatalog reads a YAML entity catalog:
//
//	entities:
//	  product:
//	    table: main.products
//	    fields: [id, name, price, stock_quantity]
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Entities) == 0 {
		return nil, fmt.Errorf("parse catalog: no entities declared")
	}
	c := &Catalog{entities: make(map[string]Entity, len(f.Entities))}
	for name, e := range f.Entities {
		key := strings.ToLower(name)
		if _, dup := c.entities[key]; dup {
			return nil, fmt.Errorf("parse catalog: entity %q declared more than once", name)
		}
		if e.Table == "" {
			e.Table = name
		}
		if err := sqlbuild.ValidateTableName(e.Table); err != nil {
			return nil, fmt.Errorf("parse catalog: entity %q: %w", name, err)
		}
		for _, field := range e.Fields {
			if err := sqlbuild.ValidateIdentifier(field); err != nil {
				return nil, fmt.Errorf("parse catalog: entity %q field: %w", name, err)
			}
		}
		c.entities[key] = e
	}
	return c, nil
}

// Lookup returns the entity registered under name.
func (c *Catalog) Lookup(name string) (Entity, bool) {
	e, ok := c.entities[strings.ToLower(name)]
	return e, ok
}

// HasField reports whether field is permitted on e. An entity without a
// field list permits every field.
func (e Entity) HasField(field string) bool {
	if len(e.Fields) == 0 {
		return true
	}
	for _, f := range e.Fields {
		if strings.EqualFold(f, field) {
			return true
		}
	}
	return false
}
