// Package config loads a ProseQL Config from YAML, grounded on the
// teacher's config-table idioms (mapping/clauses.go's declarative
// maps) but for the actual per-collection configuration spec §6
// describes rather than query-clause recognition.
package config

import (
	"fmt"
	"os"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"
)

// RelationshipConfig declares one forward ref edge: Field on the
// owning collection references an id in the collection named by Ref
// (resolved through TargetCollection). Policy governs what happens to
// the owning entity when the referenced one is deleted; the inverse
// edge itself is never configured separately — it's derived from this
// declaration at database-construction time, one inverse per
// declaration.
type RelationshipConfig struct {
	Ref    string `yaml:"ref,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Policy string `yaml:"policy,omitempty"` // restrict|cascade|setNull, default restrict
}

// CollectionConfig is one collection's declared metadata (§3, §6).
type CollectionConfig struct {
	Relationships []RelationshipConfig `yaml:"relationships,omitempty"`
	Indexes       [][]string           `yaml:"indexes,omitempty"`
	UniqueFields  [][]string           `yaml:"uniqueFields,omitempty"`
	AppendOnly    bool                 `yaml:"appendOnly,omitempty"`
	SoftDelete    bool                 `yaml:"softDelete,omitempty"`
	File          string               `yaml:"file,omitempty"`
}

// Config maps collection name to its configuration.
type Config map[string]CollectionConfig

// Load reads a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// TargetCollection resolves a relationship's target collection name: if
// Ref is already a declared collection in cfg, it's used directly;
// otherwise it's treated as a singular entity name and pluralized
// (e.g. "author" -> "authors"), matching the convention a config
// author would expect from a ref field named after its entity rather
// than its collection.
func (c Config) TargetCollection(ref string) string {
	if _, ok := c[ref]; ok {
		return ref
	}
	plural := inflection.Plural(ref)
	if _, ok := c[plural]; ok {
		return plural
	}
	return ref
}
