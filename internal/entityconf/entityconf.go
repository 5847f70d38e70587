// Package entityconf holds per-entity-type indexing configuration and the
// typed accessors used to read fields off concrete entity values.
package entityconf

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ErrUnknownEntityType is returned when an entity type has no registered
// configuration. Callers branch on it with errors.Is.
var ErrUnknownEntityType = errors.New("unknown entity type")

// SearchableField names an entity attribute that contributes to the
// searchable content string.
type SearchableField struct {
	Name     string  `mapstructure:"name"`
	Weight   float64 `mapstructure:"weight"`
	Semantic bool    `mapstructure:"semantic"`
}

// EmbeddableField names an attribute embedded on its own.
type EmbeddableField struct {
	Name         string `mapstructure:"name"`
	ModelHint    string `mapstructure:"model"`
	AutoGenerate bool   `mapstructure:"auto_generate"`
}

// MetadataField names an attribute carried alongside the vector.
type MetadataField struct {
	Name            string `mapstructure:"name"`
	Kind            string `mapstructure:"kind"`
	IncludeInSearch bool   `mapstructure:"include_in_search"`
}

// EntityTypeConfig describes how one entity type is indexed. Configs are
// loaded once at startup and treated as read-only afterwards.
type EntityTypeConfig struct {
	EntityType       string            `mapstructure:"-"`
	SearchableFields []SearchableField `mapstructure:"searchable_fields"`
	EmbeddableFields []EmbeddableField `mapstructure:"embeddable_fields"`
	MetadataFields   []MetadataField   `mapstructure:"metadata_fields"`
	AutoEmbed        bool              `mapstructure:"auto_embed"`
	Indexable        bool              `mapstructure:"indexable"`
}

// Accessor reads attributes off an entity value without reflection.
// One accessor is registered per concrete entity type at startup.
type Accessor interface {
	// EntityID returns the stable identity of the entity.
	EntityID(entity any) string
	// Field returns the named attribute in string form, and whether it was
	// present and non-empty.
	Field(entity any, name string) (string, bool)
}

// FieldGetter reads a single named attribute off an entity.
type FieldGetter func(entity any) (string, bool)

// FuncAccessor is an Accessor backed by explicit getter functions.
type FuncAccessor struct {
	IDFunc  func(entity any) string
	Getters map[string]FieldGetter
}

func (a FuncAccessor) EntityID(entity any) string {
	if a.IDFunc == nil {
		return ""
	}
	return a.IDFunc(entity)
}

func (a FuncAccessor) Field(entity any, name string) (string, bool) {
	getter, ok := a.Getters[name]
	if !ok {
		return "", false
	}
	return getter(entity)
}

// MapAccessor is an Accessor for map[string]any entities, as produced by
// JSON decoding. IDField names the map key holding the entity identity.
type MapAccessor struct {
	IDField string
}

func (a MapAccessor) EntityID(entity any) string {
	m, ok := entity.(map[string]any)
	if !ok {
		return ""
	}
	v, ok := m[a.IDField]
	if !ok {
		return ""
	}
	return coerceString(v)
}

func (a MapAccessor) Field(entity any, name string) (string, bool) {
	m, ok := entity.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := m[name]
	if !ok || v == nil {
		return "", false
	}
	s := coerceString(v)
	return s, s != ""
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Registry maps entity types to their configuration and accessor. Configs
// and accessors are added during startup; lookups are concurrency-safe.
type Registry struct {
	mu        sync.RWMutex
	configs   map[string]*EntityTypeConfig
	accessors map[string]Accessor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		configs:   make(map[string]*EntityTypeConfig),
		accessors: make(map[string]Accessor),
	}
}

// AddConfig registers the configuration for an entity type.
func (r *Registry) AddConfig(cfg *EntityTypeConfig) error {
	if cfg == nil || cfg.EntityType == "" {
		return fmt.Errorf("entityconf: config requires an entity type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[cfg.EntityType]; exists {
		return fmt.Errorf("entityconf: duplicate config for entity type %q", cfg.EntityType)
	}
	r.configs[cfg.EntityType] = cfg
	return nil
}

// RegisterAccessor registers the accessor for an entity type.
func (r *Registry) RegisterAccessor(entityType string, acc Accessor) error {
	if entityType == "" || acc == nil {
		return fmt.Errorf("entityconf: accessor requires an entity type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessors[entityType] = acc
	return nil
}

// Config returns the configuration for an entity type, or an error when the
// type is unknown.
func (r *Registry) Config(entityType string) (*EntityTypeConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[entityType]
	if !ok {
		return nil, fmt.Errorf("entityconf: %w %q", ErrUnknownEntityType, entityType)
	}
	return cfg, nil
}

// Accessor returns the accessor for an entity type. Types configured without
// an explicit accessor fall back to MapAccessor with an "id" field.
func (r *Registry) Accessor(entityType string) Accessor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if acc, ok := r.accessors[entityType]; ok {
		return acc
	}
	return MapAccessor{IDField: "id"}
}

// EntityTypes returns the registered entity type names.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.configs))
	for t := range r.configs {
		types = append(types, t)
	}
	return types
}
