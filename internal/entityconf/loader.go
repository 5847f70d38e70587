package entityconf

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads entity-type configurations from a YAML file. The file maps
// entity type names to their indexing configuration under an "entities" key:
//
//	entities:
//	  product:
//	    auto_embed: true
//	    indexable: true
//	    searchable_fields:
//	      - name: name
//	        weight: 2.0
//	        semantic: true
func Load(path string) ([]*EntityTypeConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading entity config: %w", err)
	}

	entities := v.GetStringMap("entities")
	if len(entities) == 0 {
		return nil, fmt.Errorf("entity config %s declares no entities", path)
	}

	configs := make([]*EntityTypeConfig, 0, len(entities))
	for entityType := range entities {
		sub := v.Sub("entities." + entityType)
		if sub == nil {
			return nil, fmt.Errorf("entity config for %q is not a mapping", entityType)
		}
		// Both flags default on for types that omit them.
		sub.SetDefault("auto_embed", true)
		sub.SetDefault("indexable", true)

		cfg := &EntityTypeConfig{EntityType: entityType}
		if err := sub.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshalling entity config for %q: %w", entityType, err)
		}
		applyDefaults(cfg)
		configs = append(configs, cfg)
	}
	return configs, nil
}

// LoadIntoRegistry loads a config file and registers every entity type.
func LoadIntoRegistry(path string, registry *Registry) error {
	configs, err := Load(path)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if err := registry.AddConfig(cfg); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *EntityTypeConfig) {
	for i := range cfg.SearchableFields {
		if cfg.SearchableFields[i].Weight == 0 {
			cfg.SearchableFields[i].Weight = 1.0
		}
	}
	for i := range cfg.EmbeddableFields {
		if cfg.EmbeddableFields[i].ModelHint == "" {
			cfg.EmbeddableFields[i].ModelHint = "text-embedding-3-small"
		}
	}
}
