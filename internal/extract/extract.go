// Package extract assembles searchable content and metadata from entities
// according to their entity-type configuration.
package extract

import (
	"log/slog"
	"strings"

	"github.com/efebarandurmaz/vecsync/internal/entityconf"
)

// Result holds the output of content extraction for one entity.
type Result struct {
	EntityID string
	Content  string
	Metadata map[string]string
}

// Extract reads the configured searchable fields off the entity and joins
// the present values, in declared order, into a single content string.
// Missing or blank fields are skipped and never abort extraction. Metadata
// fields marked for search are collected into the metadata map; absent
// fields are omitted rather than stored as empty entries.
//
// An empty Content means there is nothing to index and callers must skip
// all downstream work for the entity.
func Extract(entity any, cfg *entityconf.EntityTypeConfig, acc entityconf.Accessor) Result {
	res := Result{
		EntityID: acc.EntityID(entity),
		Metadata: make(map[string]string),
	}

	var parts []string
	for _, field := range cfg.SearchableFields {
		value, ok := acc.Field(entity, field.Name)
		if !ok || strings.TrimSpace(value) == "" {
			slog.Debug("skipping absent searchable field",
				"entity_type", cfg.EntityType,
				"entity_id", res.EntityID,
				"field", field.Name)
			continue
		}
		parts = append(parts, value)
	}
	res.Content = strings.Join(parts, " ")

	for _, field := range cfg.MetadataFields {
		if !field.IncludeInSearch {
			continue
		}
		value, ok := acc.Field(entity, field.Name)
		if !ok {
			continue
		}
		res.Metadata[field.Name] = value
	}

	return res
}
