package extract

import (
	"reflect"
	"testing"

	"github.com/efebarandurmaz/vecsync/internal/entityconf"
)

func productConfig() *entityconf.EntityTypeConfig {
	return &entityconf.EntityTypeConfig{
		EntityType: "product",
		SearchableFields: []entityconf.SearchableField{
			{Name: "name", Weight: 2.0, Semantic: true},
			{Name: "description", Weight: 1.0, Semantic: true},
		},
		MetadataFields: []entityconf.MetadataField{
			{Name: "category", Kind: "string", IncludeInSearch: true},
			{Name: "internal_code", Kind: "string", IncludeInSearch: false},
		},
		AutoEmbed: true,
		Indexable: true,
	}
}

func TestExtract_JoinsFieldsInDeclaredOrder(t *testing.T) {
	acc := entityconf.MapAccessor{IDField: "id"}
	entity := map[string]any{
		"id":          "p1",
		"description": "drives screws",
		"name":        "impact driver",
	}

	res := Extract(entity, productConfig(), acc)
	if res.EntityID != "p1" {
		t.Errorf("EntityID = %q, want p1", res.EntityID)
	}
	if res.Content != "impact driver drives screws" {
		t.Errorf("Content = %q, want declared field order", res.Content)
	}
}

func TestExtract_SkipsMissingAndBlankFields(t *testing.T) {
	acc := entityconf.MapAccessor{IDField: "id"}

	cases := []struct {
		name   string
		entity map[string]any
		want   string
	}{
		{
			name:   "missing description",
			entity: map[string]any{"id": "p1", "name": "impact driver"},
			want:   "impact driver",
		},
		{
			name:   "blank description",
			entity: map[string]any{"id": "p1", "name": "impact driver", "description": "   "},
			want:   "impact driver",
		},
		{
			name:   "all fields absent",
			entity: map[string]any{"id": "p1"},
			want:   "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Extract(tc.entity, productConfig(), acc)
			if res.Content != tc.want {
				t.Errorf("Content = %q, want %q", res.Content, tc.want)
			}
		})
	}
}

func TestExtract_MetadataOnlyIncludesSearchFields(t *testing.T) {
	acc := entityconf.MapAccessor{IDField: "id"}
	entity := map[string]any{
		"id":            "p1",
		"name":          "impact driver",
		"category":      "tools",
		"internal_code": "X-99",
	}

	res := Extract(entity, productConfig(), acc)
	want := map[string]string{"category": "tools"}
	if !reflect.DeepEqual(res.Metadata, want) {
		t.Errorf("Metadata = %v, want %v", res.Metadata, want)
	}
}

func TestExtract_AbsentMetadataOmitted(t *testing.T) {
	acc := entityconf.MapAccessor{IDField: "id"}
	entity := map[string]any{"id": "p1", "name": "impact driver"}

	res := Extract(entity, productConfig(), acc)
	if _, ok := res.Metadata["category"]; ok {
		t.Error("absent metadata field stored as empty entry")
	}
}

func TestExtract_FuncAccessor(t *testing.T) {
	type document struct {
		ID    string
		Title string
	}
	acc := entityconf.FuncAccessor{
		IDFunc: func(entity any) string { return entity.(document).ID },
		Getters: map[string]entityconf.FieldGetter{
			"title": func(entity any) (string, bool) {
				d := entity.(document)
				return d.Title, d.Title != ""
			},
		},
	}
	cfg := &entityconf.EntityTypeConfig{
		EntityType: "document",
		SearchableFields: []entityconf.SearchableField{
			{Name: "title", Weight: 1.0},
		},
		AutoEmbed: true,
		Indexable: true,
	}

	res := Extract(document{ID: "d1", Title: "quarterly report"}, cfg, acc)
	if res.EntityID != "d1" {
		t.Errorf("EntityID = %q, want d1", res.EntityID)
	}
	if res.Content != "quarterly report" {
		t.Errorf("Content = %q", res.Content)
	}
}
