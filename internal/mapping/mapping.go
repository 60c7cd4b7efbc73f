// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mapping translates normalized arXiv papers into Zotero item fields
// using a declarative table of (source, target, transform) entries. The
// transform set is closed; adding one means adding a Kind and a case in
// apply.
package mapping

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// Kind selects a transform.
type Kind string

const (
	// Identity copies the value; lists become comma-separated text and
	// times become YYYY-MM-DD.
	Identity Kind = "identity"

	// Join joins a list with Separator (default "; ").
	Join Kind = "join"

	// Truncate cuts text to MaxLen characters.
	Truncate Kind = "truncate"

	// Default uses Value when the source is absent or not configured.
	Default Kind = "default"

	// Creators turns author names into Zotero creator objects.
	Creators Kind = "creators"

	// Date formats a time with Layout (default YYYY-MM-DD).
	Date Kind = "date"

	// Tags turns a list into Zotero tag objects.
	Tags Kind = "tags"
)

// Transform is a tagged transform variant. Only the fields of its Kind are read.
type Transform struct {
	Kind        Kind   `yaml:"kind"`
	Separator   string `yaml:"separator,omitempty"`
	MaxLen      int    `yaml:"max_len,omitempty"`
	Value       string `yaml:"value,omitempty"`
	Layout      string `yaml:"layout,omitempty"`
	CreatorType string `yaml:"creator_type,omitempty"`
}

// FieldMapping maps one source field to one target field.
type FieldMapping struct {
	Source    string    `yaml:"source,omitempty"`
	Target    string    `yaml:"target"`
	Transform Transform `yaml:"transform,omitempty"`
	Required  bool      `yaml:"required,omitempty"`

	// ItemTypes limits the entry to these Zotero item types. Empty means all.
	ItemTypes []string `yaml:"item_types,omitempty"`
}

// Config is the full mapping table.
type Config struct {
	Fields []FieldMapping `yaml:"fields"`
}

// DefaultConfig is the built-in arXiv to Zotero table.
func DefaultConfig() Config {
	return Config{Fields: []FieldMapping{
		{Source: "title", Target: "title", Required: true},
		{Source: "authors", Target: "creators", Transform: Transform{Kind: Creators}, Required: true},
		{Source: "abs_url", Target: "url", Required: true},
		{Source: "abstract", Target: "abstractNote"},
		{Source: "published", Target: "date", Transform: Transform{Kind: Date}, Required: true},
		{Source: "categories", Target: "tags", Transform: Transform{Kind: Tags}},
		{Source: "doi", Target: "DOI"},
		{Source: "comment", Target: "extra", Transform: Transform{Kind: Truncate, MaxLen: 1000}},
		{Target: "libraryCatalog", Transform: Transform{Kind: Default, Value: "arXiv.org"}},
		{Source: "archive_id", Target: "archiveID", ItemTypes: []string{"preprint"}},
		{Target: "repository", Transform: Transform{Kind: Default, Value: "arXiv"}, ItemTypes: []string{"preprint"}},
		{Source: "journal_ref", Target: "publicationTitle", ItemTypes: []string{"journalArticle"}},
	}}
}

// LoadConfig reads a YAML mapping table from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading mapping file: %v", types.ErrConfiguration, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing mapping file %s: %v", types.ErrConfiguration, path, err)
	}
	return cfg, nil
}

// Mapper applies a validated mapping table. It holds no mutable state and is
// safe for concurrent use.
type Mapper struct {
	fields []FieldMapping
}

// New validates cfg and returns a Mapper.
func New(cfg Config) (*Mapper, error) {
	if len(cfg.Fields) == 0 {
		return nil, fmt.Errorf("%w: mapping table is empty", types.ErrConfiguration)
	}
	fields := make([]FieldMapping, len(cfg.Fields))
	for i, f := range cfg.Fields {
		if f.Transform.Kind == "" {
			f.Transform.Kind = Identity
		}
		if err := validate(f); err != nil {
			return nil, fmt.Errorf("%w: mapping entry %d (%s): %v", types.ErrConfiguration, i, f.Target, err)
		}
		fields[i] = f
	}
	return &Mapper{fields: fields}, nil
}

func validate(f FieldMapping) error {
	if f.Target == "" {
		return fmt.Errorf("target is required")
	}
	if f.Source == "" && f.Transform.Kind != Default {
		return fmt.Errorf("source is required for transform %q", f.Transform.Kind)
	}
	if f.Source != "" && !slices.Contains(types.SourceFields, f.Source) {
		return fmt.Errorf("unknown source field %q", f.Source)
	}
	switch f.Transform.Kind {
	case Identity, Join, Creators, Date, Tags:
	case Truncate:
		if f.Transform.MaxLen <= 0 {
			return fmt.Errorf("truncate needs a positive max_len")
		}
	case Default:
		if f.Transform.Value == "" {
			return fmt.Errorf("default needs a value")
		}
	default:
		return fmt.Errorf("unknown transform %q", f.Transform.Kind)
	}
	return nil
}

// Targets lists the target fields that apply to itemType, in table order.
func (m *Mapper) Targets(itemType string) []string {
	var out []string
	for _, f := range m.fields {
		if applies(f, itemType) {
			out = append(out, f.Target)
		}
	}
	return out
}

// DefaultItemType is the item type Map targets.
const DefaultItemType = "preprint"

// Map maps p for DefaultItemType, so the result is a field set the library
// accepts for that type.
func (m *Mapper) Map(p types.Paper) (map[string]any, error) {
	return m.MapFor(p, DefaultItemType)
}

// MapFor applies the entries that apply to itemType. Source fields without
// an entry are dropped; targets without a value are left out so the item
// template default stands. A required target with no value and no default
// is an ErrMapping.
func (m *Mapper) MapFor(p types.Paper, itemType string) (map[string]any, error) {
	out := make(map[string]any, len(m.fields))
	for _, f := range m.fields {
		if !applies(f, itemType) {
			continue
		}
		var src any
		ok := false
		if f.Source != "" {
			src, ok = p.Field(f.Source)
		}
		v, ok := apply(f.Transform, src, ok)
		if !ok {
			if f.Required {
				return nil, fmt.Errorf("%w: required field %s has no value (source %s) for %s",
					types.ErrMapping, f.Target, f.Source, p.ID)
			}
			continue
		}
		out[f.Target] = v
	}
	return out, nil
}

func applies(f FieldMapping, itemType string) bool {
	return itemType == "" || len(f.ItemTypes) == 0 || slices.Contains(f.ItemTypes, itemType)
}

// apply runs one transform. The second result is false when no value results.
func apply(t Transform, v any, present bool) (any, bool) {
	if t.Kind == Default {
		if present {
			return text(v, ", "), true
		}
		return t.Value, true
	}
	if !present {
		return nil, false
	}

	switch t.Kind {
	case Join:
		sep := t.Separator
		if sep == "" {
			sep = "; "
		}
		return nonEmpty(text(v, sep))
	case Truncate:
		s := []rune(text(v, ", "))
		if len(s) > t.MaxLen {
			s = s[:t.MaxLen]
		}
		return nonEmpty(strings.TrimSpace(string(s)))
	case Creators:
		creators := toCreators(list(v), t.CreatorType)
		return creators, len(creators) > 0
	case Date:
		tm, ok := v.(time.Time)
		if !ok {
			return nonEmpty(text(v, ", "))
		}
		layout := t.Layout
		if layout == "" {
			layout = "2006-01-02"
		}
		return tm.UTC().Format(layout), true
	case Tags:
		var tags []map[string]any
		for _, s := range list(v) {
			tags = append(tags, map[string]any{"tag": s})
		}
		return tags, len(tags) > 0
	default:
		return nonEmpty(text(v, ", "))
	}
}

// toCreators splits each name on its first space into first and last name.
// A single-word name becomes a single-field creator.
func toCreators(names []string, creatorType string) []map[string]any {
	if creatorType == "" {
		creatorType = "author"
	}
	var out []map[string]any
	for _, name := range names {
		parts := strings.Fields(name)
		switch len(parts) {
		case 0:
			continue
		case 1:
			out = append(out, map[string]any{"creatorType": creatorType, "name": parts[0]})
		default:
			out = append(out, map[string]any{
				"creatorType": creatorType,
				"firstName":   parts[0],
				"lastName":    strings.Join(parts[1:], " "),
			})
		}
	}
	return out
}

func text(v any, sep string) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return strings.Join(x, sep)
	case time.Time:
		return x.UTC().Format("2006-01-02")
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func list(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	default:
		return nil
	}
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}
