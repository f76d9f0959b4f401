package coding

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

type MetadataKind string

const (
	MetadataString MetadataKind = "string"
	MetadataNumber MetadataKind = "number"
	MetadataBool   MetadataKind = "bool"
)

//go:embed origin_metadata.yaml
var originMetadataYAML []byte

var (
	metadataSchemaOnce sync.Once
	metadataSchema     map[Origin]map[string]MetadataKind
	metadataSchemaErr  error
)

func loadMetadataSchema() (map[Origin]map[string]MetadataKind, error) {
	metadataSchemaOnce.Do(func() {
		raw := map[string]map[string]string{}
		if err := yaml.Unmarshal(originMetadataYAML, &raw); err != nil {
			metadataSchemaErr = fmt.Errorf("parse origin metadata schema: %w", err)
			return
		}
		out := make(map[Origin]map[string]MetadataKind, len(raw))
		for origin, keys := range raw {
			o := Origin(origin)
			if !o.Valid() {
				metadataSchemaErr = fmt.Errorf("origin metadata schema: unknown origin %q", origin)
				return
			}
			kinds := make(map[string]MetadataKind, len(keys))
			for k, kind := range keys {
				switch MetadataKind(kind) {
				case MetadataString, MetadataNumber, MetadataBool:
					kinds[k] = MetadataKind(kind)
				default:
					metadataSchemaErr = fmt.Errorf("origin metadata schema: %s.%s has unknown kind %q", origin, k, kind)
					return
				}
			}
			out[o] = kinds
		}
		metadataSchema = out
	})
	return metadataSchema, metadataSchemaErr
}

// RecognizedMetadataKeys returns the sorted key set accepted for origin.
func RecognizedMetadataKeys(origin Origin) []string {
	schema, err := loadMetadataSchema()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(schema[origin]))
	for k := range schema[origin] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MetadataError names the first offending key.
type MetadataError struct {
	Origin Origin
	Key    string
	Reason string
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata for origin %s: key %q %s", e.Origin, e.Key, e.Reason)
}

// EncodeMetadata validates md against the closed key set for origin and returns the jsonb value.
// Empty metadata encodes to nil.
func EncodeMetadata(origin Origin, md map[string]any) (datatypes.JSON, error) {
	if len(md) == 0 {
		return nil, nil
	}
	schema, err := loadMetadataSchema()
	if err != nil {
		return nil, err
	}
	allowed := schema[origin]
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kind, ok := allowed[k]
		if !ok {
			return nil, &MetadataError{Origin: origin, Key: k, Reason: "is not recognized"}
		}
		if !matchesKind(kind, md[k]) {
			return nil, &MetadataError{Origin: origin, Key: k, Reason: "must be a " + string(kind)}
		}
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func matchesKind(kind MetadataKind, v any) bool {
	switch kind {
	case MetadataString:
		_, ok := v.(string)
		return ok
	case MetadataBool:
		_, ok := v.(bool)
		return ok
	case MetadataNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64, json.Number:
			return true
		}
	}
	return false
}
