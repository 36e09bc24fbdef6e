package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const jsonSchemaDialect = "https://json-schema.org/draft/2020-12/schema"

// TypeName turns a schema name into the name of its document type:
// underscore separated words, each capitalized, joined.
// "purchase_order" becomes "PurchaseOrder".
func TypeName(schemaName string) string {
	var b strings.Builder
	for _, word := range strings.Split(schemaName, "_") {
		if word == "" {
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(strings.ToLower(word[1:]))
	}
	return b.String()
}

func jsonSchemaProperty(f FieldDefinition) map[string]any {
	prop := map[string]any{}
	switch f.Type {
	case FieldNumber:
		prop["type"] = "number"
	case FieldBoolean:
		prop["type"] = "boolean"
	case FieldArray:
		prop["type"] = "array"
	case FieldObject:
		prop["type"] = "object"
	case FieldDate:
		prop["type"] = "string"
		prop["format"] = "date"
	default:
		prop["type"] = "string"
	}
	if f.Description != "" {
		prop["description"] = f.Description
	}
	if f.HasDefault() {
		prop["default"] = f.Default
	}
	if len(f.AllowedValues) > 0 {
		prop["enum"] = f.AllowedValues
	}
	if f.RefSchema != "" {
		prop["x-ref-schema"] = f.RefSchema
	}
	if f.Unique {
		prop["x-unique"] = true
	}
	return prop
}

// JSONSchema renders def as a JSON Schema (draft 2020-12) document.
func JSONSchema(def *SchemaDefinition) map[string]any {
	properties := make(map[string]any, len(def.Fields))
	required := []string{}
	for _, f := range def.Fields {
		properties[f.Name] = jsonSchemaProperty(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"$schema":    jsonSchemaDialect,
		"title":      TypeName(def.SchemaName),
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	if def.Description != "" {
		doc["description"] = def.Description
	}
	return doc
}

// CompileJSONSchema renders and compiles def. The compiled schema validates
// decoded JSON values.
func CompileJSONSchema(def *SchemaDefinition) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(JSONSchema(def))
	if err != nil {
		return nil, fmt.Errorf("marshal json schema: %w", err)
	}

	url := jsonSchemaURL(def)
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

func jsonSchemaURL(def *SchemaDefinition) string {
	return fmt.Sprintf("%s_v%d.json", def.SchemaName, def.Version)
}
