package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildDocumentSchema returns the JSON-Schema the AI service response must
// satisfy before we accept it as a structured document. Passed to the service
// as an output constraint and enforced locally on the way back in.
func buildDocumentSchema() map[string]any {
	amountProp := map[string]any{"type": "number"}

	headerProps := map[string]any{
		"supplier_name":   map[string]any{"type": "string"},
		"tax_id":          map[string]any{"type": "string", "pattern": `^[0-9]{9}$`},
		"doc_number":      map[string]any{"type": "string"},
		"doc_date":        map[string]any{"type": "string"},
		"subtotal":        amountProp,
		"tax_amount":      amountProp,
		"grand_total":     amountProp,
		"discount_pct":    amountProp,
		"discount_amount": amountProp,
	}

	lineItemProps := map[string]any{
		"line_no":             map[string]any{"type": "integer", "minimum": 1},
		"raw_description":     map[string]any{"type": "string", "minLength": 1},
		"clean_description":   map[string]any{"type": "string"},
		"quantity":            amountProp,
		"unit":                map[string]any{"type": "string"},
		"unit_price":          amountProp,
		"unit_price_original": amountProp,
		"discount_pct":        amountProp,
		"line_total":          amountProp,
		"tax_pct":             amountProp,
		"tax_amount":          amountProp,
		"ref":                 map[string]any{"type": "string"},
		"package_info":        map[string]any{"type": "string"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"header", "line_items"},
		"properties": map[string]any{
			"header": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           headerProps,
			},
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"raw_description"},
					"properties":           lineItemProps,
				},
			},
		},
	}
}

// validateAgainstSchema checks raw JSON data against the schema map
func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
