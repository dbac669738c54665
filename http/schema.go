package http

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// paymentRequiredSchema is the accepted shape of a 402 challenge, v1 or v2
const paymentRequiredSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["x402Version", "accepts"],
  "properties": {
    "x402Version": {"type": "integer", "minimum": 1, "maximum": 2},
    "error": {"type": "string"},
    "resource": {
      "type": "object",
      "required": ["url"],
      "properties": {"url": {"type": "string"}}
    },
    "accepts": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["scheme", "network", "asset", "payTo"],
        "properties": {
          "scheme": {"type": "string", "minLength": 1},
          "network": {"type": "string", "minLength": 1},
          "asset": {"type": "string", "minLength": 1},
          "payTo": {"type": "string", "minLength": 1},
          "amount": {"type": "string", "pattern": "^[0-9]+$"},
          "maxAmountRequired": {"type": "string", "pattern": "^[0-9]+$"},
          "maxTimeoutSeconds": {"type": "integer", "minimum": 0},
          "extra": {"type": "object"}
        },
        "anyOf": [
          {"required": ["amount"]},
          {"required": ["maxAmountRequired"]}
        ]
      }
    }
  }
}`

var paymentRequiredValidator = func() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(paymentRequiredSchema))
	if err != nil {
		panic(fmt.Sprintf("invalid payment required schema: %v", err))
	}
	return schema
}()

// validatePaymentRequired checks a decoded challenge document against the schema
func validatePaymentRequired(document []byte) error {
	result, err := paymentRequiredValidator.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("challenge is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("challenge does not match the x402 schema: %s", strings.Join(problems, "; "))
}
