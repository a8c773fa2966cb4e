package aiadapter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/labelsquor/squorcore/pkg/pipelineerr"
)

// responseSchemaJSON is the strict JSON Schema the model's reply must
// satisfy before it is decoded into rawResult. It mirrors the schema
// published in the prompt (standardPrompt in prompt.go) so a model that
// drifts from the contract is rejected here instead of silently producing a
// zero-valued rawResult field.
const responseSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["product", "squor", "verdict"],
  "properties": {
    "product": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string"},
        "brand": {"type": "string"},
        "category": {"type": "string"}
      }
    },
    "ingredients": {"type": "array", "items": {"type": "string"}},
    "nutrition": {"type": "object"},
    "claims": {"type": "array", "items": {"type": "string"}},
    "warnings": {"type": "array", "items": {"type": "string"}},
    "certifications": {"type": "array", "items": {"type": "string"}},
    "squor": {
      "type": "object",
      "required": ["s", "q", "u", "o", "r"],
      "properties": {
        "s": {"type": "number", "minimum": 0, "maximum": 5},
        "q": {"type": "number", "minimum": 0, "maximum": 5},
        "u": {"type": "number", "minimum": 0, "maximum": 5},
        "o": {"type": "number", "minimum": 0, "maximum": 5},
        "r": {"type": "number", "minimum": 0, "maximum": 5},
        "reasons": {"type": "object"}
      }
    },
    "verdict": {
      "type": "object",
      "required": ["overall_0_5"],
      "properties": {
        "overall_0_5": {"type": "number", "minimum": 0, "maximum": 5},
        "recommendation": {"type": "string"}
      }
    },
    "best_image": {
      "type": "object",
      "properties": {
        "index": {"type": "integer"},
        "reason": {"type": "string"}
      }
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var (
	responseSchemaOnce sync.Once
	responseSchema     *jsonschema.Schema
	responseSchemaErr  error
)

func compiledResponseSchema() (*jsonschema.Schema, error) {
	responseSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("squor-response.json", strings.NewReader(responseSchemaJSON)); err != nil {
			responseSchemaErr = fmt.Errorf("load response schema: %w", err)
			return
		}
		responseSchema, responseSchemaErr = compiler.Compile("squor-response.json")
	})
	return responseSchema, responseSchemaErr
}

// validateResponseSchema checks a decoded JSON document against
// responseSchemaJSON, catching shape drift (missing required fields,
// scores out of range, wrong types) that a permissive json.Unmarshal into
// rawResult would otherwise accept silently as zero values.
func validateResponseSchema(jsonStr string) error {
	schema, err := compiledResponseSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSONPattern   = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls a JSON object out of a model response that may wrap it
// in a fenced code block, or may return it bare.
func extractJSON(response string) (string, bool) {
	if m := fencedJSONPattern.FindStringSubmatch(response); len(m) == 2 {
		return m[1], true
	}
	if m := bareJSONPattern.FindString(response); m != "" {
		return m, true
	}
	return "", false
}

// parseResponse extracts and decodes the model's JSON payload. Failure to
// locate or unmarshal a JSON object becomes an AIParseError carrying the raw
// response for debugging (spec.md §4.D).
func parseResponse(stage, response string) (*rawResult, error) {
	jsonStr, ok := extractJSON(response)
	if !ok {
		return nil, &pipelineerr.AIParseError{
			Stage:    stage,
			RawReply: response,
			Err:      errNoJSONFound,
		}
	}

	if err := validateResponseSchema(jsonStr); err != nil {
		return nil, &pipelineerr.AIParseError{
			Stage:    stage,
			RawReply: response,
			Err:      fmt.Errorf("response does not match strict schema: %w", err),
		}
	}

	var result rawResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, &pipelineerr.AIParseError{
			Stage:    stage,
			RawReply: response,
			Err:      err,
		}
	}

	return &result, nil
}

var errNoJSONFound = jsonNotFoundErr{}

type jsonNotFoundErr struct{}

func (jsonNotFoundErr) Error() string { return "no JSON object found in model response" }
