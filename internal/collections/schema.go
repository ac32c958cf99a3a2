package collections

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// queryEnvelopeSchema pins the shape we require of the upstream query
// response before we try to interpret it as records. Anything else is a
// misconfigured or drifted upstream, not a transient failure.
const queryEnvelopeSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["results", "has_more"],
	"properties": {
		"results": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "last_edited_time"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"last_edited_time": {"type": "string"},
					"properties": {"type": "object"}
				}
			}
		},
		"has_more": {"type": "boolean"},
		"next_cursor": {"type": ["string", "null"]}
	}
}`

var envelopeSchema = mustCompileEnvelopeSchema()

func mustCompileEnvelopeSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(queryEnvelopeSchema))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("query-envelope.json", doc); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("query-envelope.json")
	if err != nil {
		panic(err)
	}
	return schema
}

type queryEnvelope struct {
	Results    []sourceItem `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor *string      `json:"next_cursor"`
}

func decodeEnvelope(body []byte) (queryEnvelope, error) {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return queryEnvelope{}, &SourceError{Kind: SourceInvalidShape, Message: "response is not valid json: " + err.Error()}
	}
	if err := envelopeSchema.Validate(instance); err != nil {
		return queryEnvelope{}, &SourceError{Kind: SourceInvalidShape, Message: err.Error()}
	}
	var envelope queryEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return queryEnvelope{}, &SourceError{Kind: SourceInvalidShape, Message: err.Error()}
	}
	return envelope, nil
}
