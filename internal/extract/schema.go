package extract

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// candidateSchema is the grammar raw completions must satisfy before they
// are mapped into a CandidateRecord. Unknown properties are allowed (and
// dropped later); known properties must at least have the right shape.
const candidateSchema = `{
  "type": "object",
  "properties": {
    "mandant": {"$ref": "#/$defs/person"},
    "gegner_versicherung": {
      "type": ["object", "null"],
      "properties": {
        "name": {"type": ["string", "null"]},
        "schadennummer": {"type": ["string", "null"]},
        "strasse": {"type": ["string", "null"]},
        "plz": {"type": ["string", "null"]},
        "ort": {"type": ["string", "null"]}
      }
    },
    "unfall": {
      "type": ["object", "null"],
      "properties": {
        "datum": {"type": ["string", "null"]},
        "ort": {"type": ["string", "null"]},
        "kennzeichen_mandant": {"type": ["string", "null"]},
        "kennzeichen_gegner": {"type": ["string", "null"]},
        "weitere_kennzeichen": {
          "type": ["array", "null"],
          "items": {"type": "string"}
        }
      }
    },
    "fahrzeug": {
      "type": ["object", "null"],
      "properties": {
        "typ": {"type": ["string", "null"]},
        "kw": {"type": ["string", "number", "null"]},
        "ez": {"type": ["string", "null"]}
      }
    },
    "betreff": {"type": ["string", "null"]},
    "zusammenfassung": {"type": ["string", "null"]},
    "handlungsbedarf": {"type": ["string", "null"]},
    "confidence": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "number"}
    }
  },
  "$defs": {
    "person": {
      "type": ["object", "null"],
      "properties": {
        "vorname": {"type": ["string", "null"]},
        "nachname": {"type": ["string", "null"]},
        "anrede": {"type": ["string", "null"]},
        "strasse": {"type": ["string", "null"]},
        "plz": {"type": ["string", "null"]},
        "ort": {"type": ["string", "null"]},
        "email": {"type": ["string", "null"]},
        "telefon": {"type": ["string", "null"]}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("candidate.json", bytes.NewReader([]byte(candidateSchema))); err != nil {
		panic(err)
	}
	return compiler.MustCompile("candidate.json")
}

// validateCandidateJSON checks raw completion JSON against the expected
// grammar. A failure means the model output is structurally unusable.
func validateCandidateJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "extract: completion is not valid JSON")
	}
	if err := compiledSchema.Validate(v); err != nil {
		return eris.Wrap(err, "extract: completion does not match schema")
	}
	return nil
}
