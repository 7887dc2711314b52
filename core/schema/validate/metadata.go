package validate

import (
	_ "embed"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed metadata_v1.schema.json
var metadataSchemaV1 []byte

var (
	metadataOnce   sync.Once
	metadataSchema *jsonschema.Schema
	metadataErr    error
)

// Metadata validates a metadata document against the embedded v1 schema.
// The schema is compiled once and reused across calls.
func Metadata(data []byte) error {
	metadataOnce.Do(func() {
		metadataSchema, metadataErr = compileSchema(metadataSchemaV1)
	})
	if metadataErr != nil {
		return metadataErr
	}
	return validateJSON(metadataSchema, data)
}
