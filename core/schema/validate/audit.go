package validate

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed audit_v1.schema.json
var auditSchemaV1 []byte

var (
	auditOnce   sync.Once
	auditSchema *jsonschema.Schema
	auditErr    error
)

func compiledAuditSchema() (*jsonschema.Schema, error) {
	auditOnce.Do(func() {
		auditSchema, auditErr = compileSchema(auditSchemaV1)
	})
	return auditSchema, auditErr
}

// AuditLine validates a single verification audit record against the
// embedded v1 schema.
func AuditLine(data []byte) error {
	schema, err := compiledAuditSchema()
	if err != nil {
		return err
	}
	return validateJSON(schema, data)
}

// AuditLog validates every non-empty line of a JSONL audit log.
func AuditLog(data []byte) error {
	schema, err := compiledAuditSchema()
	if err != nil {
		return err
	}
	return validateJSONL(schema, data)
}

// AuditLogFile reads and validates an audit log from disk.
func AuditLogFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- caller-chosen audit log path.
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	return AuditLog(data)
}
