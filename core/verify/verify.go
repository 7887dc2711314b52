// Package verify re-runs the build pipeline against a source tree and
// classifies the comparison between the rebuilt bytecode hash and an expected
// hash. A mismatch is a valid outcome, not an error: the engine's job is to
// answer "does this source still produce that binary", and "no" is an answer.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davidahmann/kiln/core/build"
	"github.com/davidahmann/kiln/core/config"
	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/fsx"
	"github.com/davidahmann/kiln/core/jcs"
	"github.com/davidahmann/kiln/core/schema/validate"
)

// Status classifies a verification outcome.
type Status string

const (
	// StatusSuccess means the rebuilt bytecode hash equals the expected hash.
	StatusSuccess Status = "success"
	// StatusBytecodeMismatch means the rebuild finished but produced a
	// different hash.
	StatusBytecodeMismatch Status = "bytecode_mismatch"
	// StatusCompilationFailed means the rebuild aborted; no comparison ran.
	StatusCompilationFailed Status = "compilation_failed"
	// StatusInvalidConfig means the project never reached compilation.
	StatusInvalidConfig Status = "invalid_config"
)

// IsSuccess reports whether verification proved the source/bytecode match.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// Options configure one verification run. The compiler, transformer, and
// parser collaborators are handed through to the build pipeline.
type Options struct {
	Config       config.Config
	ExpectedHash string

	Compiler    build.Compiler
	Transformer build.Transformer
	Parser      build.SignatureParser

	// AuditLog, when set, receives one JSON line per outcome.
	AuditLog string
}

// Outcome is the classified result of one verification run. Duration and
// timestamp are recorded on every path, including failures.
type Outcome struct {
	Status       Status        `json:"status"`
	ContractName string        `json:"contract_name,omitempty"`
	ExpectedHash string        `json:"expected_hash"`
	ActualHash   string        `json:"actual_hash,omitempty"`
	DurationMS   int64         `json:"duration_ms"`
	VerifiedAt   time.Time     `json:"verified_at"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Build        *build.Result `json:"build,omitempty"`
}

// NormalizeHash trims whitespace, strips a 0x/0X prefix, and lowercases, so
// hashes from CLI input, on-chain reads, and stored metadata compare equal.
// Normalization is idempotent.
func NormalizeHash(hash string) string {
	trimmed := strings.TrimSpace(hash)
	if len(trimmed) >= 2 && (trimmed[:2] == "0x" || trimmed[:2] == "0X") {
		trimmed = trimmed[2:]
	}
	return strings.ToLower(trimmed)
}

// Verify rebuilds the project and compares the rwasm hash against the
// expected hash. Project problems become classified outcomes; only caller
// misuse (no expected hash, missing collaborators) returns an error.
func Verify(ctx context.Context, opts Options) (*Outcome, error) {
	if strings.TrimSpace(opts.ExpectedHash) == "" {
		return nil, coreerrors.Wrap(
			fmt.Errorf("expected hash is required"),
			coreerrors.CategoryInvalidInput, "expected_hash_missing",
			"pass the deployed bytecode hash to verify against", false,
		)
	}
	if opts.Compiler == nil || opts.Transformer == nil || opts.Parser == nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("verification is missing a build collaborator"),
			coreerrors.CategoryInternalFailure, "pipeline_misconfigured",
			"", false,
		)
	}

	start := time.Now()
	outcome := &Outcome{
		ExpectedHash: NormalizeHash(opts.ExpectedHash),
	}
	finish := func() (*Outcome, error) {
		outcome.DurationMS = time.Since(start).Milliseconds()
		outcome.VerifiedAt = time.Now().UTC()
		if err := appendAudit(opts.AuditLog, outcome); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	// Verification rebuilds always record archive provenance and never
	// republish sources; the metadata of record is the original build's.
	cfg := opts.Config
	cfg.UseGitSource = false

	resolved, err := config.Resolve(cfg)
	if err != nil {
		outcome.Status = StatusInvalidConfig
		outcome.ErrorMessage = err.Error()
		return finish()
	}

	result, err := build.Run(ctx, build.Options{
		Config:      cfg,
		Resolved:    resolved,
		Compiler:    opts.Compiler,
		Transformer: opts.Transformer,
		Parser:      opts.Parser,
		SkipBundle:  true,
	})
	if err != nil {
		outcome.Status = StatusCompilationFailed
		outcome.ErrorMessage = err.Error()
		return finish()
	}

	outcome.ContractName = result.Contract.Name
	outcome.ActualHash = NormalizeHash(result.RwasmHash)
	outcome.Build = result
	if outcome.ActualHash == outcome.ExpectedHash {
		outcome.Status = StatusSuccess
	} else {
		outcome.Status = StatusBytecodeMismatch
	}
	return finish()
}

// auditRecord is the single-line JSON shape appended to the audit log. The
// build result is deliberately excluded; the log answers "who verified what,
// when, with which result", not "what did the build produce".
type auditRecord struct {
	Status       Status    `json:"status"`
	ContractName string    `json:"contract_name,omitempty"`
	ExpectedHash string    `json:"expected_hash"`
	ActualHash   string    `json:"actual_hash,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	VerifiedAt   time.Time `json:"verified_at"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

func appendAudit(path string, outcome *Outcome) error {
	if path == "" {
		return nil
	}
	line, err := jcs.MarshalCanonical(auditRecord{
		Status:       outcome.Status,
		ContractName: outcome.ContractName,
		ExpectedHash: outcome.ExpectedHash,
		ActualHash:   outcome.ActualHash,
		DurationMS:   outcome.DurationMS,
		VerifiedAt:   outcome.VerifiedAt,
		ErrorMessage: outcome.ErrorMessage,
	})
	if err != nil {
		return coreerrors.Wrap(
			fmt.Errorf("marshal audit record: %w", err),
			coreerrors.CategoryInternalFailure, "audit_record_marshal_failed",
			"", false,
		)
	}
	if err := validate.AuditLine(line); err != nil {
		return coreerrors.Wrap(
			fmt.Errorf("audit record failed schema validation: %w", err),
			coreerrors.CategoryInternalFailure, "audit_record_invalid",
			"", false,
		)
	}
	if err := fsx.AppendLineLocked(path, line, 0o644); err != nil {
		return coreerrors.Wrap(
			fmt.Errorf("append audit record to %s: %w", path, err),
			coreerrors.CategoryIOFailure, "audit_append_failed",
			"check permissions on the audit log path", false,
		)
	}
	return nil
}
