package main

import (
	stderrors "errors"
	"io"
	"os"
	"strings"
	"testing"

	coreerrors "github.com/davidahmann/kiln/core/errors"
)

func TestMarshalOutputWithErrorEnvelope(t *testing.T) {
	payload := map[string]any{
		"status":  "error",
		"message": "boom",
	}
	encoded, err := marshalOutputWithErrorEnvelope(payload, exitInvalidInput)
	if err != nil {
		t.Fatalf("marshalOutputWithErrorEnvelope error: %v", err)
	}
	result := string(encoded)
	if !strings.Contains(result, `"error_type":"invalid_input"`) {
		t.Fatalf("missing error_type in output: %s", result)
	}
	if !strings.Contains(result, `"retryable":false`) {
		t.Fatalf("missing retryable in output: %s", result)
	}
	if !strings.Contains(result, `"hint":"check command usage and flag values"`) {
		t.Fatalf("missing hint in output: %s", result)
	}
}

func TestMarshalOutputStatusFromExitCode(t *testing.T) {
	encoded, err := marshalOutputWithErrorEnvelope(map[string]any{"verified": true}, exitOK)
	if err != nil {
		t.Fatalf("marshal success output: %v", err)
	}
	if !strings.Contains(string(encoded), `"status":"success"`) {
		t.Fatalf("expected success status, got %s", encoded)
	}

	encoded, err = marshalOutputWithErrorEnvelope(map[string]any{"message": "down"}, exitFailure)
	if err != nil {
		t.Fatalf("marshal error output: %v", err)
	}
	if !strings.Contains(string(encoded), `"status":"error"`) {
		t.Fatalf("expected error status, got %s", encoded)
	}
	if !strings.Contains(string(encoded), `"error_type":"internal_failure"`) {
		t.Fatalf("expected internal_failure default, got %s", encoded)
	}
}

func TestMarshalOutputWithProvidedEnvelopeFields(t *testing.T) {
	payload := map[string]any{
		"status":     "error",
		"message":    "already enveloped",
		"error_type": "network_transient",
		"hint":       "custom hint",
		"retryable":  true,
	}
	encoded, err := marshalOutputWithErrorEnvelope(payload, exitFailure)
	if err != nil {
		t.Fatalf("marshalOutputWithErrorEnvelope error: %v", err)
	}
	result := string(encoded)
	if !strings.Contains(result, `"error_type":"network_transient"`) {
		t.Fatalf("provided error_type overwritten: %s", result)
	}
	if !strings.Contains(result, `"hint":"custom hint"`) {
		t.Fatalf("provided hint overwritten: %s", result)
	}
	if !strings.Contains(result, `"retryable":true`) {
		t.Fatalf("provided retryable overwritten: %s", result)
	}
}

func TestNewCommandError(t *testing.T) {
	wrapped := coreerrors.Wrap(
		stderrors.New("no bytecode at address"),
		coreerrors.CategoryInvalidInput, "no_bytecode_at_address",
		"confirm the address and network", false,
	)
	envelope := newCommandError("fetch", wrapped)
	if envelope.Status != "error" {
		t.Fatalf("status: got %q", envelope.Status)
	}
	if envelope.Command != "fetch" {
		t.Fatalf("command: got %q", envelope.Command)
	}
	if envelope.ErrorType != string(coreerrors.CategoryInvalidInput) {
		t.Fatalf("error_type: got %q", envelope.ErrorType)
	}
	if envelope.Hint != "confirm the address and network" {
		t.Fatalf("hint: got %q", envelope.Hint)
	}
	if !strings.Contains(envelope.Message, "no bytecode at address") {
		t.Fatalf("message lost cause text: %q", envelope.Message)
	}
}

func TestExitCodeForError(t *testing.T) {
	if got := exitCodeForError(nil, exitFailure); got != exitOK {
		t.Fatalf("nil error: expected %d got %d", exitOK, got)
	}
	if got := exitCodeForError(stderrors.New("plain"), exitInvalidInput); got != exitInvalidInput {
		t.Fatalf("unclassified error: expected fallback %d got %d", exitInvalidInput, got)
	}
	invalid := coreerrors.Wrap(stderrors.New("bad flag"), coreerrors.CategoryInvalidInput, "flag_invalid", "", false)
	if got := exitCodeForError(invalid, exitFailure); got != exitInvalidInput {
		t.Fatalf("invalid input: expected %d got %d", exitInvalidInput, got)
	}
	network := coreerrors.Wrap(stderrors.New("timeout"), coreerrors.CategoryNetworkTransient, "chain_id_unreachable", "", true)
	if got := exitCodeForError(network, exitInvalidInput); got != exitFailure {
		t.Fatalf("classified error: expected %d got %d", exitFailure, got)
	}
}

func TestDefaultErrorMappings(t *testing.T) {
	if got := defaultErrorType(exitInvalidInput); got != coreerrors.CategoryInvalidInput {
		t.Fatalf("defaultErrorType(%d): got %s", exitInvalidInput, got)
	}
	if got := defaultErrorType(exitFailure); got != coreerrors.CategoryInternalFailure {
		t.Fatalf("defaultErrorType(%d): got %s", exitFailure, got)
	}

	hints := []struct {
		category coreerrors.Category
		hint     string
	}{
		{coreerrors.CategoryInvalidInput, "check command usage and flag values"},
		{coreerrors.CategoryDependencyMissing, "install the missing toolchain component and retry"},
		{coreerrors.CategoryCompilation, "read the compiler diagnostics in the message"},
		{coreerrors.CategoryVerification, "compare the expected and actual hashes in the output"},
		{coreerrors.CategoryNetworkTransient, "retry once the RPC endpoint is reachable"},
		{coreerrors.CategoryIOFailure, "check filesystem permissions and free space"},
		{coreerrors.CategoryInternalFailure, "retry after checking the local environment"},
	}
	for _, tc := range hints {
		if got := defaultHint(tc.category); got != tc.hint {
			t.Fatalf("defaultHint(%s): got %q want %q", tc.category, got, tc.hint)
		}
	}

	if !defaultRetryable(coreerrors.CategoryNetworkTransient) {
		t.Fatalf("network transient category should be retryable")
	}
	if defaultRetryable(coreerrors.CategoryInvalidInput) {
		t.Fatalf("invalid input category should not be retryable")
	}
}

func TestWriteJSONOutputEncodingFailureFallback(t *testing.T) {
	raw := captureStdout(t, func() {
		code := writeJSONOutput(map[string]any{
			"status": "error",
			"bad":    make(chan int),
		}, exitInvalidInput)
		if code != exitFailure {
			t.Fatalf("writeJSONOutput fallback exit code: got %d want %d", code, exitFailure)
		}
	})
	if !strings.Contains(raw, `"error_type":"internal_failure"`) {
		t.Fatalf("expected internal_failure fallback envelope, got %s", raw)
	}
	if !strings.Contains(raw, "failed to encode output") {
		t.Fatalf("expected encode failure message, got %s", raw)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	original := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = writer
	defer func() {
		os.Stdout = original
	}()

	type readResult struct {
		raw []byte
		err error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		raw, readErr := io.ReadAll(reader)
		resultCh <- readResult{raw: raw, err: readErr}
	}()

	fn()

	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	result := <-resultCh
	if result.err != nil {
		t.Fatalf("read stdout: %v", result.err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("close reader: %v", err)
	}
	return string(result.raw)
}
