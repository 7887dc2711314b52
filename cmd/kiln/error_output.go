package main

import (
	"encoding/json"
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// Exit codes: caller mistakes (bad flags, bad paths, malformed input) exit 2
// so scripts can tell them apart from pipeline failures, which exit 1.
const (
	exitOK           = 0
	exitFailure      = 1
	exitInvalidInput = 2
)

// commandError is the JSON error envelope shared by every command.
type commandError struct {
	Status    string `json:"status"`
	Command   string `json:"command,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
}

func newCommandError(command string, err error) commandError {
	return commandError{
		Status:    "error",
		Command:   command,
		ErrorType: string(coreerrors.CategoryOf(err)),
		Message:   err.Error(),
		Hint:      coreerrors.HintOf(err),
		Retryable: coreerrors.RetryableOf(err),
	}
}

func writeJSONOutput(output any, exitCode int) int {
	encoded, err := marshalOutputWithErrorEnvelope(output, exitCode)
	if err != nil {
		fmt.Println(`{"status":"error","error_type":"internal_failure","message":"failed to encode output","retryable":false}`)
		return exitFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

// marshalOutputWithErrorEnvelope fills in the envelope fields a command left
// blank: status from the exit code, then error_type, hint, and retryable for
// error outputs.
func marshalOutputWithErrorEnvelope(output any, exitCode int) ([]byte, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(asString(result["status"])) == "" {
		if exitCode == exitOK {
			result["status"] = "success"
		} else {
			result["status"] = "error"
		}
	}
	if asString(result["status"]) != "error" {
		return json.Marshal(result)
	}
	if strings.TrimSpace(asString(result["error_type"])) == "" {
		result["error_type"] = string(defaultErrorType(exitCode))
	}
	category := coreerrors.Category(asString(result["error_type"]))
	if strings.TrimSpace(asString(result["hint"])) == "" {
		result["hint"] = defaultHint(category)
	}
	if _, exists := result["retryable"]; !exists {
		result["retryable"] = defaultRetryable(category)
	}
	return json.Marshal(result)
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput:
		return exitInvalidInput
	case "":
		return fallbackExit
	default:
		return exitFailure
	}
}

func defaultErrorType(exitCode int) coreerrors.Category {
	if exitCode == exitInvalidInput {
		return coreerrors.CategoryInvalidInput
	}
	return coreerrors.CategoryInternalFailure
}

func defaultHint(category coreerrors.Category) string {
	switch category {
	case coreerrors.CategoryInvalidInput:
		return "check command usage and flag values"
	case coreerrors.CategoryDependencyMissing:
		return "install the missing toolchain component and retry"
	case coreerrors.CategoryCompilation:
		return "read the compiler diagnostics in the message"
	case coreerrors.CategoryVerification:
		return "compare the expected and actual hashes in the output"
	case coreerrors.CategoryNetworkTransient:
		return "retry once the RPC endpoint is reachable"
	case coreerrors.CategoryIOFailure:
		return "check filesystem permissions and free space"
	default:
		return "retry after checking the local environment"
	}
}

func defaultRetryable(category coreerrors.Category) bool {
	return category == coreerrors.CategoryNetworkTransient
}

func asString(value any) string {
	text, _ := value.(string)
	return text
}
