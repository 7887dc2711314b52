package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/davidahmann/kiln/core/build"
	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// DefaultRwasmBin is the converter executable used when none is configured.
const DefaultRwasmBin = "rwasm-convert"

// DefaultRwasmTimeout bounds one wasm-to-rwasm conversion. The transform is
// a single deterministic pass, far cheaper than the compile before it.
const DefaultRwasmTimeout = 60 * time.Second

// RwasmCLI converts wasm to rwasm by piping it through an external converter
// command: wasm on stdin, rwasm on stdout.
type RwasmCLI struct {
	// Bin is the converter executable. Empty means DefaultRwasmBin.
	Bin string
	// Args are passed before the wasm stream.
	Args []string
	// Timeout bounds the conversion. Zero means DefaultRwasmTimeout.
	Timeout time.Duration
}

func (r RwasmCLI) binary() string {
	if strings.TrimSpace(r.Bin) == "" {
		return DefaultRwasmBin
	}
	return r.Bin
}

// Transform implements the build transformer seam.
func (r RwasmCLI) Transform(wasm []byte) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRwasmTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	command := exec.CommandContext(ctx, r.binary(), r.Args...) // #nosec G204 -- converter binary is explicit operator configuration.
	command.Stdin = bytes.NewReader(wasm)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, coreerrors.Wrap(
				fmt.Errorf("rwasm conversion timed out after %s", timeout),
				coreerrors.CategoryCompilation, "rwasm_convert_timeout",
				"raise the converter timeout or check the converter binary", false,
			)
		}
		return nil, &build.ExecError{
			Cmd:    r.binary() + " " + strings.Join(r.Args, " "),
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// TransformerFunc adapts an in-process conversion function to the
// transformer seam.
type TransformerFunc func([]byte) ([]byte, error)

// Transform calls f.
func (f TransformerFunc) Transform(wasm []byte) ([]byte, error) {
	return f(wasm)
}
