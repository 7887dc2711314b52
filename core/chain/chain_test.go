package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "github.com/davidahmann/kiln/core/errors"
)

const testAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type fakeReader struct {
	chainID  *big.Int
	chainErr error
	code     []byte
	codeErr  error

	chainCalls int
	gotAccount common.Address
}

func (f *fakeReader) ChainID(context.Context) (*big.Int, error) {
	f.chainCalls++
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return f.chainID, nil
}

func (f *fakeReader) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.gotAccount = account
	if f.codeErr != nil {
		return nil, f.codeErr
	}
	return f.code, nil
}

func TestFetchCodeHashesDeployedBytecode(t *testing.T) {
	code := []byte{0x60, 0x80, 0x60, 0x40}
	reader := &fakeReader{chainID: big.NewInt(1337), code: code}

	info, err := fetchCode(context.Background(), reader, Local(), testAddress)
	if err != nil {
		t.Fatalf("fetchCode: %v", err)
	}
	sum := sha256.Sum256(code)
	want := "0x" + hex.EncodeToString(sum[:])
	if info.Hash != want {
		t.Fatalf("hash = %q, want %q", info.Hash, want)
	}
	if info.Size != len(code) {
		t.Fatalf("size = %d", info.Size)
	}
	if info.Address != testAddress {
		t.Fatalf("address = %q", info.Address)
	}
	if reader.gotAccount != common.HexToAddress(testAddress) {
		t.Fatalf("queried account = %s", reader.gotAccount)
	}
}

func TestFetchCodeChainIDMismatch(t *testing.T) {
	reader := &fakeReader{chainID: big.NewInt(1), code: []byte{0x01}}

	_, err := fetchCode(context.Background(), reader, Local(), testAddress)
	if err == nil {
		t.Fatalf("expected chain id mismatch")
	}
	if coreerrors.CodeOf(err) != "chain_id_mismatch" {
		t.Fatalf("code = %q", coreerrors.CodeOf(err))
	}
	if coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("category = %q", coreerrors.CategoryOf(err))
	}
}

func TestFetchCodeSkipsChainCheckWhenUnpinned(t *testing.T) {
	reader := &fakeReader{chainID: big.NewInt(99999), code: []byte{0x01}}
	network := Network{Name: "adhoc", RPCURL: "http://localhost:8545"}

	if _, err := fetchCode(context.Background(), reader, network, testAddress); err != nil {
		t.Fatalf("unpinned network must accept any chain id: %v", err)
	}
}

func TestFetchCodeInvalidAddress(t *testing.T) {
	reader := &fakeReader{chainID: big.NewInt(1337), code: []byte{0x01}}

	_, err := fetchCode(context.Background(), reader, Local(), "not-an-address")
	if err == nil {
		t.Fatalf("expected address validation failure")
	}
	if coreerrors.CodeOf(err) != "contract_address_invalid" {
		t.Fatalf("code = %q", coreerrors.CodeOf(err))
	}
	if reader.chainCalls != 0 {
		t.Fatalf("rpc reached despite invalid address")
	}
}

func TestFetchCodeEmptyBytecode(t *testing.T) {
	reader := &fakeReader{chainID: big.NewInt(1337)}

	_, err := fetchCode(context.Background(), reader, Local(), testAddress)
	if err == nil {
		t.Fatalf("expected error for empty bytecode")
	}
	if coreerrors.CodeOf(err) != "no_bytecode_at_address" {
		t.Fatalf("code = %q", coreerrors.CodeOf(err))
	}
}

func TestFetchCodeTransientFailures(t *testing.T) {
	reader := &fakeReader{chainErr: errors.New("connection refused")}
	_, err := fetchCode(context.Background(), reader, Local(), testAddress)
	if coreerrors.CategoryOf(err) != coreerrors.CategoryNetworkTransient {
		t.Fatalf("chain id failure category = %q", coreerrors.CategoryOf(err))
	}
	if !coreerrors.RetryableOf(err) {
		t.Fatalf("chain id failure must be retryable")
	}

	reader = &fakeReader{chainID: big.NewInt(1337), codeErr: errors.New("timeout")}
	_, err = fetchCode(context.Background(), reader, Local(), testAddress)
	if coreerrors.CodeOf(err) != "code_fetch_failed" {
		t.Fatalf("code = %q", coreerrors.CodeOf(err))
	}
	if !coreerrors.RetryableOf(err) {
		t.Fatalf("code fetch failure must be retryable")
	}
}

func TestFetchCodeTimeoutIsCallerProblem(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	reader := &fakeReader{chainErr: ctx.Err()}
	_, err := fetchCode(ctx, reader, Local(), testAddress)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("timeout category = %q", coreerrors.CategoryOf(err))
	}
	if coreerrors.CodeOf(err) != "fetch_timeout" {
		t.Fatalf("timeout code = %q", coreerrors.CodeOf(err))
	}
	if coreerrors.RetryableOf(err) {
		t.Fatalf("a timeout must not be flagged retryable")
	}

	// Deadline errors surfaced by the client itself classify the same way.
	reader = &fakeReader{chainID: big.NewInt(1337), codeErr: context.DeadlineExceeded}
	_, err = fetchCode(context.Background(), reader, Local(), testAddress)
	if coreerrors.CodeOf(err) != "fetch_timeout" {
		t.Fatalf("code fetch timeout code = %q", coreerrors.CodeOf(err))
	}
	if coreerrors.RetryableOf(err) {
		t.Fatalf("code fetch timeout must not be flagged retryable")
	}
}

func TestNetworkPresets(t *testing.T) {
	local := Local()
	if local.ChainID != 1337 || local.RPCURL != "http://localhost:8545" {
		t.Fatalf("local preset = %+v", local)
	}
	dev := FluentDev()
	if dev.ChainID != 20993 || dev.Name != "fluent-dev" {
		t.Fatalf("fluent-dev preset = %+v", dev)
	}
}
