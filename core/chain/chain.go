// Package chain fetches deployed bytecode over JSON-RPC so a verification
// run can compare a rebuild against what is actually on chain.
package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	coreerrors "github.com/davidahmann/kiln/core/errors"
)

// Network identifies a JSON-RPC endpoint and the chain expected behind it.
type Network struct {
	Name    string `json:"name"`
	RPCURL  string `json:"rpc_url"`
	ChainID uint64 `json:"chain_id"`
}

// Local is the development-network preset.
func Local() Network {
	return Network{Name: "local", RPCURL: "http://localhost:8545", ChainID: 1337}
}

// FluentDev is the public Fluent devnet preset.
func FluentDev() Network {
	return Network{Name: "fluent-dev", RPCURL: "https://rpc.dev.gblend.xyz", ChainID: 20993}
}

// CodeInfo describes the bytecode found at a contract address.
type CodeInfo struct {
	Address string  `json:"address"`
	Hash    string  `json:"bytecode_hash"`
	Size    int     `json:"bytecode_size"`
	Network Network `json:"network"`
}

// codeReader is the slice of the RPC client the fetch path needs. Tests
// substitute an in-process fake; production passes *ethclient.Client.
type codeReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// FetchCodeHash returns "0x" plus the sha256 of the bytecode deployed at
// address, after confirming the endpoint serves the expected chain.
func FetchCodeHash(ctx context.Context, network Network, address string) (string, error) {
	info, err := FetchCode(ctx, network, address)
	if err != nil {
		return "", err
	}
	return info.Hash, nil
}

// FetchCode dials the network and describes the bytecode at address. The
// caller's context bounds every RPC round trip.
func FetchCode(ctx context.Context, network Network, address string) (*CodeInfo, error) {
	client, err := ethclient.DialContext(ctx, network.RPCURL)
	if err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("dial rpc endpoint %s: %w", network.RPCURL, err),
			coreerrors.CategoryInvalidInput, "rpc_url_invalid",
			"check the network's rpc_url", false,
		)
	}
	defer client.Close()
	return fetchCode(ctx, client, network, address)
}

func fetchCode(ctx context.Context, client codeReader, network Network, address string) (*CodeInfo, error) {
	if !common.IsHexAddress(address) {
		return nil, coreerrors.Wrap(
			fmt.Errorf("invalid contract address %q", address),
			coreerrors.CategoryInvalidInput, "contract_address_invalid",
			"pass a 0x-prefixed 20-byte hex address", false,
		)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		if timedOut(ctx, err) {
			return nil, wrapTimeout(fmt.Errorf("read chain id from %s: %w", network.RPCURL, err))
		}
		return nil, coreerrors.Wrap(
			fmt.Errorf("read chain id from %s: %w", network.RPCURL, err),
			coreerrors.CategoryNetworkTransient, "chain_id_unreachable",
			"check connectivity to the rpc endpoint", true,
		)
	}
	if network.ChainID != 0 && chainID.Uint64() != network.ChainID {
		return nil, coreerrors.Wrap(
			fmt.Errorf("chain id mismatch: expected %d, endpoint serves %s", network.ChainID, chainID),
			coreerrors.CategoryInvalidInput, "chain_id_mismatch",
			"the rpc endpoint belongs to a different network than configured", false,
		)
	}

	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		if timedOut(ctx, err) {
			return nil, wrapTimeout(fmt.Errorf("fetch bytecode at %s: %w", address, err))
		}
		return nil, coreerrors.Wrap(
			fmt.Errorf("fetch bytecode at %s: %w", address, err),
			coreerrors.CategoryNetworkTransient, "code_fetch_failed",
			"check connectivity to the rpc endpoint", true,
		)
	}
	if len(code) == 0 {
		return nil, coreerrors.Wrap(
			fmt.Errorf("no bytecode at address %s on %s", address, network.Name),
			coreerrors.CategoryInvalidInput, "no_bytecode_at_address",
			"confirm the address and network; the account may be an EOA", false,
		)
	}

	sum := sha256.Sum256(code)
	return &CodeInfo{
		Address: address,
		Hash:    "0x" + hex.EncodeToString(sum[:]),
		Size:    len(code),
		Network: network,
	}, nil
}

// timedOut reports whether an RPC failure was caused by the caller's fetch
// deadline expiring. An exhausted fetch window is a configuration problem
// (wrong endpoint, timeout set too low), not a transient fault to retry.
func timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func wrapTimeout(cause error) error {
	return coreerrors.Wrap(
		cause,
		coreerrors.CategoryInvalidInput, "fetch_timeout",
		"raise --timeout or fix the configured rpc endpoint", false,
	)
}
