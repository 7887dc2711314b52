package main

import (
	"fmt"
	"strings"

	"github.com/davidahmann/kiln/core/chain"
	coreerrors "github.com/davidahmann/kiln/core/errors"
	"github.com/davidahmann/kiln/core/projectconfig"
)

// resolveNetwork picks the RPC target for verify and fetch. An explicit
// --rpc wins, then the named .kiln.yaml entry, then the built-in presets.
// --chain-id overrides whatever the resolved entry pins; zero leaves the
// entry's pin in place (and leaves an ad-hoc --rpc endpoint unpinned).
func resolveNetwork(workspace projectconfig.Config, networkName, rpcURL string, chainID uint64) (chain.Network, error) {
	if strings.TrimSpace(rpcURL) != "" {
		return chain.Network{Name: "custom", RPCURL: strings.TrimSpace(rpcURL), ChainID: chainID}, nil
	}

	name := strings.TrimSpace(networkName)
	if name == "" {
		name = workspace.DefaultNetwork
	}
	if name == "" {
		name = chain.Local().Name
	}

	resolved, ok := lookupNetwork(workspace, name)
	if !ok {
		return chain.Network{}, coreerrors.Wrap(
			fmt.Errorf("unknown network %q", name),
			coreerrors.CategoryInvalidInput, "network_unknown",
			"declare the network in .kiln.yaml or pass --rpc", false,
		)
	}
	if chainID != 0 {
		resolved.ChainID = chainID
	}
	return resolved, nil
}

func lookupNetwork(workspace projectconfig.Config, name string) (chain.Network, bool) {
	if entry, ok := workspace.Network(name); ok {
		return chain.Network{Name: name, RPCURL: entry.RPCURL, ChainID: entry.ChainID}, true
	}
	for _, preset := range []chain.Network{chain.Local(), chain.FluentDev()} {
		if preset.Name == name {
			return preset, true
		}
	}
	return chain.Network{}, false
}
