// Package projectconfig loads the optional workspace-level .kiln.yaml file.
// Values here only seed CLI flag defaults; core packages always receive
// explicit configuration structs.
package projectconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

const DefaultPath = ".kiln.yaml"

type Config struct {
	OutputDir      string             `yaml:"output_dir"`
	AllowDirty     bool               `yaml:"allow_dirty"`
	ArchiveFormat  string             `yaml:"archive_format"`
	DefaultNetwork string             `yaml:"default_network"`
	Networks       map[string]Network `yaml:"networks"`
}

type Network struct {
	RPCURL  string `yaml:"rpc_url"`
	ChainID uint64 `yaml:"chain_id"`
}

// Network returns the named entry from the networks map.
func (configuration Config) Network(name string) (Network, bool) {
	network, ok := configuration.Networks[name]
	return network, ok
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("workspace config path is required")
	}

	// #nosec G304 -- workspace config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read workspace config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse workspace config: %w", err)
	}
	configuration.normalize()
	return configuration, nil
}

func (configuration *Config) normalize() {
	configuration.OutputDir = strings.TrimSpace(configuration.OutputDir)
	configuration.ArchiveFormat = strings.ToLower(strings.TrimSpace(configuration.ArchiveFormat))
	configuration.DefaultNetwork = strings.TrimSpace(configuration.DefaultNetwork)
	if len(configuration.Networks) == 0 {
		return
	}
	networks := make(map[string]Network, len(configuration.Networks))
	for name, network := range configuration.Networks {
		network.RPCURL = strings.TrimSpace(network.RPCURL)
		networks[strings.TrimSpace(name)] = network
	}
	configuration.Networks = networks
}
