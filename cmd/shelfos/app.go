// Package main is the shelfos CLI: bootstrap a queen or worker node, pair a
// new worker into the swarm, run the long-lived service, and drive the
// day-to-day operator actions (list peers, call a peripheral, revoke a
// peer). Grounded on cmd/matter-light-device's "parse flags, construct,
// run" shape and examples/common's ParseFlags/RunDevice split, generalized
// from one device type to one binary with several subcommands.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/config"
	"github.com/shelfos/shelfos/pkg/registry"
)

// paths bundles the two files a data directory holds: the node's own
// config.yaml and, on a queen, the Trust Registry's registry.yaml.
type paths struct {
	configPath   string
	registryPath string
}

func dataPaths(dataDir string) paths {
	return paths{
		configPath:   filepath.Join(dataDir, "config.yaml"),
		registryPath: filepath.Join(dataDir, "registry.yaml"),
	}
}

func loadConfigStore(dataDir string, lf logging.LoggerFactory) (*config.Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store := config.New(dataPaths(dataDir).configPath, lf)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store, nil
}

func loadRegistry(dataDir string, lf logging.LoggerFactory) (*registry.Registry, error) {
	reg := registry.New(registry.Config{Path: dataPaths(dataDir).registryPath, LoggerFactory: lf})
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return reg, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "shelfos: "+format+"\n", args...)
	os.Exit(1)
}
