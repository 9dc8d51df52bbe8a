// Package config loads and validates the NetworkSpecification documents the
// agent is wired from, the way the teacher's command/agent/config_parse.go
// decodes its own agent configuration: HCL or JSON into a generic
// map[string]interface{}, then mapstructure into typed Go structs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/hashicorp/hcl"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
)

// LoadNetworkSpecifications reads one NetworkSpecification per file in dir
// (HCL or JSON; every file is parsed by hcl.Decode, which accepts both, and
// the file extension is not consulted), expanding a leading "~" the same
// way the teacher's CLI commands expand local paths.
func LoadNetworkSpecifications(dir string) ([]types.NetworkSpecification, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("config: expanding path %q: %w", dir, err)
	}

	entries, err := os.ReadDir(expanded)
	if err != nil {
		return nil, fmt.Errorf("config: reading network spec directory %q: %w", expanded, err)
	}

	specs := make([]types.NetworkSpecification, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(expanded, entry.Name())
		spec, err := decodeFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		specs = append(specs, spec)
	}
	return specs, Validate(specs)
}

func decodeFile(path string) (types.NetworkSpecification, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.NetworkSpecification{}, err
	}

	var doc map[string]interface{}
	if err := hcl.Decode(&doc, string(raw)); err != nil {
		return types.NetworkSpecification{}, fmt.Errorf("parsing document: %w", err)
	}

	var spec types.NetworkSpecification
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &spec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return types.NetworkSpecification{}, err
	}
	if err := decoder.Decode(doc); err != nil {
		return types.NetworkSpecification{}, fmt.Errorf("decoding into NetworkSpecification: %w", err)
	}
	return spec, nil
}

// Validate enforces the configuration-fatal invariant from spec.md §3:
// NetworkAndOperator pairs must agree on networkIdentifier, so no two
// specifications may share one. MultiNetworks.New enforces this again at
// construction time; Validate lets config loading fail fast with a clearer
// message before any collaborator is built.
func Validate(specs []types.NetworkSpecification) error {
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.NetworkIdentifier == "" {
			return fmt.Errorf("config: network specification missing networkIdentifier")
		}
		if seen[spec.NetworkIdentifier] {
			return fmt.Errorf("config: duplicate networkIdentifier %q", spec.NetworkIdentifier)
		}
		seen[spec.NetworkIdentifier] = true
	}
	return nil
}
