package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/skosovsky/promptsig/adapter"
	"github.com/skosovsky/promptsig/fileregistry"
	"github.com/skosovsky/promptsig/manifest"
)

// loadManifest resolves arg as a file path or a registry name and applies
// --state when set.
func loadManifest(ctx context.Context, arg string) (*manifest.Manifest, error) {
	var (
		m   *manifest.Manifest
		err error
	)
	switch ext := filepath.Ext(arg); ext {
	case ".yaml", ".yml":
		m, err = manifest.ParseFile(arg)
	default:
		m, err = fileregistry.New(registry, fileregistry.WithEnv(env)).Get(ctx, arg)
	}
	if err != nil {
		return nil, err
	}
	if state != "" {
		st, err := manifest.ReadStateFile(state)
		if err != nil {
			return nil, err
		}
		m.Signature = m.Signature.LoadState(st)
		logger.Debug("state loaded", zap.String("path", state))
	}
	logger.Debug("manifest loaded", zap.String("manifest", arg), zap.String("signature", m.Signature.String()))
	return m, nil
}

// parseInputs merges --inputs file values with key=value pairs; pairs win.
func parseInputs(file string, pairs []string) (map[string]any, error) {
	inputs := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file) // #nosec G304 -- path comes from the command line
		if err != nil {
			return nil, fmt.Errorf("read inputs: %w", err)
		}
		if err := yaml.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("decode inputs %s: %w", file, err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --input %q, want key=value", p)
		}
		inputs[k] = v
	}
	return inputs, nil
}

// pickAdapter returns the adapter named by flag, else by the manifest, else chat.
func pickAdapter(flag string, m *manifest.Manifest) (adapter.Adapter, error) {
	name := flag
	if name == "" {
		name = m.Adapter
	}
	switch name {
	case "", "chat":
		return adapter.NewChat(), nil
	case "json":
		return adapter.NewJSON(), nil
	default:
		return nil, fmt.Errorf("unknown adapter %q, want chat or json", name)
	}
}
