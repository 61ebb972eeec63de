// Package sandbox builds the per-worker overlay root and per-submission
// process isolation the invoker runs untrusted code under: a tmpfs-backed
// overlayfs image, pivoted into as the new root, inside namespaces
// unshared and uid/gid-mapped so the sandboxed process believes itself
// to be root while holding no privilege on the host (spec §4, grounded
// on original_source/src/image/package.rs).
package sandbox

import (
	"os"

	"gopkg.in/yaml.v3"
)

// BoundFile is a read-only file the host makes visible inside the
// sandbox at a fixed path, such as a compiler toolchain binary.
type BoundFile struct {
	HostPath    string `yaml:"host_path"`
	SandboxPath string `yaml:"sandbox_path"`
}

// Config describes the resource limits and file bindings of one
// worker's sandbox (spec §4, "SandboxConfig").
type Config struct {
	// MaxSizeBytes bounds the tmpfs backing the worker's overlay upper
	// directory.
	MaxSizeBytes uint64 `yaml:"max_size_bytes"`
	// MaxInodes bounds the number of inodes the same tmpfs may hold.
	MaxInodes uint64 `yaml:"max_inodes"`
	// BoundFiles lists host files bind-mounted read-only into the
	// overlay before it is used.
	BoundFiles []BoundFile `yaml:"bound_files"`
}

// LoadConfig reads a YAML-encoded Config from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
