// Package settings holds the bootlab settings file: a YAML document carrying
// a schema version, validated per version and migrated step by step to the
// current schema on load.
package settings

import (
	"fmt"
	"os"

	defaults "github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Settings is the current (latest schema) shape of the settings file.
type Settings struct {
	SchemaVersion int `yaml:"schema_version" validate:"required,min=1"`

	// TFTPRoot is the directory the boot tree is synced into.
	TFTPRoot string `yaml:"tftp_root" validate:"required"`
	// WebDir is the directory distro mirrors are served from over HTTP.
	WebDir string `yaml:"web_dir" validate:"required"`
	// BootloadersDir is the source of bootloader binaries copied into the
	// TFTP root on sync. Optional: empty skips the bootloader copy.
	BootloadersDir string `yaml:"bootloaders_dir"`
	// InventoryFile is the YAML file declaring distros and systems.
	InventoryFile string `yaml:"inventory_file" validate:"required"`

	// ModulesFile is the legacy module binding file rewritten by the V2
	// migration. Optional.
	ModulesFile string `yaml:"modules_file"`
	// Modules binds concerns to module names, e.g. "tftp" -> "managers.tftp".
	Modules map[string]string `yaml:"modules"`

	// NextServer is the address handed to PXE clients as the boot server.
	NextServer string `yaml:"next_server" validate:"omitempty,ip"`
}

func (s *Settings) SetDefaults() {
	if s.Modules == nil {
		s.Modules = map[string]string{"tftp": "managers.tftp"}
	}
}

var validate = validator.New()

// Load reads a settings file, migrates it to the current schema version and
// returns the validated settings. The file on disk is not rewritten; use
// Save for that.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings %q: %w", path, err)
	}

	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse settings %q: %w", path, err)
	}

	migrated, err := MigrateToLatest(raw)
	if err != nil {
		return nil, err
	}

	return decode(migrated)
}

// Save writes the settings back as YAML.
func Save(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %q: %w", path, err)
	}
	return nil
}

// decode converts a raw settings map into a validated Settings struct with
// defaults applied.
func decode(raw map[string]any) (*Settings, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("remarshal settings: %w", err)
	}

	s := &Settings{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	if err := defaults.Set(s); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}
	return s, nil
}
