package settings

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// CurrentSchemaVersion is the schema version Load migrates to.
const CurrentSchemaVersion = 2

var (
	ErrSchemaValidation = errors.New("settings schema validation failed")
	ErrMigrationFailed  = errors.New("settings migration failed")
)

// Migration upgrades a raw settings map from the previous schema version to
// Version(). Validate checks the map against the target schema; Normalize
// drops keys the target schema does not know about.
type Migration interface {
	Version() int
	Validate(raw map[string]any) bool
	Normalize(raw map[string]any) map[string]any
	Migrate(raw map[string]any) (map[string]any, error)
}

var migrations []Migration

func register(m Migration) {
	migrations = append(migrations, m)
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version() < migrations[j].Version()
	})
}

func init() {
	register(&migrationV2{})
}

// MigrateToLatest applies every registered migration above the map's current
// schema_version, in order, validating after each step.
func MigrateToLatest(raw map[string]any) (map[string]any, error) {
	current := schemaVersion(raw)
	for _, m := range migrations {
		if m.Version() <= current {
			continue
		}
		migrated, err := m.Migrate(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: to version %d: %v", ErrMigrationFailed, m.Version(), err)
		}
		// Stamp the version before validating; legacy files have no
		// schema_version and the target schema requires one.
		migrated["schema_version"] = m.Version()
		migrated = m.Normalize(migrated)
		if !m.Validate(migrated) {
			return nil, fmt.Errorf("%w: after migration to version %d", ErrSchemaValidation, m.Version())
		}
		raw = migrated
		current = m.Version()
	}
	return raw, nil
}

func schemaVersion(raw map[string]any) int {
	switch v := raw["schema_version"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 1
	}
}

// modulePrefixRenames maps legacy module name prefixes to their namespaced
// replacements.
var modulePrefixRenames = []struct{ old, new string }{
	{"authn_", "authentication."},
	{"authz_", "authorization."},
	{"manage_", "managers."},
}

func renameModule(name string) string {
	for _, r := range modulePrefixRenames {
		if strings.HasPrefix(name, r.old) {
			return r.new + strings.TrimPrefix(name, r.old)
		}
	}
	return name
}

// migrationV2 renames module bindings from the flat legacy scheme
// (manage_tftp, authn_denyall) to the namespaced one (managers.tftp,
// authentication.denyall), both in the modules map and in the modules file
// if one is configured.
type migrationV2 struct{}

func (migrationV2) Version() int { return 2 }

func (migrationV2) Validate(raw map[string]any) bool {
	if _, err := decode(raw); err != nil {
		return false
	}
	if mods, ok := raw["modules"].(map[string]any); ok {
		for _, v := range mods {
			name, ok := v.(string)
			if !ok {
				return false
			}
			for _, r := range modulePrefixRenames {
				if strings.HasPrefix(name, r.old) {
					return false
				}
			}
		}
	}
	return true
}

func (migrationV2) Normalize(raw map[string]any) map[string]any {
	known := map[string]bool{
		"schema_version": true, "tftp_root": true, "web_dir": true,
		"bootloaders_dir": true, "inventory_file": true,
		"modules_file": true, "modules": true, "next_server": true,
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if known[k] {
			out[k] = v
		}
	}
	return out
}

func (migrationV2) Migrate(raw map[string]any) (map[string]any, error) {
	if mods, ok := raw["modules"].(map[string]any); ok {
		for k, v := range mods {
			if name, ok := v.(string); ok {
				mods[k] = renameModule(name)
			}
		}
	}

	if path, ok := raw["modules_file"].(string); ok && path != "" {
		if err := rewriteModulesFile(path); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// rewriteModulesFile rewrites legacy module names in an ini-style modules
// file in place. Comment lines are left alone.
func rewriteModulesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read modules file %q: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		renamed := renameModule(strings.TrimSpace(value))
		if renamed != strings.TrimSpace(value) {
			lines[i] = strings.TrimRight(key, " ") + " = " + renamed
			changed = true
		}
	}
	if !changed {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat modules file %q: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), info.Mode()); err != nil {
		return fmt.Errorf("rewrite modules file %q: %w", path, err)
	}
	return nil
}
