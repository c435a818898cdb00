package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateToLatestFromV1(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"tftp_root":      "/srv/tftpboot",
		"web_dir":        "/srv/www",
		"inventory_file": "/etc/bootlab/inventory.yml",
		"modules": map[string]any{
			"tftp":           "manage_in_tftpd",
			"authentication": "authn_denyall",
			"authorization":  "authz_allowall",
			"dhcp":           "managers.isc",
		},
	}

	migrated, err := MigrateToLatest(raw)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, migrated["schema_version"])

	mods := migrated["modules"].(map[string]any)
	assert.Equal(t, "managers.in_tftpd", mods["tftp"])
	assert.Equal(t, "authentication.denyall", mods["authentication"])
	assert.Equal(t, "authorization.allowall", mods["authorization"])
	// Already-namespaced names are untouched.
	assert.Equal(t, "managers.isc", mods["dhcp"])
}

func TestMigrateToLatestDropsUnknownKeys(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"tftp_root":       "/srv/tftpboot",
		"web_dir":         "/srv/www",
		"inventory_file":  "/etc/bootlab/inventory.yml",
		"obsolete_option": true,
	}

	migrated, err := MigrateToLatest(raw)
	require.NoError(t, err)
	assert.NotContains(t, migrated, "obsolete_option")
}

func TestMigrateToLatestAlreadyCurrent(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"schema_version": CurrentSchemaVersion,
		"modules": map[string]any{
			// A v1-style name in a v2 file is left alone: no migration runs.
			"tftp": "manage_in_tftpd",
		},
	}

	migrated, err := MigrateToLatest(raw)
	require.NoError(t, err)
	mods := migrated["modules"].(map[string]any)
	assert.Equal(t, "manage_in_tftpd", mods["tftp"])
}

func TestMigrateToLatestValidationFailure(t *testing.T) {
	t.Parallel()

	// A v1 map missing required fields fails the post-migration validation.
	raw := map[string]any{"tftp_root": "/srv/tftpboot"}
	_, err := MigrateToLatest(raw)
	require.ErrorIs(t, err, ErrSchemaValidation)
}

func TestMigrationRewritesModulesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modulesPath := filepath.Join(dir, "modules.conf")
	original := `# module bindings
[modules]
tftp = manage_in_tftpd
authentication = authn_denyall
; keep this comment
dhcp = managers.isc
`
	require.NoError(t, os.WriteFile(modulesPath, []byte(original), 0o600))

	raw := map[string]any{
		"tftp_root":      "/srv/tftpboot",
		"web_dir":        "/srv/www",
		"inventory_file": "/etc/bootlab/inventory.yml",
		"modules_file":   modulesPath,
	}
	_, err := MigrateToLatest(raw)
	require.NoError(t, err)

	data, err := os.ReadFile(modulesPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "tftp = managers.in_tftpd")
	assert.Contains(t, content, "authentication = authentication.denyall")
	assert.Contains(t, content, "dhcp = managers.isc")
	assert.Contains(t, content, "# module bindings")
	assert.Contains(t, content, "; keep this comment")

	// File mode survives the rewrite.
	info, err := os.Stat(modulesPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode())
}

func TestMigrationMissingModulesFile(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"tftp_root":      "/srv/tftpboot",
		"web_dir":        "/srv/www",
		"inventory_file": "/etc/bootlab/inventory.yml",
		"modules_file":   filepath.Join(t.TempDir(), "gone.conf"),
	}
	_, err := MigrateToLatest(raw)
	require.NoError(t, err)
}

func TestRenameModule(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "managers.tftp", renameModule("manage_tftp"))
	assert.Equal(t, "authentication.pam", renameModule("authn_pam"))
	assert.Equal(t, "authorization.ownership", renameModule("authz_ownership"))
	assert.Equal(t, "managers.tftp", renameModule("managers.tftp"))
	assert.Equal(t, "sync_post_restart", renameModule("sync_post_restart"))
}

func TestSchemaVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, schemaVersion(map[string]any{"schema_version": 2}))
	assert.Equal(t, 2, schemaVersion(map[string]any{"schema_version": float64(2)}))
	assert.Equal(t, 1, schemaVersion(map[string]any{}))
	assert.Equal(t, 1, schemaVersion(map[string]any{"schema_version": "two"}))
}
