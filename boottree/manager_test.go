package boottree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles creates files with their own names as content under dir.
func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	}
}

func newSyncFixture(t *testing.T) (*Manager, Config) {
	t.Helper()

	base := t.TempDir()
	cfg := Config{
		Root:           filepath.Join(base, "tftpboot"),
		WebDir:         filepath.Join(base, "www"),
		BootloadersDir: filepath.Join(base, "bootloaders"),
	}
	distroSrc := filepath.Join(base, "distros", "rocky9")

	require.NoError(t, os.MkdirAll(cfg.BootloadersDir, 0o755))
	writeFiles(t, cfg.BootloadersDir, "pxelinux.0", "ldlinux.c32", filepath.Join("grub", "grubx64.efi"))
	writeFiles(t, distroSrc, "vmlinuz", "initrd.img")

	inv := &Inventory{
		Distros: []Distro{{
			Name:   "rocky9",
			Kernel: filepath.Join(distroSrc, "vmlinuz"),
			Initrd: filepath.Join(distroSrc, "initrd.img"),
		}},
		Systems: []System{
			{
				Name:       "node1",
				Distro:     "rocky9",
				Netboot:    true,
				Interfaces: []Interface{{Name: "eth0", MAC: "aa:bb:cc:dd:ee:01"}},
			},
			{
				Name:       "node2",
				Distro:     "rocky9",
				Netboot:    false,
				Interfaces: []Interface{{Name: "eth0", MAC: "aa:bb:cc:dd:ee:02"}},
			},
		},
	}
	require.NoError(t, inv.Validate())

	return NewManager(cfg, inv, &testLogger{}), cfg
}

func TestManagerSync(t *testing.T) {
	t.Parallel()

	m, cfg := newSyncFixture(t)
	require.NoError(t, m.Sync())

	// Bootloaders copied preserving relative paths.
	assert.FileExists(t, filepath.Join(cfg.Root, "pxelinux.0"))
	assert.FileExists(t, filepath.Join(cfg.Root, "ldlinux.c32"))
	assert.FileExists(t, filepath.Join(cfg.Root, "grub", "grubx64.efi"))

	// Distro images under images/<name>.
	assert.FileExists(t, filepath.Join(cfg.Root, "images", "rocky9", "vmlinuz"))
	assert.FileExists(t, filepath.Join(cfg.Root, "images", "rocky9", "initrd.img"))

	// PXE config only for netboot-enabled systems, plus the menu.
	assert.FileExists(t, filepath.Join(cfg.Root, "pxelinux.cfg", "01-aa-bb-cc-dd-ee-01"))
	assert.NoFileExists(t, filepath.Join(cfg.Root, "pxelinux.cfg", "01-aa-bb-cc-dd-ee-02"))
	assert.FileExists(t, filepath.Join(cfg.Root, "pxelinux.cfg", "default"))
}

func TestManagerSyncSkipsBrokenDistro(t *testing.T) {
	t.Parallel()

	m, cfg := newSyncFixture(t)
	m.inv.Distros = append(m.inv.Distros, Distro{
		Name:   "broken",
		Kernel: filepath.Join(t.TempDir(), "missing-vmlinuz"),
		Initrd: filepath.Join(t.TempDir(), "missing-initrd"),
	})
	require.NoError(t, m.inv.Validate())

	// A distro whose media is gone is logged and skipped.
	require.NoError(t, m.Sync())
	assert.FileExists(t, filepath.Join(cfg.Root, "images", "rocky9", "vmlinuz"))
}

func TestManagerSyncSystems(t *testing.T) {
	t.Parallel()

	m, cfg := newSyncFixture(t)

	// Unknown names are skipped, known ones get their config written.
	require.NoError(t, m.SyncSystems([]string{"node1", "ghost"}))
	assert.FileExists(t, filepath.Join(cfg.Root, "pxelinux.cfg", "01-aa-bb-cc-dd-ee-01"))
	assert.FileExists(t, filepath.Join(cfg.Root, "pxelinux.cfg", "default"))
}

func TestManagerAddDistro(t *testing.T) {
	t.Parallel()

	m, cfg := newSyncFixture(t)

	require.NoError(t, m.AddDistro("rocky9"))
	assert.FileExists(t, filepath.Join(cfg.Root, "images", "rocky9", "vmlinuz"))

	err := m.AddDistro("ghost")
	require.ErrorIs(t, err, ErrDistroNotFound)
}

func TestWriteBootFilesDistro(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	src := filepath.Join(base, "src")
	writeFiles(t, src, "mboot.c32", filepath.Join("efi", "boot64.efi"), filepath.Join("efi", "boot32.efi"))

	cfg := Config{Root: filepath.Join(base, "tftpboot"), WebDir: filepath.Join(base, "www")}
	inv := &Inventory{
		Distros: []Distro{{
			Name:   "esxi8",
			Kernel: filepath.Join(src, "mboot.c32"),
			Initrd: filepath.Join(src, "mboot.c32"),
			BootFiles: map[string]string{
				"{{.local_img_path}}/mboot.c32":   filepath.Join(src, "mboot.c32"),
				"{{.local_img_path}}/efi/ignored": filepath.Join(src, "efi", "*.efi"),
			},
		}},
	}
	require.NoError(t, inv.Validate())
	m := NewManager(cfg, inv, &testLogger{})

	require.NoError(t, m.WriteBootFiles())

	imgDir := filepath.Join(cfg.Root, "images", "esxi8")
	// Plain source copied to the rendered target path.
	assert.FileExists(t, filepath.Join(imgDir, "mboot.c32"))
	// Glob matches keep their basename under the target directory.
	assert.FileExists(t, filepath.Join(imgDir, "efi", "boot64.efi"))
	assert.FileExists(t, filepath.Join(imgDir, "efi", "boot32.efi"))
}

func TestWriteBootFilesDistroKeepsExisting(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	src := filepath.Join(base, "src")
	writeFiles(t, src, "mboot.c32")

	cfg := Config{Root: filepath.Join(base, "tftpboot"), WebDir: filepath.Join(base, "www")}
	distro := &Distro{
		Name:   "esxi8",
		Kernel: filepath.Join(src, "mboot.c32"),
		Initrd: filepath.Join(src, "mboot.c32"),
		BootFiles: map[string]string{
			"{{.local_img_path}}/mboot.c32": filepath.Join(src, "mboot.c32"),
		},
	}
	inv := &Inventory{Distros: []Distro{*distro}}
	require.NoError(t, inv.Validate())
	m := NewManager(cfg, inv, &testLogger{})

	dst := filepath.Join(cfg.Root, "images", "esxi8", "mboot.c32")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, []byte("pre-existing"), 0o644))

	require.NoError(t, m.WriteBootFiles())

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "pre-existing", string(data))
}

func TestWriteBootFilesDistroUnresolvedVariable(t *testing.T) {
	t.Parallel()

	cfg := Config{Root: t.TempDir()}
	inv := &Inventory{
		Distros: []Distro{{
			Name:   "esxi8",
			Kernel: "/k",
			Initrd: "/i",
			BootFiles: map[string]string{
				"{{.no_such_var}}/mboot.c32": "/src/mboot.c32",
			},
		}},
	}
	require.NoError(t, inv.Validate())
	m := NewManager(cfg, inv, &testLogger{})

	require.Error(t, m.WriteBootFiles())
}
