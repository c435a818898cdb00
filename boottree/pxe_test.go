package boottree

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (*testLogger) Debugf(string, ...any)   {}
func (*testLogger) Errorf(string, ...any)   {}
func (*testLogger) Noticef(string, ...any)  {}
func (*testLogger) Warningf(string, ...any) {}

func TestPXEFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "01-aa-bb-cc-dd-ee-01", PXEFileName("AA:BB:CC:DD:EE:01"))
	assert.Equal(t, "01-aa-bb-cc-dd-ee-01", PXEFileName("aa:bb:cc:dd:ee:01"))
	assert.Equal(t, "01-aa-bb-cc-dd-ee-01", PXEFileName("aa-bb-cc-dd-ee-01"))
}

func newPXETestManager(t *testing.T, inv *Inventory) (*Manager, string) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, inv.Validate())
	return NewManager(Config{Root: root}, inv, &testLogger{}), root
}

func TestWritePXEConfig(t *testing.T) {
	t.Parallel()

	inv := &Inventory{
		Distros: []Distro{{
			Name:          "rocky9",
			Kernel:        "/srv/distros/rocky9/vmlinuz",
			Initrd:        "/srv/distros/rocky9/initrd.img",
			KernelOptions: "console=ttyS0",
		}},
		Systems: []System{{
			Name:          "node1",
			Distro:        "rocky9",
			Netboot:       true,
			KernelOptions: "inst.ks=http://lab/ks.cfg",
			Interfaces: []Interface{
				{Name: "eth0", MAC: "AA:BB:CC:DD:EE:01"},
				{Name: "eth1", MAC: "aa:bb:cc:dd:ee:02"},
			},
		}},
	}
	m, root := newPXETestManager(t, inv)

	require.NoError(t, m.WritePXEConfig(inv.System("node1")))

	// One file per interface.
	for _, name := range []string{"01-aa-bb-cc-dd-ee-01", "01-aa-bb-cc-dd-ee-02"} {
		data, err := os.ReadFile(filepath.Join(root, "pxelinux.cfg", name))
		require.NoError(t, err)

		content := string(data)
		assert.Contains(t, content, "DEFAULT rocky9")
		assert.Contains(t, content, "KERNEL /images/rocky9/vmlinuz")
		assert.Contains(t, content, "initrd=/images/rocky9/initrd.img")
		// Distro options come first, system options last.
		assert.Contains(t, content, "console=ttyS0 inst.ks=http://lab/ks.cfg")
	}
}

func TestWritePXEConfigUnknownDistro(t *testing.T) {
	t.Parallel()

	inv := &Inventory{
		Distros: []Distro{{Name: "rocky9", Kernel: "/k", Initrd: "/i"}},
	}
	m, _ := newPXETestManager(t, inv)

	system := &System{
		Name:       "node1",
		Distro:     "ghost",
		Interfaces: []Interface{{Name: "eth0", MAC: "aa:bb:cc:dd:ee:01"}},
	}
	err := m.WritePXEConfig(system)
	require.ErrorIs(t, err, ErrDistroNotFound)
}

func TestWritePXEMenu(t *testing.T) {
	t.Parallel()

	inv := &Inventory{
		Distros: []Distro{
			{Name: "ubuntu2404", Kernel: "/u/vmlinuz", Initrd: "/u/initrd"},
			{Name: "rocky9", Kernel: "/r/vmlinuz", Initrd: "/r/initrd.img", KernelOptions: "quiet"},
		},
	}
	m, root := newPXETestManager(t, inv)

	require.NoError(t, m.WritePXEMenu())

	data, err := os.ReadFile(filepath.Join(root, "pxelinux.cfg", "default"))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "DEFAULT menu.c32")
	assert.Contains(t, content, "LABEL local")
	assert.Contains(t, content, "LABEL rocky9")
	assert.Contains(t, content, "LABEL ubuntu2404")
	assert.Contains(t, content, "APPEND initrd=/images/rocky9/initrd.img quiet")

	// Entries are sorted by distro name.
	assert.Less(t, strings.Index(content, "LABEL rocky9"), strings.Index(content, "LABEL ubuntu2404"))
}

func TestMergeKernelOptions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", mergeKernelOptions("", ""))
	assert.Equal(t, "a=1", mergeKernelOptions("a=1", ""))
	assert.Equal(t, "b=2", mergeKernelOptions("", "b=2"))
	assert.Equal(t, "a=1 b=2", mergeKernelOptions("a=1", "b=2"))
}
