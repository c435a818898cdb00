package boottree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

const pxeDir = "pxelinux.cfg"

// Per-system pxelinux configuration. The kernel options line merges distro
// options first, system options last so a system can override its distro.
const pxeConfigTemplate = `DEFAULT {{ .Distro }}

LABEL {{ .Distro }}
    KERNEL /images/{{ .Distro }}/{{ .Kernel }}
    APPEND initrd=/images/{{ .Distro }}/{{ .Initrd }}{{ if .Options }} {{ .Options }}{{ end }}
`

const pxeMenuTemplate = `DEFAULT menu.c32
PROMPT 0
MENU TITLE bootlab | netboot menu
TIMEOUT 200
TOTALTIMEOUT 6000
ONTIMEOUT local

LABEL local
    MENU LABEL (local)
    MENU DEFAULT
    LOCALBOOT -1
{{ range .Entries }}
LABEL {{ .Distro }}
    KERNEL /images/{{ .Distro }}/{{ .Kernel }}
    APPEND initrd=/images/{{ .Distro }}/{{ .Initrd }}{{ if .Options }} {{ .Options }}{{ end }}
{{ end }}`

var (
	pxeConfigTmpl = template.Must(template.New("pxe-config").Parse(pxeConfigTemplate))
	pxeMenuTmpl   = template.Must(template.New("pxe-menu").Parse(pxeMenuTemplate))
)

type pxeEntry struct {
	Distro  string
	Kernel  string
	Initrd  string
	Options string
}

// PXEFileName returns the pxelinux config file name for a MAC address:
// the "01-" ARP type prefix plus the dash-separated lowercase MAC.
func PXEFileName(mac string) string {
	mac = strings.ToLower(strings.ReplaceAll(mac, ":", "-"))
	return "01-" + mac
}

// WritePXEConfig writes one pxelinux config file per interface of the
// system.
func (m *Manager) WritePXEConfig(system *System) error {
	distro := m.inv.Distro(system.Distro)
	if distro == nil {
		return fmt.Errorf("%w: %q (system %q)", ErrDistroNotFound, system.Distro, system.Name)
	}

	entry := pxeEntry{
		Distro:  distro.Name,
		Kernel:  filepath.Base(distro.Kernel),
		Initrd:  filepath.Base(distro.Initrd),
		Options: mergeKernelOptions(distro.KernelOptions, system.KernelOptions),
	}

	for _, iface := range system.Interfaces {
		path := filepath.Join(m.cfg.Root, pxeDir, PXEFileName(iface.MAC))
		if err := renderToFile(pxeConfigTmpl, entry, path); err != nil {
			return fmt.Errorf("write pxe config for %q: %w", system.Name, err)
		}
		m.logger.Debugf("wrote %s for system %s", path, system.Name)
	}

	return nil
}

// WritePXEMenu regenerates pxelinux.cfg/default with one entry per distro,
// sorted by name for stable output.
func (m *Manager) WritePXEMenu() error {
	entries := make([]pxeEntry, 0, len(m.inv.Distros))
	for i := range m.inv.Distros {
		distro := &m.inv.Distros[i]
		entries = append(entries, pxeEntry{
			Distro:  distro.Name,
			Kernel:  filepath.Base(distro.Kernel),
			Initrd:  filepath.Base(distro.Initrd),
			Options: distro.KernelOptions,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Distro < entries[j].Distro })

	path := filepath.Join(m.cfg.Root, pxeDir, "default")
	if err := renderToFile(pxeMenuTmpl, struct{ Entries []pxeEntry }{entries}, path); err != nil {
		return fmt.Errorf("write pxe menu: %w", err)
	}
	return nil
}

// mergeKernelOptions joins distro options and system options, system last so
// later duplicates win at boot.
func mergeKernelOptions(distroOpts, systemOpts string) string {
	switch {
	case distroOpts == "":
		return systemOpts
	case systemOpts == "":
		return distroOpts
	default:
		return distroOpts + " " + systemOpts
	}
}

func renderToFile(tmpl *template.Template, data any, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}

	if err := tmpl.Execute(f, data); err != nil {
		f.Close()
		return fmt.Errorf("render %q: %w", path, err)
	}
	return f.Close()
}
