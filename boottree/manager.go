package boottree

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Logger is the logging surface the manager needs; core.Logger satisfies it.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
	Noticef(format string, args ...any)
	Warningf(format string, args ...any)
}

var (
	ErrDistroNotFound = errors.New("distro not found")
	ErrSystemNotFound = errors.New("system not found")
)

// Config carries the filesystem layout the manager works with.
type Config struct {
	// Root is the TFTP server directory the boot tree is written into.
	Root string
	// WebDir is where distro mirrors are served from over HTTP.
	WebDir string
	// BootloadersDir is the source directory of bootloader binaries
	// (pxelinux.0, grub binaries, ldlinux.c32...) copied into Root.
	BootloadersDir string
}

// Manager writes the TFTP boot tree: bootloaders, distro images, extra boot
// files and per-system PXE configuration.
type Manager struct {
	cfg    Config
	inv    *Inventory
	logger Logger
}

func NewManager(cfg Config, inv *Inventory, logger Logger) *Manager {
	return &Manager{cfg: cfg, inv: inv, logger: logger}
}

// Sync writes the whole tree. Per-distro copy failures (moved media, stale
// NFS mounts) are logged and skipped so one broken distro does not block the
// rest of the tree.
func (m *Manager) Sync() error {
	m.logger.Noticef("copying bootloaders")
	if err := m.copyBootloaders(); err != nil {
		return err
	}

	m.logger.Noticef("copying distros to tftp root")
	for i := range m.inv.Distros {
		distro := &m.inv.Distros[i]
		m.logger.Noticef("copying files for distro: %s", distro.Name)
		if err := m.copyDistroFiles(distro); err != nil {
			m.logger.Errorf("%v", err)
		}
	}

	if err := m.WriteBootFiles(); err != nil {
		return err
	}

	m.logger.Noticef("generating PXE configuration files")
	for i := range m.inv.Systems {
		system := &m.inv.Systems[i]
		if !system.Netboot {
			continue
		}
		if err := m.WritePXEConfig(system); err != nil {
			return err
		}
	}

	m.logger.Noticef("generating PXE menu structure")
	return m.WritePXEMenu()
}

// SyncSystems writes PXE configuration for the named systems only, then
// regenerates the menu. Unknown names are logged and skipped.
func (m *Manager) SyncSystems(names []string) error {
	systems := make([]*System, 0, len(names))
	for _, name := range names {
		system := m.inv.System(name)
		if system == nil {
			m.logger.Noticef("did not find any system named %s", name)
			continue
		}
		systems = append(systems, system)
	}

	for _, system := range systems {
		if err := m.WritePXEConfig(system); err != nil {
			return err
		}
	}

	m.logger.Noticef("generating PXE menu structure")
	return m.WritePXEMenu()
}

// AddDistro copies a single distro's files and boot files into the tree
// without touching the rest.
func (m *Manager) AddDistro(name string) error {
	distro := m.inv.Distro(name)
	if distro == nil {
		return fmt.Errorf("%w: %q", ErrDistroNotFound, name)
	}

	if err := m.copyDistroFiles(distro); err != nil {
		return err
	}
	return m.WriteBootFilesDistro(distro)
}

// WriteBootFiles copies the template-declared boot files of every distro.
func (m *Manager) WriteBootFiles() error {
	for i := range m.inv.Distros {
		if err := m.WriteBootFilesDistro(&m.inv.Distros[i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteBootFilesDistro renders and copies the boot_files entries of one
// distro. Source entries may be globs; glob matches keep their basename
// under the rendered target directory. Existing destinations are left
// untouched and individual copy failures are logged, not fatal.
func (m *Manager) WriteBootFilesDistro(distro *Distro) error {
	templar := m.distroTemplar(distro)

	m.logger.Noticef("processing boot files for distro: %s", distro.Name)
	for target, source := range distro.BootFiles {
		renderedTarget, err := templar.Render(target)
		if err != nil {
			return err
		}
		renderedSource, err := templar.Render(source)
		if err != nil {
			return err
		}

		matches, err := filepath.Glob(renderedSource)
		if err != nil {
			return fmt.Errorf("glob %q: %w", renderedSource, err)
		}

		for _, file := range matches {
			var filedst string
			if file == renderedSource {
				// not really a glob, copy as-is
				filedst = renderedTarget
			} else {
				targetDir := filepath.Dir(renderedTarget)
				filedst = filepath.Join(targetDir, filepath.Base(file))
				if err := os.MkdirAll(targetDir, 0o755); err != nil {
					m.logger.Errorf("failed to create %s for %s: %v", targetDir, distro.Name, err)
					continue
				}
			}

			if _, err := os.Stat(filedst); err == nil {
				continue
			}
			if err := copyFile(file, filedst); err != nil {
				m.logger.Errorf("failed to copy file %s to %s for %s: %v", file, filedst, distro.Name, err)
				continue
			}
			m.logger.Noticef("copied file %s to %s for %s", file, filedst, distro.Name)
		}
	}

	return nil
}

func (m *Manager) distroTemplar(distro *Distro) *Templar {
	return NewTemplar(map[string]any{
		"local_img_path": filepath.Join(m.cfg.Root, "images", distro.Name),
		"web_img_path":   filepath.Join(m.cfg.WebDir, "distro_mirror", distro.Name),
	})
}

// copyBootloaders copies every file under BootloadersDir into the root,
// preserving relative paths.
func (m *Manager) copyBootloaders() error {
	if m.cfg.BootloadersDir == "" {
		return nil
	}

	return filepath.WalkDir(m.cfg.BootloadersDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(m.cfg.BootloadersDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(m.cfg.Root, rel)

		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		return copyFile(path, dst)
	})
}

// copyDistroFiles copies kernel and initrd into images/<name>.
func (m *Manager) copyDistroFiles(distro *Distro) error {
	imageDir := filepath.Join(m.cfg.Root, "images", distro.Name)
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return fmt.Errorf("create image dir for %q: %w", distro.Name, err)
	}

	for _, src := range []string{distro.Kernel, distro.Initrd} {
		dst := filepath.Join(imageDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("copy distro file for %q: %w", distro.Name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w", dst, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %q: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	return out.Close()
}
