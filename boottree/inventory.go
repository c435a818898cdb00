package boottree

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Distro describes a bootable distribution: the kernel/initrd pair copied
// under images/<name> in the TFTP root, plus optional extra boot files.
type Distro struct {
	Name          string `yaml:"name" validate:"required"`
	Arch          string `yaml:"arch" validate:"omitempty,oneof=x86_64 aarch64 ppc64le s390x"`
	Kernel        string `yaml:"kernel" validate:"required"`
	Initrd        string `yaml:"initrd" validate:"required"`
	KernelOptions string `yaml:"kernel_options"`

	// BootFiles maps target path templates to source path templates. Both
	// sides may reference {{.local_img_path}} and {{.web_img_path}}; the
	// source may be a glob. Used for extra per-distro payloads such as
	// vmware boot files.
	BootFiles map[string]string `yaml:"boot_files"`
}

// Interface is a single NIC of a system; the MAC determines the name of the
// per-system PXE configuration file.
type Interface struct {
	Name string `yaml:"name" validate:"required"`
	MAC  string `yaml:"mac" validate:"required,mac"`
}

// System is a provisionable machine bound to a distro.
type System struct {
	Name          string      `yaml:"name" validate:"required"`
	Distro        string      `yaml:"distro" validate:"required"`
	Netboot       bool        `yaml:"netboot"`
	KernelOptions string      `yaml:"kernel_options"`
	Interfaces    []Interface `yaml:"interfaces" validate:"required,min=1,dive"`
}

// Inventory is the set of distros and systems a boot tree is built from.
type Inventory struct {
	Distros []Distro `yaml:"distros" validate:"dive"`
	Systems []System `yaml:"systems" validate:"dive"`

	distrosByName map[string]*Distro
	systemsByName map[string]*System
}

// LoadInventory reads and validates an inventory YAML file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory %q: %w", path, err)
	}

	inv := &Inventory{}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("parse inventory %q: %w", path, err)
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Validate checks field constraints and referential integrity, then builds
// the lookup indexes.
func (i *Inventory) Validate() error {
	if err := validator.New().Struct(i); err != nil {
		return fmt.Errorf("validate inventory: %w", err)
	}

	i.distrosByName = make(map[string]*Distro, len(i.Distros))
	for idx := range i.Distros {
		d := &i.Distros[idx]
		if _, dup := i.distrosByName[d.Name]; dup {
			return fmt.Errorf("duplicate distro %q", d.Name)
		}
		i.distrosByName[d.Name] = d
	}

	i.systemsByName = make(map[string]*System, len(i.Systems))
	for idx := range i.Systems {
		s := &i.Systems[idx]
		if _, dup := i.systemsByName[s.Name]; dup {
			return fmt.Errorf("duplicate system %q", s.Name)
		}
		if _, ok := i.distrosByName[s.Distro]; !ok {
			return fmt.Errorf("system %q references unknown distro %q", s.Name, s.Distro)
		}
		i.systemsByName[s.Name] = s
	}

	return nil
}

// Distro returns the distro with the given name, or nil.
func (i *Inventory) Distro(name string) *Distro {
	return i.distrosByName[name]
}

// System returns the system with the given name, or nil.
func (i *Inventory) System(name string) *System {
	return i.systemsByName[name]
}
