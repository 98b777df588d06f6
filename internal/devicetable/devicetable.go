// Package devicetable models the DeviceTable external-collaborator
// interface from spec.md §1/§3/§6: an immutable, process-wide enumeration of
// memory tiers. Actual topology discovery (hwloc, the graph/YAML layout
// parser) lives outside this module's scope; callers construct a
// DeviceTable once at Init() and this package never re-probes hardware.
package devicetable

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Tag identifies a memory tier class (spec.md §3).
type Tag int

const (
	DRAM Tag = iota
	HBM
	KnlHBM
	PersistentNVM
	DeviceAttached
)

func (t Tag) String() string {
	switch t {
	case DRAM:
		return "DRAM"
	case HBM:
		return "HBM"
	case KnlHBM:
		return "KNL_HBM"
	case PersistentNVM:
		return "PERSISTENT_NVM"
	case DeviceAttached:
		return "DEVICE_ATTACHED"
	default:
		return fmt.Sprintf("Tag(%d)", int(t))
	}
}

// TierData is the per-tag side information the C union `tier_data` carried
// (original_source/include/low/private/detect_devices*.h). Only one field
// is meaningful for a given Tag; the rest are zero.
type TierData struct {
	ClusterMode string `yaml:"cluster_mode,omitempty"` // HBM (KNL) cluster mode
	MountPoint  string `yaml:"mount_point,omitempty"`   // PERSISTENT_NVM mount
	PCIAddr     string `yaml:"pci_address,omitempty"`   // DEVICE_ATTACHED PCI BDF
}

// Device is a single tier entry, immutable after enumeration (spec.md §3).
type Device struct {
	Index       int      `yaml:"index"`
	Tag         Tag      `yaml:"-"`
	TagName     string   `yaml:"tag"`
	NumaNode    int      `yaml:"numa_node"` // -1 if not NUMA-backed
	PageSizeKiB int      `yaml:"page_size_kib"`
	TierData    TierData `yaml:"tier_data,omitempty"`
}

// DeviceTable is the immutable, indexed set of tiers returned by Init().
type DeviceTable struct {
	devices []Device
}

// New builds a DeviceTable from an already-discovered device list. The
// caller (the external topology collaborator) is responsible for filling in
// TagName consistently with Tag; New resolves Tag from TagName so either the
// enum or the string form may be set by the caller.
func New(devices []Device) (*DeviceTable, error) {
	dt := &DeviceTable{devices: make([]Device, len(devices))}
	copy(dt.devices, devices)
	for i := range dt.devices {
		d := &dt.devices[i]
		d.Index = i
		if d.TagName == "" {
			d.TagName = d.Tag.String()
		} else {
			tag, err := parseTag(d.TagName)
			if err != nil {
				return nil, err
			}
			d.Tag = tag
		}
		if d.PageSizeKiB <= 0 {
			return nil, fmt.Errorf("devicetable: device %d has non-positive page size", i)
		}
	}
	return dt, nil
}

func parseTag(s string) (Tag, error) {
	switch s {
	case "DRAM":
		return DRAM, nil
	case "HBM":
		return HBM, nil
	case "KNL_HBM":
		return KnlHBM, nil
	case "PERSISTENT_NVM":
		return PersistentNVM, nil
	case "DEVICE_ATTACHED":
		return DeviceAttached, nil
	default:
		return 0, fmt.Errorf("devicetable: unknown tier tag %q", s)
	}
}

// Len returns the number of enumerated tiers.
func (dt *DeviceTable) Len() int { return len(dt.devices) }

// Device returns the tier at index i. Panics on an out-of-range index, since
// index validity is established once at Init() and callers pass indices
// they themselves looked up.
func (dt *DeviceTable) Device(i int) Device {
	return dt.devices[i]
}

// All returns a copy of the enumerated tiers, in index order.
func (dt *DeviceTable) All() []Device {
	out := make([]Device, len(dt.devices))
	copy(out, dt.devices)
	return out
}

// PageSize returns the page size, in bytes, of the given device index.
func (dt *DeviceTable) PageSize(device int) int {
	return dt.devices[device].PageSizeKiB * 1024
}

// NumaNode returns the NUMA node backing the given device index, or -1 if
// the device is not NUMA-addressable.
func (dt *DeviceTable) NumaNode(device int) int {
	return dt.devices[device].NumaNode
}

// Dump renders the table as YAML for debug logs (SPEC_FULL.md ambient
// stack: diagnostics only, never the discovery path itself).
func (dt *DeviceTable) Dump() (string, error) {
	out, err := yaml.Marshal(dt.devices)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
