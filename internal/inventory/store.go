package inventory

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type inventoryFile struct {
	Devices []Device `yaml:"devices"`
}

// Load reads the inventory from disk. Missing files return an empty list.
func Load(path string) ([]Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read inventory %s", path)
	}
	var f inventoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parse inventory %s", path)
	}
	if err := validate(f.Devices); err != nil {
		return nil, errors.Wrapf(err, "inventory %s", path)
	}
	return f.Devices, nil
}

// Save writes the inventory to disk, creating parent directories as needed.
func Save(path string, devices []Device) error {
	if err := validate(devices); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create inventory dir")
	}
	data, err := yaml.Marshal(inventoryFile{Devices: devices})
	if err != nil {
		return errors.Wrap(err, "encode inventory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write inventory")
	}
	return errors.Wrap(os.Rename(tmp, path), "replace inventory")
}

// validate rejects entries without a udid and duplicate udids.
// Screen strings are checked when a view opens, not here.
func validate(devices []Device) error {
	seen := make(map[string]struct{}, len(devices))
	for i, d := range devices {
		id := strings.TrimSpace(d.UDID)
		if id == "" {
			return errors.Errorf("device %d has no udid", i)
		}
		if _, ok := seen[id]; ok {
			return errors.Errorf("duplicate udid %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
