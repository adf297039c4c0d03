package inventory

import (
	"context"

	"github.com/frudas24/farmdeck/internal/provider"
	"github.com/pkg/errors"
)

// Lister lists the devices a provider knows about.
type Lister interface {
	Devices(ctx context.Context) ([]provider.DeviceInfo, error)
}

// Sync replaces reg with the provider's device list and, when path is set, persists it.
func Sync(ctx context.Context, l Lister, reg *Registry, path string) ([]Device, error) {
	infos, err := l.Devices(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list provider devices")
	}
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			UDID:      info.UDID,
			Name:      info.Name,
			OS:        info.OS,
			Screen:    info.Screen,
			StreamURL: info.StreamURL,
		})
	}
	if err := validate(devices); err != nil {
		return nil, errors.Wrap(err, "provider device list")
	}
	if path != "" {
		if err := Save(path, devices); err != nil {
			return nil, err
		}
	}
	reg.Replace(devices)
	return devices, nil
}
