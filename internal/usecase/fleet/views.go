package fleet

import (
	"device-console/internal/domain/device"
)

// VisibleDevices is the device set with the sentinel placeholder filtered
// out. Every derived view and count starts from it.
func (s *Service) VisibleDevices() []device.Device {
	all := s.store.Devices()
	visible := make([]device.Device, 0, len(all))
	for _, d := range all {
		if d.IsSentinel() {
			continue
		}
		visible = append(visible, d)
	}
	return visible
}

// DeviceViews joins each visible device with its derived connection and
// power state.
func (s *Service) DeviceViews() []DeviceView {
	devices := s.VisibleDevices()
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		powered, _ := s.store.PowerFor(d.ID)
		views = append(views, DeviceView{
			Device:     d,
			Connection: s.store.ConnectionStatusFor(d),
			Powered:    powered,
		})
	}
	return views
}

// DeviceView resolves a single device by any alias.
func (s *Service) DeviceView(idOrSerial string) (DeviceView, error) {
	dev, found := s.store.FindDevice(idOrSerial)
	if !found || dev.IsSentinel() {
		return DeviceView{}, device.ErrDeviceNotFound
	}
	powered, _ := s.store.PowerFor(dev.ID)
	return DeviceView{
		Device:     dev,
		Connection: s.store.ConnectionStatusFor(dev),
		Powered:    powered,
	}, nil
}

// GroupViews returns the stored groups, sentinel members removed, with the
// synthetic all-devices group prepended. The all group is derived on every
// read and is never stored.
func (s *Service) GroupViews() []GroupView {
	visible := s.VisibleDevices()
	stored := s.store.Groups()

	views := make([]GroupView, 0, len(stored)+1)
	views = append(views, GroupView{
		DeviceGroup: device.DeviceGroup{
			ID:      device.GroupAll,
			Name:    "All devices",
			Devices: visible,
		},
		DeviceCount: len(visible),
	})

	for _, g := range stored {
		members := make([]device.Device, 0, len(g.Devices))
		for _, m := range g.Devices {
			if m.IsSentinel() {
				continue
			}
			members = append(members, m)
		}
		g.Devices = members
		views = append(views, GroupView{DeviceGroup: g, DeviceCount: len(members)})
	}

	return views
}

// Logs returns a device's stored history, newest first. limit <= 0 means
// the full retained window.
func (s *Service) Logs(idOrSerial string, limit int) ([]device.DeviceLog, error) {
	dev, found := s.store.FindDevice(idOrSerial)
	if !found {
		return nil, device.ErrDeviceNotFound
	}
	return s.store.Logs(dev.Key(), limit), nil
}

// Stats summarizes the visible fleet.
func (s *Service) Stats() FleetStats {
	stats := FleetStats{
		Groups: len(s.store.Groups()),
	}

	for _, view := range s.DeviceViews() {
		stats.Total++
		if view.Status == device.StatusError {
			stats.Errored++
		}
		switch view.Connection {
		case device.StatusOnline:
			stats.Online++
		case device.StatusOffline:
			stats.Offline++
		}
		if view.Powered {
			stats.Powered++
		}
	}

	return stats
}

// ChannelKeys lists every alias of every known device, the announcement set
// for the realtime session. The sentinel is excluded from views but still
// announced: its events must resolve so they can be stored and filtered,
// rather than treated as unknown-device drops.
func (s *Service) ChannelKeys() []string {
	devices := s.store.Devices()
	keys := make([]string, 0, len(devices))
	for _, d := range devices {
		keys = append(keys, d.Aliases()...)
	}
	return keys
}
