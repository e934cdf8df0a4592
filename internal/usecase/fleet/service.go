// Package fleet implements the device-state reconciliation engine: it merges
// the REST snapshot, per-device status polls and preloaded log history into
// the shared state that the realtime processor then keeps current.
package fleet

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"device-console/internal/backend"
	"device-console/internal/domain/device"
	"device-console/internal/state"
	apperrors "device-console/pkg/errors"
)

// Phase names one step of the load cycle. Only the device-list fetch is
// fatal; every later step is best-effort.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseLoadingDevices   Phase = "loading_devices"
	PhaseRefreshingStatus Phase = "refreshing_status"
	PhasePreloadingLogs   Phase = "preloading_logs"
	PhaseReady            Phase = "ready"
	PhaseError            Phase = "error"
)

type Service struct {
	backend *backend.Client
	store   *state.Store
	logger  *zap.Logger

	// announce re-subscribes realtime channels after the device list
	// changes. Installed by the composition root once the session exists.
	announce func()

	logLimit int

	mu      sync.Mutex
	phase   Phase
	lastErr string
}

func NewService(client *backend.Client, store *state.Store, logLimit int, logger *zap.Logger) *Service {
	if logLimit <= 0 {
		logLimit = state.LogCap
	}
	return &Service{
		backend:  client,
		store:    store,
		logger:   logger,
		logLimit: logLimit,
		phase:    PhaseIdle,
	}
}

// SetAnnounce installs the realtime re-announce hook.
func (s *Service) SetAnnounce(fn func()) {
	s.mu.Lock()
	s.announce = fn
	s.mu.Unlock()
}

// Phase reports the current load-cycle phase and, in PhaseError, the
// user-facing message.
func (s *Service) Phase() (Phase, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.lastErr
}

func (s *Service) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	if p != PhaseError {
		s.lastErr = ""
	}
	s.mu.Unlock()
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	s.phase = PhaseError
	s.lastErr = msg
	s.mu.Unlock()
}

func (s *Service) announceChannels() {
	s.mu.Lock()
	fn := s.announce
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Load runs one full reconciliation cycle. The group load runs concurrently
// with the device pipeline; its failure, like status-refresh and log-preload
// failures, degrades the result without aborting it. A device-list failure
// aborts the cycle and leaves prior state untouched.
func (s *Service) Load(ctx context.Context) error {
	s.setPhase(PhaseLoadingDevices)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loadGroups(ctx)
	}()

	rawDevices, err := s.backend.ListDevices(ctx)
	if err != nil {
		msg := apperrors.UserMessage(err)
		s.setError(msg)
		wg.Wait()
		return apperrors.NewAppError("LOAD_DEVICES_FAILED", msg, err)
	}

	devices := make([]device.Device, 0, len(rawDevices))
	for _, raw := range rawDevices {
		devices = append(devices, device.ToDevice(raw))
	}
	s.store.ReplaceDevices(devices)

	// Coarse seed: a snapshot status of "online" is the initial guess for
	// both maps, corrected by the later steps and by realtime evidence.
	connectivity := make(map[string]device.Status, len(devices))
	power := make(map[string]bool, len(devices))
	for _, d := range devices {
		online := d.Status == device.StatusOnline
		if online {
			connectivity[d.Key()] = device.StatusOnline
		} else {
			connectivity[d.Key()] = device.StatusOffline
		}
		power[d.ID] = online
	}
	s.store.ReplaceConnectivity(connectivity)
	s.store.ReplacePower(power)

	s.announceChannels()

	s.setPhase(PhaseRefreshingStatus)
	s.RefreshStatuses(ctx, devices)

	s.setPhase(PhasePreloadingLogs)
	s.preloadLogs(ctx, devices)

	wg.Wait()
	s.setPhase(PhaseReady)

	s.logger.Info("reconcile cycle complete", zap.Int("devices", len(devices)))
	return nil
}

// loadGroups fetches groups and attaches each group's owned member list via
// a secondary fetch. Membership lists are authoritative over the embedded
// devices' own group ids. Any single group's member fetch failing yields an
// empty list for that group only.
func (s *Service) loadGroups(ctx context.Context) {
	rawGroups, err := s.backend.ListGroups(ctx)
	if err != nil {
		s.logger.Warn("failed to load groups", zap.Error(err))
		return
	}

	groups := make([]device.DeviceGroup, 0, len(rawGroups))
	for _, raw := range rawGroups {
		group := device.ToGroup(raw)
		if group.ID != "" {
			members, err := s.backend.GroupDevices(ctx, group.ID)
			if err != nil {
				s.logger.Warn("failed to load group members",
					zap.String("group_id", group.ID),
					zap.Error(err),
				)
				group.Devices = nil
			} else {
				group.Devices = normalizeMembers(members, group.ID)
			}
		}
		groups = append(groups, group)
	}

	s.store.ReplaceGroups(groups)
}

func normalizeMembers(raws []device.Raw, groupID string) []device.Device {
	members := make([]device.Device, 0, len(raws))
	for _, raw := range raws {
		// Member listings sometimes wrap the device in an envelope.
		if nested, ok := raw["device"].(map[string]any); ok {
			raw = nested
		}
		member := device.ToDevice(raw)
		member.GroupID = groupID
		members = append(members, member)
	}
	return members
}

type statusResult struct {
	key        string
	status     device.Status
	lastSeenAt string
}

// RefreshStatuses requests every device's authoritative status
// concurrently. Failed devices keep their coarse guess; fulfilled results
// update the connectivity map and the device's displayed status and last
// seen, never its identity fields, and never the power map.
func (s *Service) RefreshStatuses(ctx context.Context, devices []device.Device) {
	results := make(chan statusResult, len(devices))

	var wg sync.WaitGroup
	for _, dev := range devices {
		wg.Add(1)
		go func(dev device.Device) {
			defer wg.Done()

			key := dev.Key()
			snap, err := s.backend.DeviceStatus(ctx, key)
			if err != nil {
				s.logger.Debug("status refresh skipped",
					zap.String("device_key", key),
					zap.Error(err),
				)
				return
			}
			results <- statusResult{
				key:        key,
				status:     device.NormalizeStatus(snap.Status),
				lastSeenAt: snap.LastSeenAt,
			}
		}(dev)
	}

	wg.Wait()
	close(results)

	for res := range results {
		if res.status == device.StatusOnline || res.status == device.StatusOffline {
			s.store.SetConnectivity(res.key, res.status)
		}

		s.store.UpdateDevice(res.key, func(d *device.Device) {
			d.Status = res.status
			if res.lastSeenAt != "" {
				d.LastSeenAt = res.lastSeenAt
				d.LastSeen = device.FormatLastSeen(res.lastSeenAt)
			}
		})
	}
}

// preloadLogs fetches each device's recent history concurrently and feeds
// it into the log store. Explicit relay evidence found in the history
// overrides the coarse power guess.
func (s *Service) preloadLogs(ctx context.Context, devices []device.Device) {
	var wg sync.WaitGroup
	for _, dev := range devices {
		wg.Add(1)
		go func(dev device.Device) {
			defer wg.Done()

			key := dev.Key()
			if key == "" {
				return
			}

			raws, err := s.backend.DeviceLogs(ctx, key)
			if err != nil {
				s.logger.Debug("log preload skipped",
					zap.String("device_key", key),
					zap.Error(err),
				)
				return
			}

			entries := make([]device.DeviceLog, 0, len(raws))
			for idx, raw := range raws {
				entries = append(entries, device.ToLog(dev, raw, idx))
			}
			if len(entries) > s.logLimit {
				entries = entries[:s.logLimit]
			}
			s.store.AppendLogs(key, entries...)

			for _, entry := range entries {
				if relay := device.ExtractRelayState(entry.Payload); relay != device.RelayUnknown {
					s.store.SetPower(dev.ID, relay == device.RelayOn)
					break
				}
			}
		}(dev)
	}
	wg.Wait()
}
