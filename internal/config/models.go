package config

import "time"

// Registry represents the entire user configuration file.
// It stores user-defined metadata for debug probes and application
// preferences; per-target flash options live next to the image instead
// (see internal/target).
type Registry struct {
	Version     int               `yaml:"version"`
	Probes      map[string]*Probe `yaml:"probes,omitempty"` // Keyed by probe serial number
	Preferences *Preferences      `yaml:"preferences,omitempty"`
}

// Probe represents user-defined metadata for a single debug probe.
// This is keyed by the probe's serial number in the Registry.
type Probe struct {
	Nickname string    `yaml:"nickname,omitempty"`  // User-friendly name
	LastAddr string    `yaml:"last_addr,omitempty"` // Last known daemon host:port
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last discovery/connection time
	Driver   string    `yaml:"driver,omitempty"`    // Flash driver most recently used with this probe
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	AutoDiscover  bool   `yaml:"auto_discover"`            // Enable automatic mDNS discovery on startup
	ScanTimeout   int    `yaml:"scan_timeout"`             // mDNS discovery timeout in seconds
	DefaultProbe  string `yaml:"default_probe,omitempty"`  // Probe serial used when none is given
	DefaultDriver string `yaml:"default_driver,omitempty"` // Driver used when a target has none configured
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Probes:  make(map[string]*Probe),
		Preferences: &Preferences{
			AutoDiscover: true,
			ScanTimeout:  5,
		},
	}
}

// GetProbe retrieves probe metadata by serial number.
// Returns nil if the probe doesn't exist in the registry.
func (r *Registry) GetProbe(serial string) *Probe {
	return r.Probes[serial]
}

// EnsureProbe ensures a probe entry exists in the registry.
// Returns the entry, creating an empty one if needed.
func (r *Registry) EnsureProbe(serial string) *Probe {
	if r.Probes == nil {
		r.Probes = make(map[string]*Probe)
	}
	if probe, exists := r.Probes[serial]; exists {
		return probe
	}
	probe := &Probe{}
	r.Probes[serial] = probe
	return probe
}

// UpdateProbeLastSeen updates the last seen timestamp and daemon address
// for a probe.
func (r *Registry) UpdateProbeLastSeen(serial, addr string) {
	probe := r.EnsureProbe(serial)
	probe.LastSeen = time.Now()
	probe.LastAddr = addr
}

// SetProbeNickname sets a user-friendly nickname for a probe.
func (r *Registry) SetProbeNickname(serial, nickname string) {
	probe := r.EnsureProbe(serial)
	probe.Nickname = nickname
}

// SetProbeDriver records the flash driver last used with a probe.
func (r *Registry) SetProbeDriver(serial, driver string) {
	probe := r.EnsureProbe(serial)
	probe.Driver = driver
}

// ResolveProbe returns the serial to use: the explicit one when given,
// else the configured default, else "".
func (r *Registry) ResolveProbe(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if r.Preferences != nil {
		return r.Preferences.DefaultProbe
	}
	return ""
}
