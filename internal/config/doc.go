// Package config provides user configuration management for burnmate.
//
// This package manages a YAML-based configuration file that stores
// user-defined metadata for debug probes (nicknames, last-seen addresses)
// and application preferences. Per-target flash options are deliberately
// NOT stored here: they live in a .bmcfg file next to the firmware image
// (see internal/target), so they travel with the image between
// workstations.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/burnmate/config.yaml or $HOME/.config/burnmate/config.yaml
//   - macOS: $HOME/.config/burnmate/config.yaml
//   - Windows: %LOCALAPPDATA%\burnmate\config.yaml
//
// # Usage Example
//
//	// Load the global registry
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Record a discovered probe
//	registry.SetProbeNickname("750001234", "bench probe")
//	registry.UpdateProbeLastSeen("750001234", "192.168.1.40:7788")
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across
// goroutines. File operations are protected by a mutex to ensure atomic
// writes.
package config
