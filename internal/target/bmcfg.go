package target

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"

	"github.com/muurk/burnmate/internal/logging"
	"github.com/muurk/burnmate/internal/patch"
)

// ConfigExt is appended to the target file path to form the config path.
const ConfigExt = ".bmcfg"

// ConfigPath returns the .bmcfg path for a target image file.
func ConfigPath(targetFile string) string {
	return targetFile + ConfigExt
}

// Load reads the options for a target file. A missing config file yields
// defaults, not an error; a malformed one is an error.
func Load(targetFile string) (*Options, error) {
	path := ConfigPath(targetFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logging.Debug("no target config, using defaults", zap.String("path", path))
		return DefaultOptions(), nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target config %q: %w", path, err)
	}

	opts := DefaultOptions()

	settings := cfg.Section("Settings")
	opts.Probe = settings.Key("probe").String()
	opts.Driver = settings.Key("driver").String()
	opts.ConnectUnderReset = settings.Key("connect_reset").MustBool(false)
	opts.TargetPower = settings.Key("target_power").MustBool(false)

	flash := cfg.Section("Flash")
	opts.FullErase = flash.Key("full_erase").MustBool(false)
	opts.CRPLevel = flash.Key("crp").MustInt(0)
	if v := flash.Key("base").String(); v != "" {
		base, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("target config %q: bad base address %q: %w", path, v, err)
		}
		opts.Base = uint32(base)
	}

	ser := cfg.Section("Serialize")
	mode, err := parseMode(ser.Key("mode").String())
	if err != nil {
		return nil, fmt.Errorf("target config %q: %w", path, err)
	}
	opts.Serialize.Mode = mode

	if v := ser.Key("target").String(); v != "" {
		if err := opts.unpackTarget(v); err != nil {
			return nil, fmt.Errorf("target config %q: %w", path, err)
		}
	}
	if v := ser.Key("match").String(); v != "" {
		if err := opts.unpackMatch(v); err != nil {
			return nil, fmt.Errorf("target config %q: %w", path, err)
		}
	}
	if v := ser.Key("serial").String(); v != "" {
		if err := opts.unpackSerial(v); err != nil {
			return nil, fmt.Errorf("target config %q: %w", path, err)
		}
	}
	return opts, nil
}

// Save writes the options beside the target file.
func Save(targetFile string, opts *Options) error {
	cfg := ini.Empty()

	settings := cfg.Section("Settings")
	settings.Key("probe").SetValue(opts.Probe)
	settings.Key("driver").SetValue(opts.Driver)
	settings.Key("connect_reset").SetValue(boolValue(opts.ConnectUnderReset))
	settings.Key("target_power").SetValue(boolValue(opts.TargetPower))

	flash := cfg.Section("Flash")
	flash.Key("full_erase").SetValue(boolValue(opts.FullErase))
	flash.Key("crp").SetValue(fmt.Sprintf("%d", opts.CRPLevel))
	flash.Key("base").SetValue(fmt.Sprintf("0x%X", opts.Base))

	ser := cfg.Section("Serialize")
	ser.Key("mode").SetValue(opts.Serialize.Mode.String())
	switch opts.Serialize.Mode {
	case patch.ModeAddress:
		ser.Key("target").SetValue(opts.packTarget())
	case patch.ModePattern:
		ser.Key("match").SetValue(opts.packMatch())
	}
	ser.Key("serial").SetValue(opts.packSerial())

	path := ConfigPath(targetFile)
	if err := cfg.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write target config %q: %w", path, err)
	}
	logging.Debug("target config saved", zap.String("path", path))
	return nil
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
