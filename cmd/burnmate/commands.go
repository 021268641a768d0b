package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/burnmate/internal/config"
	"github.com/muurk/burnmate/internal/flash"
	"github.com/muurk/burnmate/internal/logging"
	"github.com/muurk/burnmate/internal/patch"
	"github.com/muurk/burnmate/internal/probe"
	"github.com/muurk/burnmate/internal/serial"
	"github.com/muurk/burnmate/internal/sessionlog"
	"github.com/muurk/burnmate/internal/target"
	"github.com/muurk/burnmate/internal/ui"
)

// Command flags
var (
	probeSelector string // probe serial or nickname
	daemonAddr    string // probe daemon host:port (skips discovery)
	driverName    string
	underReset    bool
	targetPower   bool
	scanTimeout   string

	fullErase    bool
	crpLevel     int
	baseAddr     string
	skipDownload bool
	plainOutput  bool
	assumeYes    bool

	serializeAddress string // section:offset or absolute offset
	serializePattern string
	serializePrefix  string
	serialValue      string
	serialStep       uint64
	serialWidth      int
	serialFormat     string

	postScript   string
	failSafePost bool

	dumpOutput string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&probeSelector, "probe", "", "Probe serial number (default: configured or first discovered)")
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "daemon", "", "Probe daemon address host:port (skips mDNS discovery)")
	rootCmd.PersistentFlags().StringVar(&scanTimeout, "scan-timeout", "5s", "mDNS discovery timeout (e.g., 3s, 10s)")
	rootCmd.PersistentFlags().BoolVar(&underReset, "under-reset", false, "Attach with the target held in reset")
	rootCmd.PersistentFlags().BoolVar(&targetPower, "target-power", false, "Supply target power from the probe")

	rootCmd.AddCommand(flashCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(eraseOptBytesCmd)
	rootCmd.AddCommand(blankCheckCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serialCmd)
}

// resolveDaemonAddr finds the probe daemon to talk to: the explicit
// --daemon address, the registry's last known address for the probe, or an
// mDNS scan.
func resolveDaemonAddr(ctx context.Context, registry *config.Registry, serial string) (string, error) {
	if daemonAddr != "" {
		return daemonAddr, nil
	}
	if serial != "" {
		if p := registry.GetProbe(serial); p != nil && p.LastAddr != "" {
			return p.LastAddr, nil
		}
	}

	timeout, err := time.ParseDuration(scanTimeout)
	if err != nil {
		return "", fmt.Errorf("invalid scan timeout: %w", err)
	}
	scanner := probe.NewScanner()
	scanner.Timeout = timeout
	info, err := scanner.Find(ctx, serial)
	if err != nil {
		return "", err
	}
	registry.UpdateProbeLastSeen(info.Serial, info.Addr())
	if err := registry.Save(); err != nil {
		logging.Warn("could not save probe registry")
	}
	return info.Addr(), nil
}

// loadOptions loads the target's .bmcfg and applies any flags the user set
// on this invocation.
func loadOptions(cmd *cobra.Command, targetFile string) (*target.Options, error) {
	opts, err := target.Load(targetFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("probe") {
		opts.Probe = probeSelector
	}
	if flags.Changed("driver") {
		opts.Driver = driverName
	}
	if flags.Changed("under-reset") {
		opts.ConnectUnderReset = underReset
	}
	if flags.Changed("target-power") {
		opts.TargetPower = targetPower
	}
	if flags.Changed("full-erase") {
		opts.FullErase = fullErase
	}
	if flags.Changed("crp") {
		if !patch.ValidCRPLevel(crpLevel) {
			return nil, fmt.Errorf("invalid CRP level %d (valid: 1, 2, 3, 9)", crpLevel)
		}
		opts.CRPLevel = crpLevel
	}
	if flags.Changed("base") {
		base, err := strconv.ParseUint(baseAddr, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid base address %q: %w", baseAddr, err)
		}
		opts.Base = uint32(base)
	}

	if flags.Changed("serialize-address") {
		opts.Serialize.Mode = patch.ModeAddress
		if err := target.ParseSerializeAddress(opts, serializeAddress); err != nil {
			return nil, err
		}
	}
	if flags.Changed("serialize-pattern") {
		opts.Serialize.Mode = patch.ModePattern
		opts.Serialize.Pattern = serializePattern
	}
	if flags.Changed("serialize-prefix") {
		prefix, err := patch.CompilePattern(serializePrefix)
		if err != nil {
			return nil, err
		}
		opts.PrefixPattern = serializePrefix
		opts.Serialize.Prefix = prefix
	}
	if flags.Changed("serial-value") {
		opts.SerialValue = serialValue
	}
	if flags.Changed("serial-step") {
		opts.SerialStep = serialStep
	}
	if flags.Changed("serial-width") {
		opts.Serialize.Width = serialWidth
	}
	if flags.Changed("serial-format") {
		format, err := target.ParseSerializeFormat(serialFormat)
		if err != nil {
			return nil, err
		}
		opts.Serialize.Format = format
	}
	return opts, nil
}

// newMachine builds the session and machine for one command invocation.
func newMachine(ctx context.Context, cmd *cobra.Command, targetFile string) (*flash.Machine, *sessionlog.Log, error) {
	if err := logging.InitializeFromEnv(); err != nil {
		_ = err // GetLogger falls back to a nop logger
	}

	registry, err := config.LoadRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	opts, err := loadOptions(cmd, targetFile)
	if err != nil {
		return nil, nil, err
	}
	if opts.Probe == "" {
		opts.Probe = registry.ResolveProbe(probeSelector)
	}
	if opts.Driver == "" && registry.Preferences != nil {
		opts.Driver = registry.Preferences.DefaultDriver
	}

	addr, err := resolveDaemonAddr(ctx, registry, opts.Probe)
	if err != nil {
		return nil, nil, fmt.Errorf("no probe daemon found: %w", err)
	}

	slog := sessionlog.New()
	session := flash.NewSession(targetFile, opts)
	session.SkipDownload = skipDownload
	session.PostScript = postScript
	session.FailSafePost = failSafePost

	machine := flash.New(session, flash.Config{
		Transport: probe.NewRemote(addr, logging.GetLogger()),
		Log:       slog,
		Logger:    logging.GetLogger(),
	})
	return machine, slog, nil
}

// runRequest drives one request through the machine with the streaming
// (non-TUI) presentation.
func runRequest(ctx context.Context, m *flash.Machine, slog *sessionlog.Log, title string, req flash.Request) error {
	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   title,
		Command: "burnmate " + req.String(),
		Params: map[string]string{
			"Target": m.Session().TargetFile,
			"Probe":  m.Session().Options.Probe,
		},
		Log: slog,
	})
	return runner.Run(ctx, func(ctx context.Context) error {
		m.Submit(req)
		return m.Run(ctx)
	})
}

var flashCmd = &cobra.Command{
	Use:   "flash <target-file>",
	Short: "Patch an image and download it to the target",
	Long: `Run the full flash workflow for a firmware image.

The image format is sniffed (ELF, Intel HEX, raw binary), the image is
patched in place (vector-table checksum, optional CRP, optional
serialization), flash is optionally erased, the image is written and
verified, and a line is appended to the per-target download log.

Options set with flags are persisted to <target-file>.bmcfg, so the next
invocation needs only 'burnmate flash <target-file>'.`,
	Example: `  # Flash with saved options
  burnmate flash firmware.hex

  # Flash an LPC812 with full erase and CRP level 1
  burnmate flash firmware.bin --driver lpc812 --base 0x0 --full-erase --crp 1

  # Stamp a 6-digit ASCII serial wherever the pattern matches
  burnmate flash firmware.hex --serialize-pattern 'SN-\A*' --serial-width 6 --serial-format ascii`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().StringVar(&driverName, "driver", "", "Flash driver name (e.g., lpc812, lpc2148)")
	flashCmd.Flags().BoolVar(&fullErase, "full-erase", false, "Erase the whole flash before download")
	flashCmd.Flags().IntVar(&crpLevel, "crp", 0, "Inject code read protection level (1, 2, 3, or 9 for none)")
	flashCmd.Flags().StringVar(&baseAddr, "base", "0x0", "Load address for raw binary images")
	flashCmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Dry run: patch and verify without writing flash")
	flashCmd.Flags().StringVar(&serializeAddress, "serialize-address", "", "Serialize at address ('0x1000' or '.section:0x10')")
	flashCmd.Flags().StringVar(&serializePattern, "serialize-pattern", "", "Serialize wherever this byte pattern matches")
	flashCmd.Flags().StringVar(&serializePrefix, "serialize-prefix", "", "Prefix bytes written before the serial at each match")
	flashCmd.Flags().StringVar(&serialValue, "serial-value", "", "Serial counter: a number or a counter-file path")
	flashCmd.Flags().Uint64Var(&serialStep, "serial-step", 1, "Serial counter increment")
	flashCmd.Flags().IntVar(&serialWidth, "serial-width", 4, "Rendered serial size in bytes")
	flashCmd.Flags().StringVar(&serialFormat, "serial-format", "binary", "Serial rendering: binary, ascii, or wide")
	flashCmd.Flags().StringVar(&postScript, "post-script", "", "Script to run after the download finishes")
	flashCmd.Flags().BoolVar(&failSafePost, "failsafe-post", false, "Run the post script even when verify fails")
	flashCmd.Flags().BoolVar(&plainOutput, "plain", false, "Stream output instead of the interactive progress view")
	flashCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")
}

func runFlash(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	m, slog, err := newMachine(ctx, cmd, args[0])
	if err != nil {
		ui.PrintFailure("Flash download failed", err, nil)
		return err
	}

	opts := m.Session().Options
	if opts.CRPLevel > 0 && opts.CRPLevel != patch.CRPLevelNone && !assumeYes {
		if !ui.CRPConfirmation(opts.CRPLevel) {
			return nil // user cancelled
		}
	}

	if plainOutput {
		return runRequest(ctx, m, slog, "Flash Download", flash.ReqDownload)
	}
	return ui.RunFlashView(ctx, m, slog, flash.ReqDownload)
}

var verifyCmd = &cobra.Command{
	Use:   "verify <target-file>",
	Short: "Patch and verify without writing flash",
	Long: `Run the flash workflow as a dry run.

The image is loaded and patched exactly as 'flash' would, the probe
attaches and verifies flash content against the image, but nothing is
erased or written, the serial counter does not advance, and no download
log entry is made.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		skipDownload = true
		m, slog, err := newMachine(ctx, cmd, args[0])
		if err != nil {
			ui.PrintFailure("Verify failed", err, nil)
			return err
		}
		return runRequest(ctx, m, slog, "Verify", flash.ReqDownload)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&driverName, "driver", "", "Flash driver name (e.g., lpc812, lpc2148)")
	verifyCmd.Flags().StringVar(&baseAddr, "base", "0x0", "Load address for raw binary images")
}

var eraseCmd = &cobra.Command{
	Use:   "erase <target-file>",
	Short: "Erase the entire target flash",
	Long: `Erase the whole flash of the target device.

This is a destructive, standalone operation: it attaches, erases, and
detaches without touching the image. The target file argument selects
which .bmcfg supplies the probe and attach options.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		if !assumeYes && !ui.FullEraseConfirmation() {
			return nil // user cancelled
		}
		m, slog, err := newMachine(ctx, cmd, args[0])
		if err != nil {
			ui.PrintFailure("Full erase failed", err, nil)
			return err
		}
		return runRequest(ctx, m, slog, "Full Erase", flash.ReqFullErase)
	},
}

func init() {
	eraseCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")
}

var eraseOptBytesCmd = &cobra.Command{
	Use:   "erase-optbytes <target-file>",
	Short: "Erase the target's option bytes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		m, slog, err := newMachine(ctx, cmd, args[0])
		if err != nil {
			ui.PrintFailure("Option-byte erase failed", err, nil)
			return err
		}
		return runRequest(ctx, m, slog, "Option-Byte Erase", flash.ReqEraseOptBytes)
	},
}

var blankCheckCmd = &cobra.Command{
	Use:   "blank-check <target-file>",
	Short: "Check whether the target flash is blank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		m, slog, err := newMachine(ctx, cmd, args[0])
		if err != nil {
			ui.PrintFailure("Blank check failed", err, nil)
			return err
		}
		return runRequest(ctx, m, slog, "Blank Check", flash.ReqBlankCheck)
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <target-file>",
	Short: "Read the target flash into a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		m, slog, err := newMachine(ctx, cmd, args[0])
		if err != nil {
			ui.PrintFailure("Flash dump failed", err, nil)
			return err
		}
		m.Session().DumpPath = dumpOutput
		return runRequest(ctx, m, slog, "Flash Dump", flash.ReqDumpFlash)
	},
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "Dump file path (default: <target-file>.dump)")
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover probe daemons on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		if err := logging.InitializeFromEnv(); err != nil {
			_ = err
		}
		timeout, err := time.ParseDuration(scanTimeout)
		if err != nil {
			return fmt.Errorf("invalid scan timeout: %w", err)
		}

		scanner := probe.NewScanner()
		scanner.Timeout = timeout
		probes, err := scanner.Scan(cmd.Context())
		if err != nil {
			ui.PrintFailure("Probe scan failed", err, []string{
				"Check that probe daemons are running on this network",
				"mDNS may be blocked by a firewall (UDP port 5353)",
			})
			return err
		}

		printer := ui.NewPrinter(nil)
		if len(probes) == 0 {
			printer.Println("No probes found.")
			return nil
		}

		registry, regErr := config.LoadRegistry()
		for _, info := range probes {
			line := fmt.Sprintf("  %-16s %-22s %s", info.Serial, info.Addr(), info.Name)
			if regErr == nil {
				if p := registry.GetProbe(info.Serial); p != nil && p.Nickname != "" {
					line += "  (" + p.Nickname + ")"
				}
				registry.UpdateProbeLastSeen(info.Serial, info.Addr())
			}
			printer.Println(line)
		}
		if regErr == nil {
			if err := registry.Save(); err != nil {
				logging.Warn("could not save probe registry")
			}
		}
		return nil
	},
}

var serialCmd = &cobra.Command{
	Use:   "serial <target-file>",
	Short: "Show or advance the target's serial counter",
	Long: `Show the target's serial counter, or advance it with --advance.

A numeric counter lives in the .bmcfg itself; anything else is treated as
the path of a shared counter file, which several flashing stations can
point at to stay in step.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		opts, err := target.Load(args[0])
		if err != nil {
			return err
		}
		mgr := serial.NewManager(opts.SerialValue, opts.SerialStep)

		advance, _ := cmd.Flags().GetBool("advance")
		if advance {
			if err := mgr.Advance(); err != nil {
				return err
			}
			if !mgr.FileBased() {
				opts.SerialValue = mgr.ConfigValue()
				if err := target.Save(args[0], opts); err != nil {
					return err
				}
			}
		}

		source := "literal (stored in .bmcfg)"
		if mgr.FileBased() {
			source = "counter file " + opts.SerialValue
		}
		fmt.Printf("serial: %d  step: %d  source: %s\n", mgr.Current(), opts.SerialStep, source)
		return nil
	},
}

func init() {
	serialCmd.Flags().Bool("advance", false, "Advance the counter by its step")
}
