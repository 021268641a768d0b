// Burnmate is a production-line firmware flashing tool for network debug
// probes.
//
// It loads a firmware image (ELF, Intel HEX or raw binary), patches it in
// place (vector-table checksum repair, code read protection, per-unit
// serialization), and drives the download through a probe daemon discovered
// on the local network:
//
//   - Full flash workflow with verify and download logging
//   - Dry-run verification without touching flash
//   - Side-entry diagnostics: full erase, option-byte erase, blank check,
//     flash dump
//   - mDNS probe discovery and a persistent probe registry
//
// Per-target options persist in a .bmcfg file next to the image, so a
// target configured once flashes the same way on every workstation.
//
// See 'burnmate --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/burnmate/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burnmate",
	Short: "Firmware flashing via network debug probes",
	Long: `Burnmate flashes firmware images through network debug probes.

The flash workflow loads an image (ELF, Intel HEX or raw binary), patches
it in place, and downloads it to the target:
  - Vector-table checksum repair for LPC parts
  - Code read protection (CRP) injection
  - Per-unit serialization with a shared counter
  - Verify and a per-target download log

Per-target options live in a .bmcfg file next to the image. Probe metadata
and preferences live in the user configuration (~/.config/burnmate).`,
	Version: version.Version,
	Example: `  # Flash a target with its saved options
  burnmate flash firmware.hex

  # Dry run: patch and verify without writing flash
  burnmate verify firmware.hex

  # Serialize each unit from a shared counter file
  burnmate flash firmware.hex --serialize-pattern 'SN=' --serial-value /srv/line7.cnt

  # List probes on the local network
  burnmate scan`,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("burnmate %s (commit: %s)\n", version.Version, version.Commit)
	},
}
