package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmDangerousOperation displays a warning box and prompts the user to type
// "I AGREE" to proceed with a dangerous operation. Returns true if the user
// confirmed, false otherwise.
func ConfirmDangerousOperation(title string, warnings []string, disclaimer string) bool {
	width := GetTerminalWidth()
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	var lines []string

	titleLine := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true).
		Render(fmt.Sprintf("   ⚠  WARNING  ─  %s", title))
	lines = append(lines, "", titleLine, "")

	for _, warning := range warnings {
		bulletStyle := lipgloss.NewStyle().Foreground(TextColor)
		lines = append(lines, bulletStyle.Render("   • "+warning))
	}
	lines = append(lines, "")

	if disclaimer != "" {
		disclaimerStyle := lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			Width(width - 12).
			PaddingLeft(3)
		lines = append(lines, disclaimerStyle.Render(disclaimer), "")
	}

	content := strings.Join(lines, "\n")

	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(width-2).
		Padding(0, 2).
		Render(content)

	fmt.Println(box)
	fmt.Println()

	promptStyle := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true)
	fmt.Print(promptStyle.Render("To proceed, type \"I AGREE\" and press Enter: "))

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return false
	}

	input = strings.TrimSpace(input)
	if input == "I AGREE" {
		fmt.Println()
		return true
	}

	fmt.Println()
	cancelStyle := lipgloss.NewStyle().Foreground(MutedColor)
	fmt.Println(cancelStyle.Render("  Operation cancelled."))
	fmt.Println()
	return false
}

// FullEraseConfirmation is a pre-configured confirmation for full chip erase
func FullEraseConfirmation() bool {
	return ConfirmDangerousOperation(
		"FULL CHIP ERASE",
		[]string{
			"This operation erases the ENTIRE flash of the target device",
			"All firmware, configuration and calibration data will be lost",
			"Ensure the probe has a stable connection to the target",
			"Do not interrupt the operation once started",
		},
		"DISCLAIMER: This software is provided as-is, without warranty of any kind. "+
			"The authors accept no responsibility for any damage to your device. "+
			"By proceeding, you acknowledge that you understand the risks involved "+
			"in erasing device flash memory.",
	)
}

// CRPConfirmation is a pre-configured confirmation for code read protection.
// Level 3 permanently locks most LPC parts out of ISP re-entry, so it gets
// its own wording.
func CRPConfirmation(level int) bool {
	warnings := []string{
		fmt.Sprintf("Code read protection level %d will be programmed", level),
		"A protected device cannot be read back over the debug port",
	}
	if level >= 3 {
		warnings = append(warnings,
			"CRP level 3 is IRREVERSIBLE on most parts: no ISP re-entry, no debug",
			"A firmware bug shipped under CRP3 can brick the device permanently")
	}
	return ConfirmDangerousOperation(
		"CODE READ PROTECTION",
		warnings,
		"By proceeding, you acknowledge that protected devices may not be "+
			"recoverable and that the authors accept no responsibility for "+
			"locked-out hardware.",
	)
}
