// Package flashrom implements the updater's Flasher collaborator: reading
// and writing sections of the live SPI flash chip, and querying hardware
// write-protect status, by shelling out to the flashrom CLI tool, the way
// host_flashrom builds its command line for FLASHROM_READ/FLASHROM_WRITE/
// FLASHROM_WP_STATUS.
package flashrom

import (
	"fmt"
	"os/exec"
	"strings"
)

// Op identifies which flashrom operation to perform.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpWPStatus
)

// Flasher is the capability the updater needs from the host's flash
// programmer: read the whole chip (or EC/PD chip) to a file, write a file
// (optionally scoped to one named section) to the chip, and query WP
// status text.
type Flasher interface {
	Read(programmer, outFile string) error
	Write(programmer, inFile, section string) error
	WPStatus(programmer string) (string, error)
}

// Host is a Flasher backed by the real flashrom binary.
type Host struct {
	// Run executes flashrom with args and returns combined stdout+stderr.
	// Exposed as a field so tests can stub it out.
	Run func(args ...string) (string, error)
	// Verbose controls whether -V is added, matching host_flashrom's
	// verbosity-gated postfix.
	Verbose bool
}

// NewHost returns a Host that execs the real flashrom binary.
func NewHost(verbose bool) *Host {
	return &Host{Verbose: verbose, Run: runFlashrom}
}

func runFlashrom(args ...string) (string, error) {
	out, err := exec.Command("flashrom", args...).CombinedOutput()
	return string(out), err
}

func (h *Host) args(op Op, programmer, file, section string) []string {
	a := []string{"-p", programmer}
	switch op {
	case OpRead:
		a = append(a, "-r", file)
	case OpWrite:
		a = append(a, "-w", file)
		if section != "" {
			a = append(a, "-i", section)
		}
	case OpWPStatus:
		a = append(a, "--wp-status")
	}
	if h.Verbose {
		a = append(a, "-V")
	} else {
		a = append(a, "-N")
	}
	return a
}

func (h *Host) Read(programmer, outFile string) error {
	out, err := h.Run(h.args(OpRead, programmer, outFile, "")...)
	if err != nil {
		return fmt.Errorf("flashrom: read %s: %w: %s", programmer, err, out)
	}
	return nil
}

func (h *Host) Write(programmer, inFile, section string) error {
	out, err := h.Run(h.args(OpWrite, programmer, inFile, section)...)
	if err != nil {
		return fmt.Errorf("flashrom: write %s (section %q): %w: %s", programmer, section, err, out)
	}
	return nil
}

func (h *Host) WPStatus(programmer string) (string, error) {
	out, err := h.Run(h.args(OpWPStatus, programmer, "", "")...)
	if err != nil {
		return "", fmt.Errorf("flashrom: wp-status %s: %w: %s", programmer, err, out)
	}
	return out, nil
}

// IsWPEnabled reports whether a WPStatus string indicates write-protect
// is enabled, using the same exact substring match host_get_wp_hw uses
// rather than trying to parse flashrom's free-form text fully.
func IsWPEnabled(status string) (enabled bool, known bool) {
	switch {
	case strings.Contains(status, "write protect is enabled"):
		return true, true
	case strings.Contains(status, "write protect is disabled"):
		return false, true
	default:
		return false, false
	}
}
