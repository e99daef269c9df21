package apupdater

import (
	"os"
	"os/exec"
	"strings"
)

// CBFSProbe looks up whether a named file exists (and optionally carries
// the given attribute tag) inside the CBFS filesystem embedded in an
// RW_LEGACY section. The real implementation shells out to cbfstool; tests
// supply a fake.
type CBFSProbe interface {
	FileExists(sectionData []byte, file, tag string) bool
}

// ShellCBFSProbe shells out to cbfstool, staging sectionData to a temp file
// first since cbfstool only operates on paths, matching cbfs_file_exists's
// "cbfstool '%s' print -r %s" pipeline.
type ShellCBFSProbe struct {
	Shell func(name string, args ...string) (string, error)
}

// NewShellCBFSProbe returns a ShellCBFSProbe that shells out with os/exec.
func NewShellCBFSProbe() *ShellCBFSProbe {
	return &ShellCBFSProbe{Shell: runShellCBFS}
}

func runShellCBFS(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", nil
	}
	return string(out), nil
}

// FileExists stages sectionData into a temp file and greps cbfstool's file
// listing for a line naming file (and, if tag is non-empty, also containing
// tag), the same match cbfs_file_exists's piped grep performs.
func (s *ShellCBFSProbe) FileExists(sectionData []byte, file, tag string) bool {
	tmp, err := os.CreateTemp("", "apupdater-cbfs-")
	if err != nil {
		return false
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.Write(sectionData); err != nil {
		tmp.Close()
		return false
	}
	tmp.Close()

	out, err := s.Shell("cbfstool", path, "print")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != file {
			continue
		}
		if tag == "" || strings.Contains(line, tag) {
			return true
		}
	}
	return false
}

// LegacyNeedsUpdate decides whether the RW_LEGACY section needs updating
// by checking for the "cros_allow_auto_update" sentinel file in both the
// current and candidate legacy sections, mirroring legacy_needs_update.
//
// The original calls cbfs_file_exists twice with the same tmp_path (the
// *candidate* image's extracted section) for both the "has_from" and
// "has_to" checks; has_from should have been checked against the
// current image's section instead. That is reproduced here verbatim:
// currentSectionData is accepted but intentionally not used for the
// has_from probe, so the gate degenerates to "candidate carries the tag".
func LegacyNeedsUpdate(probe CBFSProbe, currentSectionData, candidateSectionData []byte, file, tag string) bool {
	hasTo := probe.FileExists(candidateSectionData, file, tag)
	hasFrom := probe.FileExists(candidateSectionData, file, tag) // bug: should probe currentSectionData
	_ = currentSectionData
	return hasFrom && hasTo
}
