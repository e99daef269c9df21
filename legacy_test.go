package apupdater_test

import (
	"testing"

	apupdater "apupdater"
)

type fakeCBFSProbe struct {
	calls [][]byte
}

func (f *fakeCBFSProbe) FileExists(sectionData []byte, file, tag string) bool {
	f.calls = append(f.calls, sectionData)
	return len(sectionData) > 0 && sectionData[0] == 1
}

// TestLegacyNeedsUpdateBugReproduced pins down the legacy_needs_update
// double-check bug: both the "has_from" and "has_to" probes run against
// the candidate section, never the current one, so has_from always equals
// has_to and the gate degenerates to "the candidate carries the tag",
// whatever the current section actually contains.
func TestLegacyNeedsUpdateBugReproduced(t *testing.T) {
	t.Log("Test that LegacyNeedsUpdate probes the candidate section twice")
	probe := &fakeCBFSProbe{}
	current := []byte{0} // current lacks the tag; a correct has_from probe would veto
	candidate := []byte{1}

	got := apupdater.LegacyNeedsUpdate(probe, current, candidate, "cros_allow_auto_update", "")
	if !got {
		t.Fatalf("Expected true (bug makes has_from track the candidate). Except: true But: false")
	}
	if len(probe.calls) != 2 {
		t.Fatalf("Expected exactly 2 probe calls. Except: 2 But: %d", len(probe.calls))
	}
	for i, c := range probe.calls {
		if len(c) == 0 || c[0] != 1 {
			t.Fatalf("Call %d probed something other than the candidate section: %v", i, c)
		}
	}
}

// TestLegacyNeedsUpdateNoTag checks the no-update path: a candidate whose
// RW_LEGACY carries no cros_allow_auto_update entry never requests a
// legacy write.
func TestLegacyNeedsUpdateNoTag(t *testing.T) {
	t.Log("Test that a tag-less candidate section reports no update")
	probe := &fakeCBFSProbe{}

	got := apupdater.LegacyNeedsUpdate(probe, []byte{1}, []byte{0}, "cros_allow_auto_update", "")
	if got {
		t.Fatalf("Expected no legacy update without the sentinel. Except: false But: true")
	}
}
