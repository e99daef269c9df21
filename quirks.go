package apupdater

import "fmt"

// QuirkType is the closed set of board-specific behavior overrides the
// updater supports, matching enum quirk_types. New quirks are added here,
// never registered dynamically, so every build supports exactly the same
// quirk set regardless of which board invokes it.
type QuirkType int

const (
	QuirkEnlargeImage QuirkType = iota
	QuirkMinPlatformVersion
	QuirkUnlockMEForUpdate
	QuirkDaisySnowDualModel
	QuirkEveSMMStore
	quirkMax
)

// QuirkEntry names one quirk, its help text, and its configured value (0
// means "not set"/disabled unless the quirk's own semantics say otherwise).
type QuirkEntry struct {
	Name  string
	Help  string
	Value int
	set   bool
}

var quirkDefs = [quirkMax]QuirkEntry{
	QuirkEnlargeImage: {
		Name: "enlarge_image",
		Help: "Enlarge firmware image to match flash size, needed when the current flash chip is bigger than the image to update.",
	},
	QuirkMinPlatformVersion: {
		Name: "min_platform_version",
		Help: "Minimum compatible platform version (inclusive).",
	},
	QuirkUnlockMEForUpdate: {
		Name: "unlock_me_for_update",
		Help: "Unlock ME (Intel Management Engine) region for update.",
	},
	QuirkDaisySnowDualModel: {
		Name: "daisy_snow_dual_model",
		Help: "Allow using legacy dual-model mechanism for Daisy and Snow boards.",
	},
	QuirkEveSMMStore: {
		Name: "eve_smm_store",
		Help: "Fix SMM store for Eve build prior to 0.0.5.",
	},
}

// QuirkSet is a per-update-run set of quirk values, keyed by the closed
// QuirkType enum via a fixed-size dispatch table, matching
// struct quirk_entry quirks[QUIRK_MAX] in updater_config.
type QuirkSet struct {
	entries [quirkMax]QuirkEntry
}

// NewQuirkSet returns a QuirkSet with every quirk's name/help populated
// from quirkDefs and no values set.
func NewQuirkSet() *QuirkSet {
	qs := &QuirkSet{}
	copy(qs.entries[:], quirkDefs[:])
	return qs
}

// Set assigns a quirk's value and marks it active.
func (qs *QuirkSet) Set(t QuirkType, value int) error {
	if t < 0 || t >= quirkMax {
		return fmt.Errorf("quirks: unknown quirk %d", t)
	}
	qs.entries[t].Value = value
	qs.entries[t].set = true
	return nil
}

// Get returns a quirk's configured value, or 0 if it was never set,
// matching get_config_quirk's "unset reads as zero" behavior.
func (qs *QuirkSet) Get(t QuirkType) int {
	if t < 0 || t >= quirkMax {
		return 0
	}
	return qs.entries[t].Value
}

// IsSet reports whether a quirk has been explicitly configured.
func (qs *QuirkSet) IsSet(t QuirkType) bool {
	if t < 0 || t >= quirkMax {
		return false
	}
	return qs.entries[t].set
}

// List returns every known quirk's name, help text, and current value, in
// QuirkType order, for updater_list_config_quirks' --quirks=? verb.
func (qs *QuirkSet) List() []QuirkEntry {
	out := make([]QuirkEntry, quirkMax)
	copy(out, qs.entries[:])
	return out
}

// quirkName maps a quirk name string (as given in the comma-separated
// --quirks argument) back to its QuirkType.
func quirkName(name string) (QuirkType, bool) {
	for t, d := range quirkDefs {
		if d.Name == name {
			return QuirkType(t), true
		}
	}
	return 0, false
}
