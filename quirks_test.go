package apupdater_test

import (
	"testing"

	apupdater "apupdater"
)

func TestQuirkSetDefaultsUnset(t *testing.T) {
	t.Log("Test that a fresh QuirkSet reports every quirk unset with value 0")
	qs := apupdater.NewQuirkSet()
	if qs.IsSet(apupdater.QuirkMinPlatformVersion) {
		t.Fatalf("Expected QuirkMinPlatformVersion unset by default")
	}
	if got := qs.Get(apupdater.QuirkMinPlatformVersion); got != 0 {
		t.Fatalf("Wrong default value. Except: 0 But: %d", got)
	}
}

func TestQuirkSetSetAndGet(t *testing.T) {
	t.Log("Test that Set marks a quirk active and stores its value")
	qs := apupdater.NewQuirkSet()
	if err := qs.Set(apupdater.QuirkMinPlatformVersion, 5); err != nil {
		t.Fatalf("Set failed. Except: nil But: %v", err)
	}
	if !qs.IsSet(apupdater.QuirkMinPlatformVersion) {
		t.Fatalf("Expected QuirkMinPlatformVersion to be set")
	}
	if got := qs.Get(apupdater.QuirkMinPlatformVersion); got != 5 {
		t.Fatalf("Wrong value. Except: 5 But: %d", got)
	}
}

func TestQuirkSetRejectsOutOfRange(t *testing.T) {
	t.Log("Test that Set rejects a QuirkType outside the closed enum")
	qs := apupdater.NewQuirkSet()
	if err := qs.Set(apupdater.QuirkType(999), 1); err == nil {
		t.Fatalf("Expected an error for an out-of-range quirk. Except: error But: nil")
	}
}

func TestQuirkSetListIncludesEveryQuirk(t *testing.T) {
	t.Log("Test that List returns every known quirk with its name and help text populated")
	qs := apupdater.NewQuirkSet()
	entries := qs.List()
	if len(entries) == 0 {
		t.Fatalf("Expected at least one quirk entry")
	}
	for i, e := range entries {
		if e.Name == "" {
			t.Fatalf("Quirk %d has no name", i)
		}
		if e.Help == "" {
			t.Fatalf("Quirk %q has no help text", e.Name)
		}
	}
}
