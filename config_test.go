package apupdater_test

import (
	"testing"

	apupdater "apupdater"
	"apupdater/sysprobe"
)

func TestSetupModeStrings(t *testing.T) {
	t.Log("Test that Setup's mode string maps to the right flags")
	dir := t.TempDir()

	cfg := apupdater.NewConfig(&fakeOrchProbe{values: map[sysprobe.Property]int{}}, &fakeFlasher{})
	args := &apupdater.Arguments{Mode: "autoupdate", ArchivePath: dir}
	if err := apupdater.Setup(cfg, args); err != nil {
		t.Fatalf("Setup failed. Except: nil But: %v", err)
	}
	if !cfg.TryUpdate {
		t.Fatalf("Expected autoupdate mode to set TryUpdate")
	}

	cfg2 := apupdater.NewConfig(&fakeOrchProbe{values: map[sysprobe.Property]int{}}, &fakeFlasher{})
	args2 := &apupdater.Arguments{Mode: "legacy", ArchivePath: dir}
	if err := apupdater.Setup(cfg2, args2); err != nil {
		t.Fatalf("Setup failed. Except: nil But: %v", err)
	}
	if !cfg2.LegacyUpdate {
		t.Fatalf("Expected legacy mode to set LegacyUpdate")
	}
}

func TestSetupFactoryModeDisablesWPAndTryUpdate(t *testing.T) {
	t.Log("Test that factory mode forces write protection off and TryUpdate off")
	dir := t.TempDir()
	probe := &fakeOrchProbe{values: map[sysprobe.Property]int{
		sysprobe.WPHW: 1,
		sysprobe.WPSW: 1,
	}}
	cfg := apupdater.NewConfig(probe, &fakeFlasher{})
	args := &apupdater.Arguments{Mode: "factory", TryUpdate: true, ArchivePath: dir}
	if err := apupdater.Setup(cfg, args); err != nil {
		t.Fatalf("Setup failed. Except: nil But: %v", err)
	}
	if cfg.TryUpdate {
		t.Fatalf("Expected factory mode to clear TryUpdate")
	}
	wpHW, _ := cfg.Probe.Get(sysprobe.WPHW)
	wpSW, _ := cfg.Probe.Get(sysprobe.WPSW)
	if wpHW != 0 || wpSW != 0 {
		t.Fatalf("Expected factory mode to force write protection off. Except: 0/0 But: %d/%d", wpHW, wpSW)
	}
}

func TestSetupWriteProtectionOverridesSysProps(t *testing.T) {
	t.Log("Test that --write-protection wins over --sys-props for the same property")
	dir := t.TempDir()
	cfg := apupdater.NewConfig(&fakeOrchProbe{values: map[sysprobe.Property]int{}}, &fakeFlasher{})
	args := &apupdater.Arguments{
		SysProps:        "wpsw_cur=1,wpsw_hw=1",
		WriteProtection: "0",
		ArchivePath:     dir,
	}
	if err := apupdater.Setup(cfg, args); err != nil {
		t.Fatalf("Setup failed. Except: nil But: %v", err)
	}
	wpHW, _ := cfg.Probe.Get(sysprobe.WPHW)
	wpSW, _ := cfg.Probe.Get(sysprobe.WPSW)
	if wpHW != 0 || wpSW != 0 {
		t.Fatalf("Expected write-protection override to win. Except: 0/0 But: %d/%d", wpHW, wpSW)
	}
}

func TestSetupFactoryRejectsWriteProtectionReenabled(t *testing.T) {
	t.Log("Test that a later --write-protection=1 fails factory mode's post-load check")
	dir := t.TempDir()
	cfg := apupdater.NewConfig(&fakeOrchProbe{values: map[sysprobe.Property]int{}}, &fakeFlasher{})
	args := &apupdater.Arguments{
		Mode:            "factory",
		WriteProtection: "1",
		ArchivePath:     dir,
	}
	if err := apupdater.Setup(cfg, args); err == nil {
		t.Fatalf("Expected an error when write protection ends up enabled in factory mode")
	}
}

func TestSetupUnknownQuirkFails(t *testing.T) {
	t.Log("Test that an unrecognized --quirks name is rejected")
	dir := t.TempDir()
	cfg := apupdater.NewConfig(&fakeOrchProbe{values: map[sysprobe.Property]int{}}, &fakeFlasher{})
	args := &apupdater.Arguments{Quirks: "not_a_real_quirk=1", ArchivePath: dir}
	if err := apupdater.Setup(cfg, args); err == nil {
		t.Fatalf("Expected an error for an unknown quirk name")
	}
}

func TestSetupQuirkListSetsValue(t *testing.T) {
	t.Log("Test that a --quirks entry sets the named quirk's value")
	dir := t.TempDir()
	cfg := apupdater.NewConfig(&fakeOrchProbe{values: map[sysprobe.Property]int{}}, &fakeFlasher{})
	args := &apupdater.Arguments{Quirks: "min_platform_version=3", ArchivePath: dir}
	if err := apupdater.Setup(cfg, args); err != nil {
		t.Fatalf("Setup failed. Except: nil But: %v", err)
	}
	if !cfg.Quirks.IsSet(apupdater.QuirkMinPlatformVersion) || cfg.Quirks.Get(apupdater.QuirkMinPlatformVersion) != 3 {
		t.Fatalf("Expected min_platform_version=3 to be set")
	}
}
