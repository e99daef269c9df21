package apupdater

import (
	"fmt"

	"apupdater/sysprobe"
)

// DecideRWTarget picks which RW slot to update and which to leave as the
// active/self slot, the way decide_rw_target does: vboot1 images always
// target B (A is "self"); vboot2 images target the inactive slot. An
// unknown active slot on a vboot2 image returns an error, since there is
// no safe default.
func DecideRWTarget(probe sysprobe.Probe, vboot2 bool) (target, self string, err error) {
	if !vboot2 {
		return SectionRWSectionB, SectionRWSectionA, nil
	}
	act, err := probe.Get(sysprobe.MainFWAct)
	if err != nil {
		return "", "", fmt.Errorf("decide target: %w", err)
	}
	switch act {
	case 0: // A active
		return SectionRWSectionB, SectionRWSectionA, nil
	case 1: // B active
		return SectionRWSectionA, SectionRWSectionB, nil
	default:
		return "", "", fmt.Errorf("decide target: unknown active firmware slot %d", act)
	}
}

// sectionToTrySlot maps an RW section name to the "A"/"B" token crossystem
// expects for fw_try_next, matching set_try_cookies' name lookup.
func sectionToTrySlot(section string) (string, error) {
	switch section {
	case SectionRWSectionA:
		return "A", nil
	case SectionRWSectionB:
		return "B", nil
	default:
		return "", fmt.Errorf("set try cookies: unrecognized target section %q", section)
	}
}

// SetTryCookies arms the next boot to try targetSection, setting try
// counts per set_try_cookies: 6 base tries, +2 when an EC image is also
// being staged (the EC needs extra boot attempts to complete software
// sync). fw_try_count is always set; fw_try_next is the vboot2-only
// addition. emulate, when true, only logs what would be done instead of
// touching the live system, matching the emulation-mode short-circuit.
func SetTryCookies(probe sysprobe.Probe, targetSection string, vboot2, hasECImage, emulate bool) error {
	slot, err := sectionToTrySlot(targetSection)
	if err != nil {
		return err
	}
	tries := 6
	if hasECImage {
		tries += 2
	}

	if emulate {
		fmt.Printf("(emulation) would set try_count=%d for slot %s\n", tries, slot)
		return nil
	}

	if vboot2 {
		if err := probe.SetFWTryNext(slot); err != nil {
			return fmt.Errorf("set try cookies: %w", err)
		}
	}
	if err := probe.SetFWTryCount(tries); err != nil {
		return fmt.Errorf("set try cookies: %w", err)
	}
	return nil
}

// ClearTryCookiesIfUnneeded clears fwb_tries on a vboot1 system when no
// update was actually performed, matching update_try_rw_firmware's
// "no update needed" cleanup path so a stale try-count doesn't linger.
func ClearTryCookiesIfUnneeded(probe sysprobe.Probe, vboot2 bool) error {
	if vboot2 {
		return nil
	}
	return probe.SetFWBTries(0)
}
