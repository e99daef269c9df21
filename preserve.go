package apupdater

import (
	"fmt"

	"apupdater/gbbutil"
)

// optionalPreserveSections are copied from the current image to the new
// one when present in both, but their absence is not an error, matching
// preserve_images' trailing optional_sections list. "RO_FSG" is kept as a
// legacy alias the way the original still checks it.
var optionalPreserveSections = []string{
	SectionROPreserve,
	SectionRWPreserve,
	SectionRWNVRAM,
	SectionRWELog,
	SectionRWSMMStore,
	sectionROFSGLegacy,
}

// PreserveGBB copies the GBB section's HWID from imageFrom into imageTo,
// per preserve_gbb. The GBB flags are not copied: imageTo keeps its own
// flags. The HWID is zero-filled in the
// destination before the copy, and the copy fails if the source HWID
// (including its terminator) does not fit the destination's hwid_size;
// note the check is strictly "len >= hwid_size", as in the original, so a
// HWID exactly filling the destination field with no room for its NUL
// terminator is rejected, not truncated.
func PreserveGBB(imageFrom, imageTo *Image) error {
	fromSec, err := FindSection(imageFrom, SectionGBB)
	if err != nil {
		return fmt.Errorf("preserve GBB: source: %w", err)
	}
	toSec, err := FindSection(imageTo, SectionGBB)
	if err != nil {
		return fmt.Errorf("preserve GBB: destination: %w", err)
	}
	fromData, err := fromSec.Data(imageFrom)
	if err != nil {
		return fmt.Errorf("preserve GBB: %w", err)
	}
	toData, err := toSec.Data(imageTo)
	if err != nil {
		return fmt.Errorf("preserve GBB: %w", err)
	}

	fromGBB, err := gbbutil.Find(fromData)
	if err != nil {
		return fmt.Errorf("preserve GBB: parse source: %w", err)
	}
	toGBB, err := gbbutil.Find(toData)
	if err != nil {
		return fmt.Errorf("preserve GBB: parse destination: %w", err)
	}

	hwid := fromGBB.HWID()
	if uint32(len(hwid)) >= toGBB.Header.HWIDSize {
		return fmt.Errorf("preserve GBB: HWID %q (%d bytes) does not fit destination field of %d bytes",
			hwid, len(hwid), toGBB.Header.HWIDSize)
	}
	if err := toGBB.SetHWID(hwid); err != nil {
		return fmt.Errorf("preserve GBB: %w", err)
	}
	return nil
}

// PreserveManagementEngine preserves the Intel Management Engine region:
// if SI_ME in imageFrom is entirely 0xFF (the ME region is locked),
// SI_DESC is preserved instead of SI_ME; otherwise SI_ME in imageTo is left
// untouched whether or not QuirkUnlockMEForUpdate is set, matching
// preserve_management_engine.
func PreserveManagementEngine(imageFrom, imageTo *Image, quirks *QuirkSet) error {
	meSection, err := FindSection(imageFrom, SectionSIME)
	if err != nil {
		// No ME region on this board at all; nothing to preserve.
		return nil
	}
	filled, err := meSection.IsFilledWith(imageFrom, 0xff)
	if err != nil {
		return fmt.Errorf("preserve ME: %w", err)
	}
	if filled {
		if HasSection(imageFrom, SectionSIDesc) && HasSection(imageTo, SectionSIDesc) {
			return PreserveSection(imageFrom, imageTo, SectionSIDesc)
		}
		return nil
	}
	if quirks.Get(QuirkUnlockMEForUpdate) != 0 {
		// unlock_me_for_update has no apply step in this build; when it
		// is configured, the new image's SI_ME is used as shipped.
		return nil
	}
	// ME is unlocked and no quirk is configured: nothing to preserve,
	// the new image's SI_ME is used as shipped.
	return nil
}

// PreserveImages runs the full preservation policy (GBB, ME/SI_DESC,
// RO_VPD, RW_VPD unconditionally, then every optionalPreserveSections
// entry best-effort), copying state from imageFrom into imageTo before a
// whole-image write. Every individual failure is collected rather than
// treated as fatal, matching preserve_images' errcnt accounting: the
// caller logs the returned errors but proceeds with the write regardless.
func PreserveImages(imageFrom, imageTo *Image, quirks *QuirkSet) []error {
	var errs []error

	if err := PreserveGBB(imageFrom, imageTo); err != nil {
		errs = append(errs, err)
	}
	if err := PreserveManagementEngine(imageFrom, imageTo, quirks); err != nil {
		errs = append(errs, err)
	}
	if err := PreserveSection(imageFrom, imageTo, SectionROVPD); err != nil {
		errs = append(errs, err)
	}
	if err := PreserveSection(imageFrom, imageTo, SectionRWVPD); err != nil {
		errs = append(errs, err)
	}
	for _, name := range optionalPreserveSections {
		if !HasSection(imageFrom, name) || !HasSection(imageTo, name) {
			continue
		}
		if err := PreserveSection(imageFrom, imageTo, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
