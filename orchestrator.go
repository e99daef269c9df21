package apupdater

import (
	"fmt"
	"os"

	"apupdater/sysprobe"
)

// UpdateFirmware is the single entry point: it selects and runs one of the
// four update strategies against cfg, matching update_firmware's decision
// tree in full:
//
//	if legacy_update      → Strategy A (legacy-only)
//	if try_update:
//	   run Strategy B; if it returns ErrNeedROUpdate, fall through
//	if wp_enabled         → Strategy C (RW-only)
//	else                  → Strategy D (full)
func UpdateFirmware(cfg *Config) ErrorCode {
	if cfg.Image == nil {
		return ErrNoImage
	}

	if cfg.Quirks.IsSet(QuirkMinPlatformVersion) {
		min := cfg.Quirks.Get(QuirkMinPlatformVersion)
		ver, err := cfg.Probe.Get(sysprobe.PlatformVersion)
		if err != nil {
			cfg.Errorf("read platform version: %v", err)
			return ErrPlatform
		}
		if ver < min {
			cfg.Errorf("platform version %d below required minimum %d", ver, min)
			return ErrPlatform
		}
	}

	if cfg.ImageCurrent == nil {
		current, err := readCurrentImage(cfg)
		if err != nil {
			cfg.Errorf("read current firmware: %v", err)
			return ErrSystemImage
		}
		cfg.ImageCurrent = current
	}

	if cfg.Verbosity > 0 {
		printSystemProperties(cfg)
	}

	if !CheckCompatiblePlatform(cfg.ImageCurrent, cfg.Image) {
		cfg.Errorf("platform mismatch: current=%q candidate=%q",
			cfg.ImageCurrent.ROVersion, cfg.Image.ROVersion)
		return ErrPlatform
	}

	if cfg.LegacyUpdate {
		return strategyLegacyOnly(cfg)
	}

	if cfg.TryUpdate {
		code := strategyTryRW(cfg)
		if code != ErrNeedROUpdate {
			return code
		}
		cfg.Debugf("try-RW needs a RO update, falling through to full update")
	}

	enabled, err := wpEnabled(cfg)
	if err != nil {
		cfg.Errorf("read write-protect status: %v", err)
		return ErrSystemImage
	}
	if enabled {
		return strategyRWOnly(cfg)
	}
	return strategyFull(cfg)
}

// printSystemProperties scans and dumps every system property, matching
// print_system_properties. Probing may itself print errors, so the whole
// set is fetched first and printed afterwards.
func printSystemProperties(cfg *Config) {
	props := sysprobe.Properties()
	values := make(map[sysprobe.Property]int, len(props))
	for _, p := range props {
		v, err := cfg.Probe.Get(p)
		if err != nil {
			v = -1
		}
		values[p] = v
	}
	fmt.Print("System properties: [")
	for i, p := range props {
		if i > 0 {
			fmt.Print(",")
		}
		fmt.Printf("%s=%d", p, values[p])
	}
	fmt.Println("]")
}

// readCurrentImage dumps the live host firmware through the Flasher and
// loads it as an Image, matching update_firmware's fallback when no
// current image was supplied on the command line.
func readCurrentImage(cfg *Config) (*Image, error) {
	tmp, err := cfg.NewTempFile()
	if err != nil {
		return nil, err
	}
	if err := cfg.Flasher.Read(cfg.Image.Programmer, tmp); err != nil {
		return nil, fmt.Errorf("dump current firmware: %w", err)
	}
	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("read dumped firmware: %w", err)
	}
	return NewImage(cfg.Image.Programmer, tmp, data)
}

// wpEnabled computes the effective write-protect state: WP_HW disabled
// means disabled outright; otherwise WP_SW decides, with any probe error
// biased toward "enabled" (the safer assumption), matching the original's
// wp_hw-then-wp_sw cascade.
func wpEnabled(cfg *Config) (bool, error) {
	hw, err := cfg.Probe.Get(sysprobe.WPHW)
	if err == nil && hw == 0 {
		return false, nil
	}
	sw, err := cfg.Probe.Get(sysprobe.WPSW)
	if err != nil {
		return true, nil
	}
	return sw != 0, nil
}

// strategyLegacyOnly is Strategy A: write RW_LEGACY from the candidate
// with no slot manipulation at all.
func strategyLegacyOnly(cfg *Config) ErrorCode {
	if err := writeFirmware(cfg, cfg.Image, SectionRWLegacy); err != nil {
		cfg.Errorf("write RW_LEGACY: %v", err)
		return ErrWriteFirmware
	}
	return ErrDone
}

// strategyTryRW is Strategy B. It may return ErrNeedROUpdate, which the
// caller must treat as "fall through to Strategy D", not as a final
// outcome.
func strategyTryRW(cfg *Config) ErrorCode {
	// Preservation otherwise only runs for the whole-image strategies, but
	// GBB must still survive a try-RW write so the in-flight candidate
	// doesn't clobber HWID.
	if err := PreserveGBB(cfg.ImageCurrent, cfg.Image); err != nil {
		cfg.Debugf("preserve GBB before try-RW: %v", err)
	}

	wp, err := wpEnabled(cfg)
	if err != nil {
		cfg.Errorf("read write-protect status: %v", err)
		return ErrSystemImage
	}
	if !wp {
		roDiffers, err := CompareSection(cfg.ImageCurrent, cfg.Image, SectionROSection)
		if err != nil {
			cfg.Errorf("compare RO: %v", err)
			return ErrInvalidImage
		}
		if roDiffers {
			return ErrNeedROUpdate
		}
	}

	if err := CheckCompatibleRootKey(cfg.ImageCurrent, cfg.Image); err != nil {
		cfg.Errorf("root key check: %v", err)
		return ErrRootKey
	}
	if err := CheckCompatibleTPMKeys(cfg.Probe, cfg.Image, cfg.ForceUpdate); err != nil {
		cfg.Errorf("TPM rollback check: %v", err)
		return ErrTPMRollback
	}

	vboot2, err := isVboot2(cfg.Probe)
	if err != nil {
		cfg.Errorf("read vboot generation: %v", err)
		return ErrSystemImage
	}
	target, self, err := DecideRWTarget(cfg.Probe, vboot2)
	if err != nil {
		cfg.Errorf("decide RW target: %v", err)
		return ErrTarget
	}

	selfDiffers, err := CompareSection(cfg.ImageCurrent, cfg.Image, self)
	if err != nil {
		cfg.Errorf("compare self slot: %v", err)
		return ErrInvalidImage
	}

	if cfg.ForceUpdate || selfDiffers {
		if err := writeFirmware(cfg, cfg.Image, target); err != nil {
			cfg.Errorf("write %s: %v", target, err)
			return ErrWriteFirmware
		}
		if err := SetTryCookies(cfg.Probe, target, vboot2, cfg.ECImage != nil, cfg.Emulation != ""); err != nil {
			cfg.Errorf("set try cookies: %v", err)
			return ErrSetCookies
		}
	} else if !vboot2 {
		if err := ClearTryCookiesIfUnneeded(cfg.Probe, vboot2); err != nil {
			cfg.Debugf("clear try cookies: %v", err)
		}
	}

	legacyDiffers, err := CompareSection(cfg.ImageCurrent, cfg.Image, SectionRWLegacy)
	if err == nil && legacyDiffers && HasSection(cfg.ImageCurrent, SectionRWLegacy) && HasSection(cfg.Image, SectionRWLegacy) {
		curSec, curErr := FindSection(cfg.ImageCurrent, SectionRWLegacy)
		newSec, newErr := FindSection(cfg.Image, SectionRWLegacy)
		if curErr == nil && newErr == nil {
			curData, _ := curSec.Data(cfg.ImageCurrent)
			newData, _ := newSec.Data(cfg.Image)
			if LegacyNeedsUpdate(cfg.CBFSProbe, curData, newData, "cros_allow_auto_update", "") {
				if err := writeOptionalFirmware(cfg, cfg.Image, SectionRWLegacy); err != nil {
					// Legacy-write failure is non-fatal in try-RW mode.
					cfg.Debugf("write RW_LEGACY during try-RW: %v", err)
				}
			}
		}
	}

	return ErrDone
}

// strategyRWOnly is Strategy C: write RW_SECTION_A, RW_SECTION_B, and
// RW_SHARED unconditionally, in that order, then RW_LEGACY only if the
// candidate carries it. Any write failure aborts immediately.
func strategyRWOnly(cfg *Config) ErrorCode {
	if err := CheckCompatibleRootKey(cfg.ImageCurrent, cfg.Image); err != nil {
		cfg.Errorf("root key check: %v", err)
		return ErrRootKey
	}
	if err := CheckCompatibleTPMKeys(cfg.Probe, cfg.Image, cfg.ForceUpdate); err != nil {
		cfg.Errorf("TPM rollback check: %v", err)
		return ErrTPMRollback
	}

	order := []string{SectionRWSectionA, SectionRWSectionB, SectionRWShared}
	for _, section := range order {
		if err := writeFirmware(cfg, cfg.Image, section); err != nil {
			cfg.Errorf("write %s: %v", section, err)
			return ErrWriteFirmware
		}
	}
	if HasSection(cfg.Image, SectionRWLegacy) {
		if err := writeFirmware(cfg, cfg.Image, SectionRWLegacy); err != nil {
			cfg.Errorf("write RW_LEGACY: %v", err)
			return ErrWriteFirmware
		}
	}
	return ErrDone
}

// strategyFull is Strategy D: best-effort preservation, TPM rollback
// check, then a whole-image write through the host programmer, followed
// by EC and PD images (each through its own programmer) when present.
// FMAP drift between current and candidate makes a section-by-section
// write unsafe here, hence the whole-image write.
func strategyFull(cfg *Config) ErrorCode {
	for _, err := range PreserveImages(cfg.ImageCurrent, cfg.Image, cfg.Quirks) {
		cfg.Debugf("preserve: %v", err)
	}

	if err := CheckCompatibleTPMKeys(cfg.Probe, cfg.Image, cfg.ForceUpdate); err != nil {
		cfg.Errorf("TPM rollback check: %v", err)
		return ErrTPMRollback
	}

	if err := writeFirmware(cfg, cfg.Image, ""); err != nil {
		cfg.Errorf("write whole image: %v", err)
		return ErrWriteFirmware
	}

	if cfg.ECImage != nil {
		if err := writeFirmware(cfg, cfg.ECImage, ""); err != nil {
			cfg.Errorf("write EC image: %v", err)
			return ErrWriteFirmware
		}
	}
	if cfg.PDImage != nil {
		if err := writeFirmware(cfg, cfg.PDImage, ""); err != nil {
			cfg.Errorf("write PD image: %v", err)
			return ErrWriteFirmware
		}
	}
	return ErrDone
}

// isVboot2 reads the FW_VBOOT2 system property as a bool.
func isVboot2(probe sysprobe.Probe) (bool, error) {
	v, err := probe.Get(sysprobe.FWVboot2)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// writeFirmware materializes img (or, when section is non-empty, just
// that named section) to a temp file and writes it through the Flasher,
// or, under emulation, patches the emulation file in place instead of
// touching real hardware, matching write_firmware's two code paths.
func writeFirmware(cfg *Config, img *Image, section string) error {
	if cfg.Emulation != "" {
		return writeEmulated(cfg, img, section)
	}

	data := img.Data
	if section != "" {
		sec, err := FindSection(img, section)
		if err != nil {
			return err
		}
		data, err = sec.Data(img)
		if err != nil {
			return err
		}
	}

	tmp, err := cfg.NewTempFile()
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("stage write buffer: %w", err)
	}
	return cfg.Flasher.Write(img.Programmer, tmp, section)
}

// writeOptionalFirmware is writeFirmware's silent-success sibling: a
// missing section (or an image with no data at all) is not an error,
// matching write_optional_firmware.
func writeOptionalFirmware(cfg *Config, img *Image, section string) error {
	if img == nil || len(img.Data) == 0 {
		return nil
	}
	if section != "" && !HasSection(img, section) {
		return nil
	}
	return writeFirmware(cfg, img, section)
}

// writeEmulated loads cfg.Emulation as a stand-in image, copies
// min(candidate, emulation) bytes of the named section (or whole buffer)
// into it, and writes the emulation file back: write_firmware's
// emulation-mode path, used so dry runs never touch real hardware.
func writeEmulated(cfg *Config, img *Image, section string) error {
	emuData, err := os.ReadFile(cfg.Emulation)
	if err != nil {
		return fmt.Errorf("read emulation file: %w", err)
	}
	emu, err := NewImage(img.Programmer, cfg.Emulation, emuData)
	if err != nil {
		return fmt.Errorf("parse emulation file: %w", err)
	}

	srcData := img.Data
	dstData := emu.Data
	if section != "" {
		srcSec, err := FindSection(img, section)
		if err != nil {
			return err
		}
		dstSec, err := FindSection(emu, section)
		if err != nil {
			return err
		}
		srcData, err = srcSec.Data(img)
		if err != nil {
			return err
		}
		dstData, err = dstSec.Data(emu)
		if err != nil {
			return err
		}
	}

	n := len(srcData)
	if len(dstData) < n {
		n = len(dstData)
	}
	copy(dstData, srcData[:n])
	return os.WriteFile(cfg.Emulation, emu.Data, 0o600)
}
