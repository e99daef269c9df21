package apupdater

import (
	"fmt"
	"strings"

	"apupdater/gbbutil"
	"apupdater/sysprobe"
	"apupdater/vboot"
)

// CheckCompatiblePlatform reports whether toImage's RO version string
// shares the same dot-prefixed platform name as fromImage's, the way
// check_compatible_platform compares "board.N" prefixes up to the first
// dot. Either image missing a dot in its RO version is a failure.
func CheckCompatiblePlatform(fromImage, toImage *Image) bool {
	fromPrefix, ok1 := platformPrefix(fromImage.ROVersion)
	toPrefix, ok2 := platformPrefix(toImage.ROVersion)
	if !ok1 || !ok2 {
		return false
	}
	return fromPrefix == toPrefix
}

func platformPrefix(version string) (string, bool) {
	i := strings.IndexByte(version, '.')
	if i < 0 {
		return "", false
	}
	return version[:i], true
}

// rootKeyOf extracts the GBB root key from an image's GBB section.
func rootKeyOf(img *Image) (*vboot.PackedKey, error) {
	sec, err := FindSection(img, SectionGBB)
	if err != nil {
		return nil, err
	}
	data, err := sec.Data(img)
	if err != nil {
		return nil, err
	}
	gbb, err := gbbutil.Find(data)
	if err != nil {
		return nil, fmt.Errorf("parse GBB: %w", err)
	}
	return vboot.ParsePackedKey(gbb.RootKey())
}

func keyblockOf(img *Image, sectionName string) (*vboot.Keyblock, []byte, error) {
	sec, err := FindSection(img, sectionName)
	if err != nil {
		return nil, nil, err
	}
	data, err := sec.Data(img)
	if err != nil {
		return nil, nil, err
	}
	kb, err := vboot.ParseKeyblock(data)
	if err != nil {
		return nil, nil, err
	}
	return kb, data, nil
}

// CheckCompatibleRootKey verifies that rwImage's VBLOCK_A keyblock is
// signed by roImage's GBB root key, per check_compatible_root_key. On
// failure it returns an error carrying both keys' SHA-1 fingerprints and a
// flag for whether the two root keys are byte-identical, the same "maybe
// RW corrupted" hint the original prints.
func CheckCompatibleRootKey(roImage, rwImage *Image) error {
	rootKey, err := rootKeyOf(roImage)
	if err != nil {
		return fmt.Errorf("root key: %w", err)
	}
	kb, _, err := keyblockOf(rwImage, SectionRWVBlockA)
	if err != nil {
		return fmt.Errorf("keyblock: %w", err)
	}

	verifyErr := kb.Dupe().Verify(rootKey)
	if verifyErr == nil {
		return nil
	}

	rwRootKey, rwErr := rootKeyOf(rwImage)
	msg := fmt.Sprintf("RO root key (%s) cannot verify RW keyblock: %v", rootKey.Fingerprint(), verifyErr)
	if rwErr == nil {
		sameKey := rootKey.Equal(rwRootKey)
		msg += fmt.Sprintf("; RW image's own root key fingerprint is %s (maybe RW corrupted: %v)",
			rwRootKey.Fingerprint(), sameKey)
	}
	return fmt.Errorf("%s", msg)
}

// CheckCompatibleTPMKeys enforces the TPM anti-rollback invariant:
// tpm_fwver packs (data_key_version<<16 | firmware_version) from the last
// successful boot; the candidate image's RW_VBLOCK_A keyblock/preamble
// must name a data key version and firmware version each >= the packed
// halves, matching do_check_compatible_tpm_keys's strict-greater-fails
// logic (an equal version passes; the candidate must never be older).
// forceUpdate lets the caller override a failing check, printing a
// warning, the same as check_compatible_tpm_keys.
func CheckCompatibleTPMKeys(probe sysprobe.Probe, toImage *Image, forceUpdate bool) error {
	_, rawSection, err := keyblockOf(toImage, SectionRWVBlockA)
	if err != nil {
		return fmt.Errorf("tpm check: %w", err)
	}
	dataKeyVersion, firmwareVersion, err := vboot.KeyVersions(rawSection)
	if err != nil {
		return fmt.Errorf("tpm check: %w", err)
	}

	packed, err := probe.Get(sysprobe.TPMFwVer)
	if err != nil {
		return fmt.Errorf("tpm check: read tpm_fwver: %w", err)
	}
	tpmDataKeyVersion := uint32(packed>>16) & 0xffff
	tpmFirmwareVersion := uint32(packed) & 0xffff

	if dataKeyVersion < tpmDataKeyVersion || firmwareVersion < tpmFirmwareVersion {
		err := fmt.Errorf(
			"candidate image (data key %d, firmware %d) is older than TPM anti-rollback record (data key %d, firmware %d)",
			dataKeyVersion, firmwareVersion, tpmDataKeyVersion, tpmFirmwareVersion)
		if forceUpdate {
			fmt.Printf("WARNING: %v (forced update, continuing anyway)\n", err)
			return nil
		}
		return err
	}
	return nil
}
