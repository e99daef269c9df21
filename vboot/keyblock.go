// Package vboot decodes the vboot2 keyblock + firmware preamble pair that
// signs an RW firmware section, and verifies a keyblock against a packed
// public key the way verify_keyblock/dupe_keyblock do: verification is
// destructive on its input, so callers must always present a defensive
// copy.
package vboot

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	keyblockMagic     = "CHROMEOS"
	packedKeyHeaderSz = 4 * 4 // algorithm, key_version, key_offset, key_size
	keyblockHeaderSz  = 8 + 4 + 4 + 4 + 4 + packedKeyHeaderSz + 4 + 4
	preambleHeaderSz  = 4 + 4 + 4 + 4 + packedKeyHeaderSz
)

// PackedKey is the self-describing public-key wrapper vboot stores inside
// the GBB root key field and the keyblock's VBLOCK_A data key field: a
// small header plus key_size bytes of opaque key material starting at
// key_offset relative to the start of the packed key structure.
type PackedKey struct {
	Algorithm  uint32
	KeyVersion uint32
	KeyOffset  uint32
	KeySize    uint32

	raw []byte // the full structure, header + key material
}

// ParsePackedKey decodes a PackedKey header from the start of buf. The key
// material itself is addressed by KeyOffset/KeySize into buf and is not
// copied out until KeyData is called.
func ParsePackedKey(buf []byte) (*PackedKey, error) {
	if len(buf) < packedKeyHeaderSz {
		return nil, fmt.Errorf("vboot: buffer too small for packed key header: %d", len(buf))
	}
	k := &PackedKey{
		Algorithm:  binary.LittleEndian.Uint32(buf[0:4]),
		KeyVersion: binary.LittleEndian.Uint32(buf[4:8]),
		KeyOffset:  binary.LittleEndian.Uint32(buf[8:12]),
		KeySize:    binary.LittleEndian.Uint32(buf[12:16]),
		raw:        buf,
	}
	if uint64(k.KeyOffset)+uint64(k.KeySize) > uint64(len(buf)) {
		return nil, fmt.Errorf("vboot: packed key material [%d:%d] exceeds buffer length %d",
			k.KeyOffset, k.KeyOffset+k.KeySize, len(buf))
	}
	return k, nil
}

// KeyData returns the raw public-key material the header describes.
func (k *PackedKey) KeyData() []byte {
	return k.raw[k.KeyOffset : k.KeyOffset+k.KeySize]
}

// Fingerprint returns the SHA-1 hex digest of the key material, the same
// value check_compatible_root_key prints when a root-key mismatch needs to
// be diagnosed.
func (k *PackedKey) Fingerprint() string {
	sum := sha1.Sum(k.KeyData())
	return fmt.Sprintf("%x", sum)
}

// Equal reports whether two packed keys carry byte-identical key material,
// the "maybe RW corrupted" hint check_compatible_root_key performs when the
// RO root key and the RW image's own embedded root key turn out identical.
func (k *PackedKey) Equal(other *PackedKey) bool {
	return bytes.Equal(k.KeyData(), other.KeyData())
}

// Keyblock is the signed header in front of a firmware preamble: it names
// the data key that signs the preamble+body, and is itself signed by the
// root key.
type Keyblock struct {
	Magic              [8]byte
	HeaderVersionMajor uint32
	HeaderVersionMinor uint32
	KeyblockSize       uint32
	KeyblockFlags      uint32
	DataKey            *PackedKey
	KeyblockSigOffset  uint32
	KeyblockSigSize    uint32

	raw []byte // the full keyblock, length KeyblockSize
}

// ParseKeyblock decodes a Keyblock from the start of buf. buf must be at
// least KeyblockSize bytes; trailing bytes (the firmware preamble) are
// ignored here.
func ParseKeyblock(buf []byte) (*Keyblock, error) {
	if len(buf) < keyblockHeaderSz {
		return nil, fmt.Errorf("vboot: buffer too small for keyblock header: %d", len(buf))
	}
	var magic [8]byte
	copy(magic[:], buf[0:8])
	if string(magic[:]) != keyblockMagic {
		return nil, fmt.Errorf("vboot: bad keyblock magic %q", magic)
	}
	kb := &Keyblock{
		Magic:              magic,
		HeaderVersionMajor: binary.LittleEndian.Uint32(buf[8:12]),
		HeaderVersionMinor: binary.LittleEndian.Uint32(buf[12:16]),
		KeyblockSize:       binary.LittleEndian.Uint32(buf[16:20]),
		KeyblockFlags:      binary.LittleEndian.Uint32(buf[20:24]),
	}
	if uint64(kb.KeyblockSize) > uint64(len(buf)) {
		return nil, fmt.Errorf("vboot: keyblock_size %d exceeds buffer length %d", kb.KeyblockSize, len(buf))
	}
	kb.raw = buf[:kb.KeyblockSize]

	dataKey, err := ParsePackedKey(buf[24:kb.KeyblockSize])
	if err != nil {
		return nil, fmt.Errorf("vboot: data key: %w", err)
	}
	kb.DataKey = dataKey

	// The signature header follows the whole data key structure: its
	// header plus the key material it addresses.
	sigHdrStart := 24 + int(dataKey.KeyOffset) + int(dataKey.KeySize)
	if sigHdrStart+8 > len(kb.raw) {
		return nil, fmt.Errorf("vboot: signature header at %d exceeds keyblock size %d", sigHdrStart, len(kb.raw))
	}
	kb.KeyblockSigOffset = binary.LittleEndian.Uint32(buf[sigHdrStart : sigHdrStart+4])
	kb.KeyblockSigSize = binary.LittleEndian.Uint32(buf[sigHdrStart+4 : sigHdrStart+8])
	return kb, nil
}

// Dupe returns a deep, independent copy of the keyblock, the way
// dupe_keyblock does before a destructive verify.
func (kb *Keyblock) Dupe() *Keyblock {
	raw := make([]byte, len(kb.raw))
	copy(raw, kb.raw)
	copied, err := ParseKeyblock(raw)
	if err != nil {
		// kb was already validated once; re-parsing an identical copy
		// of its own bytes cannot fail.
		panic(fmt.Sprintf("vboot: re-parsing duped keyblock: %v", err))
	}
	return copied
}

// Verify checks the keyblock's self-signature against signKey. Like
// vb2_verify_keyblock, this mutates kb's signature bytes as part of
// checking them (the packed signature buffer doubles as scratch space), so
// callers MUST pass a Dupe()'d keyblock, never the original, or a second
// verification attempt (e.g. a retry, or a diagnostic dump after a
// failure) will see corrupted signature data.
func (kb *Keyblock) Verify(signKey *PackedKey) error {
	if kb.KeyblockSigOffset == 0 || kb.KeyblockSigSize == 0 {
		return errors.New("vboot: keyblock has no signature")
	}
	sigStart := int(kb.KeyblockSigOffset)
	sigEnd := sigStart + int(kb.KeyblockSigSize)
	if sigEnd > len(kb.raw) {
		return fmt.Errorf("vboot: signature [%d:%d] exceeds keyblock size %d", sigStart, sigEnd, len(kb.raw))
	}
	signed := kb.raw[:sigStart]
	sig := kb.raw[sigStart:sigEnd]

	ok, err := verifySignature(signKey.KeyData(), signed, sig)
	// Destructive: scrub the signature bytes in place once consumed,
	// mirroring the upstream verifier's use of the signature buffer as
	// scratch space during RSA verification.
	for i := range sig {
		sig[i] = 0
	}
	if err != nil {
		return fmt.Errorf("vboot: verify keyblock: %w", err)
	}
	if !ok {
		return errors.New("vboot: keyblock signature does not verify")
	}
	return nil
}

// Preamble is the firmware version + body signature record immediately
// following a Keyblock in the same VBLOCK section.
type Preamble struct {
	PreambleSize       uint32
	HeaderVersionMajor uint32
	HeaderVersionMinor uint32
	FirmwareVersion    uint32
	KernelSubkey       *PackedKey
}

// ParsePreambleAfter decodes the vb2_fw_preamble immediately following a
// keyblock in the same section buffer, per get_key_versions.
func ParsePreambleAfter(kb *Keyblock, sectionData []byte) (*Preamble, error) {
	if uint64(kb.KeyblockSize) >= uint64(len(sectionData)) {
		return nil, errors.New("vboot: no room for preamble after keyblock")
	}
	buf := sectionData[kb.KeyblockSize:]
	if len(buf) < preambleHeaderSz {
		return nil, fmt.Errorf("vboot: buffer too small for preamble header: %d", len(buf))
	}
	p := &Preamble{
		PreambleSize:       binary.LittleEndian.Uint32(buf[0:4]),
		HeaderVersionMajor: binary.LittleEndian.Uint32(buf[4:8]),
		HeaderVersionMinor: binary.LittleEndian.Uint32(buf[8:12]),
		FirmwareVersion:    binary.LittleEndian.Uint32(buf[12:16]),
	}
	subkey, err := ParsePackedKey(buf[16:])
	if err != nil {
		return nil, fmt.Errorf("vboot: preamble kernel subkey: %w", err)
	}
	p.KernelSubkey = subkey
	return p, nil
}

// KeyVersions returns (data_key_version, firmware_version) for the VBLOCK
// section passed in, as get_key_versions does: the keyblock's data key
// carries the data-key version, the preamble right after it carries the
// firmware version.
func KeyVersions(sectionData []byte) (dataKeyVersion, firmwareVersion uint32, err error) {
	kb, err := ParseKeyblock(sectionData)
	if err != nil {
		return 0, 0, err
	}
	pre, err := ParsePreambleAfter(kb, sectionData)
	if err != nil {
		return 0, 0, err
	}
	return kb.DataKey.KeyVersion, pre.FirmwareVersion, nil
}
