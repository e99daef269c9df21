// Package gbbutil implements the GBB (Google Binary Block) container used
// by the GBB firmware section: a small header of offset/size pairs
// pointing at the HWID string, root key, recovery bitmap (bmpfv), and
// recovery key, plus flags.
package gbbutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Signature    = "$GBB"
	MajorVersion = 1
	MinorVersion = 1
	HeaderSize   = 4 + 2 + 2 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4
	searchStride = 4
)

// Header is the on-flash GBB layout, decoded in place.
type Header struct {
	Signature         [4]byte
	MajorVer          uint16
	MinorVer          uint16
	Flags             uint32
	HWIDOffset        uint32
	HWIDSize          uint32
	RootKeyOffset     uint32
	RootKeySize       uint32
	BmpfvOffset       uint32
	BmpfvSize         uint32
	RecoveryKeyOffset uint32
	RecoveryKeySize   uint32
}

// GBB is a parsed header plus a reference to the buffer it was found in.
type GBB struct {
	Header Header
	buf    []byte
	base   int
}

// Find scans buf for the "$GBB" signature at 4-byte strides and returns the
// single valid GBB header found, mirroring FindGbbHeader/ValidGBB. Zero
// matches or more than one valid match is an error, matching the original's
// "multiple GBB headers found" rejection.
func Find(buf []byte) (*GBB, error) {
	var found []*GBB
	sig := []byte(Signature)
	for i := 0; i+searchStride <= len(buf); i += searchStride {
		if i+HeaderSize > len(buf) {
			break
		}
		if !bytes.Equal(buf[i:i+4], sig) {
			continue
		}
		var hdr Header
		if err := binary.Read(bytes.NewReader(buf[i:i+HeaderSize]), binary.LittleEndian, &hdr); err != nil {
			continue
		}
		g := &GBB{Header: hdr, buf: buf, base: i}
		if g.valid(len(buf) - i) {
			found = append(found, g)
		}
	}
	switch len(found) {
	case 0:
		return nil, errors.New("gbbutil: no valid GBB header found")
	case 1:
		return found[0], nil
	default:
		return nil, errors.New("gbbutil: multiple GBB headers found")
	}
}

// valid reproduces ValidGBB's bounds and NUL-termination checks.
func (g *GBB) valid(maxlen int) bool {
	h := &g.Header
	if h.MajorVer != MajorVersion {
		return false
	}
	if h.HWIDOffset < HeaderSize {
		return false
	}
	if uint64(h.HWIDOffset)+uint64(h.HWIDSize) > uint64(maxlen) {
		return false
	}
	if h.HWIDSize > 0 {
		s := g.buf[g.base+int(h.HWIDOffset) : g.base+int(h.HWIDOffset)+int(h.HWIDSize)]
		terminated := false
		for _, b := range s {
			if b == 0 {
				terminated = true
				break
			}
		}
		if !terminated {
			return false
		}
	}
	if h.RootKeyOffset < HeaderSize {
		return false
	}
	if uint64(h.RootKeyOffset)+uint64(h.RootKeySize) > uint64(maxlen) {
		return false
	}
	if h.BmpfvOffset < HeaderSize {
		return false
	}
	if uint64(h.BmpfvOffset)+uint64(h.BmpfvSize) > uint64(maxlen) {
		return false
	}
	if h.RecoveryKeyOffset < HeaderSize {
		return false
	}
	if uint64(h.RecoveryKeyOffset)+uint64(h.RecoveryKeySize) > uint64(maxlen) {
		return false
	}
	return true
}

func (g *GBB) field(offset, size uint32) []byte {
	start := g.base + int(offset)
	return g.buf[start : start+int(size)]
}

// HWID returns the HWID string, trimmed at its first NUL.
func (g *GBB) HWID() string {
	raw := g.field(g.Header.HWIDOffset, g.Header.HWIDSize)
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw)
}

func (g *GBB) RootKey() []byte { return g.field(g.Header.RootKeyOffset, g.Header.RootKeySize) }
func (g *GBB) Bmpfv() []byte   { return g.field(g.Header.BmpfvOffset, g.Header.BmpfvSize) }
func (g *GBB) RecoveryKey() []byte {
	return g.field(g.Header.RecoveryKeyOffset, g.Header.RecoveryKeySize)
}
func (g *GBB) Flags() uint32 { return g.Header.Flags }

// SetHWID overwrites the HWID field in place. It fails if the new value
// (plus its NUL terminator) does not fit in the existing field, matching
// the command-line tool's hwid_size check.
func (g *GBB) SetHWID(hwid string) error {
	if uint32(len(hwid)+1) > g.Header.HWIDSize {
		return fmt.Errorf("gbbutil: hwid %q (%d bytes) does not fit in %d-byte field",
			hwid, len(hwid)+1, g.Header.HWIDSize)
	}
	dst := g.field(g.Header.HWIDOffset, g.Header.HWIDSize)
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, hwid)
	return nil
}

// Create builds a fresh, zero-filled GBB blob of the given field sizes in
// the (hwid, rootkey, bmpfv, recoverykey) order taken by --create.
//
// After placing the recovery key field, create_gbb advances its running
// byte offset by rootKeySize a second time instead of by recoveryKeySize.
// That offset variable is never read again, so the bug is a harmless
// dead store in the original and is reproduced verbatim below rather than
// cleaned up.
func Create(hwidSize, rootKeySize, bmpfvSize, recoveryKeySize uint32) []byte {
	size := HeaderSize + int(hwidSize) + int(rootKeySize) + int(bmpfvSize) + int(recoveryKeySize)

	i := HeaderSize
	hwidOffset := i
	i += int(hwidSize)

	rootKeyOffset := i
	i += int(rootKeySize)

	bmpfvOffset := i
	i += int(bmpfvSize)

	recoveryKeyOffset := i
	i += int(rootKeySize) // bug: should advance by recoveryKeySize; value is never read again
	_ = i

	buf := make([]byte, size)
	copy(buf[0:4], Signature)
	binary.LittleEndian.PutUint16(buf[4:6], MajorVersion)
	binary.LittleEndian.PutUint16(buf[6:8], MinorVersion)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(hwidOffset))
	binary.LittleEndian.PutUint32(buf[16:20], hwidSize)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(rootKeyOffset))
	binary.LittleEndian.PutUint32(buf[24:28], rootKeySize)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(bmpfvOffset))
	binary.LittleEndian.PutUint32(buf[32:36], bmpfvSize)
	binary.LittleEndian.PutUint32(buf[36:40], uint32(recoveryKeyOffset))
	binary.LittleEndian.PutUint32(buf[40:44], recoveryKeySize)
	return buf
}
