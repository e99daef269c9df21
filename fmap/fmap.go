// Package fmap parses the flashmap (FMAP) binary structure embedded in AP
// firmware images: a header followed by a flat array of named, offset+size
// area records.
package fmap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Signature    = "__FMAP__"
	nameSize     = 32
	headerSize   = 8 + 1 + 1 + 8 + 4 + nameSize + 2
	areaSize     = 4 + 4 + nameSize + 2
	maxAreaNameN = nameSize
)

// Area flags, per the upstream fmap.h bit definitions.
const (
	AreaStatic     uint16 = 1 << 0
	AreaCompressed uint16 = 1 << 1
	AreaReadOnly   uint16 = 1 << 2
	AreaPreserve   uint16 = 1 << 3
)

type rawHeader struct {
	Signature [8]byte
	VerMajor  uint8
	VerMinor  uint8
	Base      uint64
	Size      uint32
	Name      [nameSize]byte
	NAreas    uint16
}

type rawArea struct {
	Offset uint32
	Size   uint32
	Name   [nameSize]byte
	Flags  uint16
}

// Area is one named region of the flash address space.
type Area struct {
	Name   string
	Offset uint32
	Size   uint32
	Flags  uint16
}

// FMap is the decoded flashmap: the base address the map describes, the
// total mapped size, and the list of named areas in on-flash order.
type FMap struct {
	Base  uint64
	Size  uint32
	Name  string
	Areas []Area
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// Find locates the "__FMAP__" signature anywhere in buf and decodes the
// header and area table that follow it. Firmware images commonly embed the
// map at a non-zero, implementation-defined offset, so callers should not
// assume offset zero.
func Find(buf []byte) (*FMap, error) {
	sig := []byte(Signature)
	idx := bytes.Index(buf, sig)
	if idx < 0 {
		return nil, errors.New("fmap: signature not found")
	}
	return Decode(buf[idx:])
}

// Decode parses an FMap whose header begins at buf[0].
func Decode(buf []byte) (*FMap, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("fmap: buffer too small for header: %d bytes", len(buf))
	}
	r := bytes.NewReader(buf)
	var hdr rawHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("fmap: decode header: %w", err)
	}
	if string(hdr.Signature[:]) != Signature {
		return nil, fmt.Errorf("fmap: bad signature %q", hdr.Signature)
	}

	fm := &FMap{
		Base: hdr.Base,
		Size: hdr.Size,
		Name: cstring(hdr.Name[:]),
	}

	need := headerSize + int(hdr.NAreas)*areaSize
	if len(buf) < need {
		return nil, fmt.Errorf("fmap: buffer too small for %d areas: have %d need %d",
			hdr.NAreas, len(buf), need)
	}

	for i := 0; i < int(hdr.NAreas); i++ {
		var a rawArea
		if err := binary.Read(r, binary.LittleEndian, &a); err != nil {
			return nil, fmt.Errorf("fmap: decode area %d: %w", i, err)
		}
		fm.Areas = append(fm.Areas, Area{
			Name:   cstring(a.Name[:]),
			Offset: a.Offset,
			Size:   a.Size,
			Flags:  a.Flags,
		})
	}
	return fm, nil
}

// ByName returns the area with the given name, or false if no such area
// exists. FMAP names are unique by convention but not by format guarantee;
// the first match wins.
func (fm *FMap) ByName(name string) (Area, bool) {
	for _, a := range fm.Areas {
		if a.Name == name {
			return a, true
		}
	}
	return Area{}, false
}

// Slice returns the byte range of buf covered by area a. The caller must
// have decoded a from an FMap built over a buffer of compatible layout;
// out-of-range areas return an error rather than panicking.
func (a Area) Slice(buf []byte) ([]byte, error) {
	end := uint64(a.Offset) + uint64(a.Size)
	if end > uint64(len(buf)) {
		return nil, fmt.Errorf("fmap: area %s [%d:%d] exceeds buffer length %d",
			a.Name, a.Offset, end, len(buf))
	}
	return buf[a.Offset:end], nil
}
