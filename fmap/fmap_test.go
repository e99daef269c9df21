package fmap_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"apupdater/fmap"
)

func nameBytes(s string) [32]byte {
	var b [32]byte
	copy(b[:], s)
	return b
}

func buildFmap(t *testing.T, areas map[string][2]uint32) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	var sig [8]byte
	copy(sig[:], fmap.Signature)
	binary.Write(buf, binary.LittleEndian, sig)
	binary.Write(buf, binary.LittleEndian, uint8(1))
	binary.Write(buf, binary.LittleEndian, uint8(1))
	binary.Write(buf, binary.LittleEndian, uint64(0))
	binary.Write(buf, binary.LittleEndian, uint32(0x1000))
	binary.Write(buf, binary.LittleEndian, nameBytes("TEST_FMAP"))
	binary.Write(buf, binary.LittleEndian, uint16(len(areas)))
	for name, off := range areas {
		binary.Write(buf, binary.LittleEndian, off[0])
		binary.Write(buf, binary.LittleEndian, off[1])
		binary.Write(buf, binary.LittleEndian, nameBytes(name))
		binary.Write(buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes()
}

func TestDecodeAndByName(t *testing.T) {
	t.Log("Test decoding a hand-built FMAP with one area")
	raw := buildFmap(t, map[string][2]uint32{"RO_GBB": {0x10, 0x20}})
	fm, err := fmap.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed. Except: nil But: %v", err)
	}
	if fm.Name != "TEST_FMAP" {
		t.Fatalf("Wrong fmap name. Except: TEST_FMAP But: %s", fm.Name)
	}
	area, ok := fm.ByName("RO_GBB")
	if !ok {
		t.Fatalf("Area not found. Except: true But: %v", ok)
	}
	if area.Offset != 0x10 || area.Size != 0x20 {
		t.Fatalf("Wrong area bounds. Except: 0x10/0x20 But: 0x%x/0x%x", area.Offset, area.Size)
	}
}

func TestFindLocatesEmbeddedSignature(t *testing.T) {
	t.Log("Test locating FMAP signature inside a larger buffer")
	raw := buildFmap(t, map[string][2]uint32{"RO_FRID": {0, 4}})
	padded := append(make([]byte, 7), raw...)
	fm, err := fmap.Find(padded)
	if err != nil {
		t.Fatalf("Find failed. Except: nil But: %v", err)
	}
	if _, ok := fm.ByName("RO_FRID"); !ok {
		t.Fatalf("Area not found after Find. Except: true But: false")
	}
}

func TestDecodeBadSignature(t *testing.T) {
	t.Log("Test that a non-FMAP buffer is rejected")
	if _, err := fmap.Decode(make([]byte, 64)); err == nil {
		t.Fatalf("Expected error decoding zeroed buffer. Except: error But: nil")
	}
}

func TestAreaSliceOutOfRange(t *testing.T) {
	t.Log("Test that an area exceeding the buffer is rejected")
	a := fmap.Area{Name: "RO_GBB", Offset: 10, Size: 100}
	if _, err := a.Slice(make([]byte, 20)); err == nil {
		t.Fatalf("Expected out-of-range error. Except: error But: nil")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Log("Test that re-decoding the same bytes yields an identical FMap")
	raw := buildFmap(t, map[string][2]uint32{
		"RO_GBB":    {0x10, 0x20},
		"RW_FWID_A": {0x40, 0x10},
	})
	first, err := fmap.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed. Except: nil But: %v", err)
	}
	second, err := fmap.Decode(raw)
	if err != nil {
		t.Fatalf("Second Decode failed. Except: nil But: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Decode is not idempotent, diff:\n%s", diff)
	}
}
