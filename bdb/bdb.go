// Package bdb decodes and pretty-prints a Boot Descriptor Block: the
// BDB key plus a table of per-component hash entries used by boards with
// a discrete embedded controller running firmware verified separately
// from the AP.
package bdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	headerSize    = 4 + 1 + 1 + 2
	keyHeaderSize = 4
	hashEntrySize = 8 + 4 + 4 + 4 + 8 + 32
	digestSize    = 32
)

// Header is the fixed BDB struct header: a format version and the
// remaining structure's total size.
type Header struct {
	StructMajorVersion uint8
	StructMinorVersion uint8
	StructSize         uint16
}

// Key is the BDB signing key blob; only its declared size is needed to
// locate the data that follows it.
type Key struct {
	StructSize uint32
	raw        []byte
}

// HashEntry describes one component whose integrity the BDB vouches for.
type HashEntry struct {
	Offset      uint64
	Size        uint32
	Partition   uint32
	Type        uint32
	LoadAddress uint64
	Digest      [digestSize]byte
}

// BDB is a fully decoded Boot Descriptor Block.
type BDB struct {
	Header Header
	Key    Key
	Hashes []HashEntry
}

// Recognize reports whether buf looks like a valid BDB, the gate
// ft_recognize_bdb applies before dispatching to the pretty-printer.
func Recognize(buf []byte) bool {
	_, err := Parse(buf)
	return err == nil
}

// Parse decodes a BDB from buf: header, key, and hash table, in that
// order, matching bdb_get_header/bdb_get_bdbkey/bdb_get_data's fixed
// layout-by-offset access pattern.
func Parse(buf []byte) (*BDB, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("bdb: buffer too small for header: %d", len(buf))
	}
	r := bytes.NewReader(buf)

	var hdr struct {
		Pad1               uint32 // reserved/signature word, not interpreted
		StructMajorVersion uint8
		StructMinorVersion uint8
		StructSize         uint16
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("bdb: decode header: %w", err)
	}
	b := &BDB{
		Header: Header{
			StructMajorVersion: hdr.StructMajorVersion,
			StructMinorVersion: hdr.StructMinorVersion,
			StructSize:         hdr.StructSize,
		},
	}
	if int(hdr.StructSize) > len(buf) {
		return nil, fmt.Errorf("bdb: struct_size %d exceeds buffer length %d", hdr.StructSize, len(buf))
	}

	keyOff := 8
	if keyOff+keyHeaderSize > len(buf) {
		return nil, fmt.Errorf("bdb: buffer too small for key header")
	}
	keySize := binary.LittleEndian.Uint32(buf[keyOff : keyOff+4])
	if keyOff+int(keySize) > len(buf) {
		return nil, fmt.Errorf("bdb: key struct_size %d exceeds buffer", keySize)
	}
	b.Key = Key{StructSize: keySize, raw: buf[keyOff : keyOff+int(keySize)]}

	dataOff := keyOff + int(keySize)
	if dataOff+4 > len(buf) {
		return nil, fmt.Errorf("bdb: buffer too small for hash table header")
	}
	numHashes := binary.LittleEndian.Uint32(buf[dataOff : dataOff+4])
	hashStart := dataOff + 4
	for i := 0; i < int(numHashes); i++ {
		start := hashStart + i*hashEntrySize
		end := start + hashEntrySize
		if end > len(buf) {
			return nil, fmt.Errorf("bdb: hash entry %d exceeds buffer", i)
		}
		var h HashEntry
		hr := bytes.NewReader(buf[start:end])
		binary.Read(hr, binary.LittleEndian, &h.Offset)
		binary.Read(hr, binary.LittleEndian, &h.Size)
		binary.Read(hr, binary.LittleEndian, &h.Partition)
		binary.Read(hr, binary.LittleEndian, &h.Type)
		binary.Read(hr, binary.LittleEndian, &h.LoadAddress)
		io.ReadFull(hr, h.Digest[:])
		b.Hashes = append(b.Hashes, h)
	}
	return b, nil
}

// KeyDigest returns the SHA-256 digest of the BDB key struct, the value
// show_bdb_header prints via bdb_sha256(digest, key, key->struct_size).
func (b *BDB) KeyDigest() [32]byte {
	return sha256.Sum256(b.Key.raw)
}

// Print writes a human-readable dump of the header and every hash entry,
// in the same order and labeling as show_bdb_header/show_hashes.
func (b *BDB) Print(w io.Writer, name string) {
	fmt.Fprintf(w, "Boot Descriptor Block: %s\n", name)
	fmt.Fprintf(w, "BDB Header:\n")
	fmt.Fprintf(w, "  Struct Version: 0x%x:0x%x\n", b.Header.StructMajorVersion, b.Header.StructMinorVersion)
	digest := b.KeyDigest()
	fmt.Fprintf(w, "  BDB key digest: %x\n", digest)
	fmt.Fprintf(w, "            size: %d\n", b.Key.StructSize)

	for i, h := range b.Hashes {
		fmt.Fprintf(w, "Hash #%d:\n", i)
		fmt.Fprintf(w, "  Offset:       0x%x\n", h.Offset)
		fmt.Fprintf(w, "  Size:         %d\n", h.Size)
		fmt.Fprintf(w, "  Partition:    %d\n", h.Partition)
		fmt.Fprintf(w, "  Type:         %d\n", h.Type)
		fmt.Fprintf(w, "  Load Address: 0x%x\n", h.LoadAddress)
		fmt.Fprintf(w, "  Digest:       %x\n", h.Digest)
	}
}
