package apupdater

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"apupdater/archive"
	"apupdater/fmap"
)

// FMAP section names used throughout the updater. Kept as string constants
// rather than a closed enum because new boards can introduce new section
// names that the updater only needs to pass through by name.
const (
	SectionROFRID      = "RO_FRID"
	SectionROSection   = "RO_SECTION"
	SectionGBB         = "GBB"
	SectionROPreserve  = "RO_PRESERVE"
	SectionROVPD       = "RO_VPD"
	SectionRWVPD       = "RW_VPD"
	SectionRWVBlockA   = "VBLOCK_A"
	SectionRWVBlockB   = "VBLOCK_B"
	SectionRWSectionA  = "RW_SECTION_A"
	SectionRWSectionB  = "RW_SECTION_B"
	SectionRWFWID      = "RW_FWID"
	SectionRWFWIDA     = "RW_FWID_A"
	SectionRWFWIDB     = "RW_FWID_B"
	SectionRWShared    = "RW_SHARED"
	SectionRWNVRAM     = "RW_NVRAM"
	SectionRWELog      = "RW_ELOG"
	SectionRWPreserve  = "RW_PRESERVE"
	SectionRWLegacy    = "RW_LEGACY"
	SectionRWSMMStore  = "SMMSTORE"
	SectionSIDesc      = "SI_DESC"
	SectionSIME        = "SI_ME"
	sectionROFSGLegacy = "RO_FSG"
)

// Image is an in-memory (or mmap-backed) firmware blob together with its
// decoded FMAP and the version strings read out of RO_FRID/RW_FWID_A/
// RW_FWID_B. A zero-value Image is not usable; build one with
// LoadFirmwareImage or NewImage.
type Image struct {
	Programmer string
	FileName   string
	Data       []byte
	Map        *fmap.FMap

	ROVersion  string
	RWVersionA string
	RWVersionB string

	backing mmap.MMap
	file    *os.File
}

// NewImage wraps an already-in-memory buffer (e.g. a byte slice read from an
// archive) as an Image, decoding its FMAP and version sections.
func NewImage(programmer, fileName string, data []byte) (*Image, error) {
	img := &Image{Programmer: programmer, FileName: fileName, Data: data}
	if err := img.parse(); err != nil {
		return nil, err
	}
	return img, nil
}

// LoadFirmwareImage loads a firmware image from fileName, preferring the
// archive (if non-nil and the path is relative) the way load_firmware_image
// does, then mmaps the file directly otherwise.
func LoadFirmwareImage(programmer, fileName string, ar archive.Archive) (*Image, error) {
	if ar != nil && !isAbsPath(fileName) {
		if ar.HasEntry(fileName) {
			data, err := ar.ReadFile(fileName)
			if err != nil {
				return nil, fmt.Errorf("load image %q from archive: %w", fileName, err)
			}
			return NewImage(programmer, fileName, data)
		}
	}

	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("open image %q: %w", fileName, err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap image %q: %w", fileName, err)
	}
	img := &Image{
		Programmer: programmer,
		FileName:   fileName,
		Data:       []byte(m),
		backing:    m,
		file:       f,
	}
	if err := img.parse(); err != nil {
		img.Close()
		return nil, err
	}
	return img, nil
}

func isAbsPath(p string) bool {
	return len(p) > 0 && p[0] == '/'
}

// Close releases the mmap backing this image, if any. Images built with
// NewImage over a plain byte slice have nothing to release.
func (img *Image) Close() error {
	var err error
	if img.backing != nil {
		err = img.backing.Unmap()
		img.backing = nil
	}
	if img.file != nil {
		if cerr := img.file.Close(); err == nil {
			err = cerr
		}
		img.file = nil
	}
	return err
}

// parse decodes the FMAP and loads the RO/RW version strings. An image with
// no FMAP, or no RO_FRID area, is rejected the same way load_firmware_image
// requires both.
func (img *Image) parse() error {
	fm, err := fmap.Find(img.Data)
	if err != nil {
		return fmt.Errorf("image %q has no FMAP: %w", img.FileName, err)
	}
	img.Map = fm

	if _, ok := fm.ByName(SectionROFRID); !ok {
		return fmt.Errorf("image %q has no %s section", img.FileName, SectionROFRID)
	}
	img.ROVersion, _ = img.readVersion(SectionROFRID)

	if _, ok := fm.ByName(SectionRWFWIDA); ok {
		img.RWVersionA, _ = img.readVersion(SectionRWFWIDA)
		img.RWVersionB, _ = img.readVersion(SectionRWFWIDB)
	} else if _, ok := fm.ByName(SectionRWFWID); ok {
		// Legacy (vboot1, single RW) images: same version for both slots.
		v, _ := img.readVersion(SectionRWFWID)
		img.RWVersionA = v
		img.RWVersionB = v
	}

	if !img.HasRWID() {
		// Non-fatal: load_firmware_image logs and keeps going rather than
		// rejecting the image outright.
		fmt.Fprintf(os.Stderr, "ERROR: unsupported VBoot firmware (no RW ID): %s\n", img.FileName)
	}
	return nil
}

// readVersion decodes a NUL-terminated ASCII version string out of a named
// section, returning "" (not an error) when the section is absent, matching
// load_firmware_version's "soft" failure semantics.
func (img *Image) readVersion(name string) (string, error) {
	area, ok := img.Map.ByName(name)
	if !ok {
		return "", nil
	}
	data, err := area.Slice(img.Data)
	if err != nil {
		return "", err
	}
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}

// HasRWID reports whether this image carries any RW firmware ID, i.e.
// whether it is a "VBoot-supported" image per load_firmware_image's check.
func (img *Image) HasRWID() bool {
	return img.RWVersionA != "" || img.RWVersionB != ""
}
