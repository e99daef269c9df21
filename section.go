package apupdater

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Section is a non-owning handle on a named region of an Image's backing
// buffer: offset and size, resolved lazily against whichever Image the
// caller presents it to, so the same handle can be used to read section A
// and write the matching bytes into section B's buffer.
type Section struct {
	Name   string
	Offset uint32
	Size   uint32
}

// FindSection locates a named FMAP area in img and returns it as a Section
// handle, or an error if the image has no such area.
func FindSection(img *Image, name string) (Section, error) {
	if img.Map == nil {
		return Section{}, fmt.Errorf("image %q has no FMAP", img.FileName)
	}
	area, ok := img.Map.ByName(name)
	if !ok {
		return Section{}, fmt.Errorf("section %q not found in image %q", name, img.FileName)
	}
	return Section{Name: area.Name, Offset: area.Offset, Size: area.Size}, nil
}

// HasSection reports whether img has an FMAP area named name.
func HasSection(img *Image, name string) bool {
	if img.Map == nil {
		return false
	}
	_, ok := img.Map.ByName(name)
	return ok
}

// Data returns the bytes of the section within img. The returned slice
// shares img's backing array; callers that mutate it are mutating img.
func (s Section) Data(img *Image) ([]byte, error) {
	end := uint64(s.Offset) + uint64(s.Size)
	if end > uint64(len(img.Data)) {
		return nil, fmt.Errorf("section %q [%d:%d] exceeds image size %d", s.Name, s.Offset, end, len(img.Data))
	}
	return img.Data[s.Offset:end], nil
}

// IsFilledWith reports whether every byte of the section equals v,
// mirroring section_is_filled_with (used to detect an Intel ME region that
// reads as all 0xFF because it is locked).
func (s Section) IsFilledWith(img *Image, v byte) (bool, error) {
	data, err := s.Data(img)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	for _, b := range data {
		if b != v {
			return false, nil
		}
	}
	return true, nil
}

// CompareSection reports whether the named section differs between two
// images: a size mismatch counts as a difference without reading data;
// otherwise it is a byte-for-byte comparison. If name is "", the whole
// image buffers are compared.
func CompareSection(a, b *Image, name string) (bool, error) {
	if name == "" {
		return !bytes.Equal(a.Data, b.Data), nil
	}
	sa, err := FindSection(a, name)
	if err != nil {
		return true, nil
	}
	sb, err := FindSection(b, name)
	if err != nil {
		return true, nil
	}
	if sa.Size != sb.Size {
		return true, nil
	}
	da, err := sa.Data(a)
	if err != nil {
		return true, err
	}
	db, err := sb.Data(b)
	if err != nil {
		return true, err
	}
	return !bytes.Equal(da, db), nil
}

// PreserveSection copies the named section's bytes from imageFrom into the
// matching section of imageTo, truncating to the smaller of the two sizes
// and leaving any remainder in imageTo untouched, exactly like
// preserve_firmware_section. It fails only if the section is missing from
// either image.
func PreserveSection(imageFrom, imageTo *Image, name string) error {
	from, err := FindSection(imageFrom, name)
	if err != nil {
		return fmt.Errorf("preserve %q: source: %w", name, err)
	}
	to, err := FindSection(imageTo, name)
	if err != nil {
		return fmt.Errorf("preserve %q: destination: %w", name, err)
	}

	srcData, err := from.Data(imageFrom)
	if err != nil {
		return fmt.Errorf("preserve %q: %w", name, err)
	}
	dstData, err := to.Data(imageTo)
	if err != nil {
		return fmt.Errorf("preserve %q: %w", name, err)
	}

	n := len(srcData)
	if len(dstData) < n {
		n = len(dstData)
	}
	if uint32(n) < from.Size {
		fmt.Printf("preserve %q: truncating %s to %s\n", name,
			humanize.Bytes(uint64(from.Size)), humanize.Bytes(uint64(n)))
	}
	copy(dstData, srcData[:n])
	return nil
}
