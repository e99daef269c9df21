package archive

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// MaybeDecompress returns raw unchanged if it does not match any known
// compression magic, otherwise returns its fully decompressed contents.
func MaybeDecompress(raw []byte) ([]byte, error) {
	f := sniff(raw)
	if f == formatRaw {
		return raw, nil
	}

	var r io.Reader
	var err error
	switch f {
	case formatGzip:
		r, err = gzip.NewReader(bytes.NewReader(raw))
	case formatXZ:
		r, err = xz.NewReader(bytes.NewReader(raw))
	case formatLZMA:
		r, err = lzma.NewReader(bytes.NewReader(raw))
	case formatBzip2:
		r = bzip2.NewReader(bytes.NewReader(raw))
	case formatLZ4, formatLZ4Legacy:
		r = lz4.NewReader(bytes.NewReader(raw))
	default:
		return raw, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: open decoder: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("archive: decompress: %w", err)
	}
	return out, nil
}
