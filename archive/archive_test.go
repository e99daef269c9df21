package archive_test

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"apupdater/archive"
)

func TestDirArchiveReadFile(t *testing.T) {
	t.Log("Test reading a plain file out of a directory archive")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "image.bin"), []byte("firmware"), 0644); err != nil {
		t.Fatalf("setup failed. Except: nil But: %v", err)
	}
	ar, err := archive.Open(dir)
	if err != nil {
		t.Fatalf("Open failed. Except: nil But: %v", err)
	}
	defer ar.Close()

	if !ar.HasEntry("image.bin") {
		t.Fatalf("HasEntry false for existing file. Except: true But: false")
	}
	data, err := ar.ReadFile("image.bin")
	if err != nil {
		t.Fatalf("ReadFile failed. Except: nil But: %v", err)
	}
	if string(data) != "firmware" {
		t.Fatalf("Wrong content. Except: firmware But: %s", data)
	}
}

func TestDirArchiveTransparentGunzip(t *testing.T) {
	t.Log("Test that a gzip-packed entry is transparently decompressed")
	dir := t.TempDir()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("unpacked-bytes"))
	gw.Close()
	if err := os.WriteFile(filepath.Join(dir, "image.bin.gz"), buf.Bytes(), 0644); err != nil {
		t.Fatalf("setup failed. Except: nil But: %v", err)
	}
	ar, err := archive.Open(dir)
	if err != nil {
		t.Fatalf("Open failed. Except: nil But: %v", err)
	}
	defer ar.Close()

	data, err := ar.ReadFile("image.bin.gz")
	if err != nil {
		t.Fatalf("ReadFile failed. Except: nil But: %v", err)
	}
	if string(data) != "unpacked-bytes" {
		t.Fatalf("Wrong decompressed content. Except: unpacked-bytes But: %s", data)
	}
}

func TestDirArchiveMissingEntry(t *testing.T) {
	t.Log("Test HasEntry/ReadFile on a missing entry")
	dir := t.TempDir()
	ar, err := archive.Open(dir)
	if err != nil {
		t.Fatalf("Open failed. Except: nil But: %v", err)
	}
	defer ar.Close()

	if ar.HasEntry("nope") {
		t.Fatalf("HasEntry true for missing file. Except: false But: true")
	}
	if _, err := ar.ReadFile("nope"); err == nil {
		t.Fatalf("ReadFile succeeded for missing file. Except: error But: nil")
	}
}
