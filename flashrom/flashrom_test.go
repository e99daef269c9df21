package flashrom_test

import (
	"strings"
	"testing"

	"apupdater/flashrom"
)

func TestWriteIncludesSectionFlag(t *testing.T) {
	t.Log("Test that Write passes -i when a section is given")
	var gotArgs []string
	h := &flashrom.Host{Run: func(args ...string) (string, error) {
		gotArgs = args
		return "", nil
	}}
	if err := h.Write("host", "/tmp/image.bin", "RW_SECTION_A"); err != nil {
		t.Fatalf("Write failed. Except: nil But: %v", err)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-i RW_SECTION_A") {
		t.Fatalf("Missing -i flag in args: %v", gotArgs)
	}
}

func TestWriteWholeImageOmitsSectionFlag(t *testing.T) {
	t.Log("Test that Write omits -i for a whole-image write")
	var gotArgs []string
	h := &flashrom.Host{Run: func(args ...string) (string, error) {
		gotArgs = args
		return "", nil
	}}
	if err := h.Write("host", "/tmp/image.bin", ""); err != nil {
		t.Fatalf("Write failed. Except: nil But: %v", err)
	}
	for _, a := range gotArgs {
		if a == "-i" {
			t.Fatalf("Unexpected -i flag in whole-image write: %v", gotArgs)
		}
	}
}

func TestIsWPEnabled(t *testing.T) {
	t.Log("Test parsing flashrom WP status text")
	cases := map[string]bool{
		"WP: status: 0x80\nWP: write protect is enabled.\n":  true,
		"WP: status: 0x00\nWP: write protect is disabled.\n": false,
	}
	for status, want := range cases {
		enabled, known := flashrom.IsWPEnabled(status)
		if !known {
			t.Fatalf("IsWPEnabled did not recognize status: %q", status)
		}
		if enabled != want {
			t.Fatalf("Wrong WP state for %q. Except: %v But: %v", status, want, enabled)
		}
	}
}

func TestIsWPEnabledUnknown(t *testing.T) {
	t.Log("Test that unrecognized WP status text is reported as unknown")
	_, known := flashrom.IsWPEnabled("garbage output")
	if known {
		t.Fatalf("Expected unknown status. Except: false But: true")
	}
}
