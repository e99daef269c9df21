package gbbutil_test

import (
	"testing"

	"apupdater/gbbutil"
)

func TestFindAndFields(t *testing.T) {
	t.Log("Test building then re-finding a GBB header")
	buf := gbbutil.Create(16, 8, 8, 8)
	g, err := gbbutil.Find(buf)
	if err != nil {
		t.Fatalf("Find failed. Except: nil But: %v", err)
	}
	if g.Header.HWIDSize != 16 {
		t.Fatalf("Wrong HWID size. Except: 16 But: %d", g.Header.HWIDSize)
	}
}

func TestSetHWIDTooLong(t *testing.T) {
	t.Log("Test that SetHWID rejects an oversized HWID")
	buf := gbbutil.Create(4, 8, 8, 8)
	g, err := gbbutil.Find(buf)
	if err != nil {
		t.Fatalf("Find failed. Except: nil But: %v", err)
	}
	if err := g.SetHWID("toolong"); err == nil {
		t.Fatalf("SetHWID should have failed. Except: error But: nil")
	}
}

func TestSetHWIDFits(t *testing.T) {
	t.Log("Test that SetHWID accepts an HWID that fits")
	buf := gbbutil.Create(8, 8, 8, 8)
	g, err := gbbutil.Find(buf)
	if err != nil {
		t.Fatalf("Find failed. Except: nil But: %v", err)
	}
	if err := g.SetHWID("BOARD"); err != nil {
		t.Fatalf("SetHWID failed. Except: nil But: %v", err)
	}
	if g.HWID() != "BOARD" {
		t.Fatalf("Wrong HWID after set. Except: BOARD But: %s", g.HWID())
	}
}

// TestCreateRecoveryKeyOffsetCorrect pins down that, despite the known
// create_gbb offset-accounting bug (the running offset is advanced by
// rootKeySize a second time instead of recoveryKeySize after the recovery
// key field is placed), recovery_key_offset/recovery_key_size themselves
// are assigned before that dead store runs, so the produced header is
// still self-consistent even with the bug reproduced verbatim.
func TestCreateRecoveryKeyOffsetCorrect(t *testing.T) {
	t.Log("Test GBB creation offsets despite the reproduced dead-store bug")
	const hwidSize, rootKeySize, bmpfvSize, recoveryKeySize = 16, 32, 8, 64
	buf := gbbutil.Create(hwidSize, rootKeySize, bmpfvSize, recoveryKeySize)

	wantSize := gbbutil.HeaderSize + hwidSize + rootKeySize + bmpfvSize + recoveryKeySize
	if len(buf) != wantSize {
		t.Fatalf("Wrong buffer length. Except: %d But: %d", wantSize, len(buf))
	}

	g, err := gbbutil.Find(buf)
	if err != nil {
		t.Fatalf("Find failed. Except: nil But: %v", err)
	}
	wantRecoveryOffset := uint32(gbbutil.HeaderSize + hwidSize + rootKeySize + bmpfvSize)
	if g.Header.RecoveryKeyOffset != wantRecoveryOffset {
		t.Fatalf("Wrong recovery key offset. Except: %d But: %d", wantRecoveryOffset, g.Header.RecoveryKeyOffset)
	}
	if g.Header.RecoveryKeySize != recoveryKeySize {
		t.Fatalf("Wrong recovery key size. Except: %d But: %d", recoveryKeySize, g.Header.RecoveryKeySize)
	}
}
