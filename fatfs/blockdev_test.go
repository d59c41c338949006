package fatfs

import (
	"bytes"
	"testing"
)

func TestMemBlockDeviceRoundTrip(t *testing.T) {
	dev, err := NewMemBlockDevice(512, 8)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Size() != 512*8 {
		t.Fatalf("size = %d", dev.Size())
	}
	if dev.BlockSize() != 512 {
		t.Fatalf("block size = %d", dev.BlockSize())
	}
	if dev.Mode() != ModeRW {
		t.Fatalf("mode = %d", dev.Mode())
	}

	block := bytes.Repeat([]byte{0xaa}, 512)
	if err := dev.WriteBlocks(block, 2); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 512)
	if err := dev.ReadBlocks(got, 2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(block, got) {
		t.Fatal("read back mismatch")
	}

	if err := dev.EraseBlocks(2, 1); err != nil {
		t.Fatal(err)
	}
	if err := dev.ReadBlocks(got, 2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, make([]byte, 512)) {
		t.Fatal("erase did not clear block")
	}
}

func TestMemBlockDeviceBounds(t *testing.T) {
	dev, _ := NewMemBlockDevice(512, 2)
	buf := make([]byte, 512)
	if err := dev.ReadBlocks(buf, 2); err == nil {
		t.Fatal("read past end must fail")
	}
	if err := dev.WriteBlocks(buf, -1); err == nil {
		t.Fatal("negative start must fail")
	}
	if err := dev.ReadBlocks(buf[:100], 0); err == nil {
		t.Fatal("unaligned read must fail")
	}
	if err := dev.EraseBlocks(0, 3); err == nil {
		t.Fatal("erase past end must fail")
	}
}

func TestMemBlockDeviceReadOnly(t *testing.T) {
	dev, _ := NewMemBlockDevice(512, 2)
	dev.SetReadOnly(true)
	if dev.Mode() != ModeReadOnly {
		t.Fatalf("mode = %d", dev.Mode())
	}
	if err := dev.WriteBlocks(make([]byte, 512), 0); err == nil {
		t.Fatal("write to read-only device must fail")
	}
}

func TestNewMemBlockDeviceValidation(t *testing.T) {
	if _, err := NewMemBlockDevice(100, 8); err == nil {
		t.Fatal("non power of two block size must fail")
	}
	if _, err := NewMemBlockDevice(512, 0); err == nil {
		t.Fatal("zero block count must fail")
	}
}

func TestResultStrings(t *testing.T) {
	for r := ResOK; r <= ResInvalidParameter; r++ {
		if r.Error() == "" {
			t.Fatalf("result %d has empty string", r)
		}
	}
	if ResNoFile.Error() != "no file" {
		t.Fatalf("unexpected: %q", ResNoFile.Error())
	}
}

func TestKindStrings(t *testing.T) {
	if KindFAT32.String() != "FAT32" || KindExFAT.String() != "exFAT" {
		t.Fatal("kind strings wrong")
	}
	if Kind(9).String() != "unknown(9)" {
		t.Fatalf("unexpected: %q", Kind(9).String())
	}
}
