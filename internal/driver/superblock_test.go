package driver

import (
	"encoding/binary"
	"testing"

	"github.com/deploymenttheory/go-apfs/internal/types"
)

func TestParseApfsSuperblock(t *testing.T) {
	data := make([]byte, 528)
	endian := binary.LittleEndian

	endian.PutUint32(data[32:36], types.ApfsMagic)
	endian.PutUint32(data[36:40], 1) // fs index

	endian.PutUint64(data[128:136], 10) // omap oid
	endian.PutUint64(data[136:144], 11) // root tree oid
	endian.PutUint64(data[144:152], 12) // extentref tree oid
	endian.PutUint64(data[152:160], 13) // snap meta tree oid

	name := "TestVolume"
	copy(data[272:], name)

	vsb, err := parseApfsSuperblock(data, endian)
	if err != nil {
		t.Fatalf("parseApfsSuperblock: %v", err)
	}
	if vsb.ApfsMagic != types.ApfsMagic {
		t.Errorf("ApfsMagic = 0x%x, want 0x%x", vsb.ApfsMagic, types.ApfsMagic)
	}
	if vsb.ApfsFsIndex != 1 {
		t.Errorf("ApfsFsIndex = %d, want 1", vsb.ApfsFsIndex)
	}
	if vsb.ApfsOmapOid != 10 || vsb.ApfsRootTreeOid != 11 || vsb.ApfsExtentrefTreeOid != 12 || vsb.ApfsSnapMetaTreeOid != 13 {
		t.Errorf("unexpected tree oids: %+v", vsb)
	}
	if got := cStringFromBytes(vsb.ApfsVolname[:]); got != name {
		t.Errorf("volume name = %q, want %q", got, name)
	}
}

func TestParseApfsSuperblockTooShort(t *testing.T) {
	if _, err := parseApfsSuperblock(make([]byte, 100), binary.LittleEndian); err == nil {
		t.Fatal("expected an error for a too-short buffer")
	}
}

func TestCStringFromBytes(t *testing.T) {
	b := make([]byte, 16)
	copy(b, "hello")
	if got := cStringFromBytes(b); got != "hello" {
		t.Errorf("cStringFromBytes = %q, want %q", got, "hello")
	}
}
