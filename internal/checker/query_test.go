package checker

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/deploymenttheory/go-apfs/internal/types"
)

// buildOmapLeaf hand-assembles a single-record, non-root object map leaf
// node: one fixed-kv entry mapping (oid, xid) to bno within a blockSize
// block, laid out the way newNode expects to parse it.
func buildOmapLeaf(blockSize int, oid uint64, xid types.XidT, bno uint64) []byte {
	raw := make([]byte, blockSize)

	const (
		objPhys    = 32
		headerBase = objPhys + 2 + 2 + 4 // offset of the table_space nloc
		header     = objPhys + 2 + 2 + 4 + 4*4
	)

	// btn_flags: leaf | fixed_kv_size (no root flag, so no footer to place).
	binary.LittleEndian.PutUint16(raw[objPhys:], types.BtnodeLeaf|types.BtnodeFixedKvSize)
	// btn_level = 0
	binary.LittleEndian.PutUint16(raw[objPhys+2:], 0)
	// btn_nkeys = 1
	binary.LittleEndian.PutUint32(raw[objPhys+4:], 1)

	// table_space: offset 0, length 4 (one apfs_kvoff entry)
	binary.LittleEndian.PutUint16(raw[headerBase:], 0)
	binary.LittleEndian.PutUint16(raw[headerBase+2:], 4)
	// free_space: offset 16 (key area holds exactly one 16-byte key), length 0
	binary.LittleEndian.PutUint16(raw[headerBase+4:], 16)
	binary.LittleEndian.PutUint16(raw[headerBase+6:], 0)

	toc := header
	key := toc + 4

	// One apfs_kvoff: key at offset 0 in the key area, value at offset 16
	// from the end of the value area (i.e. right at blockSize).
	binary.LittleEndian.PutUint16(raw[toc:], 0)
	binary.LittleEndian.PutUint16(raw[toc+2:], 16)

	// omap key: ok_oid, ok_xid
	binary.LittleEndian.PutUint64(raw[key:], oid)
	binary.LittleEndian.PutUint64(raw[key+8:], uint64(xid))

	// omap value, placed in the final 16 bytes of the block:
	// ov_flags(4) ov_size(4) ov_paddr(8).
	valOff := blockSize - 16
	binary.LittleEndian.PutUint32(raw[valOff:], 0)
	binary.LittleEndian.PutUint32(raw[valOff+4:], uint32(blockSize))
	binary.LittleEndian.PutUint64(raw[valOff+8:], bno)

	return raw
}

func TestOmapLookupFindsRecord(t *testing.T) {
	const blockSize = 256
	const oid, bno = uint64(42), uint64(1000)
	xid := types.XidT(7)

	raw := buildOmapLeaf(blockSize, oid, xid, bno)
	meta := ObjectMeta{OID: types.OidT(99), XID: xid, Type: types.ObjectTypeBtreeNode, Subtype: types.ObjectTypeOmap}

	root, err := NewNode(KindOmap, meta, raw, blockSize)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	tree := &Tree{Kind: KindOmap, XID: xid, BlockSize: blockSize}
	rec, err := tree.OmapLookup(context.Background(), root, oid, xid)
	if err != nil {
		t.Fatalf("OmapLookup: %v", err)
	}
	if rec.Bno != bno {
		t.Errorf("Bno = %d, want %d", rec.Bno, bno)
	}
	if rec.XID != xid {
		t.Errorf("XID = %d, want %d", rec.XID, xid)
	}
}

// TestOmapLookupFindsRecordWrittenInEarlierTransaction covers the common
// copy-on-write case: the stored record's xid is older than the current
// transaction being looked up, so keycmp(record, sought) < 0 for the
// secondary (xid) key field. OmapLookup must still find it; only the
// flavor flag is set, not QueryExact.
func TestOmapLookupFindsRecordWrittenInEarlierTransaction(t *testing.T) {
	const blockSize = 256
	const oid, bno = uint64(42), uint64(1000)
	storedXid := types.XidT(3)
	currentXid := types.XidT(7)

	raw := buildOmapLeaf(blockSize, oid, storedXid, bno)
	meta := ObjectMeta{OID: types.OidT(99), XID: currentXid, Type: types.ObjectTypeBtreeNode, Subtype: types.ObjectTypeOmap}

	root, err := NewNode(KindOmap, meta, raw, blockSize)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	tree := &Tree{Kind: KindOmap, XID: currentXid, BlockSize: blockSize}
	rec, err := tree.OmapLookup(context.Background(), root, oid, currentXid)
	if err != nil {
		t.Fatalf("OmapLookup: %v", err)
	}
	if rec.Bno != bno {
		t.Errorf("Bno = %d, want %d", rec.Bno, bno)
	}
	if rec.XID != storedXid {
		t.Errorf("XID = %d, want %d", rec.XID, storedXid)
	}
}

// TestOmapLookupMissingRecordIsFatal covers the genuine NOT_FOUND path: a
// sought id smaller than every id in the tree, so bisection exhausts the
// root without ever finding a key <= sought.
func TestOmapLookupMissingRecordIsFatal(t *testing.T) {
	const blockSize = 256
	xid := types.XidT(7)
	raw := buildOmapLeaf(blockSize, 42, xid, 1000)
	meta := ObjectMeta{OID: types.OidT(99), XID: xid, Type: types.ObjectTypeBtreeNode, Subtype: types.ObjectTypeOmap}

	root, err := NewNode(KindOmap, meta, raw, blockSize)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	tree := &Tree{Kind: KindOmap, XID: xid, BlockSize: blockSize}
	if _, err := tree.OmapLookup(context.Background(), root, 0, xid); err == nil {
		t.Fatal("expected a fatal Violation for a missing oid, got nil")
	} else if _, ok := err.(*Violation); !ok {
		t.Errorf("expected *Violation, got %T: %v", err, err)
	}
}
