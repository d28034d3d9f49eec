package checker

import (
	"encoding/binary"

	"github.com/deploymenttheory/go-apfs/internal/types"
)

// nlocSize is the on-disk size of apfs_nloc: two le16 fields.
const nlocSize = 4

// parseFreeList walks a free-space linked list (btn_key_free_list or
// btn_val_free_list) and returns a bitmap over the area that starts with
// every bit set and has the bit cleared for every byte the list claims,
// mirroring node_parse_key_free_list and
// node_parse_val_free_list. raw is the whole node block; areaLen is the
// length of the area the bitmap covers (key area, or value area net of any
// footer). For the key list, offsets in the list count forward from the
// start of the key area (areaBase); for the value list they count backward
// from the end of the value area (areaBase + areaLen), per the on-disk
// contract of btn_val_free_list.
func parseFreeList(kind TreeKind, oid types.OidT, xid types.XidT, raw []byte, areaBase, areaLen int, headOff, headLen uint16, backwards bool) ([]byte, error) {
	bmap := make([]byte, (areaLen+7)/8)
	for i := range bmap {
		bmap[i] = 0xFF
	}

	off := headOff
	total := int(headLen)
	for total > 0 {
		if off == types.BtoffInvalid {
			break
		}

		var start int
		if backwards {
			if int(off) < nlocSize {
				return nil, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "no room for free list entry in value area")
			}
			if areaLen < int(off) {
				return nil, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "free area is out-of-bounds")
			}
			start = areaLen - int(off)
		} else {
			if int(off)+nlocSize > areaLen {
				return nil, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "no room for free list entry in key area")
			}
			start = int(off)
		}

		entry := raw[areaBase+start:]
		entryLen := int(binary.LittleEndian.Uint16(entry[2:]))
		if entryLen < nlocSize {
			return nil, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "free area is too small")
		}
		if backwards {
			if entryLen > int(off) {
				return nil, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "free area is out-of-bounds")
			}
		} else if start+entryLen > areaLen {
			return nil, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "free area is out-of-bounds")
		}

		for i := start; i < start+entryLen; i++ {
			byteIdx, bit := i/8, byte(1<<uint(i%8))
			if bmap[byteIdx]&bit == 0 {
				return nil, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "byte listed twice in free list")
			}
			bmap[byteIdx] ^= bit
		}

		total -= entryLen
		off = binary.LittleEndian.Uint16(entry)
	}

	if off != types.BtoffInvalid {
		return nil, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "bad last entry in free list")
	}
	return bmap, nil
}

// reconcileBitmaps implements compare_bmaps: it checks that every byte the
// used bitmap claims is also free-list-eligible (no used byte marked free),
// and returns the number of unused bytes in the area so the caller can cross
// check it against the free list's own length total.
func reconcileBitmaps(kind TreeKind, oid types.OidT, xid types.XidT, freeBmap, usedBmap []byte, areaLen int, area string) (int, error) {
	unused := 0
	full := areaLen / 8
	for i := 0; i < full; i++ {
		for j := 0; j < 8; j++ {
			mask := byte(1 << uint(j))
			if usedBmap[i]&mask == 0 {
				unused++
			}
		}
		if freeBmap[i]|usedBmap[i] != freeBmap[i] {
			return 0, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "used record space listed as free in %s area", area)
		}
	}
	for j := 0; j < areaLen%8; j++ {
		mask := byte(1 << uint(j))
		if usedBmap[full]&mask == 0 {
			unused++
		}
		if usedBmap[full]&mask != 0 && freeBmap[full]&mask == 0 {
			return 0, fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "used record space listed as free in %s area", area)
		}
	}
	return unused, nil
}

// keyFreeListOffset and valFreeListOffset locate btn_key_free_list and
// btn_val_free_list within the raw block, following the field layout used
// by newNode's offset derivation.
func keyFreeListOffset() int { return objPhysSize + 2 + 2 + 4 + 2*nlocSize }
func valFreeListOffset() int { return objPhysSize + 2 + 2 + 4 + 3*nlocSize }

// checkFreeSpace implements node_compare_bmaps: it parses both free lists,
// reconciles them against the bitmaps the walker built while placing
// records, and confirms the reported free-list totals match.
func (n *Node) checkFreeSpace() error {
	keyAreaLen := n.free - n.key
	keyFreeOff := binary.LittleEndian.Uint16(n.raw[keyFreeListOffset():])
	keyFreeLen := binary.LittleEndian.Uint16(n.raw[keyFreeListOffset()+2:])
	keyFreeBmap, err := parseFreeList(n.kind, n.meta.OID, n.meta.XID, n.raw, n.key, keyAreaLen, keyFreeOff, keyFreeLen, false)
	if err != nil {
		return err
	}
	keyUnused, err := reconcileBitmaps(n.kind, n.meta.OID, n.meta.XID, keyFreeBmap, n.usedKeyBmap, keyAreaLen, "key")
	if err != nil {
		return err
	}
	if keyUnused != int(keyFreeLen) {
		return fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "wrong free space total for key area")
	}

	valAreaLen := n.blockSize - n.data - n.footerSize()
	valFreeOff := binary.LittleEndian.Uint16(n.raw[valFreeListOffset():])
	valFreeLen := binary.LittleEndian.Uint16(n.raw[valFreeListOffset()+2:])
	valFreeBmap, err := parseFreeList(n.kind, n.meta.OID, n.meta.XID, n.raw, n.data, valAreaLen, valFreeOff, valFreeLen, true)
	if err != nil {
		return err
	}
	valUnused, err := reconcileBitmaps(n.kind, n.meta.OID, n.meta.XID, valFreeBmap, n.usedValBmap, valAreaLen, "value")
	if err != nil {
		return err
	}
	if valUnused != int(valFreeLen) {
		return fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "wrong free space total for value area")
	}
	return nil
}
