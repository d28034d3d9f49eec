// Package records decodes and schema-checks the value half of catalog leaf
// records. It is adapted from the teacher's internal/parsers/file_system_objects,
// internal/parsers/data_streams and internal/parsers/siblings readers, rewired
// onto internal/types' JObjType-based record layout: where the teacher parsed
// a record and handed back a read-only view, these functions parse the same
// bytes and additionally enforce the schema invariants apfsck's parse_cat_record
// family checks before accepting a record.
package records

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-apfs/internal/types"
)

// ValidateInode decodes an inode record's value and checks its internal
// flags and mode bits, mirroring apfsck's parse_inode_record.
func ValidateInode(raw []byte, endian binary.ByteOrder) (types.JInodeValT, error) {
	const fixedSize = 8*6 + 8 + 4*6 + 2*2 + 8
	if len(raw) < fixedSize {
		return types.JInodeValT{}, fmt.Errorf("inode record too small: %d bytes", len(raw))
	}

	var v types.JInodeValT
	off := 0
	read64 := func() uint64 { x := endian.Uint64(raw[off : off+8]); off += 8; return x }
	read32 := func() uint32 { x := endian.Uint32(raw[off : off+4]); off += 4; return x }
	read16 := func() uint16 { x := endian.Uint16(raw[off : off+2]); off += 2; return x }

	v.ParentId = read64()
	v.PrivateId = read64()
	v.CreateTime = read64()
	v.ModTime = read64()
	v.ChangeTime = read64()
	v.AccessTime = read64()
	v.InternalFlags = read64()
	v.NchildrenOrNlink = int32(read32())
	v.DefaultProtectionClass = types.CpKeyClassT(read32())
	v.WriteGenerationCounter = read32()
	v.BsdFlags = read32()
	v.Owner = types.UidT(read32())
	v.Group = types.GidT(read32())
	v.FileMode = types.Mode(read16())
	v.Pad1 = read16()
	v.UncompressedSize = read64()
	if off < len(raw) {
		v.XFields = raw[off:]
	}

	if v.InternalFlags&^types.ApfsValidInternalInodeFlags != 0 {
		return v, fmt.Errorf("inode has undefined internal flag bits: %#x", v.InternalFlags)
	}
	if v.InternalFlags&types.ApfsInodePinnedMask == types.ApfsInodePinnedMask {
		return v, fmt.Errorf("inode is pinned to both tiers at once")
	}
	if v.FileMode&types.ModeIFMT == 0 {
		return v, fmt.Errorf("inode has no file type bits set in mode %#o", v.FileMode)
	}
	return v, nil
}

// ValidateDirEntry decodes a directory-entry record's value. Name/hash
// agreement is already enforced by the key codec that produced this
// record's key; here only the value's own invariant is checked.
func ValidateDirEntry(raw []byte, endian binary.ByteOrder) (types.JDrecValT, error) {
	if len(raw) < 8+8+2 {
		return types.JDrecValT{}, fmt.Errorf("directory entry record too small: %d bytes", len(raw))
	}
	v := types.JDrecValT{
		FileId:    endian.Uint64(raw[0:8]),
		DateAdded: endian.Uint64(raw[8:16]),
		Flags:     endian.Uint16(raw[16:18]),
	}
	if len(raw) > 18 {
		v.XFields = raw[18:]
	}
	if v.FileId == 0 {
		return v, fmt.Errorf("directory entry points at inode 0")
	}
	return v, nil
}

// ValidateXattr decodes an extended-attribute record's value and checks
// that exactly one of the data-stream/data-embedded flags is set.
func ValidateXattr(raw []byte, endian binary.ByteOrder) (types.JXattrValT, error) {
	if len(raw) < 4 {
		return types.JXattrValT{}, fmt.Errorf("xattr record too small: %d bytes", len(raw))
	}
	v := types.JXattrValT{
		Flags:    endian.Uint16(raw[0:2]),
		XdataLen: endian.Uint16(raw[2:4]),
	}
	if len(raw) > 4 {
		v.Xdata = raw[4:]
	}

	const validMask = types.XattrDataStream | types.XattrDataEmbedded | types.XattrFileSystemOwned | types.XattrReserved8
	if v.Flags&^validMask != 0 {
		return v, fmt.Errorf("xattr has undefined flag bits: %#x", v.Flags)
	}
	stream := v.Flags&types.XattrDataStream != 0
	embedded := v.Flags&types.XattrDataEmbedded != 0
	if stream == embedded {
		return v, fmt.Errorf("xattr must set exactly one of data-stream or data-embedded")
	}
	return v, nil
}

// ValidateFileExtent decodes a file-extent record's value and checks that
// its length is aligned to the container's block size, mirroring
// apfsck's parse_extent_record block-alignment check.
func ValidateFileExtent(raw []byte, endian binary.ByteOrder, blockSize uint32) (types.JFileExtentValT, error) {
	if len(raw) != 24 {
		return types.JFileExtentValT{}, fmt.Errorf("file extent record has wrong size: %d bytes", len(raw))
	}
	v := types.JFileExtentValT{
		LenAndFlags:  endian.Uint64(raw[0:8]),
		PhysBlockNum: endian.Uint64(raw[8:16]),
		CryptoId:     endian.Uint64(raw[16:24]),
	}
	length := v.LenAndFlags & types.JFileExtentLenMask
	if length%uint64(blockSize) != 0 {
		return v, fmt.Errorf("file extent length %d is not a multiple of the block size %d", length, blockSize)
	}
	return v, nil
}

// ValidateSiblingLink decodes a sibling-link record's value.
func ValidateSiblingLink(raw []byte, endian binary.ByteOrder) (types.JSiblingValT, error) {
	if len(raw) < 8+2 {
		return types.JSiblingValT{}, fmt.Errorf("sibling link record too small: %d bytes", len(raw))
	}
	v := types.JSiblingValT{
		ParentId: endian.Uint64(raw[0:8]),
		NameLen:  endian.Uint16(raw[8:10]),
	}
	if len(raw) > 10 {
		v.Name = raw[10:]
	}
	if v.ParentId == 0 {
		return v, fmt.Errorf("sibling link has no parent")
	}
	return v, nil
}

// ValidateSiblingMap decodes a sibling-map record's value.
func ValidateSiblingMap(raw []byte, endian binary.ByteOrder) (types.JSiblingMapValT, error) {
	if len(raw) != 8 {
		return types.JSiblingMapValT{}, fmt.Errorf("sibling map record has wrong size: %d bytes", len(raw))
	}
	v := types.JSiblingMapValT{FileId: endian.Uint64(raw[0:8])}
	if v.FileId == 0 {
		return v, fmt.Errorf("sibling map points at inode 0")
	}
	return v, nil
}

// ValidateDstreamId decodes a data-stream-id record's refcount.
func ValidateDstreamId(raw []byte, endian binary.ByteOrder) (types.JDstreamIdValT, error) {
	if len(raw) != 4 {
		return types.JDstreamIdValT{}, fmt.Errorf("dstream id record has wrong size: %d bytes", len(raw))
	}
	return types.JDstreamIdValT{Refcnt: endian.Uint32(raw[0:4])}, nil
}

// ValidatePhysExtent decodes an extentref-tree physical-extent record and
// returns the authoritative physical block address the extent starts at:
// the key's own object identifier, per JPhysExtKeyT's doc comment.
func ValidatePhysExtent(keyObjId uint64, raw []byte, endian binary.ByteOrder) (uint64, types.JPhysExtValT, error) {
	if len(raw) != 20 {
		return 0, types.JPhysExtValT{}, fmt.Errorf("physical extent record has wrong size: %d bytes", len(raw))
	}
	v := types.JPhysExtValT{
		LenAndKind:  endian.Uint64(raw[0:8]),
		OwningObjId: endian.Uint64(raw[8:16]),
		Refcnt:      int32(endian.Uint32(raw[16:20])),
	}
	kind := types.JObjKinds((v.LenAndKind & types.PextKindMask) >> types.PextKindShift)
	if kind == types.ApfsKindInvalid {
		return keyObjId, v, fmt.Errorf("physical extent has invalid kind")
	}
	return keyObjId, v, nil
}
