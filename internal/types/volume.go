package types

// WrappedMetaCryptoStateT describes the encryption state of a volume's
// metadata. Adapted from the teacher's internal/types/encryption.go; only
// the fields the volume superblock parser needs to skip over by size are
// kept, since the driver doesn't decrypt anything.
type WrappedMetaCryptoStateT struct {
	MajorVersion    uint16
	MinorVersion    uint16
	Cpflags         uint32
	PersistentClass CpKeyClassT
	KeyOsVersion    uint32
	KeyRevision     uint16
	Unused          uint16
}

// ApfsSuperblockT is a volume superblock, trimmed to the fields the driver
// needs to locate a volume's three checker-relevant B-trees and to report
// its identity. Adapted from the teacher's apfs/types/volumes.go; fields
// past ApfsVolname (modification history details, quotas, sealed-volume
// extras) are out of scope for an integrity checker and dropped rather than
// carried as dead weight.
type ApfsSuperblockT struct {
	ApfsO ObjPhysT

	ApfsMagic   uint32
	ApfsFsIndex uint32

	ApfsFeatures                   uint64
	ApfsReadonlyCompatibleFeatures uint64
	ApfsIncompatibleFeatures       uint64
	ApfsUnmountTime                uint64

	ApfsFsReserveBlockCount uint64
	ApfsFsQuotaBlockCount   uint64
	ApfsFsAllocCount        uint64

	ApfsMetaCrypto WrappedMetaCryptoStateT

	ApfsRootTreeType      uint32
	ApfsExtentreftreeType uint32
	ApfsSnapMetatreeType  uint32

	ApfsOmapOid          OidT
	ApfsRootTreeOid      OidT
	ApfsExtentrefTreeOid OidT
	ApfsSnapMetaTreeOid  OidT

	ApfsRevertToXid       XidT
	ApfsRevertToSblockOid OidT

	ApfsNextObjId uint64

	ApfsNumFiles          uint64
	ApfsNumDirectories    uint64
	ApfsNumSymlinks       uint64
	ApfsNumOtherFsobjects uint64
	ApfsNumSnapshots      uint64

	ApfsTotalBlocksAlloced uint64
	ApfsTotalBlocksFreed   uint64

	ApfsVolUuid UUID

	ApfsLastModTime uint64
	ApfsFsFlags     uint64

	ApfsVolname [ApfsVolnameLen]byte
}

// ApfsMagic is the value of the apfs_magic field ("APSB" in a hex dump).
const ApfsMagic uint32 = 'A' | 'P'<<8 | 'S'<<16 | 'B'<<24

// ApfsVolnameLen is the length, in bytes, of the apfs_volname field.
const ApfsVolnameLen = 256
