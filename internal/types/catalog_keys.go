package types

// JKeyT is the header present at the start of every catalog tree key.
// Reference: page 83
type JKeyT struct {
	ObjIdAndType uint64
}

// ObjIdMask/ObjTypeMask/ObjTypeShift split a JKeyT's combined field into the
// file-system object identifier (low 60 bits) and the record type (top 4 bits).
// Reference: page 84
const (
	ObjIdMask      uint64 = 0x0fffffffffffffff
	ObjTypeMask    uint64 = 0xf000000000000000
	ObjTypeShift   uint64 = 60
	SystemObjIdMark uint64 = 0x0fffffff00000000
)

// ObjId returns the file-system object identifier encoded in the key header.
func (k JKeyT) ObjId() uint64 { return k.ObjIdAndType & ObjIdMask }

// ObjType returns the catalog record type encoded in the key header.
// The type enumeration itself (JObjType and its JObjType* constants) lives
// in file_system_constants.go.
func (k JKeyT) ObjType() JObjType { return JObjType((k.ObjIdAndType & ObjTypeMask) >> ObjTypeShift) }

// UidT and GidT are owning user/group identifiers for an inode.
// Reference: page 89
type UidT uint32
type GidT uint32

// CpKeyClassT identifies a protection (encryption) class.
type CpKeyClassT uint32

// JInodeKeyT is the key half of an inode record.
// Reference: page 88
type JInodeKeyT struct {
	Hdr JKeyT
}

// JInodeValT is the value half of an inode record.
// Reference: pages 88-91
type JInodeValT struct {
	ParentId                uint64
	PrivateId               uint64
	CreateTime              uint64
	ModTime                 uint64
	ChangeTime              uint64
	AccessTime              uint64
	InternalFlags           uint64
	NchildrenOrNlink        int32
	DefaultProtectionClass  CpKeyClassT
	WriteGenerationCounter  uint32
	BsdFlags                uint32
	Owner                   UidT
	Group                   GidT
	FileMode                Mode
	Pad1                    uint16
	UncompressedSize        uint64
	XFields                 []byte
}

// Nchildren returns the number of directory entries. Only meaningful when
// the owning record is a directory.
func (v JInodeValT) Nchildren() int32 { return v.NchildrenOrNlink }

// Nlink returns the hard link count. Only meaningful when the owning record
// is not a directory.
func (v JInodeValT) Nlink() int32 { return v.NchildrenOrNlink }

// Inode internal flags (j_inode_flags, page 92)
const (
	InodeIsApfsPrivate          uint64 = 0x00000001
	InodeMaintainDirStats       uint64 = 0x00000002
	InodeDirStatsOrigin         uint64 = 0x00000004
	InodeProtClassExplicit      uint64 = 0x00000008
	InodeWasCloned              uint64 = 0x00000010
	InodeFlagUnused             uint64 = 0x00000020
	InodeHasSecurityEa          uint64 = 0x00000040
	InodeBeingTruncated         uint64 = 0x00000080
	InodeHasFinderInfo          uint64 = 0x00000100
	InodeIsSparse               uint64 = 0x00000200
	InodeWasEverCloned          uint64 = 0x00000400
	InodeActiveFileTrimmed      uint64 = 0x00000800
	InodePinnedToMain           uint64 = 0x00001000
	InodePinnedToTier2          uint64 = 0x00002000
	InodeHasRsrcFork            uint64 = 0x00004000
	InodeNoRsrcFork             uint64 = 0x00008000
	InodeAllocationSpilledOver  uint64 = 0x00010000
	InodeFastCloneOrigin        uint64 = 0x00020000
	InodeHasUncompressedSize    uint64 = 0x00040000
	InodeIsPurgeable            uint64 = 0x00080000
	InodeWantsToBePurgeable     uint64 = 0x00100000
	InodeIsSyncRoot             uint64 = 0x00200000
	InodeSnapshotCowExemption   uint64 = 0x00400000
)

// ApfsValidInternalInodeFlags is a mask of all recognized inode flags.
const ApfsValidInternalInodeFlags uint64 = 0x007fffff

// ApfsInodePinnedMask is a mask of the mutually exclusive tier-pinning flags.
const ApfsInodePinnedMask = InodePinnedToMain | InodePinnedToTier2

// Directory entry flags (j_drec_flags / dir_rec kinds, page 94)
const (
	DrecTypeMask uint16 = 0x000f
)

// JDrecKeyT is the key half of an unhashed directory entry record.
// Reference: page 93
type JDrecKeyT struct {
	Hdr     JKeyT
	NameLen uint16
	Name    []byte
}

// JDrecHashedKeyT is the key half of a hashed directory entry record, used
// by case-insensitive and normalization-insensitive volumes.
// Reference: page 93
type JDrecHashedKeyT struct {
	Hdr            JKeyT
	NameLenAndHash uint32
	Name           []byte
}

// JDrecLenMask/JDrecHashMask/JDrecHashShift split NameLenAndHash.
// Reference: page 94
const (
	JDrecLenMask   uint32 = 0x000003ff
	JDrecHashMask  uint32 = 0xfffffc00
	JDrecHashShift uint32 = 10
)

// JDrecValT is the value half of a directory entry record.
// Reference: page 94
type JDrecValT struct {
	FileId    uint64
	DateAdded uint64
	Flags     uint16
	XFields   []byte
}

// JDirStatsKeyT is the key half of a directory-information record.
// Reference: page 95
type JDirStatsKeyT struct {
	Hdr JKeyT
}

// JDirStatsValT is the value half of a directory-information record.
// Reference: page 95
type JDirStatsValT struct {
	NumChildren uint64
	TotalSize   uint64
	ChainedKey  uint64
	GenCount    uint64
}

// JXattrKeyT is the key half of an extended attribute record.
// Reference: page 96
type JXattrKeyT struct {
	Hdr     JKeyT
	NameLen uint16
	Name    []byte
}

// JXattrValT is the value half of an extended attribute record.
// Reference: page 97
type JXattrValT struct {
	Flags    uint16
	XdataLen uint16
	Xdata    []byte
}

// Extended attribute flags (j_xattr_flags, page 97)
const (
	XattrDataStream       uint16 = 0x00000001
	XattrDataEmbedded     uint16 = 0x00000002
	XattrFileSystemOwned  uint16 = 0x00000004
	XattrReserved8        uint16 = 0x00000008
)

// JPhysExtKeyT is the key half of a physical extent record. Its header's
// object identifier is the physical block address the extent starts at.
// Reference: page 102
type JPhysExtKeyT struct {
	Hdr JKeyT
}

// JPhysExtValT is the value half of a physical extent record.
// Reference: pages 102-103
type JPhysExtValT struct {
	LenAndKind  uint64
	OwningObjId uint64
	Refcnt      int32
}

// PextLenMask/PextKindMask/PextKindShift split LenAndKind.
// Reference: page 103
const (
	PextLenMask   uint64 = 0x0fffffffffffffff
	PextKindMask  uint64 = 0xf000000000000000
	PextKindShift uint64 = 60
)

// JObjKinds enumerates the life cycle of a physical extent.
// Reference: page 87
type JObjKinds uint8

const (
	ApfsKindAny        JObjKinds = 0
	ApfsKindNew        JObjKinds = 1
	ApfsKindUpdate     JObjKinds = 2
	ApfsKindDead       JObjKinds = 3
	ApfsKindUpdateRefcrc JObjKinds = 4
	ApfsKindInvalid    JObjKinds = 255
)

// JFileExtentKeyT is the key half of a file extent record.
// Reference: pages 103-104
type JFileExtentKeyT struct {
	Hdr         JKeyT
	LogicalAddr uint64
}

// JFileExtentValT is the value half of a file extent record.
// Reference: page 104
type JFileExtentValT struct {
	LenAndFlags  uint64
	PhysBlockNum uint64
	CryptoId     uint64
}

// JFileExtentLenMask/JFileExtentFlagMask/JFileExtentFlagShift split LenAndFlags.
// Reference: page 105
const (
	JFileExtentLenMask   uint64 = 0x00ffffffffffffff
	JFileExtentFlagMask  uint64 = 0xff00000000000000
	JFileExtentFlagShift uint64 = 56
)

// JDstreamIdKeyT is the key half of a data stream record.
// Reference: page 105
type JDstreamIdKeyT struct {
	Hdr JKeyT
}

// JDstreamIdValT is the value half of a data stream record.
// Reference: page 105
type JDstreamIdValT struct {
	Refcnt uint32
}

// JSiblingKeyT is the key half of a sibling-link record. Its header's
// object identifier is the inode number the sibling points to.
// Reference: page 115
type JSiblingKeyT struct {
	Hdr       JKeyT
	SiblingId uint64
}

// JSiblingValT is the value half of a sibling-link record.
// Reference: page 116
type JSiblingValT struct {
	ParentId uint64
	NameLen  uint16
	Name     []byte
}

// JSiblingMapKeyT is the key half of a sibling-map record. Its header's
// object identifier is the sibling's own unique identifier.
// Reference: page 116
type JSiblingMapKeyT struct {
	Hdr JKeyT
}

// JSiblingMapValT is the value half of a sibling-map record.
// Reference: page 116
type JSiblingMapValT struct {
	FileId uint64
}
