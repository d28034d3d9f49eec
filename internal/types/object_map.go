package types

// OmapPhysT is the object map header stored at the start of an omap block.
// Reference: page 44
type OmapPhysT struct {
	OmO                ObjPhysT
	OmFlags            uint32
	OmSnapCount        uint32
	OmTreeType         uint32
	OmSnapshotTreeType uint32
	OmTreeOid          OidT
	OmSnapshotTreeOid  OidT
	OmMostRecentSnap   XidT
	OmPendingRevertMin XidT
	OmPendingRevertMax XidT
}

// OmapKeyT is the fixed-size key stored in an object map B-tree.
// Reference: page 46
type OmapKeyT struct {
	OkOid OidT
	OkXid XidT
}

// OmapValT is the fixed-size value stored in an object map B-tree.
// Reference: page 46
type OmapValT struct {
	OvFlags uint32
	OvSize  uint32
	OvPaddr Paddr
}

// Object map value flags (page 48)
const (
	OmapValDeleted          uint32 = 0x00000001
	OmapValSaved            uint32 = 0x00000002
	OmapValEncrypted        uint32 = 0x00000004
	OmapValNoheader         uint32 = 0x00000008
	OmapValCryptoGeneration uint32 = 0x00000010
)

// Object map flags (pages 49-50)
const (
	OmapManuallyManaged uint32 = 0x00000001
	OmapEncrypting      uint32 = 0x00000002
	OmapDecrypting      uint32 = 0x00000004
	OmapKeyrolling      uint32 = 0x00000008
	OmapCryptoGeneration uint32 = 0x00000010
	OmapValidFlags      uint32 = 0x0000001f
)

// OmapKeySize is the fixed on-disk size of an OmapKeyT record.
const OmapKeySize = 16

// OmapValSize is the fixed on-disk size of an OmapValT record.
const OmapValSize = 16
