package types

// NxSuperblockT is the container superblock: the object every open starts
// from, at the fixed physical block 0.
// Adapted from the teacher's apfs/types/container.go onto this package's
// OidT/XidT/ObjPhysT/UUID/Paddr/Prange primitives.
type NxSuperblockT struct {
	NxO ObjPhysT

	NxMagic                      uint32
	NxBlockSize                  uint32
	NxBlockCount                 uint64
	NxFeatures                   uint64
	NxReadonlyCompatibleFeatures uint64
	NxIncompatibleFeatures       uint64
	NxUuid                       UUID
	NxNextOid                    OidT
	NxNextXid                    XidT

	NxXpDescBlocks uint32
	NxXpDataBlocks uint32
	NxXpDescBase   Paddr
	NxXpDataBase   Paddr
	NxXpDescNext   uint32
	NxXpDataNext   uint32
	NxXpDescIndex  uint32
	NxXpDescLen    uint32
	NxXpDataIndex  uint32
	NxXpDataLen    uint32

	NxSpacemanOid OidT
	NxOmapOid     OidT
	NxReaperOid   OidT

	NxTestType       uint32
	NxMaxFileSystems uint32

	NxFsOid  [NxMaxFileSystems]OidT
	NxCounters [NxNumCounters]uint64

	NxBlockedOutPrange    Prange
	NxEvictMappingTreeOid OidT
	NxFlags               uint64
	NxEfiJumpstart        Paddr
	NxFusionUuid          UUID
	NxKeylocker           Prange
	NxEphemeralInfo       [NxEphInfoCount]uint64

	NxTestOid      OidT
	NxFusionMtOid  OidT
	NxFusionWbcOid OidT
	NxFusionWbc    Prange

	NxNewestMountedVersion uint64
	NxMkbLocker            Prange
}

// NxMagic is the value of the nx_magic field ("NXSB" in a hex dump).
const NxMagic uint32 = 'N' | 'X'<<8 | 'S'<<16 | 'B'<<24

// Container feature flags (nx_features).
const (
	NxFeatureDefrag uint64 = 0x0000000000000001
	NxFeatureLcfd   uint64 = 0x0000000000000002
)

// NxMinimumBlockSize and NxMinimumContainerSize are the smallest block size
// and container size, in bytes.
const (
	NxMinimumBlockSize     = 4096
	NxMinimumContainerSize = 1048576
)

// NxMaxFileSystems is the maximum number of volumes a container can hold.
const NxMaxFileSystems = 100

// NxNumCounters is the length of the nx_counters array.
const NxNumCounters = 32

// NxEphInfoCount is the length of the nx_ephemeral_info array.
const NxEphInfoCount = 4
