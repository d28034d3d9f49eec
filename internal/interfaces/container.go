// File: internal/interfaces/container.go
package interfaces

import (
	"github.com/deploymenttheory/go-apfs/internal/types"
)

// ContainerSuperblockReader provides methods for reading the container superblock information
type ContainerSuperblockReader interface {
	// Magic returns the magic number for validating the container superblock
	Magic() uint32

	// BlockSize returns the logical block size used in the container
	BlockSize() uint32

	// BlockCount returns the total number of logical blocks available in the container
	BlockCount() uint64

	// UUID returns the universally unique identifier of the container
	UUID() types.UUID

	// NextObjectID returns the next object identifier to be used for new ephemeral or virtual objects
	NextObjectID() types.OidT

	// NextTransactionID returns the next transaction to be used
	NextTransactionID() types.XidT

	// SpaceManagerOID returns the ephemeral object identifier for the space manager
	SpaceManagerOID() types.OidT

	// ObjectMapOID returns the physical object identifier for the container's object map
	ObjectMapOID() types.OidT

	// ReaperOID returns the ephemeral object identifier for the reaper
	ReaperOID() types.OidT

	// MaxFileSystems returns the maximum number of volumes that can be stored in this container
	MaxFileSystems() uint32

	// VolumeOIDs returns the array of virtual object identifiers for volumes
	VolumeOIDs() []types.OidT

	// EFIJumpstart returns the physical object identifier of the object that contains EFI driver data
	EFIJumpstart() types.Paddr

	// FusionUUID returns the UUID of the container's Fusion set
	FusionUUID() types.UUID

	// KeylockerLocation returns the location of the container's keybag
	KeylockerLocation() types.Prange

	// MediaKeyLocation returns the wrapped media key location
	MediaKeyLocation() types.Prange

	// BlockedOutRange returns the blocked-out physical address range
	BlockedOutRange() types.Prange

	// EvictMappingTreeOID returns the object identifier of the evict-mapping tree
	EvictMappingTreeOID() types.OidT

	// TestType returns the container's test type for debugging
	TestType() uint32

	// TestOID returns the test object identifier for debugging
	TestOID() types.OidT

	// NewestMountedVersion returns the newest version of APFS that has mounted this container
	NewestMountedVersion() uint64
}

