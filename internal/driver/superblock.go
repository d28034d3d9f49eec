package driver

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-apfs/internal/types"
)

// parseApfsSuperblock decodes the fields of a volume superblock this
// driver actually needs (identity plus the three checker-relevant tree
// oids); see types.ApfsSuperblockT's doc comment for what's dropped.
func parseApfsSuperblock(data []byte, endian binary.ByteOrder) (*types.ApfsSuperblockT, error) {
	const minSize = 256 // covers every field through ApfsVolUuid
	if len(data) < minSize {
		return nil, fmt.Errorf("insufficient data for volume superblock: %d bytes", len(data))
	}

	vsb := &types.ApfsSuperblockT{}
	copy(vsb.ApfsO.OChecksum[:], data[0:8])
	vsb.ApfsO.OOid = types.OidT(endian.Uint64(data[8:16]))
	vsb.ApfsO.OXid = types.XidT(endian.Uint64(data[16:24]))
	vsb.ApfsO.OType = endian.Uint32(data[24:28])
	vsb.ApfsO.OSubtype = endian.Uint32(data[28:32])

	vsb.ApfsMagic = endian.Uint32(data[32:36])
	vsb.ApfsFsIndex = endian.Uint32(data[36:40])

	vsb.ApfsFeatures = endian.Uint64(data[40:48])
	vsb.ApfsReadonlyCompatibleFeatures = endian.Uint64(data[48:56])
	vsb.ApfsIncompatibleFeatures = endian.Uint64(data[56:64])
	vsb.ApfsUnmountTime = endian.Uint64(data[64:72])

	vsb.ApfsFsReserveBlockCount = endian.Uint64(data[72:80])
	vsb.ApfsFsQuotaBlockCount = endian.Uint64(data[80:88])
	vsb.ApfsFsAllocCount = endian.Uint64(data[88:96])

	vsb.ApfsMetaCrypto.MajorVersion = endian.Uint16(data[96:98])
	vsb.ApfsMetaCrypto.MinorVersion = endian.Uint16(data[98:100])
	vsb.ApfsMetaCrypto.Cpflags = endian.Uint32(data[100:104])
	vsb.ApfsMetaCrypto.PersistentClass = types.CpKeyClassT(endian.Uint32(data[104:108]))
	vsb.ApfsMetaCrypto.KeyOsVersion = endian.Uint32(data[108:112])
	vsb.ApfsMetaCrypto.KeyRevision = endian.Uint16(data[112:114])
	vsb.ApfsMetaCrypto.Unused = endian.Uint16(data[114:116])

	vsb.ApfsRootTreeType = endian.Uint32(data[116:120])
	vsb.ApfsExtentreftreeType = endian.Uint32(data[120:124])
	vsb.ApfsSnapMetatreeType = endian.Uint32(data[124:128])

	vsb.ApfsOmapOid = types.OidT(endian.Uint64(data[128:136]))
	vsb.ApfsRootTreeOid = types.OidT(endian.Uint64(data[136:144]))
	vsb.ApfsExtentrefTreeOid = types.OidT(endian.Uint64(data[144:152]))
	vsb.ApfsSnapMetaTreeOid = types.OidT(endian.Uint64(data[152:160]))

	vsb.ApfsRevertToXid = types.XidT(endian.Uint64(data[160:168]))
	vsb.ApfsRevertToSblockOid = types.OidT(endian.Uint64(data[168:176]))

	vsb.ApfsNextObjId = endian.Uint64(data[176:184])
	vsb.ApfsNumFiles = endian.Uint64(data[184:192])
	vsb.ApfsNumDirectories = endian.Uint64(data[192:200])
	vsb.ApfsNumSymlinks = endian.Uint64(data[200:208])
	vsb.ApfsNumOtherFsobjects = endian.Uint64(data[208:216])
	vsb.ApfsNumSnapshots = endian.Uint64(data[216:224])
	vsb.ApfsTotalBlocksAlloced = endian.Uint64(data[224:232])
	vsb.ApfsTotalBlocksFreed = endian.Uint64(data[232:240])

	copy(vsb.ApfsVolUuid[:], data[240:256])

	if len(data) >= 272 {
		vsb.ApfsLastModTime = endian.Uint64(data[256:264])
		vsb.ApfsFsFlags = endian.Uint64(data[264:272])
	}
	if volnameEnd := 272 + types.ApfsVolnameLen; len(data) >= volnameEnd {
		copy(vsb.ApfsVolname[:], data[272:volnameEnd])
	}

	return vsb, nil
}
