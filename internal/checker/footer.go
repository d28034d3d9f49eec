package checker

import (
	"encoding/binary"

	"github.com/deploymenttheory/go-apfs/internal/types"
)

// footerOffset returns the offset of btree_info within the root node's
// block: the tail btreeInfoSize bytes of the block.
func footerOffset(blockSize int) int { return blockSize - btreeInfoSize }

// CheckFooter implements FooterChecker: it reads the apfs_btree_info from
// the tail of the root block and compares it against the statistics Walk
// accumulated, plus the flavor-specific key/value size rules of spec §4.5.
func (t *Tree) CheckFooter(root *Node) error {
	if !root.isRoot() {
		return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "footer check requires the root node")
	}

	f := root.raw[footerOffset(t.BlockSize):]
	btFlags := binary.LittleEndian.Uint32(f[0:4])
	btNodeSize := binary.LittleEndian.Uint32(f[4:8])
	btKeySize := binary.LittleEndian.Uint32(f[8:12])
	btValSize := binary.LittleEndian.Uint32(f[12:16])
	longestKey := binary.LittleEndian.Uint32(f[16:20])
	longestVal := binary.LittleEndian.Uint32(f[20:24])
	keyCount := binary.LittleEndian.Uint64(f[24:32])
	nodeCount := binary.LittleEndian.Uint64(f[32:40])
	_ = btFlags

	label := t.Kind.String()
	if t.Kind == KindSnapMeta {
		label = "snapshot metadata tree"
	}

	if btNodeSize != uint32(t.BlockSize) {
		return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: wrong node size in footer", label)
	}
	if keyCount != t.KeyCount {
		return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: key count mismatch (footer %d, counted %d)", label, keyCount, t.KeyCount)
	}
	if nodeCount != t.NodeCount {
		return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: node count mismatch (footer %d, counted %d)", label, nodeCount, t.NodeCount)
	}

	switch t.Kind {
	case KindOmap:
		if btKeySize != types.OmapKeySize || btValSize != types.OmapValSize {
			return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: wrong fixed key/value size in footer", label)
		}
		if longestKey != types.OmapKeySize || longestVal != types.OmapValSize {
			return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: wrong longest key/value in footer", label)
		}
	case KindCatalog:
		if btKeySize != 0 || btValSize != 0 {
			return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: variable-size tree reports a fixed key/value size", label)
		}
		if longestKey < t.LongestKey {
			return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: footer longest key is shorter than an observed key", label)
		}
		if longestVal < t.LongestVal {
			return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: footer longest value is shorter than an observed value", label)
		}
	case KindExtentref:
		const physExtKeySize = 8
		const physExtValSize = 20
		if btKeySize != 0 || btValSize != 0 {
			return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: variable-size tree reports a fixed key/value size", label)
		}
		if longestKey != physExtKeySize || longestVal != physExtValSize {
			return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: wrong longest key/value in footer", label)
		}
	case KindSnapMeta:
		if btKeySize != 0 || btValSize != 0 {
			return fatal(CategoryFooter, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: variable-size tree reports a fixed key/value size", label)
		}
		if longestKey != 0 || longestVal != 0 {
			return fatal(CategoryUnsupported, t.Kind, uint64(root.meta.OID), uint64(root.meta.XID), "%s: snapshots are unsupported but the footer reports stored records", label)
		}
	}
	return nil
}
