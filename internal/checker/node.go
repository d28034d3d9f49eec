package checker

import (
	"encoding/binary"

	"github.com/deploymenttheory/go-apfs/internal/types"
)

// objPhysSize is the on-disk size of apfs_obj_phys: an 8-byte checksum, two
// 8-byte identifiers and two 4-byte type words.
const objPhysSize = types.MaxCksumSize + 8 + 8 + 4 + 4

// nodeHeaderSize is the on-disk size of apfs_btree_node_phys up to and
// including the four nloc_t fields, i.e. the offset of btn_data.
const nodeHeaderSize = objPhysSize + 2 + 2 + 4 + 4*4

// btreeInfoSize is the on-disk size of apfs_btree_info, present only at the
// tail of a root node's block.
const btreeInfoSize = 16 + 4 + 4 + 8 + 8

// ObjectMeta is the decoded object header of a block, handed to the checker
// by the driver layer's read_object realization alongside the payload.
type ObjectMeta struct {
	OID     types.OidT
	XID     types.XidT
	Type    uint32
	Subtype uint32
	BlockNr uint64
}

// Node is the in-memory form of one B-tree node block: the header fields
// parsed out, the region offsets derived, and the raw block kept around so
// that locateKey/locateData can slice directly into it. It carries its
// TreeKind rather than a pointer back to the owning tree, per the design
// note on node.object in SPEC_FULL.md §9.
type Node struct {
	kind TreeKind
	meta ObjectMeta
	raw  []byte

	blockSize int

	flags   uint16
	level   uint16
	records int

	toc  int
	key  int
	free int
	data int

	usedKeyBmap []byte
	usedValBmap []byte
}

func (n *Node) isLeaf() bool         { return n.flags&types.BtnodeLeaf != 0 }
func (n *Node) isRoot() bool         { return n.flags&types.BtnodeRoot != 0 }
func (n *Node) hasFixedKV() bool     { return n.flags&types.BtnodeFixedKvSize != 0 }
func (n *Node) footerSize() int {
	if n.isRoot() {
		return btreeInfoSize
	}
	return 0
}

// NewNode exposes newNode to the driver layer, which needs a parsed,
// validated Node for an object map root before it can build the Tree that
// would otherwise produce one via Walk (the omap itself must be read this
// way, since nothing walks it on the driver's behalf).
func NewNode(kind TreeKind, meta ObjectMeta, raw []byte, blockSize int) (*Node, error) {
	return newNode(kind, meta, raw, blockSize)
}

// newNode parses a node's header and offsets out of a raw block, mirroring
// read_node's field derivation, then validates it with nodeIsValid and the
// object type/subtype checks read_node performs right after.
func newNode(kind TreeKind, meta ObjectMeta, raw []byte, blockSize int) (*Node, error) {
	if len(raw) < nodeHeaderSize {
		return nil, fatal(CategoryStructural, kind, uint64(meta.OID), uint64(meta.XID), "block too small for a B-tree node header")
	}

	// Layout after the object header: btn_flags(2) btn_level(2) btn_nkeys(4)
	// btn_table_space(4) btn_free_space(4) btn_key_free_list(4) btn_val_free_list(4).
	base := objPhysSize + 2 + 2 + 4
	tableSpaceOff := binary.LittleEndian.Uint16(raw[base:])
	tableSpaceLen := binary.LittleEndian.Uint16(raw[base+2:])
	freeSpaceOff := binary.LittleEndian.Uint16(raw[base+4:])
	freeSpaceLen := binary.LittleEndian.Uint16(raw[base+6:])

	n := &Node{
		kind:      kind,
		meta:      meta,
		raw:       raw,
		blockSize: blockSize,
		flags:     binary.LittleEndian.Uint16(raw[objPhysSize:]),
		level:     binary.LittleEndian.Uint16(raw[objPhysSize+2:]),
		records:   int(binary.LittleEndian.Uint32(raw[objPhysSize+4:])),
	}

	n.toc = nodeHeaderSize + int(tableSpaceOff)
	n.key = n.toc + int(tableSpaceLen)
	n.free = n.key + int(freeSpaceOff)
	n.data = n.free + int(freeSpaceLen)

	if err := n.validate(blockSize); err != nil {
		return nil, err
	}

	if n.isRoot() && meta.Type != types.ObjectTypeBtree {
		return nil, fatal(CategoryStructural, kind, uint64(meta.OID), uint64(meta.XID), "wrong object type for root")
	}
	if !n.isRoot() && meta.Type != types.ObjectTypeBtreeNode {
		return nil, fatal(CategoryStructural, kind, uint64(meta.OID), uint64(meta.XID), "wrong object type for nonroot")
	}
	if meta.Subtype != kind.expectedSubtype() {
		return nil, fatal(CategoryStructural, kind, uint64(meta.OID), uint64(meta.XID), "wrong object subtype for %s node", kind)
	}
	if kind.requiresFixedKV() && !n.hasFixedKV() {
		return nil, fatal(CategoryStructural, kind, uint64(meta.OID), uint64(meta.XID), "fixed kv size flag missing")
	}

	n.usedKeyBmap = make([]byte, (n.free-n.key+7)/8)
	n.usedValBmap = make([]byte, (blockSize-n.data-n.footerSize()+7)/8)

	return n, nil
}

// validate implements node_is_valid: the flag mask, the leaf-flag-iff-level-
// zero rule, non-empty non-root rule, the table-of-contents-follows-the-header
// rule, the value-area bound, and the table-of-contents-covers-every-record
// rule.
func (n *Node) validate(blockSize int) error {
	if n.flags&btnodeValidMask != n.flags {
		return fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "undefined flag bit set on B-tree node")
	}
	if n.isLeaf() != (n.level == 0) {
		return fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "leaf flag does not match node level %d", n.level)
	}
	if !n.isRoot() && n.records == 0 {
		return fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "empty non-root node")
	}
	if n.toc != nodeHeaderSize {
		return fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "table of contents does not follow the header")
	}
	if n.data > blockSize-n.footerSize() {
		return fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "value area starts after it ends")
	}

	entrySize := kvlocSize
	if n.hasFixedKV() {
		entrySize = kvoffSize
	}
	if n.records*entrySize > n.key-n.toc {
		return fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "not every record has a table of contents entry")
	}
	return nil
}

const (
	kvoffSize = 4 // apfs_kvoff: two le16 offsets
	kvlocSize = 8 // apfs_kvloc: two apfs_nloc (4 bytes each)

	// btnodeValidMask mirrors APFS_BTNODE_MASK from apfsck: the only flag
	// bits node_is_valid accepts are root, leaf and fixed-kv-size. Nodes
	// stored without a header or with the check-koff-inval bit set never
	// reach disk, so those flags are rejected here even though the format
	// defines them.
	btnodeValidMask = types.BtnodeRoot | types.BtnodeLeaf | types.BtnodeFixedKvSize
)

// locateKey implements node_locate_key: it resolves record index's key
// offset and length from the table of contents, translating the in-area
// offset to an offset in the block, and checks the key fits in the key
// area before returning.
func (n *Node) locateKey(index int) (off, length int, err error) {
	if index < 0 || index >= n.records {
		return 0, 0, fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "requested index out-of-bounds")
	}

	var offInArea int
	if n.hasFixedKV() {
		entry := n.raw[n.toc+index*kvoffSize:]
		length = 16
		offInArea = int(binary.LittleEndian.Uint16(entry))
	} else {
		entry := n.raw[n.toc+index*kvlocSize:]
		length = int(binary.LittleEndian.Uint16(entry[2:]))
		offInArea = int(binary.LittleEndian.Uint16(entry))
	}

	off = n.key + offInArea
	if off+length > n.free {
		return 0, 0, fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "key is out-of-bounds")
	}
	return off, length, nil
}

// locateData implements node_locate_data: like locateKey but for the value
// area, where offsets count backwards from the end of the value area and
// fixed-size values are 16 bytes in a leaf (an omap_val) or 8 in a nonleaf
// (a child OID).
func (n *Node) locateData(index int) (off, length int, err error) {
	if index < 0 || index >= n.records {
		return 0, 0, fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "requested index out-of-bounds")
	}

	areaLen := n.blockSize - n.data - n.footerSize()

	var offInArea int
	if n.hasFixedKV() {
		entry := n.raw[n.toc+index*kvoffSize:]
		if n.isLeaf() {
			length = 16
		} else {
			length = 8
		}
		offInArea = areaLen - int(binary.LittleEndian.Uint16(entry[2:]))
	} else {
		entry := n.raw[n.toc+index*kvlocSize:]
		length = int(binary.LittleEndian.Uint16(entry[6:]))
		offInArea = areaLen - int(binary.LittleEndian.Uint16(entry[4:]))
	}

	off = n.data + offInArea
	if offInArea < 0 || offInArea+length > areaLen {
		return 0, 0, fatal(CategoryStructural, n.kind, uint64(n.meta.OID), uint64(n.meta.XID), "value is out-of-bounds")
	}
	return off, length, nil
}

// markUsed implements bmap_mark_as_used: it flags [off, off+len) as used in
// bitmap, reporting any byte already marked as an overlapping record.
func markUsed(kind TreeKind, oid types.OidT, xid types.XidT, bitmap []byte, off, length int) error {
	for i := off; i < off+length; i++ {
		byteIdx, bit := i/8, byte(1<<uint(i%8))
		if bitmap[byteIdx]&bit != 0 {
			return fatal(CategoryStructural, kind, uint64(oid), uint64(xid), "overlapping record data")
		}
		bitmap[byteIdx] |= bit
	}
	return nil
}
