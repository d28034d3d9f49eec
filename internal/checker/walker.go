package checker

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-apfs/internal/records"
	"github.com/deploymenttheory/go-apfs/internal/types"
)

// Endian is the byte order every on-disk APFS structure uses.
var Endian = binary.LittleEndian

// ReadObjectFunc is the driver's read_object realization: it resolves oid
// (through omapRoot, when not nil) to a physical block and returns its
// payload and decoded object header.
type ReadObjectFunc func(ctx context.Context, oid types.OidT, omapRoot *Node) ([]byte, ObjectMeta, error)

// Tree accumulates the statistics TreeWalker builds while descending a
// single B-tree, and carries the per-tree configuration the walk needs:
// which flavor it is, the container's current transaction id (reported as
// context in violations raised while reading nodes), whether filename
// comparisons fold case, and the block reader.
type Tree struct {
	Kind      TreeKind
	XID       types.XidT
	CaseFold  bool
	BlockSize int
	OmapRoot  *Node
	Read      ReadObjectFunc

	KeyCount   uint64
	NodeCount  uint64
	LongestKey uint32
	LongestVal uint32

	root *Node
}

// Walk loads the root node at rootOID and recursively validates the whole
// tree, implementing TreeWalker (walk). It returns the validated root node,
// kept pinned for the footer check, or the first fatal Violation encountered.
func (t *Tree) Walk(ctx context.Context, rootOID types.OidT) (*Node, error) {
	raw, meta, err := t.Read(ctx, rootOID, t.OmapRoot)
	if err != nil {
		return nil, fatalWrap(CategoryStructural, t.Kind, uint64(rootOID), uint64(t.XID), err, "failed to read root node")
	}
	root, err := newNode(t.Kind, meta, raw, t.BlockSize)
	if err != nil {
		return nil, err
	}
	if !root.isRoot() {
		return nil, fatal(CategoryStructural, t.Kind, uint64(rootOID), uint64(t.XID), "root object lacks the root flag")
	}

	var lastKey *Key
	var nameBuf []byte
	if err := t.walkNode(ctx, root, &lastKey, &nameBuf); err != nil {
		return nil, err
	}
	t.root = root
	return root, nil
}

// walkNode implements the per-flavor structural checks and the per-record
// loop of TreeWalker, recursing into children in ascending key order.
func (t *Tree) walkNode(ctx context.Context, node *Node, lastKey **Key, nameBuf *[]byte) error {
	if err := t.checkFlavorShape(node); err != nil {
		return err
	}

	t.NodeCount++
	if node.isLeaf() {
		t.KeyCount += uint64(node.records)
	}

	for i := 0; i < node.records; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		keyOff, keyLen, err := node.locateKey(i)
		if err != nil {
			return err
		}
		if uint32(keyLen) > t.LongestKey {
			t.LongestKey = uint32(keyLen)
		}
		if err := markUsed(t.Kind, node.meta.OID, node.meta.XID, node.usedKeyBmap, keyOff-node.key, keyLen); err != nil {
			return err
		}

		curr, err := decodeKey(t.Kind, node.raw[keyOff:keyOff+keyLen], Endian, t.CaseFold)
		if err != nil {
			return err
		}
		if t.Kind == KindOmap {
			// Number carries the omap key's xid, for ordering and the node-xid check.
			curr.Number = Endian.Uint64(node.raw[keyOff+8 : keyOff+16])
			if types.XidT(curr.Number) > node.meta.XID {
				return fatal(CategoryOrdering, t.Kind, uint64(node.meta.OID), uint64(node.meta.XID), "omap record xid %d newer than node xid %d", curr.Number, node.meta.XID)
			}
		}

		if *lastKey != nil {
			cmp := keycmp(**lastKey, curr, t.CaseFold)
			if cmp > 0 {
				return fatal(CategoryOrdering, t.Kind, uint64(node.meta.OID), uint64(node.meta.XID), "records are out of order")
			}
			if node.isLeaf() && i > 0 && cmp == 0 {
				return fatal(CategoryOrdering, t.Kind, uint64(node.meta.OID), uint64(node.meta.XID), "duplicate key in leaf node")
			}
		}
		*lastKey = &curr

		dataOff, dataLen, err := node.locateData(i)
		if err != nil {
			return err
		}
		if err := markUsed(t.Kind, node.meta.OID, node.meta.XID, node.usedValBmap, dataOff-node.data, dataLen); err != nil {
			return err
		}

		if node.isLeaf() {
			if uint32(dataLen) > t.LongestVal {
				t.LongestVal = uint32(dataLen)
			}
			resolved, err := t.validateLeafRecord(curr, node.raw[dataOff:dataOff+dataLen])
			if err != nil {
				cat := CategorySchema
				if t.Kind == KindSnapMeta {
					cat = CategoryUnsupported
				}
				return fatalWrap(cat, t.Kind, uint64(node.meta.OID), uint64(node.meta.XID), err, "invalid %s record for object %d", curr.Type, curr.ID)
			}
			if resolved != 0 {
				(*lastKey).ID = resolved
			}
			continue
		}

		if dataLen != 8 {
			return fatal(CategoryStructural, t.Kind, uint64(node.meta.OID), uint64(node.meta.XID), "nonleaf record value is not a child oid")
		}
		childOID := types.OidT(Endian.Uint64(node.raw[dataOff : dataOff+8]))

		childRaw, childMeta, err := t.Read(ctx, childOID, t.OmapRoot)
		if err != nil {
			return fatalWrap(CategoryStructural, t.Kind, uint64(childOID), uint64(t.XID), err, "failed to read child node")
		}
		child, err := newNode(t.Kind, childMeta, childRaw, t.BlockSize)
		if err != nil {
			return err
		}
		if child.level != node.level-1 {
			return fatal(CategoryStructural, t.Kind, uint64(childOID), uint64(childMeta.XID), "child level %d does not follow from parent level %d", child.level, node.level)
		}
		if child.isRoot() {
			return fatal(CategoryStructural, t.Kind, uint64(childOID), uint64(childMeta.XID), "nonroot node has the root flag set")
		}
		if t.Kind.isPhysical() && node.meta.XID < child.meta.XID {
			return fatal(CategoryOrdering, t.Kind, uint64(childOID), uint64(childMeta.XID), "child xid newer than parent")
		}

		if err := t.walkNode(ctx, child, lastKey, nameBuf); err != nil {
			return err
		}
		if (*lastKey) != nil && (*lastKey).Name != nil {
			*nameBuf = append((*nameBuf)[:0], (*lastKey).Name...)
			saved := **lastKey
			saved.Name = *nameBuf
			*lastKey = &saved
		}
	}

	if err := node.checkFreeSpace(); err != nil {
		return err
	}
	return nil
}

// checkFlavorShape implements the per-flavor structural checks TreeWalker
// runs on every node before its record loop.
func (t *Tree) checkFlavorShape(node *Node) error {
	switch t.Kind {
	case KindOmap:
		if !node.hasFixedKV() {
			return fatal(CategoryStructural, t.Kind, uint64(node.meta.OID), uint64(node.meta.XID), "object map node lacks fixed kv size flag")
		}
	case KindCatalog, KindExtentref:
		if node.hasFixedKV() {
			return fatal(CategoryStructural, t.Kind, uint64(node.meta.OID), uint64(node.meta.XID), "%s node has fixed kv size flag set", t.Kind)
		}
	case KindSnapMeta:
		if node.hasFixedKV() {
			return fatal(CategoryStructural, t.Kind, uint64(node.meta.OID), uint64(node.meta.XID), "snapshot metadata node has fixed kv size flag set")
		}
		if node.records > 0 && !node.isLeaf() {
			return fatal(CategoryUnsupported, t.Kind, uint64(node.meta.OID), uint64(node.meta.XID), "nonempty snapshot metadata tree is not a single leaf root")
		}
	}
	return nil
}

// validateLeafRecord dispatches a catalog leaf record to the appropriate
// validator in internal/records by key type, per TreeWalker step 5. It
// returns the authoritative id the caller should substitute into last_key
// (nonzero only for extentref physical-extent records).
func (t *Tree) validateLeafRecord(key Key, val []byte) (resolvedID uint64, err error) {
	switch t.Kind {
	case KindOmap:
		if len(val) != types.OmapValSize {
			return 0, fmt.Errorf("wrong size for omap value: %d", len(val))
		}
		return 0, nil
	case KindExtentref:
		phys, _, err := records.ValidatePhysExtent(key.ID, val, Endian)
		return phys, err
	case KindCatalog:
		return 0, t.validateCatalogRecord(key, val)
	case KindSnapMeta:
		// A valid snapshot metadata tree is always empty; the original
		// never schema-validates its leaf records, it just reports any
		// non-empty tree as unsupported.
		return 0, fmt.Errorf("nonempty snapshot metadata tree")
	default:
		return 0, fmt.Errorf("unsupported tree kind %s", t.Kind)
	}
}

func (t *Tree) validateCatalogRecord(key Key, val []byte) error {
	switch key.Type {
	case types.JObjTypeInode:
		_, err := records.ValidateInode(val, Endian)
		return err
	case types.JObjTypeDirRec:
		_, err := records.ValidateDirEntry(val, Endian)
		return err
	case types.JObjTypeXattr:
		_, err := records.ValidateXattr(val, Endian)
		return err
	case types.JObjTypeFileExtent:
		_, err := records.ValidateFileExtent(val, Endian, uint32(t.BlockSize))
		return err
	case types.JObjTypeSiblingLink:
		_, err := records.ValidateSiblingLink(val, Endian)
		return err
	case types.JObjTypeSiblingMap:
		_, err := records.ValidateSiblingMap(val, Endian)
		return err
	case types.JObjTypeDStreamID:
		_, err := records.ValidateDstreamId(val, Endian)
		return err
	case types.JObjTypeDirStats, types.JObjTypeSnapName, types.JObjTypeCryptoState, types.JObjTypeFileInfo:
		return nil
	default:
		return fmt.Errorf("unrecognized catalog record type %d", key.Type)
	}
}
