package checker

import (
	"context"
	"fmt"

	"github.com/deploymenttheory/go-apfs/internal/types"
)

// QueryFlags carries the tree flavor a query runs against (mutually
// exclusive) plus the behavioral bits that shape node_query/node_next.
type QueryFlags uint8

const (
	QueryOmap      QueryFlags = 1 << iota // search an object map
	QueryCat                              // search a catalog (or snapshot metadata) tree
	QueryExtentref                        // search the extent reference tree

	QueryMultiple // keep returning every record with this key, not just one
	QueryNext     // resume a multi-record search via node_next
	QueryExact    // a leaf mismatch is NOT_FOUND rather than "closest below"
	QueryDone     // no further candidates remain at this node's level
)

const maxQueryDepth = 12

// errRetryInParent signals node_query should resume the search one level up.
var errRetryInParent = fmt.Errorf("retry in parent")

// errNotFound signals a query found no matching record.
var errNotFound = fmt.Errorf("record not found")

// Query is the state of one keyed descent through a tree, implementing
// QueryEngine's query struct. It is built fresh for every call to
// btreeQuery and chains to its ancestors through parent so MULTIPLE
// searches can resume higher levels after exhausting a child.
type Query struct {
	tree   *Tree
	node   *Node
	sought Key
	parent *Query
	flags  QueryFlags

	index int
	keyOff, keyLen int
	off, len       int
	depth          int
}

// alloc implements QueryEngine's alloc: a new query starts at the
// rightmost record of node and, when chained under parent, inherits the
// parent's sought key and flags (minus DONE/NEXT, which are per-node).
func alloc(node *Node, parent *Query) *Query {
	q := &Query{node: node, index: node.records}
	if parent != nil {
		q.tree = parent.tree
		q.sought = parent.sought
		q.flags = parent.flags &^ (QueryDone | QueryNext)
		q.parent = parent
		q.depth = parent.depth + 1
	}
	return q
}

// keyFromQuery reads the key at q.keyOff/q.keyLen, implementing
// key_from_query. A MULTIPLE query ignores the Number/Name fields when
// comparing, since those would make every match for an id/type pair but
// the first look distinct.
func (q *Query) keyFromQuery() (Key, error) {
	raw := q.node.raw[q.keyOff : q.keyOff+q.keyLen]
	var k Key
	var err error
	switch {
	case q.flags&QueryOmap != 0:
		k, err = decodeOmapKey(raw, Endian)
		if err == nil {
			k.Number = Endian.Uint64(raw[8:16])
		}
	case q.flags&QueryExtentref != 0:
		k, err = decodeExtentrefKey(raw, Endian)
	case q.flags&QueryCat != 0:
		k, err = decodeCatalogKey(raw, Endian, q.tree.CaseFold)
	default:
		return Key{}, fatal(CategoryStructural, q.tree.Kind, 0, 0, "query has no tree flavor set")
	}
	if err != nil {
		return Key{}, err
	}
	if q.flags&QueryMultiple != 0 {
		k.Number = 0
		k.Name = nil
	}
	return k, nil
}

// nodeNext implements node_next: sibling iteration for a MULTIPLE query
// that has already located its first match in this node.
func (q *Query) nodeNext() error {
	if q.flags&QueryDone != 0 {
		return errNotFound
	}
	if q.index == 0 {
		return errRetryInParent
	}
	prev, err := q.keyFromQuery()
	if err != nil {
		return err
	}
	q.index--

	off, length, err := q.node.locateKey(q.index)
	if err != nil {
		return err
	}
	q.keyOff, q.keyLen = off, length
	curr, err := q.keyFromQuery()
	if err != nil {
		return err
	}

	cmp := keycmp(curr, q.sought, q.tree.CaseFold)
	if cmp > 0 || keycmp(curr, prev, q.tree.CaseFold) > 0 {
		return fatal(CategoryOrdering, q.tree.Kind, uint64(q.node.meta.OID), uint64(q.node.meta.XID), "records are out of order")
	}
	if cmp != 0 && q.node.isLeaf() && q.flags&QueryExact != 0 {
		return errNotFound
	}

	off, length, err = q.node.locateData(q.index)
	if err != nil {
		return err
	}
	if length == 0 {
		return fatal(CategoryStructural, q.tree.Kind, uint64(q.node.meta.OID), uint64(q.node.meta.XID), "corrupted record value in node")
	}
	q.off, q.len = off, length

	if cmp != 0 {
		// Last entry that can be relevant in this node; keep descending
		// into children but never return to this level.
		q.flags |= QueryDone
	}
	return nil
}

// nodeQuery implements node_query: bisection search for the largest
// record whose key is <= q.sought, or a delegation to nodeNext when a
// MULTIPLE search is already underway in this node.
func (q *Query) nodeQuery() error {
	if q.flags&QueryNext != 0 {
		return q.nodeNext()
	}

	cmp := 1
	left, right := 0, 0
	var curr Key
	for {
		if cmp > 0 {
			right = q.index - 1
			if right < left {
				return errNotFound
			}
			q.index = (left + right) / 2
		} else {
			left = q.index
			q.index = (left + right + 1) / 2
		}

		off, length, err := q.node.locateKey(q.index)
		if err != nil {
			return err
		}
		q.keyOff, q.keyLen = off, length
		curr, err = q.keyFromQuery()
		if err != nil {
			return err
		}

		cmp = keycmp(curr, q.sought, q.tree.CaseFold)
		if cmp == 0 && q.flags&QueryMultiple == 0 {
			break
		}
		if left == right {
			break
		}
	}

	if cmp > 0 {
		return errNotFound
	}
	if cmp != 0 && q.node.isLeaf() && q.flags&QueryExact != 0 {
		return errNotFound
	}

	if q.flags&QueryMultiple != 0 {
		if cmp != 0 {
			q.flags |= QueryDone
		}
		q.flags |= QueryNext
	}

	off, length, err := q.node.locateData(q.index)
	if err != nil {
		return err
	}
	if length == 0 {
		return fatal(CategoryStructural, q.tree.Kind, uint64(q.node.meta.OID), uint64(q.node.meta.XID), "corrupted record value in node")
	}
	q.off, q.len = off, length
	return nil
}

// childFromQuery implements child_from_query.
func (q *Query) childFromQuery() (types.OidT, error) {
	if q.len != 8 {
		return 0, fatal(CategoryStructural, q.tree.Kind, uint64(q.node.meta.OID), uint64(q.node.meta.XID), "wrong size of nonleaf record value")
	}
	return types.OidT(Endian.Uint64(q.node.raw[q.off : q.off+8])), nil
}

// OmapRecord is the result of a successful object map lookup.
type OmapRecord struct {
	Bno uint64
	XID types.XidT
}

// omapRecFromQuery implements omap_rec_from_query.
func (q *Query) omapRecFromQuery() (OmapRecord, error) {
	if q.len != types.OmapValSize {
		return OmapRecord{}, fatal(CategorySchema, q.tree.Kind, uint64(q.node.meta.OID), uint64(q.node.meta.XID), "wrong size of object map value")
	}
	val := q.node.raw[q.off : q.off+q.len]
	key := q.node.raw[q.keyOff : q.keyOff+q.keyLen]
	return OmapRecord{
		Bno: Endian.Uint64(val[8:16]), // ov_paddr; the first 8 bytes are ov_flags/ov_size
		XID: types.XidT(Endian.Uint64(key[8:16])),
	}, nil
}

// ExtrefRecord is the result of a successful extent reference lookup.
type ExtrefRecord struct {
	PhysAddr uint64
	Blocks   uint64
	Owner    uint64
	Refcnt   uint32
}

// extrefRecFromQuery implements extref_rec_from_query.
func (q *Query) extrefRecFromQuery() (ExtrefRecord, error) {
	const physExtValSize = 20
	if q.len != physExtValSize {
		return ExtrefRecord{}, fatal(CategorySchema, q.tree.Kind, uint64(q.node.meta.OID), uint64(q.node.meta.XID), "wrong size of extent reference value")
	}
	val := q.node.raw[q.off : q.off+q.len]
	key := q.node.raw[q.keyOff : q.keyOff+q.keyLen]
	hdr := types.JKeyT{ObjIdAndType: Endian.Uint64(key)}
	lenAndKind := Endian.Uint64(val[0:8])
	return ExtrefRecord{
		PhysAddr: hdr.ObjId(),
		Blocks:   lenAndKind & types.PextLenMask,
		Owner:    Endian.Uint64(val[8:16]),
		Refcnt:   Endian.Uint32(val[16:20]),
	}, nil
}

// btreeQuery implements btree_query: an iterative descent that, on
// RETRY_IN_PARENT, pops back up the parent chain instead of recursing, and
// on a successful internal-node hit either pushes a child query (MULTIPLE,
// to preserve backtracking) or reuses the current query in place.
func (t *Tree) btreeQuery(ctx context.Context, q *Query) (*Query, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.depth > maxQueryDepth {
			return nil, fatal(CategoryStructural, t.Kind, uint64(q.node.meta.OID), uint64(q.node.meta.XID), "B-tree is too deep")
		}

		err := q.nodeQuery()
		if err == errRetryInParent {
			if q.parent == nil {
				return nil, errNotFound
			}
			q = q.parent
			continue
		}
		if err != nil {
			return nil, err
		}
		if q.node.isLeaf() {
			return q, nil
		}

		childOID, err := q.childFromQuery()
		if err != nil {
			return nil, err
		}
		childRaw, childMeta, err := t.Read(ctx, childOID, t.OmapRoot)
		if err != nil {
			return nil, fatalWrap(CategoryStructural, t.Kind, uint64(childOID), uint64(t.XID), err, "failed to read query child node")
		}
		child, err := newNode(t.Kind, childMeta, childRaw, t.BlockSize)
		if err != nil {
			return nil, err
		}

		if q.flags&QueryMultiple != 0 {
			q = alloc(child, q)
		} else {
			q.node = child
			q.index = child.records
			q.depth++
		}
	}
}

// newQuery starts a fresh top-of-tree query for sought against root,
// mirroring alloc_query(root, NULL) plus the caller-supplied flags.
func (t *Tree) newQuery(root *Node, sought Key, flags QueryFlags) *Query {
	q := alloc(root, nil)
	q.tree = t
	q.sought = sought
	q.flags = flags
	return q
}

// OmapLookup implements omap_lookup: find the object map record for id as
// of xid, treating a missing record as fatal (object maps are expected to
// resolve every oid a tree references). No QueryExact: a stored key's xid
// is normally older than the xid being sought (the common copy-on-write
// case), so the match is the best record with key <= sought, not an exact
// hit; a best match whose oid differs from id counts as missing.
func (t *Tree) OmapLookup(ctx context.Context, root *Node, id uint64, xid types.XidT) (OmapRecord, error) {
	sought := Key{ID: id, Number: uint64(xid)}
	q, err := t.btreeQuery(ctx, t.newQuery(root, sought, QueryOmap))
	if err == errNotFound {
		return OmapRecord{}, fatal(CategorySchema, KindOmap, uint64(root.meta.OID), uint64(root.meta.XID), "record missing for id 0x%x", id)
	}
	if err != nil {
		return OmapRecord{}, err
	}
	if Endian.Uint64(q.node.raw[q.keyOff:q.keyOff+8]) != id {
		return OmapRecord{}, fatal(CategorySchema, KindOmap, uint64(root.meta.OID), uint64(root.meta.XID), "record missing for id 0x%x", id)
	}
	return q.omapRecFromQuery()
}

// ExtentrefLookup implements extentref_lookup: find the best match for an
// extent starting at bno, treating a missing record as fatal.
func (t *Tree) ExtentrefLookup(ctx context.Context, root *Node, bno uint64) (ExtrefRecord, error) {
	sought := Key{ID: bno}
	q, err := t.btreeQuery(ctx, t.newQuery(root, sought, QueryExtentref))
	if err == errNotFound {
		return ExtrefRecord{}, fatal(CategorySchema, KindExtentref, uint64(root.meta.OID), uint64(root.meta.XID), "record missing for block number 0x%x", bno)
	}
	if err != nil {
		return ExtrefRecord{}, err
	}
	return q.extrefRecFromQuery()
}
