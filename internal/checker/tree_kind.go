package checker

import "github.com/deploymenttheory/go-apfs/internal/types"

// TreeKind identifies which of the four B-tree flavors a node or tree
// belongs to. Nodes carry this tag instead of a back-pointer to their
// owning Tree, so that dispatch stays cheap without a reference cycle.
type TreeKind uint8

const (
	KindOmap TreeKind = iota + 1
	KindCatalog
	KindExtentref
	KindSnapMeta
)

func (k TreeKind) String() string {
	switch k {
	case KindOmap:
		return "omap"
	case KindCatalog:
		return "catalog"
	case KindExtentref:
		return "extentref"
	case KindSnapMeta:
		return "snapshot metadata"
	default:
		return "unknown"
	}
}

// expectedSubtype returns the object subtype a root/non-root node of this
// tree kind must carry.
func (k TreeKind) expectedSubtype() uint32 {
	switch k {
	case KindOmap:
		return types.ObjectTypeOmap
	case KindCatalog:
		return types.ObjectTypeFstree
	case KindExtentref:
		return types.ObjectTypeBlockreftree
	case KindSnapMeta:
		return types.ObjectTypeSnapmetatree
	default:
		return types.ObjectTypeInvalid
	}
}

// requiresFixedKV reports whether nodes of this tree kind must carry the
// BTNODE_FIXED_KV_SIZE flag (true only for OMAP).
func (k TreeKind) requiresFixedKV() bool {
	return k == KindOmap
}

// isPhysical reports whether this is one of the two physical-OID trees
// (object map and extent reference) whose nodes get the parent/child xid
// ordering check. The snapshot metadata tree is also physical but is not
// selected here.
func (k TreeKind) isPhysical() bool {
	return k == KindOmap || k == KindExtentref
}
