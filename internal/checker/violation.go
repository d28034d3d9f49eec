// Package checker implements the B-tree traversal and validation engine:
// key decoding, node parsing, free-space reconciliation, tree walking,
// footer checking, and keyed queries over the four APFS B-tree flavors.
package checker

import "fmt"

// Category classifies a Violation into the coarse taxonomy every fatal
// check falls into.
type Category string

const (
	CategoryStructural Category = "structural"
	CategoryOrdering   Category = "ordering"
	CategorySchema     Category = "schema"
	CategoryFooter     Category = "footer"
	CategoryUnsupported Category = "unsupported-on-disk"
)

// Violation is a fatal inconsistency found while validating a tree. Every
// violation terminates the check for the tree it occurred in; the CLI is
// the only layer that turns a Violation into a process exit.
type Violation struct {
	Category Category
	TreeKind TreeKind
	OID      uint64
	XID      uint64
	Message  string
	Err      error
}

func (v *Violation) Error() string {
	if v.Err != nil {
		return fmt.Sprintf("%s: %s (tree=%s oid=%d xid=%d): %v", v.Category, v.Message, v.TreeKind, v.OID, v.XID, v.Err)
	}
	return fmt.Sprintf("%s: %s (tree=%s oid=%d xid=%d)", v.Category, v.Message, v.TreeKind, v.OID, v.XID)
}

func (v *Violation) Unwrap() error { return v.Err }

func fatal(cat Category, kind TreeKind, oid, xid uint64, format string, args ...any) *Violation {
	return &Violation{Category: cat, TreeKind: kind, OID: oid, XID: xid, Message: fmt.Sprintf(format, args...)}
}

func fatalWrap(cat Category, kind TreeKind, oid, xid uint64, err error, format string, args ...any) *Violation {
	return &Violation{Category: cat, TreeKind: kind, OID: oid, XID: xid, Message: fmt.Sprintf(format, args...), Err: err}
}
