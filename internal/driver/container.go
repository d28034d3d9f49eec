// Package driver opens an APFS container from a block device and realizes
// read_object: resolving an oid (physical, or virtual through an object
// map) to the raw block the checker operates on.
package driver

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-apfs/internal/checker"
	"github.com/deploymenttheory/go-apfs/internal/device"
	"github.com/deploymenttheory/go-apfs/internal/parsers/container"
	"github.com/deploymenttheory/go-apfs/internal/parsers/objects"
	"github.com/deploymenttheory/go-apfs/internal/types"
	"github.com/google/uuid"
)

// BlockDevice is the minimal read surface a container needs; *device.DMGDevice
// satisfies it, and so would a plain raw-image file opened with os.Open.
type BlockDevice interface {
	ReadAt(p []byte, off int64) (n int, err error)
	Size() int64
	Close() error
}

// Container is an open APFS container: its superblock, block size, and the
// validated root of its own object map, which every volume superblock is
// resolved through. Catalog trees resolve through each volume's own object
// map (Volume.OmapRoot).
type Container struct {
	dev       BlockDevice
	blockSize uint32
	sb        *types.NxSuperblockT
	omapRoot  *checker.Node

	Volumes []*Volume
}

// Volume is one volume superblock's checker-relevant identity: its name,
// UUID, and the information needed to walk its three trees.
type Volume struct {
	Name         string
	UUID         uuid.UUID
	FsIndex      uint32
	omapRoot     *checker.Node
	OmapOid      types.OidT // physical; the volume's own object map root
	RootTreeOid  types.OidT // virtual; resolve through omapRoot
	ExtentrefOid types.OidT // physical
	SnapMetaOid  types.OidT // physical; zero if none
}

// OmapRoot returns the volume's own object map root node, the indirection
// CATALOG tree walks resolve their root oid through.
func (v *Volume) OmapRoot() *checker.Node { return v.omapRoot }

// OpenContainer reads block zero, validates the container superblock, loads
// the container's object map, and resolves every non-empty volume slot.
func OpenContainer(ctx context.Context, dev BlockDevice) (*Container, error) {
	probe := make([]byte, 4096)
	if _, err := dev.ReadAt(probe, 0); err != nil {
		return nil, fmt.Errorf("failed to read container superblock: %w", err)
	}

	// NewContainerSuperblockReader already validates magic and decodes every
	// field; its interfaces.ContainerSuperblockReader return type omits the
	// object header (o_xid, the transaction the superblock was itself
	// written in), which the checker needs, so the concrete reader is
	// unwrapped to reach the full types.NxSuperblockT underneath.
	sbReader, err := container.NewContainerSuperblockReader(probe, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to parse container superblock: %w", err)
	}
	sb := sbReader.(*container.ContainerSuperblockReader).Superblock

	c := &Container{dev: dev, blockSize: sb.NxBlockSize, sb: sb}

	omapRaw, omapMeta, err := c.ReadObject(ctx, sb.NxOmapOid, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read container object map: %w", err)
	}
	omapRoot, err := checker.NewNode(checker.KindOmap, omapMeta, omapRaw, int(c.blockSize))
	if err != nil {
		return nil, fmt.Errorf("invalid container object map root: %w", err)
	}
	c.omapRoot = omapRoot

	for _, fsOid := range sb.NxFsOid {
		if fsOid == types.OidInvalid {
			continue
		}
		vol, err := c.openVolume(ctx, fsOid, sb.NxO.OXid)
		if err != nil {
			return nil, fmt.Errorf("volume oid %d: %w", fsOid, err)
		}
		c.Volumes = append(c.Volumes, vol)
	}

	return c, nil
}

func (c *Container) openVolume(ctx context.Context, fsOid types.OidT, xid types.XidT) (*Volume, error) {
	tree := &checker.Tree{Kind: checker.KindOmap, XID: xid, BlockSize: int(c.blockSize), Read: c.ReadObject}
	rec, err := tree.OmapLookup(ctx, c.omapRoot, uint64(fsOid), xid)
	if err != nil {
		return nil, err
	}

	sbRaw, err := c.readBlockAt(types.Paddr(rec.Bno))
	if err != nil {
		return nil, fmt.Errorf("failed to read volume superblock: %w", err)
	}
	vsb, err := parseApfsSuperblock(sbRaw, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	if vsb.ApfsMagic != types.ApfsMagic {
		return nil, fmt.Errorf("bad volume superblock magic 0x%08x", vsb.ApfsMagic)
	}

	volOmapRaw, volOmapMeta, err := c.ReadObject(ctx, vsb.ApfsOmapOid, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read volume object map: %w", err)
	}
	volOmapRoot, err := checker.NewNode(checker.KindOmap, volOmapMeta, volOmapRaw, int(c.blockSize))
	if err != nil {
		return nil, fmt.Errorf("invalid volume object map root: %w", err)
	}

	name := cStringFromBytes(vsb.ApfsVolname[:])
	return &Volume{
		Name:         name,
		UUID:         uuid.UUID(vsb.ApfsVolUuid),
		FsIndex:      vsb.ApfsFsIndex,
		omapRoot:     volOmapRoot,
		OmapOid:      vsb.ApfsOmapOid,
		RootTreeOid:  vsb.ApfsRootTreeOid,
		ExtentrefOid: vsb.ApfsExtentrefTreeOid,
		SnapMetaOid:  vsb.ApfsSnapMetaTreeOid,
	}, nil
}

// ReadObject is the read_object realization (SPEC_FULL.md §10.1): when
// omapRoot is nil, oid is already a physical block number; otherwise it is
// resolved to one via an object map lookup first. The object header is
// decoded here; Fletcher-64 verification is delegated to the teacher's
// objects.ChecksumInspector.
func (c *Container) ReadObject(ctx context.Context, oid types.OidT, omapRoot *checker.Node) ([]byte, checker.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, checker.ObjectMeta{}, err
	}

	paddr := types.Paddr(oid)
	if omapRoot != nil {
		tree := &checker.Tree{Kind: checker.KindOmap, XID: c.sb.NxO.OXid, BlockSize: int(c.blockSize), Read: c.ReadObject}
		rec, err := tree.OmapLookup(ctx, omapRoot, uint64(oid), c.sb.NxO.OXid)
		if err != nil {
			return nil, checker.ObjectMeta{}, err
		}
		paddr = types.Paddr(rec.Bno)
	}

	raw, err := c.readBlockAt(paddr)
	if err != nil {
		return nil, checker.ObjectMeta{}, err
	}

	var hdr types.ObjPhysT
	copy(hdr.OChecksum[:], raw[0:8])
	hdr.OOid = types.OidT(binary.LittleEndian.Uint64(raw[8:16]))
	hdr.OXid = types.XidT(binary.LittleEndian.Uint64(raw[16:24]))
	hdr.OType = binary.LittleEndian.Uint32(raw[24:28])
	hdr.OSubtype = binary.LittleEndian.Uint32(raw[28:32])

	inspector := objects.NewChecksumInspector(&hdr, raw)
	if !inspector.VerifyChecksum() {
		return nil, checker.ObjectMeta{}, fmt.Errorf("checksum mismatch for object at block %d", paddr)
	}

	meta := checker.ObjectMeta{
		OID:     hdr.OOid,
		XID:     hdr.OXid,
		Type:    hdr.OType & types.ObjectTypeMask,
		Subtype: hdr.OSubtype,
		BlockNr: uint64(paddr),
	}
	return raw, meta, nil
}

func (c *Container) readBlockAt(paddr types.Paddr) ([]byte, error) {
	buf := make([]byte, c.blockSize)
	if _, err := c.dev.ReadAt(buf, int64(paddr)*int64(c.blockSize)); err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", paddr, err)
	}
	return buf, nil
}

// BlockSize returns the container's logical block size.
func (c *Container) BlockSize() int { return int(c.blockSize) }

// OmapOid returns the container's own object map root oid, a physical
// block number.
func (c *Container) OmapOid() types.OidT { return c.sb.NxOmapOid }

// OmapRoot returns the container's own validated object map root node.
func (c *Container) OmapRoot() *checker.Node { return c.omapRoot }

// CurrentXID returns the transaction id the superblock itself was written
// in, the xid every tree in this container must not exceed.
func (c *Container) CurrentXID() types.XidT { return c.sb.NxO.OXid }

// UUID returns the container's own identifier.
func (c *Container) UUID() uuid.UUID { return uuid.UUID(c.sb.NxUuid) }

// Close releases the underlying device.
func (c *Container) Close() error { return c.dev.Close() }

func cStringFromBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// OpenDMGContainer opens path as a DMG-wrapped (or raw) APFS container,
// using internal/device's auto-detection to locate the container within
// the file, then opens it as a Container.
func OpenDMGContainer(ctx context.Context, path string) (*Container, error) {
	cfg, err := device.LoadDMGConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load device config: %w", err)
	}
	dmg, err := device.OpenDMG(path, cfg)
	if err != nil {
		return nil, err
	}
	c, err := OpenContainer(ctx, dmg)
	if err != nil {
		dmg.Close()
		return nil, err
	}
	return c, nil
}
