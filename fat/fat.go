// Package fat decodes File Allocation Table entries: given a cluster index
// and the volume's geometry, it resolves the successor cluster or a
// terminal marker (end-of-chain, bad-cluster).
package fat

import (
	"encoding/binary"

	"github.com/tracmap/goufat/bpb"
	"github.com/tracmap/goufat/cache"
	ufaterr "github.com/tracmap/goufat/errors"
)

// Cluster is a 28-bit unsigned cluster index, or one of the two terminal
// sentinels EOC and BAD.
type Cluster uint32

const (
	// EOC marks the last cluster of a chain.
	EOC Cluster = 0xFFFFFFF8
	// BAD marks a cluster flagged unusable by the volume.
	BAD Cluster = 0xFFFFFFF0
)

// IsTerminal reports whether c is EOC or BAD rather than a real cluster
// index.
func (c Cluster) IsTerminal() bool {
	return c == EOC || c == BAD
}

// Volume is the subset of volume state the decoder needs: geometry, the
// block cache clusters are read through, and the device's block size
// (clusters-per-FAT-block depends on it, not on cluster size).
type Volume interface {
	Geometry() *bpb.Geometry
	Cache() *cache.Cache
	Log2BlockSize() uint
}

// ReadFAT resolves the successor of the given cluster index, dispatching
// on the volume's FAT type. index must be less than Geometry.NumClusters,
// or ufaterr.ErrInvalidCluster is returned.
func ReadFAT(v Volume, index uint32) (Cluster, error) {
	g := v.Geometry()
	if uint32(index) >= g.NumClusters {
		return 0, ufaterr.ErrInvalidCluster
	}

	switch g.Type {
	case bpb.FAT12:
		return readFAT12(v, index)
	case bpb.FAT16:
		return readFAT16(v, index)
	case bpb.FAT32:
		return readFAT32(v, index)
	default:
		return 0, ufaterr.ErrInvalidBPB.WithMessage("unrecognized FAT type")
	}
}

func readFAT16(v Volume, index uint32) (Cluster, error) {
	g := v.Geometry()
	shift := v.Log2BlockSize() - 1
	b := uint64(index) >> shift
	r := uint64(index) & (1<<shift - 1)

	slot, err := v.Cache().Open(g.FATStart + b)
	if err != nil {
		return 0, err
	}

	raw := binary.LittleEndian.Uint16(v.Cache().Data(slot)[r*2:])

	switch {
	case raw >= 0xFFF8:
		return EOC, nil
	case raw >= 0xFFF0:
		return BAD, nil
	default:
		return Cluster(raw), nil
	}
}

func readFAT32(v Volume, index uint32) (Cluster, error) {
	g := v.Geometry()
	shift := v.Log2BlockSize() - 2
	b := uint64(index) >> shift
	r := uint64(index) & (1<<shift - 1)

	slot, err := v.Cache().Open(g.FATStart + b)
	if err != nil {
		return 0, err
	}

	raw := binary.LittleEndian.Uint32(v.Cache().Data(slot)[r*4:]) & bpb.ClusterMask

	switch {
	case raw >= 0x0FFFFFF8:
		return EOC, nil
	case raw >= 0x0FFFFFF0:
		return BAD, nil
	default:
		return Cluster(raw), nil
	}
}

// readFAT12 decodes a tightly-packed 12-bit entry. Entries are stored two
// to three bytes: byte offset is index*3/2; for an even index the entry is
// the low 12 bits of the 16-bit word at that offset, for odd index the
// high 12 bits. An entry may straddle two consecutive blocks, so this
// reads the two bytes independently rather than assuming they share a
// cache slot.
//
// This path is specified but left unimplemented in the reference uFAT
// source (a stub returning an error); this implementation supplies the
// straddling-entry decode spec.md §4.4 describes.
func readFAT12(v Volume, index uint32) (Cluster, error) {
	g := v.Geometry()
	byteOffset := uint64(index) * 3 / 2
	blockSize := uint64(1) << v.Log2BlockSize()

	b0, err := readFATByte(v, g.FATStart, blockSize, byteOffset)
	if err != nil {
		return 0, err
	}
	b1, err := readFATByte(v, g.FATStart, blockSize, byteOffset+1)
	if err != nil {
		return 0, err
	}

	word := uint16(b0) | uint16(b1)<<8

	var raw uint16
	if index%2 == 0 {
		raw = word & 0x0FFF
	} else {
		raw = word >> 4
	}

	switch {
	case raw >= 0xFF8:
		return EOC, nil
	case raw >= 0xFF0:
		return BAD, nil
	default:
		return Cluster(raw), nil
	}
}

// readFATByte fetches a single byte at the given byte offset into the FAT
// region, opening whichever cache block holds it.
func readFATByte(v Volume, fatStart uint64, blockSize uint64, byteOffset uint64) (byte, error) {
	block := fatStart + byteOffset/blockSize
	offsetInBlock := byteOffset % blockSize

	slot, err := v.Cache().Open(block)
	if err != nil {
		return 0, err
	}
	return v.Cache().Data(slot)[offsetInBlock], nil
}
