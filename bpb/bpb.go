// Package bpb parses and validates the Boot Parameter Block found in the
// first logical block of a FAT12/16/32 volume, producing an immutable
// Geometry record or a typed error.
//
// The field layout and derivation rules are bit-exact with the Microsoft
// EFI FAT32 File System Specification; validation order follows the
// reference uFAT implementation this package is ported from.
package bpb

import (
	"encoding/binary"

	ufaterr "github.com/tracmap/goufat/errors"
)

// Type identifies which FAT variant a Geometry describes.
type Type int

const (
	FAT12 Type = iota
	FAT16
	FAT32
)

func (t Type) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// DirentSize is the fixed size, in bytes, of one FAT directory entry.
const DirentSize = 32

// ClusterMask masks off the reserved upper four bits of a raw FAT32 entry.
const ClusterMask = 0x0FFFFFFF

// Geometry is the immutable, BPB-derived description of a volume's layout.
// All fields are expressed in the host's blocks, not the BPB's sectors.
type Geometry struct {
	Type Type

	// Log2BlocksPerCluster is the base-2 log of the number of blocks in one
	// cluster.
	Log2BlocksPerCluster uint

	// FATStart is the absolute block index of the first FAT.
	FATStart uint64
	// FATSize is the length, in blocks, of a single FAT copy.
	FATSize uint64
	// FATCount is the number of FAT copies on the volume.
	FATCount uint

	// RootSize is the length, in blocks, of the FAT12/16 fixed root
	// directory region. It is 0 for FAT32.
	RootSize uint64
	// RootStart is the first block after the last FAT copy.
	RootStart uint64
	// ClusterStart is the first block of the data region.
	ClusterStart uint64

	// RootCluster is, for FAT32, the cluster index containing the root
	// directory. It is 0 for FAT12/FAT16.
	RootCluster uint32

	// NumClusters is the total number of addressable clusters, including
	// the two reserved indices 0 and 1.
	NumClusters uint32
}

// BytesPerCluster returns the size of one cluster given the host's block
// size, expressed as a power of two.
func (g *Geometry) BytesPerCluster(log2BlockSize uint) uint64 {
	return uint64(1) << (log2BlockSize + g.Log2BlocksPerCluster)
}

// MediaClass is the minimal shape of a known media geometry SanityCheck
// compares against. It exists so a caller's own table of known geometries
// (e.g. media.Profile) can feed SanityCheck without this package importing
// that caller, mirroring the fat package's Volume interface seam.
type MediaClass struct {
	Name         string
	FATType      string // compared against Geometry.Type.String()
	ClusterBytes uint64
}

// SanityCheck reports whether g resembles one of the known media classes
// closely enough (same FAT type, same cluster size) to be considered
// "known". It is advisory only: Parse has already fully validated g, and a
// false return here never means g is invalid — only that it doesn't match
// anything in the caller's table (a custom-formatted card, a synthetic
// test image, and so on).
func SanityCheck(g *Geometry, log2BlockSize uint, known []MediaClass) (MediaClass, bool) {
	clusterBytes := g.BytesPerCluster(log2BlockSize)
	for _, m := range known {
		if m.FATType == g.Type.String() && m.ClusterBytes == clusterBytes {
			return m, true
		}
	}
	return MediaClass{}, false
}

// log2Exact returns the base-2 logarithm of e if e is an exact power of
// two, or false if it is not (including e == 0).
func log2Exact(e uint32) (uint, bool) {
	if e == 0 {
		return 0, false
	}
	count := uint(0)
	for e > 1 {
		if e&1 != 0 {
			return 0, false
		}
		e >>= 1
		count++
	}
	return count, true
}

// raw fields read directly off the BPB, in sectors, before any block
// conversion is applied.
type rawBPB struct {
	bytesPerSector      uint16
	sectorsPerCluster   uint8
	reservedSectorCount uint16
	numberOfFATs        uint8
	rootEntryCount      uint16
	totalSectors16      uint16
	sectorsPerFAT16     uint16
	totalSectors32      uint32
	sectorsPerFAT32     uint32
	rootCluster         uint32
	signature           uint16
}

func readRaw(sector []byte) rawBPB {
	return rawBPB{
		bytesPerSector:      binary.LittleEndian.Uint16(sector[0x00B:]),
		sectorsPerCluster:   sector[0x00D],
		reservedSectorCount: binary.LittleEndian.Uint16(sector[0x00E:]),
		numberOfFATs:        sector[0x010],
		rootEntryCount:      binary.LittleEndian.Uint16(sector[0x011:]),
		totalSectors16:      binary.LittleEndian.Uint16(sector[0x013:]),
		sectorsPerFAT16:     binary.LittleEndian.Uint16(sector[0x016:]),
		totalSectors32:      binary.LittleEndian.Uint32(sector[0x020:]),
		sectorsPerFAT32:     binary.LittleEndian.Uint32(sector[0x024:]),
		rootCluster:         binary.LittleEndian.Uint32(sector[0x02C:]),
		signature:           binary.LittleEndian.Uint16(sector[0x1FE:]),
	}
}

// minSectorBytes is the minimum length of a boot sector buffer this parser
// will accept; it must cover every field up to and including the 0x1FE
// signature.
const minSectorBytes = 0x200

// Parse validates and interprets a raw boot sector, returning its
// geometry. log2BlockSize is the host device's Device.Log2BlockSize().
//
// Parse is a pure function: it neither mutates sector nor retains a
// reference to it.
func Parse(sector []byte, log2BlockSize uint) (*Geometry, error) {
	if log2BlockSize < 9 {
		return nil, ufaterr.ErrBlockSize.WithMessage("host block size below 512 bytes")
	}
	if len(sector) < minSectorBytes {
		return nil, ufaterr.ErrInvalidBPB.WithMessage("boot sector shorter than 512 bytes")
	}

	raw := readRaw(sector)

	totalLogicalSectors := uint64(raw.totalSectors16)
	if totalLogicalSectors == 0 {
		totalLogicalSectors = uint64(raw.totalSectors32)
	}

	sectorsPerFAT := uint64(raw.sectorsPerFAT16)
	if sectorsPerFAT == 0 {
		sectorsPerFAT = uint64(raw.sectorsPerFAT32)
	}

	log2BytesPerSector, ok := log2Exact(uint32(raw.bytesPerSector))
	if !ok {
		return nil, ufaterr.ErrInvalidBPB.WithMessage("bytes-per-sector is not a power of two")
	}
	log2SectorsPerCluster, ok := log2Exact(uint32(raw.sectorsPerCluster))
	if !ok {
		return nil, ufaterr.ErrInvalidBPB.WithMessage("sectors-per-cluster is not a power of two")
	}

	if raw.signature != 0xAA55 {
		return nil, ufaterr.ErrInvalidBPB.WithMessage("missing 0xAA55 boot sector signature")
	}

	rootSectors := (uint64(raw.rootEntryCount)*DirentSize + uint64(raw.bytesPerSector) - 1) /
		uint64(raw.bytesPerSector)

	g := &Geometry{}

	if log2BlockSize > log2BytesPerSector {
		shift := log2BlockSize - log2BytesPerSector

		if log2SectorsPerCluster < shift {
			return nil, ufaterr.ErrBlockAlignment.WithMessage(
				"cluster size too small to express in host blocks")
		}
		g.Log2BlocksPerCluster = log2SectorsPerCluster - shift

		mask := uint64(1)<<shift - 1
		if (uint64(raw.reservedSectorCount)|sectorsPerFAT|rootSectors)&mask != 0 {
			return nil, ufaterr.ErrBlockAlignment.WithMessage(
				"reserved/FAT/root region not a whole number of host blocks")
		}

		g.FATStart = uint64(raw.reservedSectorCount) >> shift
		g.FATSize = sectorsPerFAT >> shift
		g.RootSize = rootSectors >> shift
	} else {
		shift := log2BytesPerSector - log2BlockSize

		g.Log2BlocksPerCluster = log2SectorsPerCluster + shift
		g.FATStart = uint64(raw.reservedSectorCount) << shift
		g.FATSize = sectorsPerFAT << shift
		g.RootSize = rootSectors << shift
	}

	if raw.numberOfFATs == 0 {
		return nil, ufaterr.ErrInvalidBPB.WithMessage("number of FATs is zero")
	}

	g.FATCount = uint(raw.numberOfFATs)
	g.NumClusters = uint32(
		((totalLogicalSectors - uint64(raw.reservedSectorCount) -
			sectorsPerFAT*uint64(raw.numberOfFATs) - rootSectors) >>
			log2SectorsPerCluster) + 2,
	)
	g.RootCluster = raw.rootCluster & ClusterMask
	g.RootStart = g.FATStart + g.FATSize*uint64(g.FATCount)
	g.ClusterStart = g.RootStart + g.RootSize

	if rootSectors == 0 {
		g.Type = FAT32
	} else {
		g.RootCluster = 0
		if g.NumClusters < 4085 {
			g.Type = FAT12
		} else {
			g.Type = FAT16
		}
	}

	return g, nil
}
