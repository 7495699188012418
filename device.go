// Package ufat is a small, embeddable read-capable implementation of the
// VFAT family of on-disk filesystems (FAT12, FAT16, FAT32), built around a
// block-cached access layer: a BPB geometry parser, a fixed-capacity
// block cache, and a FAT decoder.
package ufat

// Device is the block-addressable storage endpoint the core reads and
// writes through. Implementations need not be thread-safe; the core
// serializes its own calls and does not expect concurrent use.
type Device interface {
	// ReadBlocks fills count*(1<<Log2BlockSize()) bytes of dst starting at
	// firstBlock. A failure here is fatal to the requesting operation.
	ReadBlocks(firstBlock uint64, count uint, dst []byte) error

	// WriteBlocks writes count*(1<<Log2BlockSize()) bytes from src starting
	// at firstBlock. A failure here is fatal to the requesting logical
	// write, but may be silently absorbed by the cache when mirroring
	// secondary FAT copies.
	WriteBlocks(firstBlock uint64, count uint, src []byte) error

	// Log2BlockSize gives the base-2 logarithm of the device's block size,
	// in bytes. It must be at least 9 (i.e. blocks of 512 bytes or more)
	// and stable for the adapter's lifetime.
	Log2BlockSize() uint
}
