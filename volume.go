package ufat

import (
	"github.com/tracmap/goufat/bpb"
	"github.com/tracmap/goufat/cache"
	ufaterr "github.com/tracmap/goufat/errors"
	"github.com/tracmap/goufat/fat"
)

// Tunables mirroring the reference implementation's compile-time macros.
// They're expressed here as ordinary constants, overridable per-Volume via
// Options since Go has no preprocessor.
const (
	// CacheBytesDefault is the default total cache budget, in bytes.
	CacheBytesDefault = 32 * 1024
	// CacheMaxBlocksDefault is the default hard ceiling on slot count.
	CacheMaxBlocksDefault = 32

	// DirentSize is the fixed size, in bytes, of one FAT directory entry.
	DirentSize = bpb.DirentSize
	// ClusterMask masks off the reserved upper four bits of a FAT32 entry.
	ClusterMask = bpb.ClusterMask
)

// Options configures a Volume at Open time. The zero value selects the
// package defaults.
type Options struct {
	// CacheBytes is the total cache budget, in bytes. 0 selects
	// CacheBytesDefault.
	CacheBytes uint
	// CacheMaxBlocks is a hard ceiling on the number of cache slots. 0
	// selects CacheMaxBlocksDefault.
	CacheMaxBlocks uint
	// Logger receives diagnostic output. A nil Logger gets a no-op default;
	// Open/Sync/ReadFAT never change behavior based on whether one is set.
	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.CacheBytes == 0 {
		o.CacheBytes = CacheBytesDefault
	}
	if o.CacheMaxBlocks == 0 {
		o.CacheMaxBlocks = CacheMaxBlocksDefault
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// Volume holds everything needed to access one mounted FAT volume: the
// device adapter, the parsed geometry, the block cache, and statistics.
// Geometry is immutable between Open and Close. A Volume is not safe for
// concurrent use from multiple goroutines; hosts requiring concurrency
// must serialize externally.
type Volume struct {
	dev      Device
	geometry *bpb.Geometry
	cache    *cache.Cache
	logger   Logger
}

// Open mounts a volume on the given device: it derives the cache size,
// reads block 0, and parses its BPB. On failure, Open returns a nil
// Volume; there is no partially-open handle to misuse.
func Open(dev Device, opts Options) (*Volume, error) {
	opts = opts.withDefaults()

	log2BlockSize := dev.Log2BlockSize()
	bytesPerBlock := uint(1) << log2BlockSize

	cacheSize := opts.CacheBytes >> log2BlockSize
	if cacheSize > opts.CacheMaxBlocks {
		cacheSize = opts.CacheMaxBlocks
	}
	if cacheSize == 0 {
		opts.Logger.Errorf("cache budget %d bytes yields zero slots at block size %d", opts.CacheBytes, bytesPerBlock)
		return nil, ufaterr.ErrBlockSize.WithMessage("cache would be empty at this block size")
	}

	v := &Volume{dev: dev, logger: opts.Logger}

	blockCache, err := cache.New(
		bytesPerBlock,
		cacheSize,
		func(blockIndex uint64, buf []byte) error {
			return dev.ReadBlocks(blockIndex, 1, buf)
		},
		func(blockIndex uint64, buf []byte) error {
			return dev.WriteBlocks(blockIndex, 1, buf)
		},
	)
	if err != nil {
		opts.Logger.Errorf("cache allocation failed: %v", err)
		return nil, err
	}
	v.cache = blockCache

	slot, err := blockCache.Open(0)
	if err != nil {
		opts.Logger.Errorf("failed to read boot sector: %v", err)
		return nil, err
	}

	geometry, err := bpb.Parse(blockCache.Data(slot), log2BlockSize)
	if err != nil {
		opts.Logger.Errorf("BPB parse failed: %v", err)
		return nil, err
	}
	v.geometry = geometry
	blockCache.SetFATRegion(geometry.FATStart, geometry.FATSize, geometry.FATCount)

	opts.Logger.Infof("mounted %s volume, %d clusters", geometry.Type, geometry.NumClusters)
	return v, nil
}

// Geometry returns the volume's parsed, immutable BPB-derived geometry.
func (v *Volume) Geometry() *bpb.Geometry {
	return v.geometry
}

// Cache returns the volume's block cache.
func (v *Volume) Cache() *cache.Cache {
	return v.cache
}

// Log2BlockSize returns the underlying device's block size exponent.
func (v *Volume) Log2BlockSize() uint {
	return v.dev.Log2BlockSize()
}

// Stats returns a snapshot of the volume's monotonic I/O counters.
func (v *Volume) Stats() cache.Stats {
	return v.cache.Stats()
}

// Sync flushes every dirty cache slot and returns the last non-zero error
// observed, or nil if every flush succeeded (spec.md §4.2/§7). It does not
// abort early: every slot gets a best-effort flush regardless of earlier
// failures.
func (v *Volume) Sync() error {
	err := v.cache.Sync()
	if err != nil {
		v.logger.Warningf("sync reported a flush failure: %v", err)
	}
	return err
}

// LastSyncErrors behaves like Sync but also returns the full collection of
// failures observed during the pass, for callers that want more than just
// the last one.
func (v *Volume) LastSyncErrors() (error, []error) {
	last, merr := v.cache.SyncErrors()
	if merr == nil {
		return last, nil
	}
	return last, merr.Errors
}

// Close flushes all dirty slots, discarding any error, and releases the
// volume. Further use of v is undefined.
func (v *Volume) Close() {
	if err := v.cache.Sync(); err != nil {
		v.logger.Warningf("close: discarding sync failure: %v", err)
	}
}

// ReadFAT resolves the successor of the given cluster index, or one of the
// terminal sentinels fat.EOC / fat.BAD.
func (v *Volume) ReadFAT(index uint32) (fat.Cluster, error) {
	return fat.ReadFAT(v, index)
}

// Strerror maps an error code (positive or the C-convention negative form)
// to a stable human-readable string.
func Strerror(code int) string {
	return ufaterr.Strerror(code)
}
