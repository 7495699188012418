// Package cache implements the fixed-capacity, slot-based block cache that
// sits between the FAT decoder and a Device. Every read and write the
// higher layers perform is mediated through a Cache.
package cache

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"

	ufaterr "github.com/tracmap/goufat/errors"
)

// FetchBlock reads one block from backing storage into buf, which is
// always exactly bytesPerBlock long.
type FetchBlock func(blockIndex uint64, buf []byte) error

// FlushBlock writes one block from buf to backing storage at blockIndex.
type FlushBlock func(blockIndex uint64, buf []byte) error

// Stats holds the monotonic I/O counters a Cache accumulates. They are
// reset only when a new Cache is created (i.e. at mount).
type Stats struct {
	Read        uint64
	ReadBlocks  uint64
	Write       uint64
	WriteBlocks uint64
	CacheHit    uint64
	CacheMiss   uint64
}

// fatRegion describes the FAT's position so Flush can mirror a dirty FAT
// block to the volume's secondary FAT copies. It's supplied by the owning
// Volume once geometry is known; the cache itself has no notion of FAT
// semantics otherwise.
type fatRegion struct {
	start    uint64
	size     uint64
	count    uint
	fatCount bool // true once SetFATRegion has been called
}

// Cache is a bounded set of fixed-size slots, each tagged with its absolute
// block index, present/dirty flags, and a monotonic access sequence
// number. Eviction picks the slot with the oldest sequence number, with
// ties/absence resolved in favor of any non-present slot.
type Cache struct {
	bytesPerBlock uint
	slots         []slot
	present       bitmap.Bitmap
	dirty         bitmap.Bitmap
	nextSeq       uint32

	fetch FetchBlock
	flush FlushBlock

	region fatRegion
	stats  Stats
}

type slot struct {
	index uint64
	seq   uint32
	data  []byte
}

// New creates a Cache with the given number of slots, each bytesPerBlock
// bytes, backed by the given fetch/flush callbacks.
//
// New fails with ufaterr.ErrBlockSize if size is zero, matching the
// mount-time "cache would be empty" rule (spec.md §4.2).
func New(bytesPerBlock uint, size uint, fetch FetchBlock, flush FlushBlock) (*Cache, error) {
	if size == 0 {
		return nil, ufaterr.ErrBlockSize.WithMessage("cache size evaluates to zero slots")
	}

	slots := make([]slot, size)
	for i := range slots {
		slots[i].data = make([]byte, bytesPerBlock)
	}

	return &Cache{
		bytesPerBlock: bytesPerBlock,
		slots:         slots,
		present:       bitmap.NewSlice(int(size)),
		dirty:         bitmap.NewSlice(int(size)),
		fetch:         fetch,
		flush:         flush,
	}, nil
}

// SetFATRegion tells the cache which block range holds the primary FAT, so
// that Flush can mirror dirty FAT blocks to the secondary copies described
// by spec.md §4.2. Passing fatCount <= 1 disables mirroring.
func (c *Cache) SetFATRegion(start, size uint64, fatCount uint) {
	c.region = fatRegion{start: start, size: size, count: fatCount, fatCount: true}
}

// Size returns the number of slots in the cache.
func (c *Cache) Size() int {
	return len(c.slots)
}

// BytesPerBlock returns the size of a single block, in bytes.
func (c *Cache) BytesPerBlock() uint {
	return c.bytesPerBlock
}

// Stats returns a snapshot of the cache's monotonic counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Open loads blockIndex into a slot, evicting the least-recently-used slot
// if necessary, and returns the slot index. The returned index is only
// valid until the next call to Open: any subsequent Open may evict it
// (spec.md §5, "Borrow/eviction hazard").
func (c *Cache) Open(blockIndex uint64) (int, error) {
	oldest := -1
	free := -1
	var oldestAge uint32

	for i := range c.slots {
		if c.present.Get(i) && c.slots[i].index == blockIndex {
			c.slots[i].seq = c.nextSeq
			c.nextSeq++
			c.stats.CacheHit++
			return i, nil
		}

		age := c.nextSeq - c.slots[i].seq
		if !c.present.Get(i) {
			free = i
		}
		if oldest < 0 || age > oldestAge {
			oldestAge = age
			oldest = i
		}
	}

	victim := free
	if victim < 0 {
		victim = oldest
		if err := c.flushSlot(victim); err != nil {
			return -1, err
		}
	}

	if err := c.fetch(blockIndex, c.slots[victim].data); err != nil {
		c.present.Set(victim, false)
		c.dirty.Set(victim, false)
		return -1, ufaterr.ErrIO.WrapError(err)
	}

	c.slots[victim].index = blockIndex
	c.slots[victim].seq = c.nextSeq
	c.nextSeq++
	c.present.Set(victim, true)
	c.dirty.Set(victim, false)

	c.stats.CacheMiss++
	c.stats.Read++
	c.stats.ReadBlocks++

	return victim, nil
}

// Data returns a borrowed view of the given slot's buffer. The borrow is
// only valid until the next call to Open; callers that mutate the buffer
// must call MarkDirty before releasing it.
func (c *Cache) Data(slotIndex int) []byte {
	return c.slots[slotIndex].data
}

// MarkDirty flags a slot as modified. It will be written back to storage
// on the next Flush or Sync that reaches it.
func (c *Cache) MarkDirty(slotIndex int) {
	c.dirty.Set(slotIndex, true)
}

// isFATBlock reports whether the given absolute block index falls inside
// the primary FAT region.
func (c *Cache) isFATBlock(blockIndex uint64) bool {
	return c.region.fatCount &&
		blockIndex >= c.region.start &&
		blockIndex < c.region.start+c.region.size
}

// flushSlot is a no-op unless the slot is both present and dirty. On
// success it mirrors the write to secondary FAT copies (best-effort) and
// clears the dirty flag.
func (c *Cache) flushSlot(slotIndex int) error {
	if !c.present.Get(slotIndex) || !c.dirty.Get(slotIndex) {
		return nil
	}

	s := &c.slots[slotIndex]
	if err := c.flush(s.index, s.data); err != nil {
		return ufaterr.ErrIO.WrapError(err)
	}
	c.stats.Write++
	c.stats.WriteBlocks++

	if c.isFATBlock(s.index) {
		for k := uint(1); k < c.region.count; k++ {
			mirrorIndex := s.index + uint64(k)*c.region.size
			if err := c.flush(mirrorIndex, s.data); err == nil {
				c.stats.Write++
				c.stats.WriteBlocks++
			}
			// Mirror failures are silently ignored: the primary copy is
			// authoritative and secondaries are best-effort (spec.md §4.2).
		}
	}

	c.dirty.Set(slotIndex, false)
	return nil
}

// Flush flushes a single slot, identified by its current block index, if
// it is present and dirty.
func (c *Cache) Flush(blockIndex uint64) error {
	for i := range c.slots {
		if c.present.Get(i) && c.slots[i].index == blockIndex {
			return c.flushSlot(i)
		}
	}
	return nil
}

// Sync flushes every dirty slot, in slot order, and never aborts early on a
// single slot's failure: a best-effort flush of all slots is required so
// that as many dirty blocks as possible reach storage (spec.md §4.2).
//
// It returns the last non-zero error observed, or nil if every flush
// succeeded. The full set of failures collected along the way is available
// from SyncErrors.
func (c *Cache) Sync() error {
	last, _ := c.SyncErrors()
	return last
}

// SyncErrors behaves like Sync but additionally returns the full
// multierror.Error collected during the pass, for callers that want to
// inspect every failure rather than only the last one.
func (c *Cache) SyncErrors() (error, *multierror.Error) {
	var merr *multierror.Error

	for i := range c.slots {
		if err := c.flushSlot(i); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("slot %d (block %d): %w", i, c.slots[i].index, err))
		}
	}

	if merr == nil || len(merr.Errors) == 0 {
		return nil, nil
	}
	return merr.Errors[len(merr.Errors)-1], merr
}
