package cache_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracmap/goufat/cache"
)

const bytesPerBlock = 16

// backingStore builds fetch/flush callbacks over a plain byte slice, with
// the block count implied by its length.
func backingStore(data []byte) (cache.FetchBlock, cache.FlushBlock) {
	fetch := func(blockIndex uint64, buf []byte) error {
		start := blockIndex * bytesPerBlock
		copy(buf, data[start:start+bytesPerBlock])
		return nil
	}
	flush := func(blockIndex uint64, buf []byte) error {
		start := blockIndex * bytesPerBlock
		copy(data[start:start+bytesPerBlock], buf)
		return nil
	}
	return fetch, flush
}

func newTestCache(t *testing.T, size uint, data []byte) *cache.Cache {
	fetch, flush := backingStore(data)
	c, err := cache.New(bytesPerBlock, size, fetch, flush)
	require.NoError(t, err)
	return c
}

func TestNewRejectsZeroSize(t *testing.T) {
	fetch, flush := backingStore(make([]byte, bytesPerBlock*4))
	_, err := cache.New(bytesPerBlock, 0, fetch, flush)
	require.Error(t, err)
}

func TestOpenLoadsAndTagsPresent(t *testing.T) {
	data := make([]byte, bytesPerBlock*4)
	data[bytesPerBlock*2] = 0xAB
	c := newTestCache(t, 2, data)

	slot, err := c.Open(2)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), c.Data(slot)[0])
}

// Invariant 1 & 3: distinct blocks present never exceed capacity, and
// cache_hit + cache_miss == number of Open calls.
func TestOpenRespectsCapacityAndCountsHitsMisses(t *testing.T) {
	data := make([]byte, bytesPerBlock*8)
	c := newTestCache(t, 2, data)

	_, err := c.Open(0)
	require.NoError(t, err)
	_, err = c.Open(1)
	require.NoError(t, err)
	_, err = c.Open(0) // hit
	require.NoError(t, err)
	_, err = c.Open(2) // evicts slot holding 1
	require.NoError(t, err)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.CacheHit)
	assert.EqualValues(t, 3, stats.CacheMiss)
	assert.EqualValues(t, 4, stats.CacheHit+stats.CacheMiss)
}

// S6: with cache_size = 2, opening blocks 10, 20, 30 in sequence evicts the
// slot holding 10 when 30 is requested; a dirty slot for 20 survives and
// syncs correctly.
func TestEvictionAndSync(t *testing.T) {
	data := make([]byte, bytesPerBlock*40)
	c := newTestCache(t, 2, data)

	_, err := c.Open(10)
	require.NoError(t, err)
	slot20, err := c.Open(20)
	require.NoError(t, err)

	knownBytes := make([]byte, bytesPerBlock)
	for i := range knownBytes {
		knownBytes[i] = byte(i + 1)
	}
	copy(c.Data(slot20), knownBytes)
	c.MarkDirty(slot20)

	// Opening 30 must evict the slot holding 10 (the older, clean one),
	// not the dirty slot holding 20.
	_, err = c.Open(30)
	require.NoError(t, err)

	require.NoError(t, c.Sync())

	assert.Equal(t, knownBytes, data[20*bytesPerBlock:21*bytesPerBlock])

	// A fresh cache over the same backing store observes the flushed bytes.
	c2 := newTestCache(t, 2, data)
	slot, err := c2.Open(20)
	require.NoError(t, err)
	assert.Equal(t, knownBytes, c2.Data(slot))
}

func TestSyncCollectsAllFailuresReturnsLast(t *testing.T) {
	data := make([]byte, bytesPerBlock*4)
	errA := errors.New("flush A failed")
	errB := errors.New("flush B failed")

	failCount := 0
	flush := func(blockIndex uint64, buf []byte) error {
		failCount++
		if blockIndex == 0 {
			return errA
		}
		if blockIndex == 1 {
			return errB
		}
		return nil
	}
	fetch := func(blockIndex uint64, buf []byte) error { return nil }

	c, err := cache.New(bytesPerBlock, 3, fetch, flush)
	require.NoError(t, err)

	for _, b := range []uint64{0, 1, 2} {
		slot, err := c.Open(b)
		require.NoError(t, err)
		c.MarkDirty(slot)
	}

	last, all := c.SyncErrors()
	require.Error(t, last)
	require.NotNil(t, all)
	assert.Len(t, all.Errors, 2)
	// Open fills free slots from the highest index down, so block 0 sits in
	// slot 2 and is the last slot flushed.
	assert.ErrorContains(t, last, "flush A failed")
}

func TestMarkDirtyRequiredBeforeFlushPersists(t *testing.T) {
	data := make([]byte, bytesPerBlock*2)
	c := newTestCache(t, 2, data)

	slot, err := c.Open(0)
	require.NoError(t, err)
	c.Data(slot)[0] = 0x42 // mutated but never marked dirty

	require.NoError(t, c.Sync())
	assert.NotEqual(t, byte(0x42), data[0])
}

func TestFATMirrorWritesShiftedAddress(t *testing.T) {
	// Two FAT copies of 2 blocks each, starting at block 0.
	data := make([]byte, bytesPerBlock*8)
	c := newTestCache(t, 4, data)
	c.SetFATRegion(0, 2, 2)

	slot, err := c.Open(0)
	require.NoError(t, err)
	payload := make([]byte, bytesPerBlock)
	for i := range payload {
		payload[i] = 0x7
	}
	copy(c.Data(slot), payload)
	c.MarkDirty(slot)

	require.NoError(t, c.Sync())

	assert.Equal(t, payload, data[0:bytesPerBlock], "primary FAT copy")
	assert.Equal(t, payload, data[2*bytesPerBlock:3*bytesPerBlock], "mirrored secondary FAT copy at shifted address")
}
