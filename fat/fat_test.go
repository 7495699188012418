package fat_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracmap/goufat/bpb"
	"github.com/tracmap/goufat/cache"
	"github.com/tracmap/goufat/fat"
)

const testBlockSize = 512

// testVolume is a minimal fat.Volume backed by an in-memory byte slice,
// enough to exercise ReadFAT without a full Volume/Device stack.
type testVolume struct {
	geometry *bpb.Geometry
	cache    *cache.Cache
}

func (v *testVolume) Geometry() *bpb.Geometry  { return v.geometry }
func (v *testVolume) Cache() *cache.Cache      { return v.cache }
func (v *testVolume) Log2BlockSize() uint      { return 9 }

func newTestVolume(t *testing.T, typ bpb.Type, numClusters uint32, fatBlocks uint64, data []byte) *testVolume {
	fetch := func(blockIndex uint64, buf []byte) error {
		start := blockIndex * testBlockSize
		copy(buf, data[start:start+testBlockSize])
		return nil
	}
	flush := func(blockIndex uint64, buf []byte) error {
		start := blockIndex * testBlockSize
		copy(data[start:start+testBlockSize], buf)
		return nil
	}
	c, err := cache.New(testBlockSize, 4, fetch, flush)
	require.NoError(t, err)

	g := &bpb.Geometry{
		Type:        typ,
		FATStart:    0,
		FATSize:     fatBlocks,
		FATCount:    1,
		NumClusters: numClusters,
	}
	return &testVolume{geometry: g, cache: c}
}

func TestReadFAT16Terminals(t *testing.T) {
	data := make([]byte, testBlockSize*2)
	binary.LittleEndian.PutUint16(data[5*2:], 0xFFFF) // cluster 5: EOC
	binary.LittleEndian.PutUint16(data[6*2:], 0xFFF7) // cluster 6: BAD
	binary.LittleEndian.PutUint16(data[7*2:], 0x1234) // cluster 7: raw

	v := newTestVolume(t, bpb.FAT16, 4096, 1, data)

	c5, err := fat.ReadFAT(v, 5)
	require.NoError(t, err)
	assert.Equal(t, fat.EOC, c5)
	assert.True(t, c5.IsTerminal())

	c6, err := fat.ReadFAT(v, 6)
	require.NoError(t, err)
	assert.Equal(t, fat.BAD, c6)
	assert.True(t, c6.IsTerminal())

	c7, err := fat.ReadFAT(v, 7)
	require.NoError(t, err)
	assert.Equal(t, fat.Cluster(0x1234), c7)
	assert.False(t, c7.IsTerminal())
}

func TestReadFAT32MasksReservedBits(t *testing.T) {
	data := make([]byte, testBlockSize*2)
	binary.LittleEndian.PutUint32(data[3*4:], 0xF000ABCD)

	v := newTestVolume(t, bpb.FAT32, 1<<20, 1, data)

	c, err := fat.ReadFAT(v, 3)
	require.NoError(t, err)
	assert.Equal(t, fat.Cluster(0x0000ABCD), c)
	assert.Zero(t, uint32(c)&^uint32(bpb.ClusterMask))
}

func TestReadFAT32Terminals(t *testing.T) {
	data := make([]byte, testBlockSize*2)
	binary.LittleEndian.PutUint32(data[8*4:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(data[9*4:], 0x0FFFFFF0)

	v := newTestVolume(t, bpb.FAT32, 1<<20, 1, data)

	c8, err := fat.ReadFAT(v, 8)
	require.NoError(t, err)
	assert.Equal(t, fat.EOC, c8)

	c9, err := fat.ReadFAT(v, 9)
	require.NoError(t, err)
	assert.Equal(t, fat.BAD, c9)
}

func TestReadFAT12EvenOddAndStraddle(t *testing.T) {
	data := make([]byte, testBlockSize*2)

	// Two 12-bit entries packed into three bytes: entry0 = 0x0ABC,
	// entry1 = 0x0DEF, sharing the middle byte.
	const entry0, entry1 = 0x0ABC, 0x0DEF
	data[0] = byte(entry0 & 0xFF)
	data[1] = byte(entry0>>8) | byte((entry1<<4)&0xFF)
	data[2] = byte(entry1 >> 4)

	v := newTestVolume(t, bpb.FAT12, 4000, 1, data)

	c0, err := fat.ReadFAT(v, 0)
	require.NoError(t, err)
	assert.Equal(t, fat.Cluster(0x0ABC), c0)

	c1, err := fat.ReadFAT(v, 1)
	require.NoError(t, err)
	assert.Equal(t, fat.Cluster(0x0DEF), c1)
}

func TestReadFAT12StraddlesBlockBoundary(t *testing.T) {
	data := make([]byte, testBlockSize*2)

	// Pick an odd index whose byteOffset lands on the last byte of block 0,
	// so its two-byte word straddles into block 1.
	// byteOffset = index*3/2 == blockSize-1 for some odd index.
	index := uint32(((testBlockSize - 1) * 2) / 3)
	for index%2 == 0 || uint64(index)*3/2 != testBlockSize-1 {
		index++
	}
	byteOffset := uint64(index) * 3 / 2
	require.Equal(t, uint64(testBlockSize-1), byteOffset)

	data[testBlockSize-1] = 0xAB        // low byte of the word, in block 0
	data[testBlockSize] = 0xCD          // high byte of the word, in block 1

	v := newTestVolume(t, bpb.FAT12, 4000, 2, data)

	c, err := fat.ReadFAT(v, index)
	require.NoError(t, err)
	// word = 0xCDAB; odd index takes the high 12 bits: 0xCDA.
	assert.Equal(t, fat.Cluster(0xCDA), c)
}

func TestReadFAT12Terminals(t *testing.T) {
	data := make([]byte, testBlockSize*2)
	// Index 2 (even), word at byteOffset 3.
	binary.LittleEndian.PutUint16(data[3:], 0x0FF8)

	v := newTestVolume(t, bpb.FAT12, 4000, 1, data)

	c, err := fat.ReadFAT(v, 2)
	require.NoError(t, err)
	assert.Equal(t, fat.EOC, c)
}

func TestReadFATRejectsOutOfRangeIndex(t *testing.T) {
	data := make([]byte, testBlockSize*2)
	v := newTestVolume(t, bpb.FAT16, 10, 1, data)

	_, err := fat.ReadFAT(v, 10)
	require.Error(t, err)
}
