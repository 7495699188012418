// Package testing holds fixture builders shared by this module's test
// suites: a deterministic boot-sector writer and a fakeable in-memory
// Device, mirroring the wider codebase's testing/blockcache.go and
// testing/images.go support packages. Import it under an alias (e.g.
// ufattest) to avoid colliding with the standard library's testing
// package.
package testing

import (
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	ufaterr "github.com/tracmap/goufat/errors"
)

// BPBParams describes the fields needed to build a synthetic boot sector.
// Any field left zero is encoded as zero; callers are responsible for
// supplying a self-consistent set of values (e.g. via a media.Profile).
type BPBParams struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	SectorsPerFAT16   uint16
	TotalSectors32    uint32
	SectorsPerFAT32   uint32
	RootCluster       uint32
	// BadSignature, if true, writes a signature that does not match
	// 0xAA55, for negative tests.
	BadSignature bool
}

// BuildBootSector renders a 512-byte boot sector from p.
func BuildBootSector(p BPBParams) []byte {
	sector := make([]byte, 512)

	binary.LittleEndian.PutUint16(sector[0x00B:], p.BytesPerSector)
	sector[0x00D] = p.SectorsPerCluster
	binary.LittleEndian.PutUint16(sector[0x00E:], p.ReservedSectors)
	sector[0x010] = p.NumFATs
	binary.LittleEndian.PutUint16(sector[0x011:], p.RootEntryCount)
	binary.LittleEndian.PutUint16(sector[0x013:], p.TotalSectors16)
	binary.LittleEndian.PutUint16(sector[0x016:], p.SectorsPerFAT16)
	binary.LittleEndian.PutUint32(sector[0x020:], p.TotalSectors32)
	binary.LittleEndian.PutUint32(sector[0x024:], p.SectorsPerFAT32)
	binary.LittleEndian.PutUint32(sector[0x02C:], p.RootCluster)

	if p.BadSignature {
		binary.LittleEndian.PutUint16(sector[0x1FE:], 0x0000)
	} else {
		binary.LittleEndian.PutUint16(sector[0x1FE:], 0xAA55)
	}

	return sector
}

// RandomImage returns totalBlocks*bytesPerBlock random bytes, guaranteed
// to either succeed or abort the test.
func RandomImage(t *testing.T, bytesPerBlock, totalBlocks uint) []byte {
	buf := make([]byte, bytesPerBlock*totalBlocks)
	_, err := rand.Read(buf)
	require.NoError(t, err, "failed to generate random fixture image")
	return buf
}

// FakeDevice is a fully in-memory ufat.Device with injectable read/write
// failures, for tests that need to observe the cache/volume's behavior
// when the underlying storage misbehaves.
type FakeDevice struct {
	Log2Block uint
	Data      []byte

	// FailRead, if non-nil, is called before every read; a non-nil return
	// makes that read fail.
	FailRead func(firstBlock uint64) error
	// FailWrite, if non-nil, is called before every write; a non-nil
	// return makes that write fail.
	FailWrite func(firstBlock uint64) error
}

// Log2BlockSize implements ufat.Device.
func (d *FakeDevice) Log2BlockSize() uint {
	return d.Log2Block
}

// ReadBlocks implements ufat.Device.
func (d *FakeDevice) ReadBlocks(firstBlock uint64, count uint, dst []byte) error {
	if d.FailRead != nil {
		if err := d.FailRead(firstBlock); err != nil {
			return err
		}
	}

	blockSize := uint64(1) << d.Log2Block
	start := firstBlock * blockSize
	end := start + uint64(count)*blockSize
	if end > uint64(len(d.Data)) {
		return ufaterr.ErrIO.WithMessage("fake device read past end of image")
	}
	copy(dst, d.Data[start:end])
	return nil
}

// WriteBlocks implements ufat.Device.
func (d *FakeDevice) WriteBlocks(firstBlock uint64, count uint, src []byte) error {
	if d.FailWrite != nil {
		if err := d.FailWrite(firstBlock); err != nil {
			return err
		}
	}

	blockSize := uint64(1) << d.Log2Block
	start := firstBlock * blockSize
	end := start + uint64(count)*blockSize
	if end > uint64(len(d.Data)) {
		return ufaterr.ErrIO.WithMessage("fake device write past end of image")
	}
	copy(d.Data[start:end], src)
	return nil
}
