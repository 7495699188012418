// Package ufatmem provides a Device backed by an in-memory byte slice, for
// hosts that mmap a flash region directly and for tests that need a
// realistic byte stream without a filesystem underneath them.
package ufatmem

import (
	"io"

	"github.com/xaionaro-go/bytesextra"

	ufaterr "github.com/tracmap/goufat/errors"
)

// Device wraps a []byte as a ufat.Device with a fixed block size.
type Device struct {
	stream        io.ReadWriteSeeker
	log2BlockSize uint
	totalBlocks   uint64
}

// New wraps storage as a Device with blocks of 1<<log2BlockSize bytes.
// len(storage) must be an exact multiple of the block size.
func New(storage []byte, log2BlockSize uint) (*Device, error) {
	blockSize := uint64(1) << log2BlockSize
	if uint64(len(storage))%blockSize != 0 {
		return nil, ufaterr.ErrBlockSize.WithMessage("storage length is not a multiple of the block size")
	}

	return &Device{
		stream:        bytesextra.NewReadWriteSeeker(storage),
		log2BlockSize: log2BlockSize,
		totalBlocks:   uint64(len(storage)) / blockSize,
	}, nil
}

// Log2BlockSize implements ufat.Device.
func (d *Device) Log2BlockSize() uint {
	return d.log2BlockSize
}

func (d *Device) checkBounds(firstBlock uint64, count uint) error {
	if firstBlock+uint64(count) > d.totalBlocks {
		return ufaterr.ErrIO.WithMessage("access past end of backing storage")
	}
	return nil
}

// ReadBlocks implements ufat.Device.
func (d *Device) ReadBlocks(firstBlock uint64, count uint, dst []byte) error {
	if err := d.checkBounds(firstBlock, count); err != nil {
		return err
	}

	blockSize := int64(1) << d.log2BlockSize
	if _, err := d.stream.Seek(int64(firstBlock)*blockSize, io.SeekStart); err != nil {
		return ufaterr.ErrIO.WrapError(err)
	}
	if _, err := io.ReadFull(d.stream, dst[:uint64(count)*uint64(blockSize)]); err != nil {
		return ufaterr.ErrIO.WrapError(err)
	}
	return nil
}

// WriteBlocks implements ufat.Device.
func (d *Device) WriteBlocks(firstBlock uint64, count uint, src []byte) error {
	if err := d.checkBounds(firstBlock, count); err != nil {
		return err
	}

	blockSize := int64(1) << d.log2BlockSize
	if _, err := d.stream.Seek(int64(firstBlock)*blockSize, io.SeekStart); err != nil {
		return ufaterr.ErrIO.WrapError(err)
	}
	if _, err := d.stream.Write(src[:uint64(count)*uint64(blockSize)]); err != nil {
		return ufaterr.ErrIO.WrapError(err)
	}
	return nil
}
