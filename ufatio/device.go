// Package ufatio provides a Device backed by any io.ReaderAt/io.WriterAt
// pair, for hosts that already hold an *os.File-like handle to the
// underlying media.
package ufatio

import (
	"io"

	ufaterr "github.com/tracmap/goufat/errors"
)

// Device adapts an io.ReaderAt (and, optionally, io.WriterAt) to the
// ufat.Device contract. A Device built around a read-only source still
// satisfies ufat.Device; WriteBlocks simply fails with ufaterr.ErrIO if the
// underlying source has no WriterAt.
type Device struct {
	reader        io.ReaderAt
	writer        io.WriterAt
	log2BlockSize uint
}

// New wraps reader (and, if it also implements io.WriterAt, writer
// support) as a Device with blocks of 1<<log2BlockSize bytes.
func New(reader io.ReaderAt, log2BlockSize uint) *Device {
	d := &Device{reader: reader, log2BlockSize: log2BlockSize}
	if w, ok := reader.(io.WriterAt); ok {
		d.writer = w
	}
	return d
}

// Log2BlockSize implements ufat.Device.
func (d *Device) Log2BlockSize() uint {
	return d.log2BlockSize
}

// ReadBlocks implements ufat.Device.
func (d *Device) ReadBlocks(firstBlock uint64, count uint, dst []byte) error {
	blockSize := int64(1) << d.log2BlockSize
	n := int64(count) * blockSize
	offset := int64(firstBlock) * blockSize

	if _, err := d.reader.ReadAt(dst[:n], offset); err != nil {
		return ufaterr.ErrIO.WrapError(err)
	}
	return nil
}

// WriteBlocks implements ufat.Device.
func (d *Device) WriteBlocks(firstBlock uint64, count uint, src []byte) error {
	if d.writer == nil {
		return ufaterr.ErrIO.WithMessage("underlying storage does not support writes")
	}

	blockSize := int64(1) << d.log2BlockSize
	n := int64(count) * blockSize
	offset := int64(firstBlock) * blockSize

	if _, err := d.writer.WriteAt(src[:n], offset); err != nil {
		return ufaterr.ErrIO.WrapError(err)
	}
	return nil
}
