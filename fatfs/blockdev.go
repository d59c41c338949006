package fatfs

import (
	"errors"
	"math/bits"
)

// BlockDevice is the storage medium a Volume is mounted on. On target
// hardware this is the SD card behind the SPI peripheral; on a host it
// is usually a memory or file backed emulation.
type BlockDevice interface {
	ReadBlocks(dst []byte, startBlock int64) error
	WriteBlocks(data []byte, startBlock int64) error
	EraseBlocks(startBlock, numBlocks int64) error
	// Mode returns 0 for no connection/prohibited access, 1 for read-only,
	// 3 for read-write.
	Mode() uint8
	Size() int64
	BlockSize() int
}

const (
	// ModeDisconnected through ModeRW are the values BlockDevice.Mode
	// reports.
	ModeDisconnected uint8 = 0
	ModeReadOnly     uint8 = 1
	ModeRW           uint8 = 3
)

// MemBlockDevice is a memory backed BlockDevice. It serves as the
// medium for emulated volumes in host tooling and tests.
type MemBlockDevice struct {
	blockSize int
	buf       []byte
	readonly  bool
}

var errBlockSize = errors.New("block size must be a power of two and >= 512")

// NewMemBlockDevice returns a RAM disk of numBlocks blocks of blockSize
// bytes each.
func NewMemBlockDevice(blockSize, numBlocks int) (*MemBlockDevice, error) {
	if blockSize < 512 || bits.OnesCount(uint(blockSize)) != 1 {
		return nil, errBlockSize
	} else if numBlocks <= 0 {
		return nil, errors.New("invalid block count")
	}
	return &MemBlockDevice{
		blockSize: blockSize,
		buf:       make([]byte, blockSize*numBlocks),
	}, nil
}

// SetReadOnly makes subsequent writes fail and Mode report read-only.
func (b *MemBlockDevice) SetReadOnly(ro bool) { b.readonly = ro }

func (b *MemBlockDevice) ReadBlocks(dst []byte, startBlock int64) error {
	if len(dst)%b.blockSize != 0 {
		return errors.New("read not aligned to block size")
	} else if startBlock < 0 {
		return errors.New("invalid startBlock")
	}
	off := startBlock * int64(b.blockSize)
	end := off + int64(len(dst))
	if end > int64(len(b.buf)) {
		return errors.New("read past end of device")
	}
	copy(dst, b.buf[off:end])
	return nil
}

func (b *MemBlockDevice) WriteBlocks(data []byte, startBlock int64) error {
	if b.readonly {
		return errors.New("device is read-only")
	} else if len(data)%b.blockSize != 0 {
		return errors.New("write not aligned to block size")
	} else if startBlock < 0 {
		return errors.New("invalid startBlock")
	}
	off := startBlock * int64(b.blockSize)
	end := off + int64(len(data))
	if end > int64(len(b.buf)) {
		return errors.New("write past end of device")
	}
	copy(b.buf[off:end], data)
	return nil
}

func (b *MemBlockDevice) EraseBlocks(startBlock, numBlocks int64) error {
	if b.readonly {
		return errors.New("device is read-only")
	} else if startBlock < 0 || numBlocks <= 0 {
		return errors.New("invalid erase parameters")
	}
	start := startBlock * int64(b.blockSize)
	end := start + numBlocks*int64(b.blockSize)
	if end > int64(len(b.buf)) {
		return errors.New("erase past end of device")
	}
	clear(b.buf[start:end])
	return nil
}

func (b *MemBlockDevice) Mode() uint8 {
	if b.readonly {
		return ModeReadOnly
	}
	return ModeRW
}

func (b *MemBlockDevice) Size() int64 { return int64(len(b.buf)) }

func (b *MemBlockDevice) BlockSize() int { return b.blockSize }
