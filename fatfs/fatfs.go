// Package fatfs defines the contract between the microsd wrapper and the
// underlying FAT filesystem driver. The driver owns block I/O, the FAT
// tables, directory entry encoding and cluster allocation; this package
// only names the primitives and result codes the wrapper forwards to.
package fatfs

import (
	"strconv"
	"time"
)

// SectorSize is the sector size in bytes assumed by capacity accounting.
// FAT media formatted by this stack always uses 512 byte sectors.
const SectorSize = 512

// Result is a driver-level return code, mirroring FatFs FRESULT values.
type Result uint8

const (
	ResOK               Result = iota // succeeded
	ResDiskErr                        // low level disk I/O error
	ResIntErr                         // assertion failed inside the driver
	ResNotReady                       // physical drive not ready
	ResNoFile                         // file not found
	ResNoPath                         // path not found
	ResInvalidName                    // path name format invalid
	ResDenied                         // access denied or directory full
	ResExist                          // object already exists
	ResInvalidObject                  // object invalid or closed
	ResWriteProtected                 // medium is write protected
	ResInvalidDrive                   // logical drive number invalid
	ResNotEnabled                     // volume has no work area
	ResNoFilesystem                   // no valid FAT volume found
	ResMkfsAborted                    // mkfs aborted
	ResTimeout                        // timeout waiting for internal access
	ResLocked                         // operation rejected by file sharing
	ResNotEnoughCore                  // working buffer could not be allocated
	ResTooManyOpenFiles               // too many open files
	ResInvalidParameter               // parameter invalid
)

func (r Result) Error() string {
	switch r {
	case ResOK:
		return "ok"
	case ResDiskErr:
		return "disk error"
	case ResIntErr:
		return "internal error"
	case ResNotReady:
		return "drive not ready"
	case ResNoFile:
		return "no file"
	case ResNoPath:
		return "no path"
	case ResInvalidName:
		return "invalid name"
	case ResDenied:
		return "access denied"
	case ResExist:
		return "object exists"
	case ResInvalidObject:
		return "invalid object"
	case ResWriteProtected:
		return "write protected"
	case ResInvalidDrive:
		return "invalid drive"
	case ResNotEnabled:
		return "volume not enabled"
	case ResNoFilesystem:
		return "no filesystem"
	case ResMkfsAborted:
		return "mkfs aborted"
	case ResTimeout:
		return "timeout"
	case ResLocked:
		return "locked"
	case ResNotEnoughCore:
		return "not enough memory"
	case ResTooManyOpenFiles:
		return "too many open files"
	case ResInvalidParameter:
		return "invalid parameter"
	default:
		return "unknown result " + strconv.Itoa(int(r))
	}
}

// OpenFlag selects the file access mode in Volume.Open.
type OpenFlag uint8

const (
	FlagRead         OpenFlag = 0b01
	FlagWrite        OpenFlag = 0b10
	FlagOpenExisting OpenFlag = 0
)

const (
	FlagCreateNew OpenFlag = 1 << (iota + 2)
	FlagCreateAlways
	FlagOpenAlways
	FlagOpenAppend OpenFlag = 0x30
)

// Attr holds the raw FAT directory entry attribute bits.
type Attr uint8

const (
	AttrReadOnly  Attr = 0x01
	AttrHidden    Attr = 0x02
	AttrSystem    Attr = 0x04
	AttrVolumeID  Attr = 0x08
	AttrDirectory Attr = 0x10
	AttrArchive   Attr = 0x20
)

// Kind identifies the filesystem variant found on the medium.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindFAT12
	KindFAT16
	KindFAT32
	KindExFAT
)

func (k Kind) String() string {
	switch k {
	case KindFAT12:
		return "FAT12"
	case KindFAT16:
		return "FAT16"
	case KindFAT32:
		return "FAT32"
	case KindExFAT:
		return "exFAT"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Info describes a single directory entry as reported by the driver.
type Info struct {
	Name    string
	Size    int64
	Attr    Attr
	ModTime time.Time
}

// IsDir returns true if the entry is a directory.
func (i Info) IsDir() bool { return i.Attr&AttrDirectory != 0 }

// MkfsOptions carries the parameter set passed to Volume.Mkfs.
type MkfsOptions struct {
	Kind        Kind
	NumFATs     uint8
	Align       uint32 // data area alignment in sectors, 0 for auto
	RootEntries uint16 // number of root directory entries (FAT12/16)
	ClusterSize uint32 // bytes per allocation unit, 0 for auto
}

// Volume is the mountable filesystem object of the underlying driver.
// All paths are absolute, slash separated and already normalized by the
// caller. Implementations are not safe for concurrent use.
type Volume interface {
	Mount(dev BlockDevice) Result
	Unmount() Result
	// Kind reports the filesystem variant; valid only while mounted.
	Kind() Kind
	// GetFree reports free and total cluster counts and the cluster size
	// in sectors.
	GetFree() (freeClusters, totalClusters uint32, sectorsPerCluster uint16, res Result)
	Open(path string, flags OpenFlag) (File, Result)
	OpenDir(path string) (Dir, Result)
	Stat(path string) (Info, Result)
	Unlink(path string) Result
	Rename(oldpath, newpath string) Result
	Mkdir(path string) Result
	Mkfs(opts MkfsOptions) Result
	Sync() Result
}

// File is one open file object of the underlying driver.
type File interface {
	// Read reads up to len(p) bytes. A short count with ResOK means end
	// of file.
	Read(p []byte) (int, Result)
	// Write writes len(p) bytes and reports the count actually written.
	Write(p []byte) (int, Result)
	Lseek(offset int64) Result
	Tell() int64
	Size() int64
	Sync() Result
	Close() Result
}

// Dir is a directory read cursor. Read reports an Info with an empty
// Name once all entries have been consumed.
type Dir interface {
	Read() (Info, Result)
	Close() Result
}
