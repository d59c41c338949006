package microsd

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/picofs/microsd/fatfs"
	"github.com/picofs/microsd/hal"
)

// Mount retry policy. SPI attached SD cards are known to fail transient
// mounts after cold power-up; the peripheral is rebooted between
// attempts. Failures past the last attempt are reported, never retried
// silently.
const (
	mountAttempts   = 5
	mountRetryDelay = 10 * time.Millisecond
	powerUpDelay    = 100 * time.Millisecond // some cards need settle time
)

const msgNotMounted = "card not mounted"

// FileInfo describes one directory entry. Produced by listings and
// Stat, never mutated afterwards.
type FileInfo struct {
	Name       string
	FullPath   string
	Size       int64
	IsDir      bool
	Attributes uint8 // raw FAT attribute byte
}

// CapacityInfo reports medium capacity in bytes.
type CapacityInfo struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Card owns the SPI configuration, the mount state and at most one open
// directory cursor of an SD card slot. It is the single owner of its
// peripheral and volume; do not share one slot between Cards. Not safe
// for concurrent use.
type Card struct {
	cfg     SPIConfig
	spi     hal.SPI
	vol     fatfs.Volume
	dev     fatfs.BlockDevice
	log     *slog.Logger
	mounted bool
	curDir  fatfs.Dir
	curPath string
}

// NewCard returns an unmounted Card over the given peripheral, driver
// volume and medium. Call Initialize before any path based operation
// and Close when done.
func NewCard(cfg SPIConfig, spi hal.SPI, vol fatfs.Volume, dev fatfs.BlockDevice) *Card {
	return &Card{cfg: cfg, spi: spi, vol: vol, dev: dev, curPath: "/"}
}

// SetLogger attaches a structured logger. A nil logger (the default)
// keeps the card silent.
func (c *Card) SetLogger(l *slog.Logger) { c.log = l }

func (c *Card) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if c.log == nil {
		return
	}
	c.log.LogAttrs(context.Background(), level, msg, attrs...)
}

func (c *Card) debug(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelDebug, msg, attrs...)
}

func (c *Card) warn(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelWarn, msg, attrs...)
}

// Initialize brings up the SPI peripheral and mounts the filesystem.
// Already mounted cards return Success immediately. Mounting is
// attempted up to five times with a peripheral reboot and a short sleep
// after each failure; when all attempts fail the peripheral is torn
// down again and the last driver result is embedded in the message.
func (c *Card) Initialize() Status {
	if c.mounted {
		return OkStatus()
	}
	if err := c.spi.Configure(c.cfg.halConfig()); err != nil {
		return Err[Unit](InitFailed, "spi configure: "+err.Error())
	}
	time.Sleep(powerUpDelay)

	var fr fatfs.Result
	for attempt := 1; attempt <= mountAttempts; attempt++ {
		fr = c.vol.Mount(c.dev)
		if fr == fatfs.ResOK {
			c.mounted = true
			c.curPath = "/"
			if err := c.spi.SetBaudrate(c.cfg.ClockFastHz); err != nil {
				c.warn("fast clock rejected", slog.String("err", err.Error()))
			}
			c.debug("mounted",
				slog.Int("attempt", attempt),
				slog.String("fstype", c.vol.Kind().String()))
			return OkStatus()
		}
		c.debug("mount attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("result", int(fr)))
		c.spi.Reboot()
		time.Sleep(mountRetryDelay)
	}
	c.spi.Deinit()
	return Errf[Unit](codeFor(fr), "card mount failed, driver result %d (%s)", fr, fr.Error())
}

// Close unmounts the filesystem and tears down the SPI peripheral.
// Closing an unmounted card is a no-op.
func (c *Card) Close() {
	if c.curDir != nil {
		c.curDir.Close()
		c.curDir = nil
	}
	if !c.mounted {
		return
	}
	c.vol.Unmount()
	c.mounted = false
	c.curPath = "/"
	c.spi.Reboot()
	c.spi.Deinit()
	c.debug("card closed")
}

// IsMounted reports whether the filesystem is mounted.
func (c *Card) IsMounted() bool { return c.mounted }

// FilesystemType names the mounted filesystem variant, or "unmounted".
func (c *Card) FilesystemType() string {
	if !c.mounted {
		return "unmounted"
	}
	return c.vol.Kind().String()
}

// Capacity reports total and free space. Byte totals are computed from
// cluster counts as clusters*sectorsPerCluster*512; the 512 byte sector
// size is an invariant inherited from the driver's accounting.
func (c *Card) Capacity() Result[CapacityInfo] {
	if !c.mounted {
		return Err[CapacityInfo](MountFailed, msgNotMounted)
	}
	free, total, spc, fr := c.vol.GetFree()
	if fr != fatfs.ResOK {
		return Err[CapacityInfo](codeFor(fr), "query free clusters: "+fr.Error())
	}
	clusterBytes := uint64(spc) * fatfs.SectorSize
	return Ok(CapacityInfo{
		TotalBytes: uint64(total) * clusterBytes,
		FreeBytes:  uint64(free) * clusterBytes,
	})
}

// OpenDirectory opens path as the card's current directory, replacing
// (and closing) any previously open cursor.
func (c *Card) OpenDirectory(path string) Status {
	if !c.mounted {
		return Err[Unit](MountFailed, msgNotMounted)
	}
	p := NormalizePath(path)
	if c.curDir != nil {
		c.curDir.Close()
		c.curDir = nil
	}
	d, fr := c.vol.OpenDir(p)
	if fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "open directory "+p+": "+fr.Error())
	}
	c.curDir = d
	c.curPath = p
	return OkStatus()
}

// CurrentDirectory returns the path set by the last successful
// OpenDirectory, "/" initially.
func (c *Card) CurrentDirectory() string { return c.curPath }

// ListDirectory enumerates the entries of path, or of the current
// directory when path is empty. "." and ".." entries are skipped and
// the result is sorted directories first, then by name. Listing uses
// its own cursor; the persistent cursor owned by OpenDirectory is not
// touched.
func (c *Card) ListDirectory(path string) Result[[]FileInfo] {
	if !c.mounted {
		return Err[[]FileInfo](MountFailed, msgNotMounted)
	}
	target := c.curPath
	if path != "" {
		target = NormalizePath(path)
	}
	d, fr := c.vol.OpenDir(target)
	if fr != fatfs.ResOK {
		return Err[[]FileInfo](codeFor(fr), "open directory "+target+": "+fr.Error())
	}
	defer d.Close()

	var files []FileInfo
	for {
		inf, fr := d.Read()
		if fr != fatfs.ResOK || inf.Name == "" {
			break
		}
		if inf.Name == "." || inf.Name == ".." {
			continue
		}
		files = append(files, FileInfo{
			Name:       inf.Name,
			FullPath:   JoinPath(target, inf.Name),
			Size:       inf.Size,
			IsDir:      inf.IsDir(),
			Attributes: uint8(inf.Attr),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].IsDir != files[j].IsDir {
			return files[i].IsDir
		}
		return files[i].Name < files[j].Name
	})
	return Ok(files)
}

// CreateDirectory creates a directory at path.
func (c *Card) CreateDirectory(path string) Status {
	if !c.mounted {
		return Err[Unit](MountFailed, msgNotMounted)
	}
	p := NormalizePath(path)
	if fr := c.vol.Mkdir(p); fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "create directory "+p+": "+fr.Error())
	}
	return OkStatus()
}

// RemoveDirectory removes the directory at path, which must be empty.
func (c *Card) RemoveDirectory(path string) Status {
	if !c.mounted {
		return Err[Unit](MountFailed, msgNotMounted)
	}
	p := NormalizePath(path)
	if fr := c.vol.Unlink(p); fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "remove directory "+p+": "+fr.Error())
	}
	return OkStatus()
}

// FileExists reports whether path names an existing file or directory.
// An unmounted card reports false.
func (c *Card) FileExists(path string) bool {
	if !c.mounted {
		return false
	}
	_, fr := c.vol.Stat(NormalizePath(path))
	return fr == fatfs.ResOK
}

// Stat returns the FileInfo for path.
func (c *Card) Stat(path string) Result[FileInfo] {
	if !c.mounted {
		return Err[FileInfo](MountFailed, msgNotMounted)
	}
	p := NormalizePath(path)
	inf, fr := c.vol.Stat(p)
	if fr != fatfs.ResOK {
		return Err[FileInfo](codeFor(fr), "stat "+p+": "+fr.Error())
	}
	return Ok(FileInfo{
		Name:       inf.Name,
		FullPath:   p,
		Size:       inf.Size,
		IsDir:      inf.IsDir(),
		Attributes: uint8(inf.Attr),
	})
}

// ReadFile reads the whole file at path into memory.
func (c *Card) ReadFile(path string) Result[[]byte] {
	if !c.mounted {
		return Err[[]byte](MountFailed, msgNotMounted)
	}
	p := NormalizePath(path)
	f, fr := c.vol.Open(p, fatfs.FlagRead)
	if fr != fatfs.ResOK {
		return Err[[]byte](codeFor(fr), "open file "+p+": "+fr.Error())
	}
	buf := make([]byte, f.Size())
	n, fr := f.Read(buf)
	f.Close()
	if fr != fatfs.ResOK {
		return Err[[]byte](codeFor(fr), "read file "+p+": "+fr.Error())
	}
	return Ok(buf[:n])
}

// ReadFileChunk reads up to size bytes starting at offset. A short
// slice means the file ended first.
func (c *Card) ReadFileChunk(path string, offset, size int64) Result[[]byte] {
	if !c.mounted {
		return Err[[]byte](MountFailed, msgNotMounted)
	}
	p := NormalizePath(path)
	f, fr := c.vol.Open(p, fatfs.FlagRead)
	if fr != fatfs.ResOK {
		return Err[[]byte](codeFor(fr), "open file "+p+": "+fr.Error())
	}
	if fr := f.Lseek(offset); fr != fatfs.ResOK {
		f.Close()
		return Err[[]byte](codeFor(fr), "seek "+p+": "+fr.Error())
	}
	buf := make([]byte, size)
	n, fr := f.Read(buf)
	f.Close()
	if fr != fatfs.ResOK {
		return Err[[]byte](codeFor(fr), "read file "+p+": "+fr.Error())
	}
	return Ok(buf[:n])
}

// WriteFile writes data to path, truncating any existing content, or
// appending to it when append is true. A write shorter than the data is
// reported as IOError.
func (c *Card) WriteFile(path string, data []byte, append bool) Status {
	if !c.mounted {
		return Err[Unit](MountFailed, msgNotMounted)
	}
	p := NormalizePath(path)
	mode := fatfs.FlagWrite | fatfs.FlagCreateAlways
	if append {
		mode = fatfs.FlagWrite | fatfs.FlagOpenAlways
	}
	f, fr := c.vol.Open(p, mode)
	if fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "open file "+p+": "+fr.Error())
	}
	if append {
		if fr := f.Lseek(f.Size()); fr != fatfs.ResOK {
			f.Close()
			return Err[Unit](codeFor(fr), "seek to end "+p+": "+fr.Error())
		}
	}
	n, fr := f.Write(data)
	f.Close()
	if fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "write file "+p+": "+fr.Error())
	}
	if n != len(data) {
		return Errf[Unit](IOError, "incomplete write to %s: %d of %d bytes", p, n, len(data))
	}
	return OkStatus()
}

// WriteTextFile writes a string to path. See WriteFile.
func (c *Card) WriteTextFile(path, content string, append bool) Status {
	return c.WriteFile(path, []byte(content), append)
}

// DeleteFile removes the file at path.
func (c *Card) DeleteFile(path string) Status {
	if !c.mounted {
		return Err[Unit](MountFailed, msgNotMounted)
	}
	p := NormalizePath(path)
	if fr := c.vol.Unlink(p); fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "delete file "+p+": "+fr.Error())
	}
	return OkStatus()
}

// Rename moves a file or directory from oldPath to newPath.
func (c *Card) Rename(oldPath, newPath string) Status {
	if !c.mounted {
		return Err[Unit](MountFailed, msgNotMounted)
	}
	op := NormalizePath(oldPath)
	np := NormalizePath(newPath)
	if fr := c.vol.Rename(op, np); fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "rename "+op+" -> "+np+": "+fr.Error())
	}
	return OkStatus()
}

// CopyFile copies src to dst by reading the whole source into memory
// and writing it back out. The entire file is buffered at once; near
// memory limits, chunk copies manually with ReadFileChunk instead.
func (c *Card) CopyFile(src, dst string) Status {
	rd := c.ReadFile(src)
	if rd.IsError() {
		return failFrom[Unit](rd, "copy: read source")
	}
	if st := c.WriteFile(dst, rd.Value(), false); st.IsError() {
		return failFrom[Unit](st, "copy: write destination")
	}
	return OkStatus()
}

// Sync flushes all pending filesystem changes to the medium.
func (c *Card) Sync() Status {
	if !c.mounted {
		return Err[Unit](MountFailed, msgNotMounted)
	}
	if fr := c.vol.Sync(); fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "sync: "+fr.Error())
	}
	return OkStatus()
}

// Format re-creates the filesystem on the medium. Destructive. fsType
// selects "FAT32", "FAT16" or "exFAT"; anything else formats FAT32.
// The parameter set is fixed: one FAT table, automatic alignment and
// cluster size, 512 root directory entries.
func (c *Card) Format(fsType string) Status {
	if !c.mounted {
		return Err[Unit](MountFailed, msgNotMounted)
	}
	kind := fatfs.KindFAT32
	switch fsType {
	case "FAT32":
		kind = fatfs.KindFAT32
	case "FAT16":
		kind = fatfs.KindFAT16
	case "exFAT":
		kind = fatfs.KindExFAT
	}
	c.debug("formatting", slog.String("fstype", kind.String()))
	fr := c.vol.Mkfs(fatfs.MkfsOptions{
		Kind:        kind,
		NumFATs:     1,
		Align:       0,
		RootEntries: 512,
		ClusterSize: 0,
	})
	if fr != fatfs.ResOK {
		return Errf[Unit](LibraryError, "format failed: driver result %d (%s)", fr, fr.Error())
	}
	return OkStatus()
}
