// Package memcard implements fatfs.Volume over an afero filesystem.
// It stands in for the FAT driver on hosts: tooling and tests mount it
// on a memory or directory backed medium and exercise the same contract
// the on-target driver satisfies. Cluster geometry is emulated from the
// block device size; file content lives in the backing afero.Fs.
package memcard

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/picofs/microsd/fatfs"
)

const defaultSectorsPerCluster = 8

// Volume is an emulated FAT volume. Create with New, then Mount it on a
// fatfs.BlockDevice. Not safe for concurrent use.
type Volume struct {
	backing afero.Fs
	dev     fatfs.BlockDevice
	kind    fatfs.Kind
	spc     uint16
	mounted bool
}

// New returns an unmounted volume whose files live in backing.
func New(backing afero.Fs) *Volume {
	return &Volume{
		backing: backing,
		kind:    fatfs.KindFAT32,
		spc:     defaultSectorsPerCluster,
	}
}

// mapErr folds an afero/os error into a driver result code.
func mapErr(err error) fatfs.Result {
	switch {
	case err == nil:
		return fatfs.ResOK
	case os.IsNotExist(err):
		return fatfs.ResNoFile
	case os.IsExist(err):
		return fatfs.ResExist
	case os.IsPermission(err):
		return fatfs.ResDenied
	default:
		return fatfs.ResDiskErr
	}
}

func (v *Volume) writable() bool {
	return v.dev != nil && v.dev.Mode()&2 != 0
}

func (v *Volume) Mount(dev fatfs.BlockDevice) fatfs.Result {
	if dev == nil || v.backing == nil {
		return fatfs.ResInvalidParameter
	}
	if dev.Mode() == fatfs.ModeDisconnected {
		return fatfs.ResNotReady
	}
	v.dev = dev
	v.mounted = true
	return fatfs.ResOK
}

func (v *Volume) Unmount() fatfs.Result {
	v.mounted = false
	return fatfs.ResOK
}

func (v *Volume) Kind() fatfs.Kind { return v.kind }

func (v *Volume) GetFree() (freeClusters, totalClusters uint32, sectorsPerCluster uint16, res fatfs.Result) {
	if !v.mounted {
		return 0, 0, 0, fatfs.ResNotEnabled
	}
	clusterBytes := int64(v.spc) * fatfs.SectorSize
	totalClusters = uint32(v.dev.Size() / clusterBytes)

	var usedClusters uint32
	afero.Walk(v.backing, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		usedClusters += uint32((info.Size() + clusterBytes - 1) / clusterBytes)
		return nil
	})
	if usedClusters > totalClusters {
		usedClusters = totalClusters
	}
	return totalClusters - usedClusters, totalClusters, v.spc, fatfs.ResOK
}

func osFlags(flags fatfs.OpenFlag) int {
	var f int
	switch {
	case flags&fatfs.FlagRead != 0 && flags&fatfs.FlagWrite != 0:
		f = os.O_RDWR
	case flags&fatfs.FlagWrite != 0:
		f = os.O_WRONLY
	default:
		f = os.O_RDONLY
	}
	if flags&fatfs.FlagCreateAlways != 0 {
		f |= os.O_CREATE | os.O_TRUNC
	}
	if flags&fatfs.FlagCreateNew != 0 {
		f |= os.O_CREATE | os.O_EXCL
	}
	if flags&fatfs.FlagOpenAlways != 0 {
		f |= os.O_CREATE
	}
	return f
}

func (v *Volume) Open(path string, flags fatfs.OpenFlag) (fatfs.File, fatfs.Result) {
	if !v.mounted {
		return nil, fatfs.ResNotEnabled
	}
	if flags&fatfs.FlagWrite != 0 && !v.writable() {
		return nil, fatfs.ResWriteProtected
	}
	fh, err := v.backing.OpenFile(path, osFlags(flags), 0o644)
	if err != nil {
		return nil, mapErr(err)
	}
	return &file{f: fh}, fatfs.ResOK
}

func (v *Volume) OpenDir(path string) (fatfs.Dir, fatfs.Result) {
	if !v.mounted {
		return nil, fatfs.ResNotEnabled
	}
	st, err := v.backing.Stat(path)
	if err != nil {
		return nil, fatfs.ResNoPath
	}
	if !st.IsDir() {
		return nil, fatfs.ResNoPath
	}
	entries, err := afero.ReadDir(v.backing, path)
	if err != nil {
		return nil, mapErr(err)
	}
	return &dirIter{entries: entries}, fatfs.ResOK
}

func (v *Volume) Stat(path string) (fatfs.Info, fatfs.Result) {
	if !v.mounted {
		return fatfs.Info{}, fatfs.ResNotEnabled
	}
	st, err := v.backing.Stat(path)
	if err != nil {
		return fatfs.Info{}, mapErr(err)
	}
	inf := infoFor(st)
	if path == "/" {
		inf.Name = "/"
	}
	return inf, fatfs.ResOK
}

func (v *Volume) Unlink(path string) fatfs.Result {
	if !v.mounted {
		return fatfs.ResNotEnabled
	}
	if !v.writable() {
		return fatfs.ResWriteProtected
	}
	st, err := v.backing.Stat(path)
	if err != nil {
		return mapErr(err)
	}
	if st.IsDir() {
		entries, err := afero.ReadDir(v.backing, path)
		if err != nil {
			return mapErr(err)
		}
		if len(entries) > 0 {
			return fatfs.ResDenied // directory not empty
		}
	}
	return mapErr(v.backing.Remove(path))
}

func (v *Volume) Rename(oldpath, newpath string) fatfs.Result {
	if !v.mounted {
		return fatfs.ResNotEnabled
	}
	if !v.writable() {
		return fatfs.ResWriteProtected
	}
	if _, err := v.backing.Stat(oldpath); err != nil {
		return mapErr(err)
	}
	return mapErr(v.backing.Rename(oldpath, newpath))
}

func (v *Volume) Mkdir(path string) fatfs.Result {
	if !v.mounted {
		return fatfs.ResNotEnabled
	}
	if !v.writable() {
		return fatfs.ResWriteProtected
	}
	if parent := filepath.Dir(path); parent != "/" {
		if st, err := v.backing.Stat(parent); err != nil || !st.IsDir() {
			return fatfs.ResNoPath
		}
	}
	if _, err := v.backing.Stat(path); err == nil {
		return fatfs.ResExist
	}
	return mapErr(v.backing.Mkdir(path, 0o755))
}

func (v *Volume) Mkfs(opts fatfs.MkfsOptions) fatfs.Result {
	if !v.mounted {
		return fatfs.ResNotEnabled
	}
	if !v.writable() {
		return fatfs.ResWriteProtected
	}
	switch opts.Kind {
	case fatfs.KindFAT16, fatfs.KindFAT32, fatfs.KindExFAT:
	default:
		return fatfs.ResInvalidParameter
	}
	entries, err := afero.ReadDir(v.backing, "/")
	if err != nil {
		return mapErr(err)
	}
	for _, e := range entries {
		if err := v.backing.RemoveAll("/" + e.Name()); err != nil {
			return fatfs.ResMkfsAborted
		}
	}
	v.kind = opts.Kind
	if opts.ClusterSize != 0 {
		v.spc = uint16(opts.ClusterSize / fatfs.SectorSize)
		if v.spc == 0 {
			v.spc = 1
		}
	}
	return fatfs.ResOK
}

func (v *Volume) Sync() fatfs.Result {
	if !v.mounted {
		return fatfs.ResNotEnabled
	}
	return fatfs.ResOK
}

func infoFor(st os.FileInfo) fatfs.Info {
	var attr fatfs.Attr
	if st.IsDir() {
		attr |= fatfs.AttrDirectory
	} else {
		attr |= fatfs.AttrArchive
	}
	size := st.Size()
	if st.IsDir() {
		size = 0
	}
	return fatfs.Info{
		Name:    st.Name(),
		Size:    size,
		Attr:    attr,
		ModTime: st.ModTime(),
	}
}

type file struct {
	f afero.File
}

func (f *file) Read(p []byte) (int, fatfs.Result) {
	n, err := f.f.Read(p)
	if err == io.EOF {
		return n, fatfs.ResOK
	}
	return n, mapErr(err)
}

func (f *file) Write(p []byte) (int, fatfs.Result) {
	n, err := f.f.Write(p)
	return n, mapErr(err)
}

func (f *file) Lseek(offset int64) fatfs.Result {
	_, err := f.f.Seek(offset, io.SeekStart)
	return mapErr(err)
}

func (f *file) Tell() int64 {
	pos, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return pos
}

func (f *file) Size() int64 {
	st, err := f.f.Stat()
	if err != nil {
		return 0
	}
	return st.Size()
}

func (f *file) Sync() fatfs.Result { return mapErr(f.f.Sync()) }

func (f *file) Close() fatfs.Result { return mapErr(f.f.Close()) }

type dirIter struct {
	entries []os.FileInfo
	idx     int
}

func (d *dirIter) Read() (fatfs.Info, fatfs.Result) {
	if d.idx >= len(d.entries) {
		return fatfs.Info{}, fatfs.ResOK
	}
	e := d.entries[d.idx]
	d.idx++
	return infoFor(e), fatfs.ResOK
}

func (d *dirIter) Close() fatfs.Result {
	d.entries = nil
	d.idx = 0
	return fatfs.ResOK
}
