package microsd

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picofs/microsd/fatfs"
	"github.com/picofs/microsd/fatfs/memcard"
	"github.com/picofs/microsd/hal"
)

// newTestCard mounts a card over a 4MB in-memory medium.
func newTestCard(t *testing.T) (*Card, *hal.Simulator) {
	t.Helper()
	dev, err := fatfs.NewMemBlockDevice(fatfs.SectorSize, 8192)
	require.NoError(t, err)
	sim := &hal.Simulator{}
	card := NewCard(DefaultSPIConfig(), sim, memcard.New(afero.NewMemMapFs()), dev)
	require.True(t, card.Initialize().IsOK())
	t.Cleanup(card.Close)
	return card, sim
}

// stubVolume scripts driver behavior for the state machine tests.
type stubVolume struct {
	failMounts int // fail this many Mount calls before succeeding
	mountRes   fatfs.Result
	mountCalls int

	free, total uint32
	spc         uint16

	openFile fatfs.File
	openRes  fatfs.Result
}

func (s *stubVolume) Mount(dev fatfs.BlockDevice) fatfs.Result {
	s.mountCalls++
	if s.mountCalls <= s.failMounts {
		if s.mountRes != fatfs.ResOK {
			return s.mountRes
		}
		return fatfs.ResNotReady
	}
	return fatfs.ResOK
}

func (s *stubVolume) Unmount() fatfs.Result { return fatfs.ResOK }
func (s *stubVolume) Kind() fatfs.Kind      { return fatfs.KindFAT32 }

func (s *stubVolume) GetFree() (uint32, uint32, uint16, fatfs.Result) {
	return s.free, s.total, s.spc, fatfs.ResOK
}

func (s *stubVolume) Open(path string, flags fatfs.OpenFlag) (fatfs.File, fatfs.Result) {
	if s.openRes != fatfs.ResOK {
		return nil, s.openRes
	}
	return s.openFile, fatfs.ResOK
}

func (s *stubVolume) OpenDir(path string) (fatfs.Dir, fatfs.Result) {
	return nil, fatfs.ResNoPath
}

func (s *stubVolume) Stat(path string) (fatfs.Info, fatfs.Result) {
	return fatfs.Info{}, fatfs.ResNoFile
}

func (s *stubVolume) Unlink(path string) fatfs.Result          { return fatfs.ResOK }
func (s *stubVolume) Rename(oldp, newp string) fatfs.Result    { return fatfs.ResOK }
func (s *stubVolume) Mkdir(path string) fatfs.Result           { return fatfs.ResOK }
func (s *stubVolume) Mkfs(opts fatfs.MkfsOptions) fatfs.Result { return fatfs.ResOK }
func (s *stubVolume) Sync() fatfs.Result                       { return fatfs.ResOK }

// shortWriteFile accepts all but the last byte of every write.
type shortWriteFile struct{}

func (shortWriteFile) Read(p []byte) (int, fatfs.Result) { return 0, fatfs.ResOK }
func (shortWriteFile) Write(p []byte) (int, fatfs.Result) {
	if len(p) == 0 {
		return 0, fatfs.ResOK
	}
	return len(p) - 1, fatfs.ResOK
}
func (shortWriteFile) Lseek(offset int64) fatfs.Result { return fatfs.ResOK }
func (shortWriteFile) Tell() int64                     { return 0 }
func (shortWriteFile) Size() int64                     { return 0 }
func (shortWriteFile) Sync() fatfs.Result              { return fatfs.ResOK }
func (shortWriteFile) Close() fatfs.Result             { return fatfs.ResOK }

func newStubCard(vol fatfs.Volume) (*Card, *hal.Simulator) {
	dev, _ := fatfs.NewMemBlockDevice(fatfs.SectorSize, 64)
	sim := &hal.Simulator{}
	return NewCard(DefaultSPIConfig(), sim, vol, dev), sim
}

func TestInitializeRetriesThenSucceeds(t *testing.T) {
	vol := &stubVolume{failMounts: 4}
	card, sim := newStubCard(vol)

	st := card.Initialize()
	require.True(t, st.IsOK(), "message: %s", st.Message())
	assert.Equal(t, 5, vol.mountCalls, "must attempt exactly 5 mounts")
	assert.Equal(t, 4, sim.Reboots, "peripheral rebooted between failed attempts")
	assert.True(t, card.IsMounted())
	assert.Equal(t, DefaultSPIConfig().ClockFastHz, sim.Baudrate)
}

func TestInitializeExhaustsRetries(t *testing.T) {
	vol := &stubVolume{failMounts: 100, mountRes: fatfs.ResDiskErr}
	card, sim := newStubCard(vol)

	st := card.Initialize()
	require.True(t, st.IsError())
	assert.Equal(t, 5, vol.mountCalls, "no retry beyond the fifth attempt")
	assert.Equal(t, IOError, st.Code())
	assert.Contains(t, st.Message(), "driver result")
	assert.False(t, card.IsMounted())
	assert.Equal(t, 1, sim.Deinits, "SPI torn down after exhausting retries")
}

func TestInitializeIdempotentWhenMounted(t *testing.T) {
	vol := &stubVolume{}
	card, _ := newStubCard(vol)

	require.True(t, card.Initialize().IsOK())
	require.True(t, card.Initialize().IsOK())
	assert.Equal(t, 1, vol.mountCalls, "second Initialize must not remount")
}

func TestInitializeConfigureFailure(t *testing.T) {
	vol := &stubVolume{}
	dev, _ := fatfs.NewMemBlockDevice(fatfs.SectorSize, 64)
	sim := &hal.Simulator{ConfigureErr: assert.AnError}
	card := NewCard(DefaultSPIConfig(), sim, vol, dev)

	st := card.Initialize()
	require.True(t, st.IsError())
	assert.Equal(t, InitFailed, st.Code())
	assert.Zero(t, vol.mountCalls)
}

func TestCloseIsIdempotent(t *testing.T) {
	card, sim := newTestCard(t)
	card.Close()
	card.Close()
	assert.False(t, card.IsMounted())
	assert.Equal(t, 1, sim.Deinits)
	assert.Equal(t, "unmounted", card.FilesystemType())
}

func TestCapacityArithmetic(t *testing.T) {
	vol := &stubVolume{free: 500, total: 1000, spc: 8}
	card, _ := newStubCard(vol)
	require.True(t, card.Initialize().IsOK())

	res := card.Capacity()
	require.True(t, res.IsOK())
	assert.Equal(t, uint64(1000*8*512), res.Value().TotalBytes)
	assert.Equal(t, uint64(500*8*512), res.Value().FreeBytes)
}

func TestCapacityUnmounted(t *testing.T) {
	card, _ := newStubCard(&stubVolume{})
	res := card.Capacity()
	require.True(t, res.IsError())
	assert.Equal(t, MountFailed, res.Code())
}

func TestUnmountedOperationsFail(t *testing.T) {
	card, _ := newStubCard(&stubVolume{})

	assert.Equal(t, MountFailed, card.ListDirectory("/").Code())
	assert.Equal(t, MountFailed, card.OpenDirectory("/").Code())
	assert.Equal(t, MountFailed, card.CreateDirectory("/d").Code())
	assert.Equal(t, MountFailed, card.RemoveDirectory("/d").Code())
	assert.Equal(t, MountFailed, card.ReadFile("/f").Code())
	assert.Equal(t, MountFailed, card.ReadFileChunk("/f", 0, 1).Code())
	assert.Equal(t, MountFailed, card.WriteFile("/f", nil, false).Code())
	assert.Equal(t, MountFailed, card.DeleteFile("/f").Code())
	assert.Equal(t, MountFailed, card.Rename("/a", "/b").Code())
	assert.Equal(t, MountFailed, card.Stat("/f").Code())
	assert.Equal(t, MountFailed, card.Sync().Code())
	assert.Equal(t, MountFailed, card.Format("FAT32").Code())
	assert.Equal(t, MountFailed, card.OpenFile("/f", "r").Code())
	assert.False(t, card.FileExists("/f"))
}

func TestRoundTripWholeFile(t *testing.T) {
	card, _ := newTestCard(t)

	payloads := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0xa5, 0x00, 0xff}, 700_000), // ~2MB
	}
	for i, want := range payloads {
		path := JoinPath("/data", "blob")
		if i == 0 {
			require.True(t, card.CreateDirectory("/data").IsOK())
		}
		st := card.WriteFile(path, want, false)
		require.True(t, st.IsOK(), "write %d: %s", i, st.Message())

		got := card.ReadFile(path)
		require.True(t, got.IsOK())
		assert.Equal(t, want, append([]byte{}, got.Value()...), "payload %d", i)
	}
}

func TestReadFileChunk(t *testing.T) {
	card, _ := newTestCard(t)
	require.True(t, card.WriteTextFile("/chunk.bin", "0123456789", false).IsOK())

	res := card.ReadFileChunk("/chunk.bin", 3, 4)
	require.True(t, res.IsOK())
	assert.Equal(t, "3456", string(res.Value()))

	// Reading past the end yields the remaining bytes, not an error.
	res = card.ReadFileChunk("/chunk.bin", 8, 100)
	require.True(t, res.IsOK())
	assert.Equal(t, "89", string(res.Value()))
}

func TestAppendConcatenates(t *testing.T) {
	card, _ := newTestCard(t)
	require.True(t, card.WriteFile("/log.txt", []byte("first"), false).IsOK())
	require.True(t, card.WriteFile("/log.txt", []byte("|second"), true).IsOK())

	got := card.ReadFile("/log.txt")
	require.True(t, got.IsOK())
	assert.Equal(t, "first|second", string(got.Value()))
}

func TestWriteShortWriteIsIOError(t *testing.T) {
	vol := &stubVolume{openFile: shortWriteFile{}}
	card, _ := newStubCard(vol)
	require.True(t, card.Initialize().IsOK())

	st := card.WriteFile("/short.bin", []byte("abcdef"), false)
	require.True(t, st.IsError())
	assert.Equal(t, IOError, st.Code())
	assert.Contains(t, st.Message(), "incomplete write")
}

func TestListDirectorySortsDirsFirst(t *testing.T) {
	card, _ := newTestCard(t)
	require.True(t, card.WriteTextFile("/z.txt", "z", false).IsOK())
	require.True(t, card.WriteTextFile("/a.txt", "a", false).IsOK())
	require.True(t, card.CreateDirectory("/subdir").IsOK())

	res := card.ListDirectory("/")
	require.True(t, res.IsOK())
	var names []string
	for _, f := range res.Value() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"subdir", "a.txt", "z.txt"}, names)
	assert.True(t, res.Value()[0].IsDir)
	assert.Equal(t, "/subdir", res.Value()[0].FullPath)
	assert.Equal(t, "/a.txt", res.Value()[1].FullPath)
	assert.Equal(t, int64(1), res.Value()[1].Size)
}

func TestOpenDirectorySetsCurrentPath(t *testing.T) {
	card, _ := newTestCard(t)
	require.True(t, card.CreateDirectory("/music").IsOK())
	require.True(t, card.WriteTextFile("/music/a.wav", "riff", false).IsOK())

	assert.Equal(t, "/", card.CurrentDirectory())
	require.True(t, card.OpenDirectory("music/").IsOK())
	assert.Equal(t, "/music", card.CurrentDirectory())

	// Empty path lists the current directory.
	res := card.ListDirectory("")
	require.True(t, res.IsOK())
	require.Len(t, res.Value(), 1)
	assert.Equal(t, "a.wav", res.Value()[0].Name)

	st := card.OpenDirectory("/nope")
	require.True(t, st.IsError())
	assert.Equal(t, FileNotFound, st.Code())
	assert.Equal(t, "/music", card.CurrentDirectory(), "failed open keeps previous path")
}

func TestDirectoryLifecycle(t *testing.T) {
	card, _ := newTestCard(t)
	require.True(t, card.CreateDirectory("/d").IsOK())
	assert.True(t, card.FileExists("/d"))

	require.True(t, card.WriteTextFile("/d/x", "x", false).IsOK())
	st := card.RemoveDirectory("/d")
	require.True(t, st.IsError(), "non-empty directory must not be removable")
	assert.Equal(t, PermissionDenied, st.Code())

	require.True(t, card.DeleteFile("/d/x").IsOK())
	require.True(t, card.RemoveDirectory("/d").IsOK())
	assert.False(t, card.FileExists("/d"))
}

func TestRenameAndCopy(t *testing.T) {
	card, _ := newTestCard(t)
	require.True(t, card.WriteTextFile("/src.txt", "payload", false).IsOK())

	require.True(t, card.Rename("/src.txt", "/dst.txt").IsOK())
	assert.False(t, card.FileExists("/src.txt"))
	assert.True(t, card.FileExists("/dst.txt"))

	require.True(t, card.CopyFile("/dst.txt", "/copy.txt").IsOK())
	got := card.ReadFile("/copy.txt")
	require.True(t, got.IsOK())
	assert.Equal(t, "payload", string(got.Value()))

	st := card.CopyFile("/missing.txt", "/x")
	require.True(t, st.IsError())
	assert.Equal(t, FileNotFound, st.Code())
}

func TestStatAndDeleteMissing(t *testing.T) {
	card, _ := newTestCard(t)
	require.True(t, card.WriteTextFile("/info.txt", "abc", false).IsOK())

	res := card.Stat("info.txt")
	require.True(t, res.IsOK())
	assert.Equal(t, "info.txt", res.Value().Name)
	assert.Equal(t, "/info.txt", res.Value().FullPath)
	assert.Equal(t, int64(3), res.Value().Size)
	assert.False(t, res.Value().IsDir)

	st := card.Stat("/missing")
	require.True(t, st.IsError())
	assert.Equal(t, FileNotFound, st.Code())

	del := card.DeleteFile("/missing")
	require.True(t, del.IsError())
	assert.Equal(t, FileNotFound, del.Code())
}

func TestFormatWipesVolume(t *testing.T) {
	card, _ := newTestCard(t)
	require.True(t, card.WriteTextFile("/junk.txt", "junk", false).IsOK())
	require.True(t, card.CreateDirectory("/dir").IsOK())

	require.True(t, card.Format("FAT16").IsOK())
	assert.False(t, card.FileExists("/junk.txt"))
	assert.False(t, card.FileExists("/dir"))
	assert.Equal(t, "FAT16", card.FilesystemType())

	// Unrecognized type strings format FAT32.
	require.True(t, card.Format("minixfs").IsOK())
	assert.Equal(t, "FAT32", card.FilesystemType())
}

func TestSync(t *testing.T) {
	card, _ := newTestCard(t)
	assert.True(t, card.Sync().IsOK())
}

func TestFilesystemType(t *testing.T) {
	card, _ := newTestCard(t)
	assert.Equal(t, "FAT32", card.FilesystemType())
}
