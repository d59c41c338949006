package microsd

import "github.com/picofs/microsd/fatfs"

const msgNotOpen = "file not open"

// File is a stream handle over one open file of the card. A File owns
// its descriptor exclusively; it is closed by Close or when reopened,
// and closing twice is a no-op. Operations on a closed handle fail with
// PermissionDenied rather than crashing.
type File struct {
	card *Card
	raw  fatfs.File
	open bool
	path string
}

// OpenFile opens path for stream access. mode is one of "r", "w", "a",
// "r+", "w+" or "a+", with C stdio meaning; any other string is
// InvalidParameter.
func (c *Card) OpenFile(path, mode string) Result[*File] {
	if !c.mounted {
		return Err[*File](MountFailed, msgNotMounted)
	}
	f := &File{card: c}
	if st := f.Open(path, mode); st.IsError() {
		return failFrom[*File](st, "")
	}
	return Ok(f)
}

// Open (re)opens the handle on path. An already open handle is closed
// first. Append modes position the handle at end of file.
func (f *File) Open(path, mode string) Status {
	if f.open {
		f.Close()
	}
	var flags fatfs.OpenFlag
	switch mode {
	case "r":
		flags = fatfs.FlagRead
	case "w":
		flags = fatfs.FlagWrite | fatfs.FlagCreateAlways
	case "a":
		flags = fatfs.FlagWrite | fatfs.FlagOpenAlways
	case "r+":
		flags = fatfs.FlagRead | fatfs.FlagWrite
	case "w+":
		flags = fatfs.FlagRead | fatfs.FlagWrite | fatfs.FlagCreateAlways
	case "a+":
		flags = fatfs.FlagRead | fatfs.FlagWrite | fatfs.FlagOpenAlways
	default:
		return Err[Unit](InvalidParameter, "invalid open mode: "+mode)
	}
	p := NormalizePath(path)
	raw, fr := f.card.vol.Open(p, flags)
	if fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "open file "+p+": "+fr.Error())
	}
	if mode == "a" || mode == "a+" {
		if fr := raw.Lseek(raw.Size()); fr != fatfs.ResOK {
			raw.Close()
			return Err[Unit](codeFor(fr), "seek to end "+p+": "+fr.Error())
		}
	}
	f.raw = raw
	f.open = true
	f.path = p
	return OkStatus()
}

// Close releases the descriptor. Safe to call on a closed handle.
func (f *File) Close() {
	if !f.open {
		return
	}
	f.raw.Close()
	f.raw = nil
	f.open = false
	f.path = ""
}

// IsOpen reports whether the handle currently owns an open file.
func (f *File) IsOpen() bool { return f.open }

// Path returns the normalized path the handle was opened on, empty when
// closed.
func (f *File) Path() string { return f.path }

// Read returns up to size bytes from the current position. A slice
// shorter than size means end of file was reached; that is not an
// error.
func (f *File) Read(size int) Result[[]byte] {
	if !f.open {
		return Err[[]byte](PermissionDenied, msgNotOpen)
	}
	buf := make([]byte, size)
	n, fr := f.raw.Read(buf)
	if fr != fatfs.ResOK {
		return Err[[]byte](codeFor(fr), "read: "+fr.Error())
	}
	return Ok(buf[:n])
}

// ReadLine accumulates bytes until '\n' or end of file. Carriage
// returns are discarded and the terminator is not included. At end of
// file with nothing read the result is an Ok empty string, which is
// indistinguishable from a blank line; callers tracking position can
// compare Tell against Size.
func (f *File) ReadLine() Result[string] {
	if !f.open {
		return Err[string](PermissionDenied, msgNotOpen)
	}
	var line []byte
	var one [1]byte
	for {
		n, fr := f.raw.Read(one[:])
		if fr != fatfs.ResOK {
			return Err[string](codeFor(fr), "read: "+fr.Error())
		}
		if n == 0 || one[0] == '\n' {
			break
		}
		if one[0] != '\r' {
			line = append(line, one[0])
		}
	}
	return Ok(string(line))
}

// Write writes data and returns the count actually written. A short
// write is not reported as a distinct error; compare the count against
// len(data).
func (f *File) Write(data []byte) Result[int] {
	if !f.open {
		return Err[int](PermissionDenied, msgNotOpen)
	}
	n, fr := f.raw.Write(data)
	if fr != fatfs.ResOK {
		return Err[int](codeFor(fr), "write: "+fr.Error())
	}
	return Ok(n)
}

// WriteString writes text. See Write.
func (f *File) WriteString(text string) Result[int] {
	return f.Write([]byte(text))
}

// Seek moves the read/write position to pos bytes from the start.
func (f *File) Seek(pos int64) Status {
	if !f.open {
		return Err[Unit](PermissionDenied, msgNotOpen)
	}
	if fr := f.raw.Lseek(pos); fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "seek: "+fr.Error())
	}
	return OkStatus()
}

// Tell returns the current read/write position.
func (f *File) Tell() Result[int64] {
	if !f.open {
		return Err[int64](PermissionDenied, msgNotOpen)
	}
	return Ok(f.raw.Tell())
}

// Size returns the current file size in bytes.
func (f *File) Size() Result[int64] {
	if !f.open {
		return Err[int64](PermissionDenied, msgNotOpen)
	}
	return Ok(f.raw.Size())
}

// Flush commits buffered file data to the medium.
func (f *File) Flush() Status {
	if !f.open {
		return Err[Unit](PermissionDenied, msgNotOpen)
	}
	if fr := f.raw.Sync(); fr != fatfs.ResOK {
		return Err[Unit](codeFor(fr), "flush: "+fr.Error())
	}
	return OkStatus()
}
