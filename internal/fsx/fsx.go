// Package fsx provides atomic file writes for pipeline outputs.
//
// Every output is written to a hidden temporary file in the destination
// directory and renamed into place only after the data is fully on disk.
// An interrupted run therefore never leaves a truncated file at a final
// output path.
package fsx

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// WriteAtomic encodes into a temporary file next to path and renames it
// into place. When overwrite is false and path already exists, it returns
// os.ErrExist without touching the existing file.
func WriteAtomic(path string, overwrite bool, encode func(io.Writer) error) error {
	dir := filepath.Dir(path)
	name := filepath.Base(path)

	if !overwrite {
		if _, err := os.Lstat(path); err == nil {
			return os.ErrExist
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// The temp file must live in the destination directory so the final
	// rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := encode(tmp); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	syncDirBestEffort(dir)
	return nil
}

// WriteFileAtomic writes data to path atomically, replacing any existing
// file.
func WriteFileAtomic(path string, data []byte) error {
	return WriteAtomic(path, true, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteFileAtomicNoOverwrite writes data to path atomically and fails with
// os.ErrExist if path already exists.
func WriteFileAtomicNoOverwrite(path string, data []byte) error {
	return WriteAtomic(path, false, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Directory sync semantics vary too much across platforms to treat a
// failure here as fatal.
func syncDirBestEffort(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	_ = f.Sync()
}
