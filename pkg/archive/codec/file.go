package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileInfo describes an archive file after it has been durably written.
type FileInfo struct {
	Path        string
	SizeBytes   int64
	Checksum    string // Hex-encoded SHA-256 of the file bytes
	RecordCount int64
}

// countingWriter counts bytes passed to the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteFile creates an archive file at path. fill writes rows through the
// provided Writer. The file is written to a temporary sibling, hashed while
// streaming, fsynced and atomically renamed, so path never refers to a
// partially written file. On any error the temporary file is removed.
func WriteFile(path string, level int, fill func(w *Writer) error) (*FileInfo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary archive file: %w", err)
	}

	cleanup := func() {
		f.Close()
		os.Remove(tmpPath)
	}

	hasher := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(f, hasher)}

	w, err := NewWriter(counter, level)
	if err != nil {
		cleanup()
		return nil, err
	}

	if err := fill(w); err != nil {
		cleanup()
		return nil, err
	}

	if err := w.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to finish gzip stream: %w", err)
	}

	if err := f.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to fsync archive file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close archive file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename archive file: %w", err)
	}

	if err := syncDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	return &FileInfo{
		Path:        path,
		SizeBytes:   counter.n,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		RecordCount: w.Count(),
	}, nil
}

// syncDir fsyncs a directory so a completed rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open archive directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to fsync archive directory: %w", err)
	}
	return nil
}

// ChecksumFile computes the SHA-256 of the file at path and returns it
// hex-encoded together with the file size.
func ChecksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open archive file %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash archive file %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// OpenFile opens an archive file for streaming. Callers must Close both the
// returned Reader and the file via the returned closer.
func OpenFile(path string) (*Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive file %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f, nil
}
