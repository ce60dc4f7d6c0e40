package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"mercator-hq/archivist/pkg/archive"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, gzip.DefaultCompression)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	rows := []archive.Row{
		{"id": int64(1), "endpoint": "/v1/users", "created_at": "2024-01-01T00:00:00Z"},
		{"id": int64(2), "endpoint": "/v1/orders?x=<a>&y=1", "payload": map[string]any{"k": "v"}},
		{"id": int64(9007199254740993), "note": "line\nbreak"},
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if w.Count() != 3 {
		t.Errorf("Count() = %d, want 3", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()

	var got []archive.Row
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		got = append(got, row)
	}

	if len(got) != 3 {
		t.Fatalf("read %d rows, want 3", len(got))
	}
	if got[1]["endpoint"] != "/v1/orders?x=<a>&y=1" {
		t.Errorf("endpoint = %v, want HTML characters preserved", got[1]["endpoint"])
	}
	if got[2]["note"] != "line\nbreak" {
		t.Errorf("note = %q, want embedded newline preserved", got[2]["note"])
	}

	// Large integers survive because numbers decode as json.Number.
	id, ok := got[2]["id"].(json.Number)
	if !ok {
		t.Fatalf("id type = %T, want json.Number", got[2]["id"])
	}
	if id.String() != "9007199254740993" {
		t.Errorf("id = %s, want 9007199254740993", id)
	}
}

func TestWriter_OneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, gzip.BestSpeed)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Write(archive.Row{"id": i}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	w.Close()

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for i, line := range lines {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			t.Errorf("line %d is not a standalone JSON object: %v", i, err)
		}
	}
}

func TestCountRecords(t *testing.T) {
	tests := []struct {
		name    string
		rows    int
		want    int64
		wantErr bool
	}{
		{name: "empty", rows: 0, want: 0},
		{name: "single", rows: 1, want: 1},
		{name: "many", rows: 1000, want: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, _ := NewWriter(&buf, gzip.DefaultCompression)
			for i := 0; i < tt.rows; i++ {
				w.Write(archive.Row{"id": i})
			}
			w.Close()

			got, err := CountRecords(&buf)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CountRecords() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CountRecords() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountRecords_Corrupt(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("{\"id\":1}\n{not json}\n"))
	gz.Close()

	count, err := CountRecords(&buf)
	if err == nil {
		t.Fatal("CountRecords() expected error for malformed line")
	}
	if count != 1 {
		t.Errorf("count before error = %d, want 1", count)
	}
}

func TestCountRecords_NotGzip(t *testing.T) {
	if _, err := CountRecords(strings.NewReader("plain text")); err == nil {
		t.Error("CountRecords() expected error for non-gzip input")
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "audit_logs_1"+Extension)

	info, err := WriteFile(path, gzip.DefaultCompression, func(w *Writer) error {
		for i := 1; i <= 100; i++ {
			if err := w.Write(archive.Row{"id": i, "action": "login"}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if info.RecordCount != 100 {
		t.Errorf("RecordCount = %d, want 100", info.RecordCount)
	}

	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("archive file missing: %v", err)
	}
	if stat.Size() != info.SizeBytes {
		t.Errorf("SizeBytes = %d, file size = %d", info.SizeBytes, stat.Size())
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	checksum, size, err := ChecksumFile(path)
	if err != nil {
		t.Fatalf("ChecksumFile() error = %v", err)
	}
	if checksum != info.Checksum {
		t.Errorf("ChecksumFile() = %s, want %s", checksum, info.Checksum)
	}
	if size != info.SizeBytes {
		t.Errorf("ChecksumFile() size = %d, want %d", size, info.SizeBytes)
	}
	if len(checksum) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(checksum))
	}

	r, closer, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer closer.Close()
	defer r.Close()

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if first["action"] != "login" {
		t.Errorf("first row action = %v, want login", first["action"])
	}
}

func TestWriteFile_FillErrorRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken"+Extension)
	boom := errors.New("extract failed")

	_, err := WriteFile(path, gzip.DefaultCompression, func(w *Writer) error {
		w.Write(archive.Row{"id": 1})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteFile() error = %v, want %v", err, boom)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory has %d entries after failed write, want 0", len(entries))
	}
}

func TestWriteFile_ExistingTempRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "busy"+Extension)
	if err := os.WriteFile(path+".tmp", []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := WriteFile(path, gzip.DefaultCompression, func(w *Writer) error { return nil })
	if err == nil {
		t.Error("WriteFile() expected error when temporary file exists")
	}
}

func TestChecksumFile_DetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a"+Extension)

	info, err := WriteFile(path, gzip.DefaultCompression, func(w *Writer) error {
		return w.Write(archive.Row{"id": 1})
	})
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte{0x00})
	f.Close()

	checksum, _, err := ChecksumFile(path)
	if err != nil {
		t.Fatalf("ChecksumFile() error = %v", err)
	}
	if checksum == info.Checksum {
		t.Error("checksum unchanged after modifying file")
	}
}

func TestChecksumFile_Missing(t *testing.T) {
	if _, _, err := ChecksumFile(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("ChecksumFile() expected error for missing file")
	}
}
