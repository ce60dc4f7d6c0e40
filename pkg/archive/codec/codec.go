package codec

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"mercator-hq/archivist/pkg/archive"
)

// Extension is the file extension of archive files.
const Extension = ".jsonl.gz"

// Writer serializes rows as JSON lines into a gzip stream. Every line is a
// complete JSON object, so each record decodes without the rest of the file.
type Writer struct {
	gz    *gzip.Writer
	enc   *json.Encoder
	count int64
}

// NewWriter creates a Writer with the given gzip compression level.
func NewWriter(w io.Writer, level int) (*Writer, error) {
	gz, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	enc := json.NewEncoder(gz)
	enc.SetEscapeHTML(false)
	return &Writer{gz: gz, enc: enc}, nil
}

// Write appends one row. json.Encoder terminates each value with a newline.
func (w *Writer) Write(row archive.Row) error {
	if err := w.enc.Encode(row); err != nil {
		return fmt.Errorf("failed to encode record %d: %w", w.count+1, err)
	}
	w.count++
	return nil
}

// Count returns the number of rows written so far.
func (w *Writer) Count() int64 {
	return w.count
}

// Close flushes and terminates the gzip stream. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	return w.gz.Close()
}

// Reader decodes rows from an archive stream one line at a time.
type Reader struct {
	gz   *gzip.Reader
	br   *bufio.Reader
	line int64
}

// NewReader creates a Reader over a gzip-compressed JSON-lines stream.
func NewReader(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	return &Reader{gz: gz, br: bufio.NewReaderSize(gz, 64*1024)}, nil
}

// Next returns the next row, or io.EOF when the stream is exhausted.
// Numbers are decoded as json.Number to keep integer cursors exact.
func (r *Reader) Next() (archive.Row, error) {
	for {
		line, err := r.br.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read record %d: %w", r.line+1, err)
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read record %d: %w", r.line+1, err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		r.line++

		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var row archive.Row
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", r.line, err)
		}
		return row, nil
	}
}

// Close releases the gzip reader. It does not close the underlying reader.
func (r *Reader) Close() error {
	return r.gz.Close()
}

// CountRecords decodes every record of an archive stream and returns how
// many there are. A record that does not decode is an error.
func CountRecords(r io.Reader) (int64, error) {
	reader, err := NewReader(r)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	var count int64
	for {
		_, err := reader.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		count++
	}
}
