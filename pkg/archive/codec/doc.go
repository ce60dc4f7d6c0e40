// Package codec implements the archive file format: one JSON object per line,
// gzip-compressed, with a SHA-256 checksum over the compressed bytes.
//
// Files are written through WriteFile, which streams into a temporary file,
// hashes on the fly, fsyncs and renames atomically. A reader therefore never
// observes a partially written archive at its final path.
//
//	info, err := codec.WriteFile(path, gzip.DefaultCompression, func(w *codec.Writer) error {
//	    for _, row := range rows {
//	        if err := w.Write(row); err != nil {
//	            return err
//	        }
//	    }
//	    return nil
//	})
package codec
