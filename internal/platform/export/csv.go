// Package export streams tabular data as CSV downloads.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	flushEvery = 200
	bufferSize = 32 * 1024
)

// Writer buffers CSV rows and flushes every few hundred lines.
type Writer struct {
	buf     *bufio.Writer
	csv     *csv.Writer
	pending int
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriterSize(w, bufferSize)
	return &Writer{buf: buf, csv: csv.NewWriter(buf)}
}

// Row writes one record.
func (w *Writer) Row(record ...string) error {
	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.pending++
	if w.pending >= flushEvery {
		return w.Flush()
	}
	return nil
}

// Flush pushes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	w.pending = 0
	return w.buf.Flush()
}

// Attachment sets download headers for a dated CSV file such as
// "inventory_export_2024-05-01.csv".
func Attachment(w http.ResponseWriter, prefix string, now time.Time) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_export_%s.csv", prefix, now.UTC().Format("2006-01-02")))
}
