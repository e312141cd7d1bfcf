package images

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// CSVSource reads pairs from a csv file with two columns per row.
type CSVSource struct {
	Path string
}

// NewCSVSource creates a source backed by the csv file at path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

func (s *CSVSource) Open(ctx context.Context) (Cursor, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open pair file: %w", err)
	}
	return newCSVCursor(f), nil
}

type csvCursor struct {
	rc     io.ReadCloser
	reader *csv.Reader
}

func newCSVCursor(rc io.ReadCloser) *csvCursor {
	r := csv.NewReader(rc)
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true
	return &csvCursor{rc: rc, reader: r}
}

func (c *csvCursor) Next() (Pair, error) {
	record, err := c.reader.Read()
	if err != nil {
		if err == io.EOF {
			return Pair{}, io.EOF
		}
		return Pair{}, fmt.Errorf("read pair row: %w", err)
	}
	return Pair{record[0], record[1]}, nil
}

func (c *csvCursor) Close() error {
	return c.rc.Close()
}
