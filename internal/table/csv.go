package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadCSV reads a comma-separated table whose first record is the header.
// Rows receive a range index.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read csv header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				return nil, fmt.Errorf("%w: %v", ErrRaggedRow, err)
			}
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		rows = append(rows, record)
	}

	return New(header, rows...)
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// WriteCSV writes the table as comma-separated text. The first column holds
// the index labels and has an empty header cell. Fields containing a comma,
// a quote, a line break or a leading space are quoted.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := make([]string, 0, len(t.columns)+1)
	header = append(header, "")
	header = append(header, t.columns...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for i, row := range t.rows {
		record := make([]string, 0, len(row)+1)
		record = append(record, t.index[i])
		record = append(record, row...)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// CSV serializes the table fully in memory using WriteCSV.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
