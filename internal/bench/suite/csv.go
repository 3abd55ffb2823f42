package suite

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/DjordjeVuckovic/pgbench/internal/apperr"
)

// ReadCSVColumn returns the values of column from CSV data with a header row.
// Empty cells are kept.
func ReadCSVColumn(r io.Reader, column string) ([]any, error) {
	csvReader := csv.NewReader(r)

	headers, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := -1
	for i, h := range headers {
		if h == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "csv has no column %q", column)
	}

	var values []any
	for {
		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(values)+2, err)
		}
		values = append(values, row[idx])
	}
	if len(values) == 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "csv column %q has no values", column)
	}
	return values, nil
}

func readCSVFile(path, column string) ([]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "open csv provider file", err)
	}
	defer f.Close()
	return ReadCSVColumn(f, column)
}

type cycle struct {
	values []any
	next   atomic.Uint64
}

// Cycle yields values in order and wraps around, shared across all callers.
func Cycle(values ...any) Provider {
	return &cycle{values: values}
}

func (c *cycle) Next() (any, error) {
	if len(c.values) == 0 {
		return nil, nil
	}
	i := c.next.Add(1) - 1
	return c.values[i%uint64(len(c.values))], nil
}
