package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// ErrEmptySource is returned for extracts without a header row
var ErrEmptySource = errors.New("source has no header row")

// ParseCSV reads a UTF-8 CSV extract into a table. Quoting is lenient and
// rows may be ragged: short rows leave trailing columns absent, extra
// fields are dropped.
func ParseCSV(name string, data []byte) (*model.Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptySource
		}
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	columns := uniqueColumns(header)
	table := model.NewTable(name, columns)

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}

		row := make(model.Row, len(columns))
		for i, col := range columns {
			if i >= len(record) {
				break
			}
			row[col] = record[i]
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// uniqueColumns trims header names and disambiguates repeats as NAME.1,
// NAME.2 so no cell is silently shadowed. A generated name never reuses a
// header that appears elsewhere in the row.
func uniqueColumns(header []string) []string {
	columns := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	for _, raw := range header {
		taken[strings.TrimSpace(raw)] = true
	}

	used := make(map[string]bool, len(header))
	next := make(map[string]int, len(header))
	for i, raw := range header {
		col := strings.TrimSpace(raw)
		if used[col] {
			base := col
			for {
				next[base]++
				col = fmt.Sprintf("%s.%d", base, next[base])
				if !taken[col] && !used[col] {
					break
				}
			}
		}
		used[col] = true
		columns[i] = col
	}
	return columns
}
