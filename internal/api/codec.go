package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// decodeJSONRows parses the device's JSON query response, a list of
// numeric rows.
func decodeJSONRows(body []byte) ([][]float64, error) {
	var rows [][]float64
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// decodeCSVRows parses the device's CSV query response into the same
// numeric rows as the JSON codec. Rows are allowed to vary in width so
// that the malformed-row recovery above sees them; non-numeric fields
// are a decode error.
func decodeCSVRows(body []byte) ([][]float64, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, 0, len(records))
	for i, record := range records {
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", i, j, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
