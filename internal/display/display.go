// Package display renders the generic status sections returned by the
// device as plain-text tables.
package display

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/openwatt/iotalog/internal/timeutil"
)

// Converters maps a field name to a display conversion for its value.
type Converters map[string]func(any) string

// TimestampLocal renders a UNIX-timestamp field as local time without a
// zone suffix. Non-numeric values fall back to the default rendering.
func TimestampLocal(v any) string {
	switch ts := v.(type) {
	case float64:
		return timeutil.TimestampLocal(int64(ts))
	case int64:
		return timeutil.TimestampLocal(ts)
	case int:
		return timeutil.TimestampLocal(int64(ts))
	}
	return formatValue(v)
}

// List renders a list of mappings as one table, one row per mapping.
// A nil keys slice tabulates the union of all keys in sorted order.
// Missing keys render as empty cells.
func List(w io.Writer, rows []map[string]any, keys []string, conv Converters) {
	if len(rows) == 0 {
		return
	}
	if keys == nil {
		keys = unionKeys(rows)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(headers(keys))
	table.SetAutoFormatHeaders(false)
	for _, row := range rows {
		cells := make([]string, len(keys))
		for i, k := range keys {
			cells[i] = cell(row, k, conv)
		}
		table.Append(cells)
	}
	table.Render()
}

// Map renders a single mapping as a two-column key/value table. A nil
// keys slice uses all keys in sorted order.
func Map(w io.Writer, m map[string]any, keys []string, conv Converters) {
	if len(m) == 0 {
		return
	}
	if keys == nil {
		keys = sortedKeys(m)
	}

	table := tablewriter.NewWriter(w)
	for _, k := range keys {
		table.Append([]string{k, cell(m, k, conv)})
	}
	table.Render()
}

func cell(m map[string]any, key string, conv Converters) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if conv != nil {
		if fn, ok := conv[key]; ok {
			return fn(v)
		}
	}
	return formatValue(v)
}

// formatValue renders a JSON-decoded value compactly: whole numbers
// without a fractional part, everything else via fmt.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return fmt.Sprintf("%.0f", x)
		}
		return fmt.Sprintf("%g", x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func headers(keys []string) []string {
	hs := make([]string, len(keys))
	for i, k := range keys {
		if k == "" {
			continue
		}
		hs[i] = strings.ToUpper(k[:1]) + k[1:]
	}
	return hs
}

func unionKeys(rows []map[string]any) []string {
	seen := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
