package sqltool

import (
	"bytes"
	"encoding/json"
	"time"
)

// Field is one column/value pair of a result row.
type Field struct {
	Name  string
	Value any
}

// Row is an ordered mapping from column name to value. Order follows the
// column order produced by the data source, which a plain Go map would lose
// on JSON marshaling.
type Row []Field

// MarshalJSON renders the row as a JSON object with fields in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Result is the tabular output of one executed query. Column order and row
// order are preserved as produced by the data source.
type Result struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// normalizeValue converts driver-specific scan values into JSON-friendly Go
// values. libsql hands text back as []byte.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
