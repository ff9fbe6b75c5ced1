package opendata

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts json, csv and xlsx in any case. Empty means json.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", &Error{Kind: KindInvalidValue, Message: fmt.Sprintf("unsupported export format %q", raw)}
	}
}

// ContentType is the MIME type of the encoding.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json; charset=utf-8"
	}
}

// Encode serialises data. JSON is a direct dump; CSV and XLSX flatten data
// into one row per list element with dotted-path columns.
func Encode(data any, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.Marshal(data)
	case FormatCSV:
		header, rows, err := Flatten(data)
		if err != nil {
			return nil, err
		}
		return encodeCSV(header, rows)
	case FormatXLSX:
		header, rows, err := Flatten(data)
		if err != nil {
			return nil, err
		}
		return encodeXLSX("export", header, rows)
	default:
		return nil, &Error{Kind: KindInvalidValue, Message: fmt.Sprintf("unsupported export format %q", format)}
	}
}

// Flatten converts data into tabular form through its JSON representation.
// Nested objects become dotted paths (a.b.c). Arrays of scalars are joined
// into one cell with "; ", other arrays are indexed (a.0). A top-level list
// yields one row per element; anything else a single row. Columns appear in
// first-seen order. An empty list still yields the columns of its element
// type. Cell values are json.Number, string, bool or nil.
func Flatten(data any) ([]string, []map[string]any, error) {
	if v := reflect.ValueOf(data); (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && v.Len() == 0 {
		header, err := elementHeader(v.Type())
		return header, []map[string]any{}, err
	}
	tree, err := orderedTree(data)
	if err != nil {
		return nil, nil, err
	}

	items, ok := tree.([]any)
	if !ok {
		items = []any{tree}
	}
	var header []string
	seen := make(map[string]struct{})
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row := make(map[string]any)
		var order []string
		flattenValue("", item, row, &order)
		for _, col := range order {
			if _, dup := seen[col]; !dup {
				seen[col] = struct{}{}
				header = append(header, col)
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func orderedTree(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export data: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tree, err := decodeOrdered(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode export data: %w", err)
	}
	return tree, nil
}

// elementHeader flattens the zero value of a list's element type.
func elementHeader(list reflect.Type) ([]string, error) {
	elem := list.Elem()
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	tree, err := orderedTree(reflect.New(elem).Interface())
	if err != nil {
		return nil, err
	}
	var header []string
	flattenValue("", tree, make(map[string]any), &header)
	return header, nil
}

func flattenValue(prefix string, v any, row map[string]any, order *[]string) {
	switch t := v.(type) {
	case *object:
		for _, k := range t.keys {
			flattenValue(join(prefix, k), t.values[k], row, order)
		}
	case []any:
		if cell, ok := joinScalars(t); ok {
			setCell(prefix, cell, row, order)
			return
		}
		for i, e := range t {
			flattenValue(join(prefix, strconv.Itoa(i)), e, row, order)
		}
	default:
		setCell(prefix, t, row, order)
	}
}

func setCell(col string, v any, row map[string]any, order *[]string) {
	if col == "" {
		col = "value"
	}
	row[col] = v
	*order = append(*order, col)
}

// joinScalars renders an array without nested objects or arrays as a single
// cell. An empty array becomes an empty cell.
func joinScalars(arr []any) (string, bool) {
	parts := make([]string, 0, len(arr))
	for _, e := range arr {
		switch e.(type) {
		case *object, []any:
			return "", false
		}
		parts = append(parts, cellString(e))
	}
	return strings.Join(parts, "; "), true
}

// object is a JSON object that remembers its key order.
type object struct {
	keys   []string
	values map[string]any
}

// decodeOrdered reads one JSON value, keeping object keys in document order.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := &object{values: make(map[string]any)}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := keyTok.(string)
			v, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			obj.keys = append(obj.keys, key)
			obj.values[key] = v
		}
		_, err = dec.Token()
		return obj, err
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		_, err = dec.Token()
		return arr, err
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func encodeCSV(header []string, rows []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = cellString(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func encodeXLSX(sheet string, header []string, rows []map[string]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, name := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for r, row := range rows {
		for c, name := range header {
			v, ok := row[name]
			if !ok || v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, cellValue(v)); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if len(header) > 0 {
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return nil, fmt.Errorf("failed to freeze panes: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// cellValue keeps numbers numeric in the workbook.
func cellValue(v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if fl, err := n.Float64(); err == nil {
			return fl
		}
	}
	return v
}
