// Package frame provides a small column-oriented table for CSV data.
//
// Cells are kept as strings so that columns such as Name or Cabin survive a
// read/write round trip unchanged. Numeric views are produced on demand and
// map missing or unparseable cells to NaN.
package frame

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// Frame is an ordered set of equally long string columns.
type Frame struct {
	columns []string
	data    map[string][]string
	nrows   int
}

// New creates an empty frame with the given columns.
func New(columns ...string) *Frame {
	f := &Frame{data: make(map[string][]string, len(columns))}
	for _, c := range columns {
		f.columns = append(f.columns, c)
		f.data[c] = nil
	}
	return f
}

// FromRecords builds a frame from a header and rows. Short rows are padded
// with empty cells.
func FromRecords(header []string, rows [][]string) (*Frame, error) {
	if len(header) == 0 {
		return nil, perrors.NewValueError("frame.FromRecords", "header is empty")
	}
	f := &Frame{data: make(map[string][]string, len(header)), nrows: len(rows)}
	for j, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := f.data[name]; dup {
			return nil, perrors.NewValidationError("header", "duplicate column", name)
		}
		col := make([]string, len(rows))
		for i, row := range rows {
			if j < len(row) {
				col[i] = row[j]
			}
		}
		f.columns = append(f.columns, name)
		f.data[name] = col
	}
	return f, nil
}

// ReadCSV parses CSV with a header row.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, perrors.Wrap(err, "read csv")
	}
	if len(records) == 0 {
		return nil, perrors.ErrEmptyData
	}
	return FromRecords(records[0], records[1:])
}

// ReadCSVFile reads the CSV file at path.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, perrors.Wrapf(err, "open %s", path)
	}
	defer file.Close()
	return ReadCSV(file)
}

// WriteCSV writes the header and all rows. No index column is written.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.columns); err != nil {
		return perrors.Wrap(err, "write csv header")
	}
	row := make([]string, len(f.columns))
	for i := 0; i < f.nrows; i++ {
		for j, c := range f.columns {
			row[j] = f.data[c][i]
		}
		if err := writer.Write(row); err != nil {
			return perrors.Wrap(err, "write csv row")
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes the frame to path, creating parent directories.
func (f *Frame) WriteCSVFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perrors.Wrapf(err, "create directory for %s", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return perrors.Wrapf(err, "create %s", path)
	}
	if err := f.WriteCSV(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.nrows }

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string { return slices.Clone(f.columns) }

// HasColumn reports whether name is a column.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// Column returns the raw cells of a column.
func (f *Frame) Column(name string) ([]string, error) {
	col, ok := f.data[name]
	if !ok {
		return nil, perrors.Wrapf(perrors.ErrMissingColumn, "column %q", name)
	}
	return slices.Clone(col), nil
}

// Float returns a column parsed as float64. Missing or unparseable cells
// become NaN.
func (f *Frame) Float(name string) ([]float64, error) {
	col, ok := f.data[name]
	if !ok {
		return nil, perrors.Wrapf(perrors.ErrMissingColumn, "column %q", name)
	}
	out := make([]float64, len(col))
	for i, s := range col {
		out[i] = ParseFloat(s)
	}
	return out, nil
}

// SetColumn replaces or appends a string column.
func (f *Frame) SetColumn(name string, values []string) error {
	if f.nrows == 0 && len(values) > 0 {
		// columns created by New are still empty; pad them to the new length
		for _, c := range f.columns {
			f.data[c] = make([]string, len(values))
		}
		f.nrows = len(values)
	}
	if len(values) != f.nrows {
		return perrors.NewDimensionError("frame.SetColumn", f.nrows, len(values), 0)
	}
	if _, ok := f.data[name]; !ok {
		f.columns = append(f.columns, name)
	}
	f.data[name] = slices.Clone(values)
	return nil
}

// SetFloat replaces or appends a numeric column. NaN is written as an empty
// cell; integral values are written without a decimal point.
func (f *Frame) SetFloat(name string, values []float64) error {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = FormatFloat(v)
	}
	return f.SetColumn(name, cells)
}

// Select returns a new frame with the named columns in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := &Frame{data: make(map[string][]string, len(names)), nrows: f.nrows}
	var missing []string
	for _, n := range names {
		col, ok := f.data[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		out.columns = append(out.columns, n)
		out.data[n] = slices.Clone(col)
	}
	if len(missing) > 0 {
		return nil, perrors.Wrapf(perrors.ErrMissingColumn, "columns %v", missing)
	}
	return out, nil
}

// Drop returns a new frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	keep := make([]string, 0, len(f.columns))
	for _, c := range f.columns {
		if !slices.Contains(names, c) {
			keep = append(keep, c)
		}
	}
	out, _ := f.Select(keep...)
	return out
}

// Subset returns a new frame holding the given rows in the given order.
func (f *Frame) Subset(rows []int) (*Frame, error) {
	out := &Frame{data: make(map[string][]string, len(f.columns)), nrows: len(rows)}
	for _, c := range f.columns {
		src := f.data[c]
		col := make([]string, len(rows))
		for i, r := range rows {
			if r < 0 || r >= f.nrows {
				return nil, perrors.NewValidationError("rows", "row index out of range", r)
			}
			col[i] = src[r]
		}
		out.columns = append(out.columns, c)
		out.data[c] = col
	}
	return out, nil
}

// ToMatrix converts the named columns into an n×len(features) matrix. Every
// cell must be present and numeric.
func (f *Frame) ToMatrix(features []string) (*mat.Dense, error) {
	if f.nrows == 0 || len(features) == 0 {
		return nil, perrors.ErrEmptyData
	}
	X := mat.NewDense(f.nrows, len(features), nil)
	for j, name := range features {
		col, ok := f.data[name]
		if !ok {
			return nil, perrors.Wrapf(perrors.ErrMissingColumn, "column %q", name)
		}
		for i, s := range col {
			v := ParseFloat(s)
			if math.IsNaN(v) {
				return nil, perrors.NewValidationError(name, "value is missing or not numeric", s)
			}
			X.Set(i, j, v)
		}
	}
	return X, nil
}

// LabelVector returns a numeric column as a vector. Every cell must be numeric.
func (f *Frame) LabelVector(name string) (*mat.VecDense, error) {
	X, err := f.ToMatrix([]string{name})
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(f.nrows, X.RawMatrix().Data), nil
}

// FromMatrix builds a frame from a matrix with the given column names.
func FromMatrix(columns []string, X mat.Matrix) (*Frame, error) {
	r, c := X.Dims()
	if c != len(columns) {
		return nil, perrors.NewDimensionError("frame.FromMatrix", len(columns), c, 1)
	}
	f := New()
	f.nrows = r
	for j, name := range columns {
		vals := make([]float64, r)
		for i := 0; i < r; i++ {
			vals[i] = X.At(i, j)
		}
		if err := f.SetFloat(name, vals); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// IsMissing reports whether a cell is treated as missing.
func IsMissing(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NA", "NaN", "nan", "N/A", "null", "NULL", "None":
		return true
	}
	return false
}

// ParseFloat parses a cell, returning NaN for missing or invalid values.
func ParseFloat(s string) float64 {
	if IsMissing(s) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// FormatFloat renders v the way it is written to CSV.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
