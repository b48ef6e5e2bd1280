// Package dataset serializes chart data sets over the tagged buffer format.
//
// A DataSet is a set of equally long value columns, one per dimension (x, y,
// ...), with axis descriptions, sparse per-point labels and styles, and free
// form diagnostics. Encode writes one field per attribute; Decode dispatches
// on field names and skips fields it does not know, so older readers keep
// working when writers add attributes.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/starfederation/fxcodec"
	"github.com/starfederation/fxcodec/fault"
	"github.com/starfederation/fxcodec/pool"
)

// DefaultProducer is written to the header when Options.Producer is empty.
const DefaultProducer = "fxcodec/dataset"

// Field names on the wire.
const (
	fieldName      = "name"
	fieldDims      = "nDims"
	fieldAxisNames = "axisNames"
	fieldAxisUnits = "axisUnits"
	fieldValues    = "values"
	fieldAxisMin   = "axisMin"
	fieldAxisMax   = "axisMax"
	fieldLabels    = "labels"
	fieldStyles    = "styles"
	fieldInfo      = "info"
	fieldWarnings  = "warnings"
	fieldErrors    = "errors"
	fieldMetaInfo  = "metaInfo"
)

// DataSet is an n-dimensional series.
type DataSet struct {
	Name      string
	AxisNames []string
	AxisUnits []string
	// Values holds one column per dimension. All columns have the same length.
	Values   [][]float64
	Labels   map[int]string
	Styles   map[int]string
	Info     []string
	Warnings []string
	Errors   []string
	MetaInfo map[string]string

	// AxisMin and AxisMax are filled by Decode from the ranges stored by the
	// writer. Encode recomputes them.
	AxisMin []float64
	AxisMax []float64

	pooled bool
}

// Dims returns the number of dimensions.
func (ds *DataSet) Dims() int { return len(ds.Values) }

// Len returns the number of data points.
func (ds *DataSet) Len() int {
	if len(ds.Values) == 0 {
		return 0
	}
	return len(ds.Values[0])
}

// AxisName returns the name of dimension dim, falling back to x, y, z.
func (ds *DataSet) AxisName(dim int) string {
	if dim < len(ds.AxisNames) && ds.AxisNames[dim] != "" {
		return ds.AxisNames[dim]
	}
	if dim < 3 {
		return string(rune('x' + dim))
	}
	return "dim" + strconv.Itoa(dim)
}

// Range returns the smallest and largest finite value of dimension dim, or
// NaN for both when the column holds no finite value.
func (ds *DataSet) Range(dim int) (lo, hi float64) {
	lo, hi = math.NaN(), math.NaN()
	for _, v := range ds.Values[dim] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.IsNaN(lo) || v < lo {
			lo = v
		}
		if math.IsNaN(hi) || v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Validate checks the structural invariants Encode relies on.
func (ds *DataSet) Validate() error {
	if ds == nil {
		return fault.InvalidArgument("nil data set")
	}
	n := ds.Len()
	for i, col := range ds.Values {
		if len(col) != n {
			return fault.InvalidArgument("data set %q: dimension %d has %d points, dimension 0 has %d", ds.Name, i, len(col), n)
		}
	}
	if len(ds.AxisNames) > ds.Dims() || len(ds.AxisUnits) > ds.Dims() {
		return fault.InvalidArgument("data set %q: %d axis names and %d units for %d dimensions", ds.Name, len(ds.AxisNames), len(ds.AxisUnits), ds.Dims())
	}
	for _, m := range []map[int]string{ds.Labels, ds.Styles} {
		for idx := range m {
			if idx < 0 || idx >= n || idx > math.MaxInt32 {
				return fault.InvalidArgument("data set %q: point index %d out of range [0,%d)", ds.Name, idx, n)
			}
		}
	}
	return nil
}

// Options control Encode.
type Options struct {
	// AsFloat32 stores values as FLOAT_ARRAY, halving the payload.
	AsFloat32 bool
	Producer  string
	// Registry supplies the writer buffer. It may be nil.
	Registry *pool.Registry
}

// Encode serializes ds into a complete buffer owned by the caller.
func Encode(ds *DataSet, opts Options) ([]byte, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	producer := opts.Producer
	if producer == "" {
		producer = DefaultProducer
	}
	w := fxcodec.NewWriter(opts.Registry, 64+16*ds.Len()*ds.Dims())
	w.PutHeaderInfo(producer)
	Write(w, ds, opts.AsFloat32)
	if err := w.PutEndMarker(); err != nil {
		w.Release()
		return nil, err
	}
	return w.Detach(), nil
}

// Write appends the fields of ds to w. Errors surface through w.Err.
func Write(w *fxcodec.Writer, ds *DataSet, asFloat32 bool) {
	w.PutString(fieldName, ds.Name)
	w.PutInt(fieldDims, int32(ds.Dims()))
	w.PutStringArray(fieldAxisNames, ds.AxisNames)
	w.PutStringArray(fieldAxisUnits, ds.AxisUnits)
	for dim, col := range ds.Values {
		lo, hi := ds.Range(dim)
		suffix := strconv.Itoa(dim)
		w.PutDouble(fieldAxisMin+suffix, lo)
		w.PutDouble(fieldAxisMax+suffix, hi)
		w.PutNumberArray(fieldValues+suffix, col, asFloat32)
	}
	if len(ds.Labels) > 0 {
		w.PutIntKeyMap(fieldLabels, int32Keys(ds.Labels))
	}
	if len(ds.Styles) > 0 {
		w.PutIntKeyMap(fieldStyles, int32Keys(ds.Styles))
	}
	w.PutStringArray(fieldInfo, ds.Info)
	w.PutStringArray(fieldWarnings, ds.Warnings)
	w.PutStringArray(fieldErrors, ds.Errors)
	if len(ds.MetaInfo) > 0 {
		w.PutStringMap(fieldMetaInfo, ds.MetaInfo)
	}
}

func int32Keys(m map[int]string) map[int32]string {
	out := make(map[int32]string, len(m))
	for k, v := range m {
		out[int32(k)] = v
	}
	return out
}

// Decode parses a buffer written by Encode. Value columns are checked out of
// registry; hand them back with Release once the data set is no longer used.
func Decode(b []byte, registry *pool.Registry) (*DataSet, error) {
	r := fxcodec.NewReader(b)
	if _, err := r.CheckHeaderInfo(); err != nil {
		return nil, err
	}
	ds := &DataSet{pooled: registry != nil}
	dims := -1
	for {
		f, ok, err := r.FieldHeader()
		if err != nil {
			ds.Release(registry)
			return nil, err
		}
		if !ok {
			break
		}
		if err := ds.readField(r, f, &dims, registry); err != nil {
			ds.Release(registry)
			return nil, err
		}
	}
	for dim, col := range ds.Values {
		if col == nil {
			ds.Release(registry)
			return nil, fmt.Errorf("%w: data set %q: missing %s%d", fault.ErrInputMismatch, ds.Name, fieldValues, dim)
		}
	}
	if err := ds.Validate(); err != nil {
		ds.Release(registry)
		return nil, fmt.Errorf("%w: %w", fault.ErrInputMismatch, err)
	}
	return ds, nil
}

func (ds *DataSet) readField(r *fxcodec.Reader, f fxcodec.FieldHeader, dims *int, registry *pool.Registry) error {
	var err error
	switch f.Name {
	case fieldName:
		ds.Name, err = r.String()
	case fieldDims:
		var n int32
		if n, err = r.Int(); err == nil {
			// each dimension needs its own values field further on
			if n < 0 || *dims >= 0 || int(n) > r.Remaining() {
				return fmt.Errorf("%w: bad or repeated dimension count %d", fault.ErrInputMismatch, n)
			}
			*dims = int(n)
			ds.Values = make([][]float64, n)
			ds.AxisMin = make([]float64, n)
			ds.AxisMax = make([]float64, n)
		}
	case fieldAxisNames:
		ds.AxisNames, err = r.StringArray(nil)
	case fieldAxisUnits:
		ds.AxisUnits, err = r.StringArray(nil)
	case fieldLabels:
		ds.Labels, err = readIndexMap(r)
	case fieldStyles:
		ds.Styles, err = readIndexMap(r)
	case fieldInfo:
		ds.Info, err = r.StringArray(nil)
	case fieldWarnings:
		ds.Warnings, err = r.StringArray(nil)
	case fieldErrors:
		ds.Errors, err = r.StringArray(nil)
	case fieldMetaInfo:
		ds.MetaInfo, err = r.StringMap()
	default:
		if dim, ok := dimField(f.Name, fieldValues, *dims); ok {
			return ds.readValues(r, dim, registry)
		}
		if dim, ok := dimField(f.Name, fieldAxisMin, *dims); ok {
			ds.AxisMin[dim], err = r.Double()
			return err
		}
		if dim, ok := dimField(f.Name, fieldAxisMax, *dims); ok {
			ds.AxisMax[dim], err = r.Double()
			return err
		}
		if ce := fxcodec.Logger().Check(zap.DebugLevel, "dataset: skipping unknown field"); ce != nil {
			ce.Write(zap.Stringer("field", f))
		}
		return r.Swallow()
	}
	return err
}

func (ds *DataSet) readValues(r *fxcodec.Reader, dim int, registry *pool.Registry) error {
	if ds.Values[dim] != nil {
		return fmt.Errorf("%w: repeated %s%d", fault.ErrInputMismatch, fieldValues, dim)
	}
	n, err := r.ArrayLen()
	if err != nil {
		return err
	}
	var dst []float64
	if n > 0 {
		if dst, err = pool.Get[float64](registry, pool.DataSetValues, n); err != nil {
			return err
		}
	}
	col, err := r.DoubleArray(dst[:0])
	if err != nil {
		pool.Release(registry, pool.DataSetValues, dst)
		return err
	}
	if col == nil {
		col = []float64{}
	}
	ds.Values[dim] = col
	return nil
}

// dimField matches names like values3 against prefix and a dimension below
// dims.
func dimField(name, prefix string, dims int) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	dim, err := strconv.Atoi(rest)
	if err != nil || dim < 0 || dim >= dims {
		return 0, false
	}
	return dim, true
}

func readIndexMap(r *fxcodec.Reader) (map[int]string, error) {
	m, err := r.IntKeyMap()
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[int(k)] = v
	}
	return out, nil
}

// Release hands the value columns of a decoded data set back to registry and
// clears them. It is a no-op for data sets that were not decoded with a
// registry.
func (ds *DataSet) Release(registry *pool.Registry) {
	if ds == nil || !ds.pooled {
		return
	}
	for i, col := range ds.Values {
		if cap(col) > 0 {
			pool.Release(registry, pool.DataSetValues, col)
		}
		ds.Values[i] = nil
	}
	ds.pooled = false
}
