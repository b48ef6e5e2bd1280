package numfmt

import "github.com/delaneyj/toolbelt"

var formatterPool = toolbelt.New(New)

// FormatFloat64 formats v with a pooled Formatter using the default symbols.
// It is safe for concurrent use.
func FormatFloat64(v float64, precision int, exponential bool) (string, error) {
	f := formatterPool.Get()
	defer formatterPool.Put(f)
	if err := f.SetPrecision(precision); err != nil {
		return "", err
	}
	f.SetExponential(exponential)
	return f.Format(v), nil
}

// AppendFloat64 is the appending form of FormatFloat64.
func AppendFloat64(dst []byte, v float64, precision int, exponential bool) ([]byte, error) {
	f := formatterPool.Get()
	defer formatterPool.Put(f)
	if err := f.SetPrecision(precision); err != nil {
		return dst, err
	}
	f.SetExponential(exponential)
	return f.Append(dst, v), nil
}
