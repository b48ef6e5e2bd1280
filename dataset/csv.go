package dataset

import (
	"io"
	"strings"

	"github.com/delaneyj/toolbelt/bytebufferpool"

	"github.com/starfederation/fxcodec/numfmt"
)

// WriteCSV writes ds as comma separated columns, one row per point, numbers
// rendered by f. The delimiter switches to ';' when f uses ',' as decimal
// separator. A label column is appended when the data set has labels. A nil
// f uses numfmt defaults.
func WriteCSV(w io.Writer, ds *DataSet, f *numfmt.Formatter) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if f == nil {
		f = numfmt.New()
	}
	delim := byte(',')
	if f.Separator() == "," {
		delim = ';'
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for dim := range ds.Values {
		if dim > 0 {
			buf.WriteByte(delim)
		}
		head := ds.AxisName(dim)
		if dim < len(ds.AxisUnits) && ds.AxisUnits[dim] != "" {
			head += " [" + ds.AxisUnits[dim] + "]"
		}
		writeCSVCell(buf, head, delim)
	}
	labelled := len(ds.Labels) > 0
	if labelled {
		buf.WriteByte(delim)
		buf.WriteString("label")
	}
	buf.WriteByte('\n')

	var num []byte
	for i := range ds.Len() {
		for dim, col := range ds.Values {
			if dim > 0 {
				buf.WriteByte(delim)
			}
			num = f.Append(num[:0], col[i])
			buf.Write(num)
		}
		if labelled {
			buf.WriteByte(delim)
			writeCSVCell(buf, ds.Labels[i], delim)
		}
		buf.WriteByte('\n')
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func writeCSVCell(buf *bytebufferpool.ByteBuffer, s string, delim byte) {
	if !strings.ContainsAny(s, "\"\r\n") && strings.IndexByte(s, delim) < 0 {
		buf.WriteString(s)
		return
	}
	buf.WriteByte('"')
	buf.WriteString(strings.ReplaceAll(s, `"`, `""`))
	buf.WriteByte('"')
}
