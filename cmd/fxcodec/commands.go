package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/starfederation/fxcodec"
	"github.com/starfederation/fxcodec/dataset"
	"github.com/starfederation/fxcodec/numfmt"
	"github.com/starfederation/fxcodec/pool"
	"github.com/starfederation/fxcodec/schubfach"
)

type formatCmd struct {
	Values      []float64 `arg:"" help:"Numbers to format."`
	Precision   int       `help:"Digits after the separator, -1 for all significant digits." default:"-1"`
	Exponential bool      `help:"Always use exponential notation." short:"e"`
	Threshold   int       `help:"Largest decimal exponent rendered in plain notation." default:"7"`
	Separator   string    `help:"Decimal separator." default:"."`
	Marker      string    `help:"Exponent marker." default:"E"`
	Float32     bool      `name:"float32" help:"Round to float32 before formatting."`
	Decompose   bool      `help:"Also print the shortest significand and exponent."`

	out io.Writer
}

func (c *formatCmd) Run(logger *zap.Logger) error {
	f := numfmt.New()
	if err := f.SetPrecision(c.Precision); err != nil {
		return err
	}
	if err := f.SetPlainThreshold(c.Threshold); err != nil {
		return err
	}
	if err := f.SetSymbols(c.Separator, c.Marker); err != nil {
		return err
	}
	f.SetExponential(c.Exponential)

	w := bufio.NewWriter(output(c.out))
	var line []byte
	for _, v := range c.Values {
		var d schubfach.Decimal
		if c.Float32 {
			d = schubfach.DecomposeFloat32(float32(v))
			line = f.AppendFloat32(line[:0], float32(v))
		} else {
			d = schubfach.DecomposeFloat64(v)
			line = f.Append(line[:0], v)
		}
		if c.Decompose {
			line = fmt.Appendf(line, "\t%s\t%d digits", d, d.Digits())
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
		logger.Debug("formatted", zap.Float64("value", v), zap.Stringer("decimal", d))
	}
	return w.Flush()
}

type encodeCmd struct {
	In        string `arg:"" type:"existingfile" help:"JSON file holding a flat object."`
	Out       string `short:"o" required:"" type:"path" help:"Destination of the tagged buffer."`
	Producer  string `help:"Producer written to the buffer header." default:"fxcodec"`
	Overwrite bool   `help:"Replace an existing destination file."`
}

func (c *encodeCmd) Run(logger *zap.Logger, registry *pool.Registry) error {
	data, err := os.ReadFile(c.In)
	if err != nil {
		return err
	}
	w := fxcodec.NewWriter(registry, len(data))
	defer w.Release()
	w.PutHeaderInfo(c.Producer)
	if err := fxcodec.FromJSON(data, w); err != nil {
		return fmt.Errorf("%s: %w", c.In, err)
	}
	if err := w.PutEndMarker(); err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !c.Overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(c.Out, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(w.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("encoded", zap.String("in", c.In), zap.String("out", c.Out), zap.Int("jsonBytes", len(data)), zap.Int("bufferBytes", w.Len()))
	return nil
}

type dumpCmd struct {
	File    string `arg:"" type:"existingfile" help:"Tagged buffer to read."`
	JSON    bool   `help:"Print the buffer as a JSON object."`
	DataSet bool   `name:"dataset" help:"Decode the buffer as a data set and print it as CSV."`

	out io.Writer
}

func (c *dumpCmd) Run(logger *zap.Logger, registry *pool.Registry) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	out := output(c.out)
	switch {
	case c.JSON:
		js, err := fxcodec.ToJSON(data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", js)
		return err
	case c.DataSet:
		ds, err := dataset.Decode(data, registry)
		if err != nil {
			return err
		}
		defer ds.Release(registry)
		logger.Debug("decoded data set", zap.String("name", ds.Name), zap.Int("dims", ds.Dims()), zap.Int("points", ds.Len()))
		return dataset.WriteCSV(out, ds, nil)
	default:
		return dumpFields(out, data)
	}
}

// dumpFields lists every field with its type and, for scalars, its value.
func dumpFields(out io.Writer, data []byte) error {
	r := fxcodec.NewReader(data)
	info, err := r.CheckHeaderInfo()
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "header\t%s\n", info)
	nf := numfmt.New()
	for {
		f, ok, err := r.FieldHeader()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Fprintf(w, "%s\t%s", f.Name, f.Type)
		switch f.Type {
		case fxcodec.TypeDouble:
			v, err := r.Double()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\t%s", nf.Format(v))
		case fxcodec.TypeFloat:
			v, err := r.Float()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\t%s", nf.FormatFloat32(v))
		case fxcodec.TypeLong:
			v, err := r.Long()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\t%d", v)
		case fxcodec.TypeInt:
			v, err := r.Int()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\t%d", v)
		case fxcodec.TypeString:
			v, err := r.String()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\t%q", v)
		case fxcodec.TypeBool:
			v, err := r.Bool()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\t%t", v)
		default:
			if f.Type.IsArray() {
				n, err := r.ArrayLen()
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "\t[%d]", n)
			}
			if err := r.Swallow(); err != nil {
				return err
			}
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func output(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
