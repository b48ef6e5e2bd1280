package fxcodec

import (
	"github.com/delaneyj/toolbelt"

	"github.com/starfederation/fxcodec/numfmt"
)

// jsonScratch holds the element buffers used while converting arrays between
// JSON and tagged fields.
type jsonScratch struct {
	bools   []bool
	raw     []byte
	longs   []int64
	numbers []float64
	strings []string
}

var (
	jsonScratchPool   = toolbelt.New(func() *jsonScratch { return &jsonScratch{} })
	jsonFormatterPool = toolbelt.New(newJSONFormatter)
	readerPool        = toolbelt.New(func() *Reader { return &Reader{} })
)

// newJSONFormatter returns a formatter whose output is a valid JSON number
// for every finite value.
func newJSONFormatter() *numfmt.Formatter {
	f := numfmt.New()
	if err := f.SetSymbols(".", "e"); err != nil {
		panic(err)
	}
	return f
}

func getJSONScratch() *jsonScratch {
	return jsonScratchPool.Get()
}

func putJSONScratch(sc *jsonScratch) {
	if sc == nil {
		return
	}
	clear(sc.strings)
	sc.bools = sc.bools[:0]
	sc.raw = sc.raw[:0]
	sc.longs = sc.longs[:0]
	sc.numbers = sc.numbers[:0]
	sc.strings = sc.strings[:0]
	jsonScratchPool.Put(sc)
}
