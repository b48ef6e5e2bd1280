package fxcodec

import "fmt"

// HeaderMagic opens every buffer.
var HeaderMagic = [4]byte{'F', 'X', 'D', 'S'}

// Version written by PutHeaderInfo. Readers reject another major version.
const (
	VersionMajor byte = 1
	VersionMinor byte = 0
	VersionMicro byte = 0
)

// HeaderInfo is the buffer preamble.
type HeaderInfo struct {
	Producer string
	Major    byte
	Minor    byte
	Micro    byte
}

func (h HeaderInfo) String() string {
	return fmt.Sprintf("%s %d.%d.%d", h.Producer, h.Major, h.Minor, h.Micro)
}

// FieldHeader precedes every payload in the stream.
type FieldHeader struct {
	Name string
	Type DataType
}

func (h FieldHeader) String() string {
	return h.Name + ":" + h.Type.String()
}
