package fxcodec

import "strconv"

// DataType is the type tag written after every field name.
type DataType uint8

const (
	TypeBool DataType = iota
	TypeByte
	TypeShort
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeString
	TypeBoolArray
	TypeByteArray
	TypeShortArray
	TypeIntArray
	TypeLongArray
	TypeFloatArray
	TypeDoubleArray
	TypeStringArray
	TypeMap

	TypeEndMarker DataType = 0xFE
)

// EndMarkerByte is the payload of the END_MARKER field.
const EndMarkerByte byte = 0xFE

var typeNames = [...]string{
	TypeBool:        "BOOL",
	TypeByte:        "BYTE",
	TypeShort:       "SHORT",
	TypeInt:         "INT",
	TypeLong:        "LONG",
	TypeFloat:       "FLOAT",
	TypeDouble:      "DOUBLE",
	TypeString:      "STRING",
	TypeBoolArray:   "BOOL_ARRAY",
	TypeByteArray:   "BYTE_ARRAY",
	TypeShortArray:  "SHORT_ARRAY",
	TypeIntArray:    "INT_ARRAY",
	TypeLongArray:   "LONG_ARRAY",
	TypeFloatArray:  "FLOAT_ARRAY",
	TypeDoubleArray: "DOUBLE_ARRAY",
	TypeStringArray: "STRING_ARRAY",
	TypeMap:         "MAP",
}

func (t DataType) String() string {
	if t == TypeEndMarker {
		return "END_MARKER"
	}
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "DataType(0x" + strconv.FormatUint(uint64(t), 16) + ")"
}

// Valid reports whether t is a known tag.
func (t DataType) Valid() bool {
	return t <= TypeMap || t == TypeEndMarker
}

// IsArray reports whether t is one of the *_ARRAY tags.
func (t DataType) IsArray() bool {
	return t >= TypeBoolArray && t <= TypeStringArray
}

// Elem returns the scalar type of an array tag, or t itself.
func (t DataType) Elem() DataType {
	if t.IsArray() {
		return t - TypeBoolArray
	}
	return t
}

// Size returns the fixed payload width of a scalar type, or of one element of
// an array type. Strings and maps have no fixed width and report 0.
func (t DataType) Size() int {
	switch t.Elem() {
	case TypeBool, TypeByte:
		return 1
	case TypeShort:
		return 2
	case TypeInt, TypeFloat:
		return 4
	case TypeLong, TypeDouble:
		return 8
	default:
		return 0
	}
}
