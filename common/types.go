package common

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Type tags the kind of a Value. The set is closed: operators may only produce and consume these kinds.
type Type int8

const (
	// NullType is both the type of the NULL value and the zero Type.
	NullType Type = iota
	IntType
	FloatType
	StringType
	DatetimeType
	ListType
	DictType
	VectorType

	numTypes
)

func (t Type) String() string {
	switch t {
	case NullType:
		return "null"
	case IntType:
		return "int"
	case FloatType:
		return "float"
	case StringType:
		return "string"
	case DatetimeType:
		return "datetime"
	case ListType:
		return "list"
	case DictType:
		return "dict"
	case VectorType:
		return "vector"
	}
	return "unknown"
}

// IsValid reports whether t is one of the defined kinds.
func (t Type) IsValid() bool {
	return t >= NullType && t < numTypes
}

// ObjectID is a unique identifier for a table in the catalog.
type ObjectID uint32

const InvalidObjectID ObjectID = 0

// DictEntry is a single key/value pair of a dict Value. Dicts keep insertion order.
type DictEntry struct {
	Key   Value
	Value Value
}

// Value represents a single cell. The zero Value is NULL.
//
// Composite kinds (list, dict, vector) hold slices. Values built through the constructors below own their slices;
// callers must not mutate a slice after handing it to a constructor.
type Value struct {
	t    Type
	i    int64 // int, datetime (unix nanoseconds, UTC)
	f    float64
	s    string
	list []Value
	dict []DictEntry
	vec  []float64
}

// Null returns the NULL value.
func Null() Value {
	return Value{}
}

// NewIntValue creates a new integer Value.
func NewIntValue(v int64) Value {
	return Value{t: IntType, i: v}
}

// NewFloatValue creates a new float Value.
func NewFloatValue(v float64) Value {
	return Value{t: FloatType, f: v}
}

// NewStringValue creates a new string Value.
func NewStringValue(v string) Value {
	return Value{t: StringType, s: v}
}

// NewDatetimeValue creates a new datetime Value. The time is normalized to UTC with nanosecond precision.
func NewDatetimeValue(v time.Time) Value {
	return Value{t: DatetimeType, i: v.UTC().UnixNano()}
}

// NewListValue creates a new list Value.
func NewListValue(v ...Value) Value {
	return Value{t: ListType, list: v}
}

// NewDictValue creates a new dict Value.
func NewDictValue(entries ...DictEntry) Value {
	return Value{t: DictType, dict: entries}
}

// NewVectorValue creates a new numeric vector Value.
func NewVectorValue(v ...float64) Value {
	return Value{t: VectorType, vec: v}
}

// Type returns the type of the Value.
func (v Value) Type() Type {
	return v.t
}

// IsNull returns true if the Value is NULL.
func (v Value) IsNull() bool {
	return v.t == NullType
}

// IntValue returns the underlying integer.
func (v Value) IntValue() int64 {
	Assert(v.t == IntType, "type mismatch in IntValue: %s", v.t)
	return v.i
}

// FloatValue returns the underlying float.
func (v Value) FloatValue() float64 {
	Assert(v.t == FloatType, "type mismatch in FloatValue: %s", v.t)
	return v.f
}

// StringValue returns the underlying string.
func (v Value) StringValue() string {
	Assert(v.t == StringType, "type mismatch in StringValue: %s", v.t)
	return v.s
}

// DatetimeValue returns the underlying time in UTC.
func (v Value) DatetimeValue() time.Time {
	Assert(v.t == DatetimeType, "type mismatch in DatetimeValue: %s", v.t)
	return time.Unix(0, v.i).UTC()
}

// ListValue returns the underlying list. The slice must not be modified.
func (v Value) ListValue() []Value {
	Assert(v.t == ListType, "type mismatch in ListValue: %s", v.t)
	return v.list
}

// DictValue returns the underlying dict entries. The slice must not be modified.
func (v Value) DictValue() []DictEntry {
	Assert(v.t == DictType, "type mismatch in DictValue: %s", v.t)
	return v.dict
}

// VectorValue returns the underlying vector. The slice must not be modified.
func (v Value) VectorValue() []float64 {
	Assert(v.t == VectorType, "type mismatch in VectorValue: %s", v.t)
	return v.vec
}

// Equal reports whether two values have the same type and contents. NULL equals NULL.
func (v Value) Equal(other Value) bool {
	if v.t != other.t {
		return false
	}
	switch v.t {
	case NullType:
		return true
	case IntType, DatetimeType:
		return v.i == other.i
	case FloatType:
		return v.f == other.f || (math.IsNaN(v.f) && math.IsNaN(other.f))
	case StringType:
		return v.s == other.s
	case ListType:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case DictType:
		if len(v.dict) != len(other.dict) {
			return false
		}
		for i := range v.dict {
			if !v.dict[i].Key.Equal(other.dict[i].Key) || !v.dict[i].Value.Equal(other.dict[i].Value) {
				return false
			}
		}
		return true
	case VectorType:
		if len(v.vec) != len(other.vec) {
			return false
		}
		for i := range v.vec {
			if v.vec[i] != other.vec[i] {
				return false
			}
		}
		return true
	}
	panic("unreachable")
}

// Compare orders two values.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
// NULL sorts before everything else, ints and floats compare numerically, and otherwise values of different
// types are ordered by their Type tag.
func (v Value) Compare(other Value) int {
	if v.t != other.t {
		if v.isNumeric() && other.isNumeric() {
			return compareFloat(v.asFloat(), other.asFloat())
		}
		return compareInt(int64(v.t), int64(other.t))
	}

	switch v.t {
	case NullType:
		return 0
	case IntType, DatetimeType:
		return compareInt(v.i, other.i)
	case FloatType:
		return compareFloat(v.f, other.f)
	case StringType:
		return strings.Compare(v.s, other.s)
	case ListType:
		for i := 0; i < len(v.list) && i < len(other.list); i++ {
			if c := v.list[i].Compare(other.list[i]); c != 0 {
				return c
			}
		}
		return compareInt(int64(len(v.list)), int64(len(other.list)))
	case DictType:
		for i := 0; i < len(v.dict) && i < len(other.dict); i++ {
			if c := v.dict[i].Key.Compare(other.dict[i].Key); c != 0 {
				return c
			}
			if c := v.dict[i].Value.Compare(other.dict[i].Value); c != 0 {
				return c
			}
		}
		return compareInt(int64(len(v.dict)), int64(len(other.dict)))
	case VectorType:
		for i := 0; i < len(v.vec) && i < len(other.vec); i++ {
			if c := compareFloat(v.vec[i], other.vec[i]); c != 0 {
				return c
			}
		}
		return compareInt(int64(len(v.vec)), int64(len(other.vec)))
	}
	panic("unreachable")
}

func (v Value) isNumeric() bool {
	return v.t == IntType || v.t == FloatType
}

func (v Value) asFloat() float64 {
	if v.t == IntType {
		return float64(v.i)
	}
	return v.f
}

func compareInt(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// compareFloat orders NaN before all other floats so that sorting is total.
func compareFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Hash returns a 64-bit hash of the value consistent with Equal.
func (v Value) Hash() uint64 {
	return Hash(v.AppendBinary(nil))
}

func (v Value) String() string {
	switch v.t {
	case NullType:
		return "NULL"
	case IntType:
		return fmt.Sprintf("%d", v.i)
	case FloatType:
		return fmt.Sprintf("%g", v.f)
	case StringType:
		return fmt.Sprintf("%q", v.s)
	case DatetimeType:
		return v.DatetimeValue().Format(time.RFC3339Nano)
	case ListType:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case DictType:
		parts := make([]string, len(v.dict))
		for i, e := range v.dict {
			parts[i] = e.Key.String() + ": " + e.Value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case VectorType:
		return fmt.Sprintf("%v", v.vec)
	}
	return "unknown"
}

// AppendBinary serializes the value onto buf and returns the extended slice.
//
// Layout: one type byte followed by the payload. Ints, floats and datetimes are 8 bytes little endian; strings are
// a uvarint length and the bytes; lists, dicts and vectors are a uvarint element count followed by the elements.
func (v Value) AppendBinary(buf []byte) []byte {
	buf = append(buf, byte(v.t))
	switch v.t {
	case NullType:
	case IntType, DatetimeType:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.i))
	case FloatType:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.f))
	case StringType:
		buf = binary.AppendUvarint(buf, uint64(len(v.s)))
		buf = append(buf, v.s...)
	case ListType:
		buf = binary.AppendUvarint(buf, uint64(len(v.list)))
		for _, e := range v.list {
			buf = e.AppendBinary(buf)
		}
	case DictType:
		buf = binary.AppendUvarint(buf, uint64(len(v.dict)))
		for _, e := range v.dict {
			buf = e.Key.AppendBinary(buf)
			buf = e.Value.AppendBinary(buf)
		}
	case VectorType:
		buf = binary.AppendUvarint(buf, uint64(len(v.vec)))
		for _, f := range v.vec {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
		}
	default:
		Assert(false, "cannot serialize value of type %d", v.t)
	}
	return buf
}

// ReadValue deserializes a value written by AppendBinary. It returns the value and the number of bytes consumed.
// Unlike the in-memory accessors, corrupt input is reported as an error since it comes from outside the process.
func ReadValue(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, errShortValue
	}
	t := Type(data[0])
	pos := 1
	switch t {
	case NullType:
		return Value{}, pos, nil
	case IntType, DatetimeType, FloatType:
		if len(data) < pos+8 {
			return Value{}, 0, errShortValue
		}
		raw := binary.LittleEndian.Uint64(data[pos:])
		pos += 8
		if t == FloatType {
			return NewFloatValue(math.Float64frombits(raw)), pos, nil
		}
		return Value{t: t, i: int64(raw)}, pos, nil
	case StringType:
		n, k := binary.Uvarint(data[pos:])
		if k <= 0 || uint64(len(data)-pos-k) < n {
			return Value{}, 0, errShortValue
		}
		pos += k
		s := string(data[pos : pos+int(n)])
		return NewStringValue(s), pos + int(n), nil
	case ListType, DictType, VectorType:
		n, k := binary.Uvarint(data[pos:])
		if k <= 0 || n > uint64(len(data)) {
			return Value{}, 0, errShortValue
		}
		pos += k
		switch t {
		case ListType:
			list := make([]Value, n)
			for i := range list {
				e, used, err := ReadValue(data[pos:])
				if err != nil {
					return Value{}, 0, err
				}
				list[i] = e
				pos += used
			}
			return NewListValue(list...), pos, nil
		case DictType:
			dict := make([]DictEntry, n)
			for i := range dict {
				key, used, err := ReadValue(data[pos:])
				if err != nil {
					return Value{}, 0, err
				}
				pos += used
				val, used, err := ReadValue(data[pos:])
				if err != nil {
					return Value{}, 0, err
				}
				pos += used
				dict[i] = DictEntry{Key: key, Value: val}
			}
			return NewDictValue(dict...), pos, nil
		default:
			if uint64(len(data)-pos) < n*8 {
				return Value{}, 0, errShortValue
			}
			vec := make([]float64, n)
			for i := range vec {
				vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[pos:]))
				pos += 8
			}
			return NewVectorValue(vec...), pos, nil
		}
	}
	return Value{}, 0, FlowDBError{Code: ResourceFaultError, ErrString: fmt.Sprintf("unknown value type tag %d", t)}
}

var errShortValue = FlowDBError{Code: ResourceFaultError, ErrString: "truncated value encoding"}
