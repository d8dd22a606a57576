package pdfdoc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tsawler/lectern/internal/filters"
)

// Object is one PDF object. The eight basic types plus streams and
// indirect references all satisfy it.
type Object interface {
	Type() ObjectType
	String() string
}

// ObjectType identifies the concrete type behind an Object.
type ObjectType int

const (
	ObjNull ObjectType = iota
	ObjBool
	ObjInt
	ObjReal
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjStream
	ObjRef
)

// Null represents the PDF null object.
type Null struct{}

func (Null) Type() ObjectType { return ObjNull }
func (Null) String() string   { return "null" }

// Bool represents a PDF boolean.
type Bool bool

func (b Bool) Type() ObjectType { return ObjBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int represents a PDF integer.
type Int int64

func (i Int) Type() ObjectType { return ObjInt }
func (i Int) String() string   { return strconv.FormatInt(int64(i), 10) }

// Real represents a PDF real number.
type Real float64

func (r Real) Type() ObjectType { return ObjReal }
func (r Real) String() string   { return strconv.FormatFloat(float64(r), 'f', -1, 64) }

// String represents a PDF string. The bytes are kept exactly as stored
// in the file; text decoding happens at the point of use.
type String string

func (s String) Type() ObjectType { return ObjString }
func (s String) String() string   { return string(s) }

// Name represents a PDF name such as /Type or /Pages.
type Name string

func (n Name) Type() ObjectType { return ObjName }
func (n Name) String() string   { return "/" + string(n) }

// Ref is a reference to an indirect object.
type Ref struct {
	Num int
	Gen int
}

func (r Ref) Type() ObjectType { return ObjRef }
func (r Ref) String() string   { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Array represents a PDF array.
type Array []Object

func (a Array) Type() ObjectType { return ObjArray }
func (a Array) String() string {
	parts := make([]string, len(a))
	for i, obj := range a {
		parts[i] = obj.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Get returns the element at index, or nil when out of range.
func (a Array) Get(index int) Object {
	if index < 0 || index >= len(a) {
		return nil
	}
	return a[index]
}

// Number returns the element at index as a float64. PDF allows integers
// wherever reals appear, so both are accepted.
func (a Array) Number(index int) (float64, bool) {
	return toNumber(a.Get(index))
}

// Dict represents a PDF dictionary.
type Dict map[string]Object

func (d Dict) Type() ObjectType { return ObjDict }
func (d Dict) String() string {
	parts := make([]string, 0, len(d))
	for key, val := range d {
		parts = append(parts, fmt.Sprintf("/%s %s", key, val.String()))
	}
	return "<<" + strings.Join(parts, " ") + ">>"
}

// Get returns the raw value for key, or nil when absent.
func (d Dict) Get(key string) Object {
	return d[key]
}

// Has reports whether key is present.
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// GetName returns the value for key as a name.
func (d Dict) GetName(key string) (Name, bool) {
	n, ok := d[key].(Name)
	return n, ok
}

// GetInt returns the value for key as an integer.
func (d Dict) GetInt(key string) (Int, bool) {
	i, ok := d[key].(Int)
	return i, ok
}

// GetNumber returns the value for key as a float64, accepting both
// integer and real objects.
func (d Dict) GetNumber(key string) (float64, bool) {
	return toNumber(d[key])
}

// GetBool returns the value for key as a boolean.
func (d Dict) GetBool(key string) (Bool, bool) {
	b, ok := d[key].(Bool)
	return b, ok
}

// GetString returns the value for key as a string object.
func (d Dict) GetString(key string) (String, bool) {
	s, ok := d[key].(String)
	return s, ok
}

// GetArray returns the value for key as an array.
func (d Dict) GetArray(key string) (Array, bool) {
	a, ok := d[key].(Array)
	return a, ok
}

// GetDict returns the value for key as a dictionary.
func (d Dict) GetDict(key string) (Dict, bool) {
	dd, ok := d[key].(Dict)
	return dd, ok
}

// GetStream returns the value for key as a stream.
func (d Dict) GetStream(key string) (*Stream, bool) {
	s, ok := d[key].(*Stream)
	return s, ok
}

// GetRef returns the value for key as an indirect reference.
func (d Dict) GetRef(key string) (Ref, bool) {
	r, ok := d[key].(Ref)
	return r, ok
}

// toNumber widens Int and Real objects to float64.
func toNumber(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// Stream represents a PDF stream: a dictionary plus binary data. Raw
// holds the bytes as stored in the file, after decryption but before
// any decompression filter has run.
type Stream struct {
	Dict Dict
	Raw  []byte

	decoded []byte
}

func (s *Stream) Type() ObjectType { return ObjStream }
func (s *Stream) String() string {
	return fmt.Sprintf("stream %s (%d bytes)", s.Dict.String(), len(s.Raw))
}

// Decoded returns the stream data with its /Filter chain applied. The
// result is cached; callers must not modify it. DCT and JPX encoded
// image data passes through untouched for the image layer to decode.
func (s *Stream) Decoded() ([]byte, error) {
	if s.decoded != nil {
		return s.decoded, nil
	}

	filterObj := s.Dict.Get("Filter")
	if filterObj == nil {
		s.decoded = s.Raw
		return s.decoded, nil
	}

	parms := s.Dict.Get("DecodeParms")
	if parms == nil {
		parms = s.Dict.Get("DP")
	}

	var chain []Name
	switch v := filterObj.(type) {
	case Name:
		chain = []Name{v}
	case Array:
		for i, f := range v {
			name, ok := f.(Name)
			if !ok {
				return nil, fmt.Errorf("filter %d is not a name: %T", i, f)
			}
			chain = append(chain, name)
		}
	default:
		return nil, fmt.Errorf("invalid /Filter type: %T", filterObj)
	}

	data := s.Raw
	for i, name := range chain {
		var err error
		data, err = applyFilter(data, string(name), filterParams(parms, i, len(chain)))
		if err != nil {
			return nil, fmt.Errorf("filter %d (%s): %w", i, name, err)
		}
	}

	s.decoded = data
	return data, nil
}

// filterParams picks the decode parameters for position i of a filter
// chain. A single dictionary applies to a single filter; an array holds
// one entry per chained filter.
func filterParams(parms Object, i, chainLen int) filters.Params {
	switch v := parms.(type) {
	case Dict:
		if chainLen == 1 {
			return dictToParams(v)
		}
	case Array:
		if i < len(v) {
			if d, ok := v[i].(Dict); ok {
				return dictToParams(d)
			}
		}
	}
	return nil
}

// applyFilter runs one named decompression filter.
func applyFilter(data []byte, name string, params filters.Params) ([]byte, error) {
	switch name {
	case "FlateDecode", "Fl":
		return filters.FlateDecode(data, params)
	case "LZWDecode", "LZW":
		return filters.LZWDecode(data, params)
	case "ASCIIHexDecode", "AHx":
		return filters.ASCIIHexDecode(data)
	case "ASCII85Decode", "A85":
		return filters.ASCII85Decode(data)
	case "RunLengthDecode", "RL":
		return filters.RunLengthDecode(data)
	case "CCITTFaxDecode", "CCF":
		return filters.CCITTFaxDecode(data, params)
	case "DCTDecode", "DCT", "JPXDecode":
		// Encoded image data; decoded by the image layer.
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported filter %s", name)
	}
}

// ImageFilter returns the final image-bearing filter name of the chain,
// or "" when the stream data is fully decoded by Decoded.
func (s *Stream) ImageFilter() string {
	switch v := s.Dict.Get("Filter").(type) {
	case Name:
		if n := string(v); n == "DCTDecode" || n == "DCT" || n == "JPXDecode" {
			return n
		}
	case Array:
		if len(v) > 0 {
			if n, ok := v[len(v)-1].(Name); ok {
				if s := string(n); s == "DCTDecode" || s == "DCT" || s == "JPXDecode" {
					return s
				}
			}
		}
	}
	return ""
}

// dictToParams flattens a decode-parameters dictionary into the plain
// map the filters package consumes.
func dictToParams(dict Dict) filters.Params {
	if dict == nil {
		return nil
	}
	params := make(filters.Params, len(dict))
	for k, v := range dict {
		switch obj := v.(type) {
		case Int:
			params[k] = int(obj)
		case Real:
			params[k] = float64(obj)
		case Bool:
			params[k] = bool(obj)
		case Name:
			params[k] = string(obj)
		case String:
			params[k] = string(obj)
		}
	}
	return params
}
