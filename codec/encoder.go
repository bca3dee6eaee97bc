package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"reflect"
)

// Marshaler is the interface for custom opal marshalling for a given type.
type Marshaler interface {
	MarshalOpal() ([]byte, error)
}

// Encoder encodes to a given io.Writer.
type Encoder struct {
	encodeState
}

// NewEncoder creates a new encoder with the given writer.
func NewEncoder(writer io.Writer) *Encoder {
	return &Encoder{encodeState{Writer: writer}}
}

// Encode writes the opal encoding of value to the encoder writer.
func (e *Encoder) Encode(value interface{}) error {
	return e.marshal(value)
}

// Marshal takes in an interface{} and attempts to marshal it into []byte.
func Marshal(v interface{}) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	es := encodeState{Writer: buffer}
	if err := es.marshal(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// MustMarshal runs Marshal and panics on error.
func MustMarshal(v interface{}) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

type encodeState struct {
	io.Writer
}

func (es *encodeState) marshal(in interface{}) error {
	if marshaler, ok := in.(Marshaler); ok {
		b, err := marshaler.MarshalOpal()
		if err != nil {
			return err
		}
		_, err = es.Write(b)
		return err
	}
	return es.encode(reflect.ValueOf(in))
}

func (es *encodeState) encode(v reflect.Value) error {
	if v.Kind() != reflect.Ptr && v.CanInterface() {
		if marshaler, ok := v.Interface().(Marshaler); ok {
			b, err := marshaler.MarshalOpal()
			if err != nil {
				return err
			}
			_, err = es.Write(b)
			return err
		}
	}

	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return fmt.Errorf("cannot encode nil pointer of type %s", v.Type())
		}
		return es.encode(v.Elem())
	case reflect.Bool:
		b := byte(0)
		if v.Bool() {
			b = 1
		}
		_, err := es.Write([]byte{b})
		return err
	case reflect.Uint8:
		_, err := es.Write([]byte{byte(v.Uint())})
		return err
	case reflect.Uint16:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(v.Uint()))
		_, err := es.Write(buf[:])
		return err
	case reflect.Uint32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v.Uint()))
		_, err := es.Write(buf[:])
		return err
	case reflect.Uint64, reflect.Uint:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v.Uint())
		_, err := es.Write(buf[:])
		return err
	case reflect.String:
		return es.encodeBytes([]byte(v.String()))
	case reflect.Array:
		return es.encodeArray(v)
	case reflect.Slice:
		return es.encodeSlice(v)
	case reflect.Struct:
		return es.encodeStruct(v)
	default:
		return fmt.Errorf("unsupported type for encoding: %s", v.Type())
	}
}

// encodeBytes writes a little-endian uint32 length prefix followed by the raw bytes.
func (es *encodeState) encodeBytes(b []byte) error {
	if len(b) > math.MaxUint32 {
		return fmt.Errorf("byte sequence too long: %d", len(b))
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(len(b)))
	if _, err := es.Write(buf[:]); err != nil {
		return err
	}
	_, err := es.Write(b)
	return err
}

// encodeArray writes fixed-size arrays element by element, with byte arrays
// written raw.
func (es *encodeState) encodeArray(v reflect.Value) error {
	if v.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, v.Len())
		reflect.Copy(reflect.ValueOf(b), v)
		_, err := es.Write(b)
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := es.encode(v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// encodeSlice writes a length prefix followed by every element in order.
func (es *encodeState) encodeSlice(v reflect.Value) error {
	if v.Type().Elem().Kind() == reflect.Uint8 {
		return es.encodeBytes(v.Bytes())
	}
	if v.Len() > math.MaxUint32 {
		return fmt.Errorf("slice too long: %d", v.Len())
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v.Len()))
	if _, err := es.Write(buf[:]); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := es.encode(v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// encodeStruct writes every exported field in declaration order.
func (es *encodeState) encodeStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		if err := es.encode(v.Field(i)); err != nil {
			return fmt.Errorf("field %s.%s: %w", t.Name(), t.Field(i).Name, err)
		}
	}
	return nil
}
