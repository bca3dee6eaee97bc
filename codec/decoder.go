package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"
)

var (
	// ErrUnsupportedDestination is returned when the decode target is not a
	// non-nil pointer.
	ErrUnsupportedDestination = errors.New("must be a non-nil pointer to a destination")

	// ErrTrailingBytes is returned when input remains after the value has been
	// fully decoded. Reordered or padded streams must never round-trip.
	ErrTrailingBytes = errors.New("trailing bytes after decoded value")
)

// Unmarshaler is the interface for custom opal decoding for a given type.
type Unmarshaler interface {
	UnmarshalOpal(io.Reader) error
}

// Decoder decodes from a given io.Reader.
type Decoder struct {
	decodeState
}

// NewDecoder creates a new decoder with the given reader.
func NewDecoder(reader io.Reader) *Decoder {
	return &Decoder{decodeState{Reader: reader}}
}

// Decode reads the opal encoding of dst's type from the decoder reader.
func (d *Decoder) Decode(dst interface{}) error {
	dstv := reflect.ValueOf(dst)
	if dstv.Kind() != reflect.Ptr || dstv.IsNil() {
		return fmt.Errorf("%w: %T", ErrUnsupportedDestination, dst)
	}
	return d.unmarshal(dstv.Elem())
}

// Unmarshal decodes data into dst and rejects truncated or oversized input.
func Unmarshal(data []byte, dst interface{}) error {
	dstv := reflect.ValueOf(dst)
	if dstv.Kind() != reflect.Ptr || dstv.IsNil() {
		return fmt.Errorf("%w: %T", ErrUnsupportedDestination, dst)
	}

	buf := bytes.NewBuffer(data)
	ds := decodeState{Reader: buf}
	if err := ds.unmarshal(dstv.Elem()); err != nil {
		return err
	}
	if buf.Len() != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingBytes, buf.Len())
	}
	return nil
}

type decodeState struct {
	io.Reader
}

func (ds *decodeState) unmarshal(v reflect.Value) error {
	if v.CanAddr() {
		if unmarshaler, ok := v.Addr().Interface().(Unmarshaler); ok {
			return unmarshaler.UnmarshalOpal(ds.Reader)
		}
	}

	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return ds.unmarshal(v.Elem())
	case reflect.Bool:
		b, err := ds.readByte()
		if err != nil {
			return err
		}
		if b > 1 {
			return fmt.Errorf("invalid bool byte 0x%02x", b)
		}
		v.SetBool(b == 1)
		return nil
	case reflect.Uint8:
		b, err := ds.readByte()
		if err != nil {
			return err
		}
		v.SetUint(uint64(b))
		return nil
	case reflect.Uint16:
		var buf [2]byte
		if _, err := io.ReadFull(ds.Reader, buf[:]); err != nil {
			return truncated(err)
		}
		v.SetUint(uint64(binary.LittleEndian.Uint16(buf[:])))
		return nil
	case reflect.Uint32:
		var buf [4]byte
		if _, err := io.ReadFull(ds.Reader, buf[:]); err != nil {
			return truncated(err)
		}
		v.SetUint(uint64(binary.LittleEndian.Uint32(buf[:])))
		return nil
	case reflect.Uint64, reflect.Uint:
		var buf [8]byte
		if _, err := io.ReadFull(ds.Reader, buf[:]); err != nil {
			return truncated(err)
		}
		v.SetUint(binary.LittleEndian.Uint64(buf[:]))
		return nil
	case reflect.String:
		b, err := ds.readBytes()
		if err != nil {
			return err
		}
		v.SetString(string(b))
		return nil
	case reflect.Array:
		return ds.unmarshalArray(v)
	case reflect.Slice:
		return ds.unmarshalSlice(v)
	case reflect.Struct:
		return ds.unmarshalStruct(v)
	default:
		return fmt.Errorf("unsupported type for decoding: %s", v.Type())
	}
}

func (ds *decodeState) readByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(ds.Reader, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return buf[0], nil
}

func (ds *decodeState) readLength() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(ds.Reader, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (ds *decodeState) readBytes() ([]byte, error) {
	n, err := ds.readLength()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(ds.Reader, b); err != nil {
		return nil, truncated(err)
	}
	return b, nil
}

func (ds *decodeState) unmarshalArray(v reflect.Value) error {
	if v.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, v.Len())
		if _, err := io.ReadFull(ds.Reader, b); err != nil {
			return truncated(err)
		}
		reflect.Copy(v, reflect.ValueOf(b))
		return nil
	}
	for i := 0; i < v.Len(); i++ {
		if err := ds.unmarshal(v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (ds *decodeState) unmarshalSlice(v reflect.Value) error {
	if v.Type().Elem().Kind() == reflect.Uint8 {
		b, err := ds.readBytes()
		if err != nil {
			return err
		}
		v.SetBytes(b)
		return nil
	}
	n, err := ds.readLength()
	if err != nil {
		return err
	}
	slice := reflect.MakeSlice(v.Type(), int(n), int(n))
	for i := 0; i < int(n); i++ {
		if err := ds.unmarshal(slice.Index(i)); err != nil {
			return err
		}
	}
	v.Set(slice)
	return nil
}

func (ds *decodeState) unmarshalStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		if err := ds.unmarshal(v.Field(i)); err != nil {
			return fmt.Errorf("field %s.%s: %w", t.Name(), t.Field(i).Name, err)
		}
	}
	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("truncated input: %w", err)
	}
	return err
}
