package wasm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrShort is returned for input shorter than the binary header.
	ErrShort = errors.New("wasm: input shorter than header")
	// ErrMagic is returned when the input does not start with "\0asm".
	ErrMagic = errors.New("wasm: bad magic number")
)

// Header is the fixed eight-byte preamble of a binary.
type Header struct {
	Version uint16
	Layer   uint16
}

// IsComponent reports whether the header announces a component binary.
func (h Header) IsComponent() bool {
	return h.Layer == LayerComponent
}

// IsCore reports whether the header announces a loadable core module.
func (h Header) IsCore() bool {
	return h.Layer == LayerCore && h.Version == Version
}

// ParseHeader reads the binary header.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrShort
	}
	if binary.LittleEndian.Uint32(data[0:4]) != Magic {
		return Header{}, ErrMagic
	}
	return Header{
		Version: binary.LittleEndian.Uint16(data[4:6]),
		Layer:   binary.LittleEndian.Uint16(data[6:8]),
	}, nil
}

// Section is one entry of a module's section table.
type Section struct {
	// Name is the custom section name, or the standard section name.
	Name   string
	Offset int
	Size   uint32
	ID     byte
}

// Custom reports whether s is a custom section.
func (s Section) Custom() bool {
	return s.ID == SectionCustom
}

// Sections walks the section table of a core module without decoding bodies.
func Sections(data []byte) ([]Section, error) {
	if _, err := ParseHeader(data); err != nil {
		return nil, err
	}

	r := bytes.NewReader(data[HeaderSize:])
	var out []Section
	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size, err := ReadLEB128u(r)
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", len(out), err)
		}
		offset := len(data) - r.Len()
		if uint64(size) > uint64(r.Len()) {
			return nil, fmt.Errorf("section %s at %d: size %d exceeds remaining %d bytes",
				SectionName(id), offset, size, r.Len())
		}
		body := data[offset : offset+int(size)]

		s := Section{ID: id, Offset: offset, Size: size, Name: SectionName(id)}
		if id == SectionCustom {
			name, err := customName(body)
			if err != nil {
				return nil, fmt.Errorf("custom section at %d: %w", offset, err)
			}
			s.Name = name
		}
		out = append(out, s)

		if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func customName(body []byte) (string, error) {
	r := bytes.NewReader(body)
	n, err := ReadLEB128u(r)
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(r.Len()) {
		return "", fmt.Errorf("name length %d exceeds section", n)
	}
	start := len(body) - r.Len()
	return string(body[start : start+int(n)]), nil
}
