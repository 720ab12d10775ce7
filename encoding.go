package mqtt311

import (
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"
)

// Encoding errors.
var (
	ErrStringTooLong      = errors.New("string exceeds maximum length of 65535 bytes")
	ErrBinaryTooLong      = errors.New("binary data exceeds maximum length of 65535 bytes")
	ErrInvalidUTF8        = errors.New("invalid UTF-8 string")
	ErrStringContainsNull = errors.New("string contains null character")
	ErrVarintTooLarge     = errors.New("remaining length exceeds maximum value")
	ErrVarintMalformed    = errors.New("malformed remaining length")
)

const (
	maxUint16         = 65535
	maxVarint         = 268435455
	varintContinueBit = 0x80
	varintValueMask   = 0x7F
)

func validString(s string) error {
	if len(s) > maxUint16 {
		return ErrStringTooLong
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	for i := range len(s) {
		if s[i] == 0 {
			return ErrStringContainsNull
		}
	}
	return nil
}

// encodeString writes a UTF-8 string with a 2-byte length prefix.
func encodeString(w io.Writer, s string) (int, error) {
	if err := validString(s); err != nil {
		return 0, err
	}

	n, err := encodeUint16(w, uint16(len(s)))
	if err != nil {
		return n, err
	}

	n2, err := io.WriteString(w, s)
	return n + n2, err
}

// decodeString reads a UTF-8 string with a 2-byte length prefix.
func decodeString(r io.Reader) (string, int, error) {
	buf, n, err := decodeBinary(r)
	if err != nil {
		return "", n, err
	}

	if !utf8.Valid(buf) {
		return "", n, ErrInvalidUTF8
	}
	for _, b := range buf {
		if b == 0 {
			return "", n, ErrStringContainsNull
		}
	}

	return string(buf), n, nil
}

// encodeBinary writes binary data with a 2-byte length prefix.
func encodeBinary(w io.Writer, data []byte) (int, error) {
	if len(data) > maxUint16 {
		return 0, ErrBinaryTooLong
	}

	n, err := encodeUint16(w, uint16(len(data)))
	if err != nil {
		return n, err
	}

	n2, err := w.Write(data)
	return n + n2, err
}

// decodeBinary reads binary data with a 2-byte length prefix.
func decodeBinary(r io.Reader) ([]byte, int, error) {
	length, n, err := decodeUint16(r)
	if err != nil || length == 0 {
		return nil, n, err
	}

	buf := make([]byte, length)
	n2, err := io.ReadFull(r, buf)
	return buf, n + n2, err
}

func encodeUint16(w io.Writer, v uint16) (int, error) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return w.Write(buf[:])
}

func decodeUint16(r io.Reader) (uint16, int, error) {
	var buf [2]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return 0, n, err
	}
	return binary.BigEndian.Uint16(buf[:]), n, nil
}

// putVarint encodes value as a remaining-length integer into buf.
func putVarint(buf []byte, value uint32) (int, error) {
	if value > maxVarint {
		return 0, ErrVarintTooLarge
	}

	n := 0
	for {
		encoded := byte(value & varintValueMask)
		value >>= 7
		if value > 0 {
			encoded |= varintContinueBit
		}
		buf[n] = encoded
		n++
		if value == 0 {
			return n, nil
		}
	}
}

// decodeVarint reads a remaining-length integer.
func decodeVarint(r io.Reader) (uint32, int, error) {
	var value uint32
	var multiplier uint32 = 1
	var buf [1]byte
	bytesRead := 0

	for {
		n, err := io.ReadFull(r, buf[:])
		bytesRead += n
		if err != nil {
			return 0, bytesRead, err
		}

		value += uint32(buf[0]&varintValueMask) * multiplier
		if value > maxVarint {
			return 0, bytesRead, ErrVarintTooLarge
		}

		if buf[0]&varintContinueBit == 0 {
			return value, bytesRead, nil
		}

		multiplier *= 128
		if multiplier > 128*128*128 {
			return 0, bytesRead, ErrVarintMalformed
		}
	}
}

// varintSize returns the number of bytes needed to encode a remaining length.
func varintSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}
