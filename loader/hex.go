package loader

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Intel HEX record types.
const (
	recordData                   = 0x00
	recordEOF                    = 0x01
	recordExtendedSegmentAddress = 0x02
	recordStartSegmentAddress    = 0x03
	recordExtendedLinearAddress  = 0x04
	recordStartLinearAddress     = 0x05
)

// ErrNoEOF is returned when an Intel HEX stream ends without an end-of-file
// record.
var ErrNoEOF = errors.New("no end-of-file record")

// DecodeHex decodes an Intel HEX stream. Data records are placed at their
// absolute address, honouring extended segment and extended linear address
// records. Start address records are accepted and ignored.
func DecodeHex(r io.Reader) (*Image, error) {
	var (
		s      span
		upper  uint32
		lineNo int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch rec.kind {
		case recordData:
			s.write(upper+uint32(rec.address), rec.data)
		case recordEOF:
			if !s.set {
				return &Image{Format: FormatHex}, nil
			}
			return s.image(FormatHex), nil
		case recordExtendedSegmentAddress:
			if len(rec.data) != 2 {
				return nil, fmt.Errorf("line %d: segment address record with %d bytes", lineNo, len(rec.data))
			}
			upper = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 4
		case recordExtendedLinearAddress:
			if len(rec.data) != 2 {
				return nil, fmt.Errorf("line %d: linear address record with %d bytes", lineNo, len(rec.data))
			}
			upper = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 16
		case recordStartSegmentAddress, recordStartLinearAddress:
		default:
			return nil, fmt.Errorf("line %d: unknown record type 0x%02X", lineNo, rec.kind)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading hex: %w", err)
	}

	return nil, ErrNoEOF
}

type record struct {
	kind    uint8
	address uint16
	data    []byte
}

func parseRecord(line string) (record, error) {
	if line[0] != ':' {
		return record{}, fmt.Errorf("record must start with colon")
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return record{}, fmt.Errorf("bad hex digits: %w", err)
	}

	if len(raw) < 5 {
		return record{}, fmt.Errorf("record too short")
	}

	count := int(raw[0])
	if len(raw) != count+5 {
		return record{}, fmt.Errorf("record length %d does not match byte count %d", len(raw)-5, count)
	}

	var sum uint8
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		want := raw[len(raw)-1] - sum
		return record{}, fmt.Errorf("invalid checksum 0x%02X, want 0x%02X", raw[len(raw)-1], want)
	}

	return record{
		kind:    raw[3],
		address: uint16(raw[1])<<8 | uint16(raw[2]),
		data:    raw[4 : 4+count],
	}, nil
}
