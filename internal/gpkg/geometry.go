package gpkg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GeoPackage binary header layout:
//
//	magic "GP" | version | flags | srs_id (int32) | envelope | WKB
//
// flags bit 0 is the header byte order (1 = little endian), bits 1-3 the
// envelope indicator and bit 4 the empty-geometry marker.
const (
	headerSize       = 8
	flagLittleEndian = 0x01
	flagEmpty        = 0x10
	flagExtended     = 0x20
	envelopeXY       = 1
)

var errNotGeoPackage = errors.New("not a GeoPackage geometry blob")

// envelopeSizes maps the envelope indicator to its byte length.
var envelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// EncodeGeometry writes g as a GeoPackage geometry blob with an XY envelope.
// Points are written without an envelope.
func EncodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	if g == nil {
		return nil, nil
	}

	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to encode WKB: %w", err)
	}

	flags := byte(flagLittleEndian)
	var envelope []byte
	switch {
	case isEmpty(g):
		flags |= flagEmpty
	case g.GeoJSONType() != "Point":
		flags |= envelopeXY << 1
		b := g.Bound()
		envelope = make([]byte, 32)
		binary.LittleEndian.PutUint64(envelope[0:], math.Float64bits(b.Min.X()))
		binary.LittleEndian.PutUint64(envelope[8:], math.Float64bits(b.Max.X()))
		binary.LittleEndian.PutUint64(envelope[16:], math.Float64bits(b.Min.Y()))
		binary.LittleEndian.PutUint64(envelope[24:], math.Float64bits(b.Max.Y()))
	}

	buf := make([]byte, headerSize, headerSize+len(envelope)+len(body))
	buf[0], buf[1], buf[2], buf[3] = 'G', 'P', 0, flags
	binary.LittleEndian.PutUint32(buf[4:], uint32(srsID))
	buf = append(buf, envelope...)
	return append(buf, body...), nil
}

// DecodeGeometry parses a GeoPackage geometry blob.
// A nil blob decodes to a nil geometry.
func DecodeGeometry(b []byte) (orb.Geometry, int32, error) {
	if b == nil {
		return nil, 0, nil
	}
	if len(b) < headerSize || b[0] != 'G' || b[1] != 'P' {
		return nil, 0, errNotGeoPackage
	}

	flags := b[3]
	if flags&flagExtended != 0 {
		return nil, 0, fmt.Errorf("extended GeoPackage geometries are not supported")
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(b[4:8]))

	envSize, ok := envelopeSizes[(flags>>1)&0x07]
	if !ok {
		return nil, 0, fmt.Errorf("invalid envelope indicator in flags 0x%02x", flags)
	}
	if len(b) < headerSize+envSize {
		return nil, 0, fmt.Errorf("geometry blob truncated")
	}

	g, err := wkb.Unmarshal(b[headerSize+envSize:])
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode WKB: %w", err)
	}
	return g, srsID, nil
}

func isEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		return len(v) == 0
	}
	return false
}
