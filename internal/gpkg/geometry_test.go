package gpkg

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeGeometry_Header(t *testing.T) {
	t.Run("point has no envelope", func(t *testing.T) {
		b, err := EncodeGeometry(orb.Point{1, 2}, 2283)
		require.NoError(t, err)

		assert.Equal(t, []byte("GP"), b[:2])
		assert.Equal(t, byte(flagLittleEndian), b[3])
		assert.Equal(t, uint32(2283), binary.LittleEndian.Uint32(b[4:8]))
		assert.Len(t, b, headerSize+21, "header plus 2D point WKB")
	})

	t.Run("polygon carries xy envelope", func(t *testing.T) {
		poly := orb.Polygon{{{0, 0}, {0, 4}, {3, 4}, {3, 0}, {0, 0}}}
		b, err := EncodeGeometry(poly, -1)
		require.NoError(t, err)

		assert.Equal(t, byte(flagLittleEndian|envelopeXY<<1), b[3])
		env := b[headerSize : headerSize+32]
		assert.Equal(t, 0.0, math.Float64frombits(binary.LittleEndian.Uint64(env[0:])))
		assert.Equal(t, 3.0, math.Float64frombits(binary.LittleEndian.Uint64(env[8:])))
		assert.Equal(t, 0.0, math.Float64frombits(binary.LittleEndian.Uint64(env[16:])))
		assert.Equal(t, 4.0, math.Float64frombits(binary.LittleEndian.Uint64(env[24:])))
	})

	t.Run("empty geometry is flagged", func(t *testing.T) {
		b, err := EncodeGeometry(orb.MultiPolygon{}, 4326)
		require.NoError(t, err)
		assert.NotZero(t, b[3]&flagEmpty)
	})

	t.Run("nil geometry encodes to nil", func(t *testing.T) {
		b, err := EncodeGeometry(nil, 4326)
		require.NoError(t, err)
		assert.Nil(t, b)
	})
}

func TestDecodeGeometry(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{-77.46, 38.3},
		orb.MultiPoint{{1, 2}, {3, 4}},
		orb.LineString{{0, 0}, {5, 5}},
		orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}}},
		orb.Polygon{{{0, 0}, {0, 4}, {3, 4}, {3, 0}, {0, 0}}},
	}
	for _, g := range geoms {
		t.Run(g.GeoJSONType(), func(t *testing.T) {
			b, err := EncodeGeometry(g, 2283)
			require.NoError(t, err)

			got, srs, err := DecodeGeometry(b)
			require.NoError(t, err)
			assert.Equal(t, int32(2283), srs)
			assert.Equal(t, g, got)
		})
	}
}

func TestDecodeGeometry_BigEndianHeader(t *testing.T) {
	body, err := wkb.Marshal(orb.Point{7, 8}, binary.BigEndian)
	require.NoError(t, err)

	b := []byte{'G', 'P', 0, 0x00, 0, 0, 0x10, 0x00}
	b = append(b, body...)

	g, srs, err := DecodeGeometry(b)
	require.NoError(t, err)
	assert.Equal(t, int32(4096), srs)
	assert.Equal(t, orb.Point{7, 8}, g)
}

func TestDecodeGeometry_Invalid(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"too short", []byte{'G', 'P'}},
		{"bad magic", []byte{'X', 'X', 0, 1, 0, 0, 0, 0}},
		{"extended", []byte{'G', 'P', 0, flagExtended | flagLittleEndian, 0, 0, 0, 0}},
		{"bad envelope indicator", []byte{'G', 'P', 0, 0x0F, 0, 0, 0, 0}},
		{"truncated envelope", []byte{'G', 'P', 0, 0x03, 0, 0, 0, 0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeGeometry(tt.blob)
			assert.Error(t, err)
		})
	}

	g, _, err := DecodeGeometry(nil)
	require.NoError(t, err)
	assert.Nil(t, g)
}
