package comms

import (
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"testing"
)

func TestDataRoundTrip(t *testing.T) {
	values := []Data{
		BoolData(true),
		BoolData(false),
		TwoU16Data(0, 0),
		TwoU16Data(1, math.MaxUint16),
		F32Data(0),
		F32Data(-273.15),
		F32Data(float32(math.Inf(1))),
		StateData(9),
		U32Data(0),
		U32Data(math.MaxUint32),
		HeartbeatData(BoardKeyenceTester),
		EmergencyData(5),
	}
	for _, v := range values {
		got, err := DecodeData(v.Bytes())
		require.NoError(t, err, "decoding %s", v)
		assert.Equal(t, v, got)
	}
}

func TestDataLayout(t *testing.T) {
	assert.Equal(t, [8]byte{0, 1}, BoolData(true).Bytes())
	assert.Equal(t, [8]byte{1, 0x34, 0x12, 0xCD, 0xAB}, TwoU16Data(0x1234, 0xABCD).Bytes())
	// 1.0 is 0x3F800000
	assert.Equal(t, [8]byte{2, 0x00, 0x00, 0x80, 0x3F}, F32Data(1).Bytes())
	assert.Equal(t, [8]byte{3, 9}, StateData(9).Bytes())
	assert.Equal(t, [8]byte{4, 0x78, 0x56, 0x34, 0x12}, U32Data(0x12345678).Bytes())
	assert.Equal(t, [8]byte{5, 5}, HeartbeatData(BoardKeyenceTester).Bytes())
	assert.Equal(t, [8]byte{6, 4}, EmergencyData(4).Bytes())
}

func TestDecodeDataErrors(t *testing.T) {
	_, err := DecodeData([8]byte{0x42})
	assert.True(t, errors.Is(err, ErrUnknownDataType))
	assert.True(t, IsDecodeError(err))

	_, err = DecodeData([8]byte{5, 0xEE})
	assert.True(t, errors.Is(err, ErrUnknownBoard))
}

func TestDataFloat64(t *testing.T) {
	v, ok := F32Data(2.5).Float64()
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)

	v, ok = U32Data(7).Float64()
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = HeartbeatData(BoardTest).Float64()
	assert.False(t, ok)
}

func TestDataValidate(t *testing.T) {
	assert.NoError(t, F32Data(float32(math.NaN())).Validate())
	assert.NoError(t, HeartbeatData(BoardMqtt).Validate())
	assert.NoError(t, TwoU16Data(1, 2).Validate())

	assert.Error(t, Data{Type: DataF32, Bool: true}.Validate())
	assert.Error(t, Data{Type: DataBool, Target: BoardNavigation}.Validate())
	assert.Error(t, HeartbeatData(Board(200)).Validate())
	assert.True(t, errors.Is(Data{Type: DataType(9)}.Validate(), ErrInvalidMessage))
}
