package advertising_test

import (
	"encoding/hex"
	"testing"

	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/bluest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestParseV1(t *testing.T) {
	records := []advertising.Record{
		advertising.NewRecord(advertising.TypeCompleteLocalName, []byte("BCN-002")),
		advertising.NewRecord(advertising.TypeTxPowerLevel, []byte{0xf6}),
		advertising.NewRecord(advertising.TypeManufacturerData, mustHex(t, "010604ff157f")),
	}

	id, err := advertising.Parse(records)
	require.NoError(t, err)

	assert.Equal(t, advertising.ProtocolV1, id.Protocol())
	assert.Equal(t, uint8(0x06), id.DeviceID())
	assert.Equal(t, advertising.STEVAL_MKSBOX1V1, id.DeviceType())
	assert.Equal(t, "BCN-002", id.Name())
	assert.Equal(t, -10, id.TxPower())

	mask, ok := id.FeatureMask()
	assert.True(t, ok)
	assert.Equal(t, uint32(0x04ff157f), mask)

	_, ok = id.FirmwareID()
	assert.False(t, ok)
	assert.Nil(t, id.OptionBytes())
	_, ok = id.MAC()
	assert.False(t, ok)
}

func TestParseV2WithMAC(t *testing.T) {
	// After the ST company id: version 02, device 09, firmware 04, options 00 00 00, MAC.
	data := mustHex(t, "3000020904000000fccd1283b72a")

	id, err := advertising.ParseManufacturerData("STWIN", advertising.NoTxPower, data)
	require.NoError(t, err)

	assert.Equal(t, advertising.ProtocolV2, id.Protocol())
	assert.Equal(t, uint8(0x09), id.DeviceID())
	fw, ok := id.FirmwareID()
	assert.True(t, ok)
	assert.Equal(t, uint8(0x04), fw)
	assert.Equal(t, []byte{0x00, 0x00, 0x00}, id.OptionBytes())

	mac, ok := id.MAC()
	assert.True(t, ok)
	assert.Equal(t, "FC:CD:12:83:B7:2A", mac)

	_, ok = id.FeatureMask()
	assert.False(t, ok)
	_, ok = id.PayloadID()
	assert.False(t, ok)
}

func TestParseVLE(t *testing.T) {
	data := advertising.EncodeVLE(0x0C, 0xFE, 0x00, mustHex(t, "6666be4100002042668679"))

	id, err := advertising.ParseManufacturerData("ASTRA", 4, data)
	require.NoError(t, err)

	assert.Equal(t, advertising.ProtocolVLE, id.Protocol())
	assert.Equal(t, advertising.STEVAL_ASTRA1B, id.DeviceType())
	fw, _ := id.FirmwareID()
	assert.Equal(t, uint8(0xFE), fw)
	payload, ok := id.PayloadID()
	assert.True(t, ok)
	assert.Equal(t, uint8(0x00), payload)
	assert.Equal(t, mustHex(t, "6666be4100002042668679"), id.OptionBytes())
}

func TestParseDefaults(t *testing.T) {
	id, err := advertising.Parse([]advertising.Record{
		advertising.NewRecord(advertising.TypeManufacturerData, mustHex(t, "010604ff157f")),
	})
	require.NoError(t, err)
	assert.Equal(t, advertising.NoName, id.Name())
	assert.Equal(t, advertising.NoTxPower, id.TxPower())
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		records []advertising.Record
		want    error
	}{
		{
			name:    "missing manufacturer data",
			records: []advertising.Record{advertising.NewRecord(advertising.TypeCompleteLocalName, []byte("x"))},
			want:    bluest.ErrInvalidAdvertisingData,
		},
		{
			name:    "length not allowed",
			records: []advertising.Record{advertising.NewRecord(advertising.TypeManufacturerData, mustHex(t, "0106"))},
			want:    bluest.ErrUnsupportedPayloadLength,
		},
		{
			name:    "length above VLE range",
			records: []advertising.Record{advertising.NewRecord(advertising.TypeManufacturerData, make([]byte, 30))},
			want:    bluest.ErrUnsupportedPayloadLength,
		},
		{
			name:    "unknown manufacturer",
			records: []advertising.Record{advertising.NewRecord(advertising.TypeManufacturerData, mustHex(t, "420604ff157f"))},
			want:    bluest.ErrUnknownManufacturerID,
		},
		{
			name:    "protocol version zero",
			records: []advertising.Record{advertising.NewRecord(advertising.TypeManufacturerData, mustHex(t, "300000090400000000"))},
			want:    bluest.ErrUnsupportedProtocolVersion,
		},
		{
			name:    "protocol version four",
			records: []advertising.Record{advertising.NewRecord(advertising.TypeManufacturerData, mustHex(t, "300004090400000000"))},
			want:    bluest.ErrUnsupportedProtocolVersion,
		},
		{
			name:    "v1 mask truncated behind company id",
			records: []advertising.Record{advertising.NewRecord(advertising.TypeManufacturerData, mustHex(t, "3000010904ff15"))},
			want:    bluest.ErrInvalidAdvertisingData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := advertising.Parse(tt.records)
			assert.Nil(t, id)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestV1RoundTrip(t *testing.T) {
	tests := []struct {
		deviceID uint8
		mask     uint32
		mac      []byte
	}{
		{0x00, 0x00000000, nil},
		{0x06, 0x04ff157f, nil},
		{0x80, 0xffffffff, nil},
		{0x41, 0x80000001, []byte{1, 2, 3, 4, 5, 6}},
		{0xff, 0x00e00000, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}},
	}

	for _, tt := range tests {
		data := advertising.EncodeV1(tt.deviceID, tt.mask, tt.mac)
		id, err := advertising.ParseManufacturerData("rt", 0, data)
		require.NoError(t, err)

		mask, _ := id.FeatureMask()
		assert.Equal(t, data, advertising.EncodeV1(id.DeviceID(), mask, tt.mac))
		assert.Equal(t, data, id.ManufacturerData())
	}
}

func TestSleeping(t *testing.T) {
	tests := []struct {
		deviceID uint8
		want     bool
	}{
		{0x40, true},
		{0x7f, true},
		{0x3f, false},
		{0xc0, false},
		{0x80, false},
	}

	for _, tt := range tests {
		id, err := advertising.ParseManufacturerData("", 0, advertising.EncodeV1(tt.deviceID, 0, nil))
		require.NoError(t, err)
		assert.Equal(t, tt.want, id.Sleeping(), "device id 0x%02X", tt.deviceID)
	}
}

func TestResolveDeviceType(t *testing.T) {
	tests := []struct {
		id   uint8
		want advertising.DeviceType
	}{
		{0x00, advertising.Generic},
		{0x01, advertising.STEVAL_WESU1},
		{0x0F, advertising.Proteus},
		{0x10, advertising.Generic},
		{0x7F, advertising.Generic},
		{0x80, advertising.Nucleo},
		{0x81, advertising.Generic},
		{0x8B, advertising.Generic},
		{0xFF, advertising.Generic},
	}

	for _, tt := range tests {
		got, err := advertising.ResolveDeviceType(tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "id 0x%02X", tt.id)
	}
	assert.Equal(t, "STEVAL_STWINKT1B", advertising.STEVAL_STWINKT1B.String())
}

func TestIdentityEqual(t *testing.T) {
	a, err := advertising.ParseManufacturerData("n", 0, advertising.EncodeV1(1, 2, nil))
	require.NoError(t, err)
	b, err := advertising.ParseManufacturerData("n", 0, advertising.EncodeV1(1, 2, nil))
	require.NoError(t, err)
	c, err := advertising.ParseManufacturerData("n", 0, advertising.EncodeV1(1, 3, nil))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Contains(t, a.String(), "mask=0x00000002")
}
