package feature_test

import (
	"testing"

	"github.com/srg/bluest/pkg/feature"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		uuid string
		kind feature.CharacteristicKind
		mask uint32
	}{
		{"00E00000-0001-11e1-ac36-0002a5d5c51b", feature.KindBase, 0x00E00000},
		{"00000014-0002-11E1-AC36-0002A5D5C51B", feature.KindExtended, 0x14},
		{"00000001-000e-11e1-ac36-0002a5d5c51b", feature.KindDebugStdInOut, 0},
		{"00000002-000e-11e1-ac36-0002a5d5c51b", feature.KindDebugStdErr, 0},
		{"00000002-000f-11e1-ac36-0002a5d5c51b", feature.KindCommand, 0},
		{"2a19", feature.KindOther, 0},
		{"0000180f-0000-1000-8000-00805f9b34fb", feature.KindOther, 0},
	}
	for _, tt := range tests {
		t.Run(tt.uuid, func(t *testing.T) {
			kind, mask := feature.Classify(tt.uuid)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.mask, mask)
		})
	}
}

func TestUUIDHelpers(t *testing.T) {
	assert.Equal(t, "00040000-0001-11e1-ac36-0002a5d5c51b", feature.FormatUUID(feature.BaseUUID(feature.MaskTemperature)))
	assert.Equal(t, "0000001b-0002-11e1-ac36-0002a5d5c51b", feature.FormatUUID(feature.ExtendedUUID(feature.ExtPnPLike)))
	assert.True(t, feature.IsDebugService("00000000-000E-11e1-9ab4-0002a5d5c51b"))
	assert.Equal(t, "abcd", feature.NormalizeUUID("0xABCD"))
}

func TestExtractMask(t *testing.T) {
	mask, ok := feature.ExtractMask("00e00000-0001-11e1-ac36-0002a5d5c51b")
	assert.True(t, ok)
	assert.Equal(t, uint32(0x00E00000), mask)

	mask, ok = feature.ExtractMask("0000180d-0000-1000-8000-00805f9b34fb")
	assert.True(t, ok)
	assert.Equal(t, uint32(0x180D), mask)

	_, ok = feature.ExtractMask("2a37")
	assert.False(t, ok)
}
