//go:build test

package testutils

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/pkg/advertising"
)

// AdvertisementBuilder builds FakeAdvertisement values.
// The builder starts connectable, with a fixed address and -50 dBm.
type AdvertisementBuilder struct {
	ad FakeAdvertisement
}

func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{ad: FakeAdvertisement{
		Addr:          "C0:FF:EE:00:00:01",
		TxPower:       advertising.NoTxPower,
		Signal:        -50,
		IsConnectable: true,
	}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.ad.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.ad.Addr = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.ad.Signal = rssi
	return b
}

func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.ad.TxPower = power
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.ad.IsConnectable = c
	return b
}

// WithManufacturerData sets raw manufacturer bytes, type byte excluded.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.ad.Manufacturer = data
	return b
}

// WithV1 sets a V1 BlueST payload. mac may be nil.
func (b *AdvertisementBuilder) WithV1(deviceID uint8, mask uint32, mac []byte) *AdvertisementBuilder {
	return b.WithManufacturerData(advertising.EncodeV1(deviceID, mask, mac))
}

func (b *AdvertisementBuilder) WithV2(deviceID, firmwareID uint8, options [3]byte, mac []byte) *AdvertisementBuilder {
	return b.WithManufacturerData(advertising.EncodeV2(deviceID, firmwareID, options, mac))
}

func (b *AdvertisementBuilder) WithVLE(deviceID, firmwareID, payloadID uint8, options []byte) *AdvertisementBuilder {
	return b.WithManufacturerData(advertising.EncodeVLE(deviceID, firmwareID, payloadID, options))
}

// FromJSON overrides the fields present in the JSON document. manufacturerData
// is a hex string. Panics on invalid input as this is test setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...any) *AdvertisementBuilder {
	var data struct {
		Name             *string `json:"name"`
		Address          *string `json:"address"`
		RSSI             *int    `json:"rssi"`
		ManufacturerData *string `json:"manufacturerData"`
		TxPower          *int    `json:"txPower"`
		Connectable      *bool   `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &data); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: %v", err))
	}
	if data.Name != nil {
		b.ad.Name = *data.Name
	}
	if data.Address != nil {
		b.ad.Addr = *data.Address
	}
	if data.RSSI != nil {
		b.ad.Signal = *data.RSSI
	}
	if data.TxPower != nil {
		b.ad.TxPower = *data.TxPower
	}
	if data.Connectable != nil {
		b.ad.IsConnectable = *data.Connectable
	}
	if data.ManufacturerData != nil {
		raw, err := hex.DecodeString(*data.ManufacturerData)
		if err != nil {
			panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: manufacturerData: %v", err))
		}
		b.ad.Manufacturer = raw
	}
	return b
}

func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	ad := b.ad
	return &ad
}

// AdvertisementArrayBuilder collects advertisements and hands them to a parent.
//
//	ads := NewAdvertisementArrayBuilder[[]radio.Advertisement]().
//	    Add(func(b *AdvertisementBuilder) { b.WithName("A").WithV1(0x01, 0x1C0000, nil) }).
//	    Add(func(b *AdvertisementBuilder) { b.WithName("B").WithAddress("11:22:33:44:55:66") }).
//	    Build()
type AdvertisementArrayBuilder[T any] struct {
	advertisements []radio.Advertisement
	parent         T
	buildFunc      func(T, []radio.Advertisement) T
}

func NewAdvertisementArrayBuilder[T any]() *AdvertisementArrayBuilder[T] {
	return &AdvertisementArrayBuilder[T]{}
}

// WithAdvertisements appends pre-built advertisements.
func (ab *AdvertisementArrayBuilder[T]) WithAdvertisements(ads ...radio.Advertisement) *AdvertisementArrayBuilder[T] {
	ab.advertisements = append(ab.advertisements, ads...)
	return ab
}

// Add configures a fresh AdvertisementBuilder and appends its result.
func (ab *AdvertisementArrayBuilder[T]) Add(configure func(b *AdvertisementBuilder)) *AdvertisementArrayBuilder[T] {
	b := NewAdvertisementBuilder()
	configure(b)
	ab.advertisements = append(ab.advertisements, b.Build())
	return ab
}

// Build returns the parent when attached, otherwise the collected slice.
func (ab *AdvertisementArrayBuilder[T]) Build() T {
	if ab.buildFunc != nil {
		return ab.buildFunc(ab.parent, ab.advertisements)
	}
	var result any = ab.advertisements
	return result.(T)
}

// ScanAdvertisements attaches an array builder whose Build registers the
// advertisements on adapter and returns it.
func ScanAdvertisements(adapter *FakeAdapter) *AdvertisementArrayBuilder[*FakeAdapter] {
	ab := NewAdvertisementArrayBuilder[*FakeAdapter]()
	ab.parent = adapter
	ab.buildFunc = func(a *FakeAdapter, ads []radio.Advertisement) *FakeAdapter {
		return a.AddAdvertisements(ads...)
	}
	return ab
}
