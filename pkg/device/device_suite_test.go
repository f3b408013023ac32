//go:build test

package device_test

import (
	"context"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/srg/bluest/internal/testutils"
	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/device"
	"github.com/srg/bluest/pkg/feature"
)

const testDeviceID uint8 = 0x06

type DeviceTestSuite struct {
	testutils.FakeRadioSuite

	device *device.Device
	// logger overrides the suite logger for devices built by the test.
	logger *logrus.Logger
}

// newDevice builds an IDLE device from a V1 advertisement of the fake peripheral.
func (suite *DeviceTestSuite) newDevice(deviceID uint8, mask uint32) *device.Device {
	ad := testutils.NewAdvertisementBuilder().
		WithName("BCN-002").
		WithAddress(suite.Peripheral.Address()).
		WithV1(deviceID, mask, nil).
		Build()
	id, err := advertising.ParseManufacturerData(ad.LocalName(), ad.TxPowerLevel(), ad.ManufacturerData())
	suite.Require().NoError(err, "advertisement MUST parse")
	return device.New(suite.Adapter, ad, id, device.Options{Logger: suite.deviceLogger()})
}

// newV2Device builds an IDLE device from a V2 advertisement carrying a firmware id.
func (suite *DeviceTestSuite) newV2Device(deviceID, firmwareID uint8) *device.Device {
	ad := testutils.NewAdvertisementBuilder().
		WithName("BCN-002").
		WithAddress(suite.Peripheral.Address()).
		WithV2(deviceID, firmwareID, [3]byte{}, nil).
		Build()
	id, err := advertising.ParseManufacturerData(ad.LocalName(), ad.TxPowerLevel(), ad.ManufacturerData())
	suite.Require().NoError(err, "advertisement MUST parse")
	return device.New(suite.Adapter, ad, id, device.Options{Logger: suite.deviceLogger()})
}

func (suite *DeviceTestSuite) deviceLogger() *logrus.Logger {
	if suite.logger != nil {
		return suite.logger
	}
	return suite.Logger
}

// captureLogs makes the next devices log into the returned hook only.
func (suite *DeviceTestSuite) captureLogs() *test.Hook {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	suite.logger = logger
	return hook
}

// warnings returns the messages logged at warning level.
func warnings(hook *test.Hook) []string {
	var out []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e.Message)
		}
	}
	return out
}

func (suite *DeviceTestSuite) connect(d *device.Device) {
	err := d.Connect(suite.Helper.Context(suite.TestTimeout), nil)
	suite.Require().NoError(err, "MUST connect successfully")
	suite.Require().Equal(device.StateConnected, d.State(), "device MUST be CONNECTED")
}

func (suite *DeviceTestSuite) feature(d *device.Device, name string) *feature.Feature {
	f, ok := d.FeatureByName(name)
	suite.Require().True(ok, "feature %q MUST exist", name)
	return f
}

func (suite *DeviceTestSuite) TearDownTest() {
	if suite.device != nil && suite.device.IsConnected() {
		if err := suite.device.Disconnect(context.Background()); err != nil {
			suite.Logger.WithError(err).Error("Failed to disconnect device")
		}
	}
	suite.device = nil
	suite.logger = nil
	suite.FakeRadioSuite.TearDownTest()
}

// stateRecorder counts device listener callbacks.
type stateRecorder struct {
	mu          sync.Mutex
	connects    int
	disconnects []bool
}

func (r *stateRecorder) OnConnect(*device.Device) {
	r.mu.Lock()
	r.connects++
	r.mu.Unlock()
}

func (r *stateRecorder) OnDisconnect(_ *device.Device, unexpected bool) {
	r.mu.Lock()
	r.disconnects = append(r.disconnects, unexpected)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() (int, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, slices.Clone(r.disconnects)
}

// sampleCollector forwards feature updates to a channel.
type sampleCollector struct {
	samples chan *feature.Sample
}

func newSampleCollector() *sampleCollector {
	return &sampleCollector{samples: make(chan *feature.Sample, 16)}
}

func (c *sampleCollector) OnUpdate(_ *feature.Feature, s *feature.Sample) {
	select {
	case c.samples <- s:
	default:
	}
}

// envPayload is a base payload carrying humidity then temperature.
func envPayload(ts uint16, humidityTenths uint16, temperatureTenths int16) []byte {
	return []byte{
		byte(ts), byte(ts >> 8),
		byte(humidityTenths), byte(humidityTenths >> 8),
		byte(uint16(temperatureTenths)), byte(uint16(temperatureTenths) >> 8),
	}
}
