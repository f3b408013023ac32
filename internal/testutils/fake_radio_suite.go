//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/bluest/pkg/feature"
)

// FakeRadioSuite is a testify suite backed by an in-memory radio.
//
//	type ConnectSuite struct {
//	    testutils.FakeRadioSuite
//	}
//
//	func (s *ConnectSuite) SetupTest() {
//	    s.WithPeripheral().WithBaseFeatures(feature.MaskTemperature)
//	    s.FakeRadioSuite.SetupTest() // call parent last to apply configuration
//	}
type FakeRadioSuite struct {
	suite.Suite

	Helper      *TestHelper
	Logger      *logrus.Logger
	TestTimeout time.Duration

	// Adapter is rebuilt for every test from the configured builders.
	Adapter    *FakeAdapter
	Peripheral *FakePeripheral

	PeripheralBuilder     *PeripheralDeviceBuilder
	AdvertisementsBuilder *AdvertisementArrayBuilder[*FakeAdapter]
}

func (s *FakeRadioSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
	s.Logger.Debug("Suite setup completed")
}

func (s *FakeRadioSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}
	s.Adapter = NewFakeAdapter()
	s.Peripheral = s.PeripheralBuilder.Build()
	s.Adapter.AddPeripheral(s.Peripheral)

	if s.AdvertisementsBuilder != nil {
		s.AdvertisementsBuilder.parent = s.Adapter
		s.AdvertisementsBuilder.Build()
	}
	s.Logger.Debug("Test setup completed - ready for execution")
}

func (s *FakeRadioSuite) TearDownTest() {
	if s.Peripheral != nil {
		s.Peripheral.Drop()
	}
	s.PeripheralBuilder = nil
	s.AdvertisementsBuilder = nil
	s.Peripheral = nil
	s.Adapter = nil
}

// WithPeripheral returns the builder of the peripheral registered on the adapter.
func (s *FakeRadioSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}

// WithAdvertisements returns the builder of the advertisements the adapter replays on scan.
func (s *FakeRadioSuite) WithAdvertisements() *AdvertisementArrayBuilder[*FakeAdapter] {
	if s.AdvertisementsBuilder == nil {
		s.AdvertisementsBuilder = ScanAdvertisements(nil)
	}
	return s.AdvertisementsBuilder
}

// createDefaultPeripheralBuilder describes a node exposing temperature and
// humidity, the debug console and the command characteristic.
func createDefaultPeripheralBuilder() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().
		WithBaseFeatures(feature.MaskTemperature | feature.MaskHumidity).
		WithDebugConsole().
		WithCommand()
}
