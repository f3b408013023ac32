//go:build test

package device_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/bluest/internal/testutils"
	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/device"
	"github.com/srg/bluest/pkg/feature"
	"github.com/srg/bluest/pkg/transport"
)

type DeviceOperationsSuite struct {
	DeviceTestSuite
}

var envMask = feature.MaskTemperature | feature.MaskHumidity

func (suite *DeviceOperationsSuite) TestIdentity() {
	// GOAL: Verify the advertisement derived accessors

	suite.device = suite.newDevice(testDeviceID, envMask)

	suite.Assert().Equal(device.StateIdle, suite.device.State(), "new device MUST be IDLE")
	suite.Assert().Equal("BCN-002", suite.device.Name())
	suite.Assert().Equal("BCN-002 @000001", suite.device.FriendlyName(), "friendly name MUST end with the address tail")
	suite.Assert().Equal(-50, suite.device.RSSI())
	suite.Assert().True(suite.device.IsConnectable())
	suite.Assert().False(suite.device.IsSleeping())
	suite.Assert().Equal(transport.DefaultMTU, suite.device.MTU())

	before := suite.device.LastRSSIUpdate()
	time.Sleep(time.Millisecond)
	suite.device.UpdateRSSI(-70)
	suite.Assert().Equal(-70, suite.device.RSSI())
	suite.Assert().True(suite.device.LastRSSIUpdate().After(before), "RSSI timestamp MUST advance")
}

func (suite *DeviceOperationsSuite) TestDeclaredFeatures() {
	// GOAL: Verify V1 feature masks produce declared features before any connection
	//
	// TEST SCENARIO: mask = temperature|humidity → two declared features, humidity first (higher bit)

	suite.device = suite.newDevice(testDeviceID, envMask)
	features := suite.device.Features()

	suite.Require().Len(features, 2, "MUST declare one feature per known mask bit")
	suite.Assert().Equal("Humidity", features[0].Name())
	suite.Assert().Equal("Temperature", features[1].Name())
	suite.Assert().False(features[0].Enabled(), "declared features MUST NOT be enabled")

	err := suite.device.EnableNotifications(suite.Helper.Context(suite.TestTimeout), features[0])
	suite.Assert().ErrorIs(err, bluest.ErrInvalidOperation, "declared feature MUST NOT notify before connection")
}

// catalogFunc adapts a function to device.CatalogResolver.
type catalogFunc func(deviceID, firmwareID uint8) ([]string, error)

func (f catalogFunc) DeclaredCharacteristics(_ context.Context, deviceID, firmwareID uint8) ([]string, error) {
	return f(deviceID, firmwareID)
}

func (suite *DeviceOperationsSuite) TestDeclareFromCatalog() {
	suite.Run("duplicate extended mask keeps the first feature", func() {
		// GOAL: Verify two catalog UUIDs with the same extended mask declare a single feature
		//
		// TEST SCENARIO: catalog lists the PnPLike UUID twice (lower and upper case) → one declared feature → one warning

		hook := suite.captureLogs()
		suite.device = suite.newV2Device(0x0E, 0x01)
		uuid := feature.ExtendedUUID(feature.ExtPnPLike)

		err := suite.device.DeclareFromCatalog(suite.Helper.Context(suite.TestTimeout), catalogFunc(func(deviceID, firmwareID uint8) ([]string, error) {
			suite.Assert().Equal(uint8(0x0E), deviceID)
			suite.Assert().Equal(uint8(0x01), firmwareID)
			return []string{uuid, strings.ToUpper(uuid)}, nil
		}))
		suite.Require().NoError(err)

		features := suite.device.Features()
		suite.Require().Len(features, 1, "duplicate extended mask MUST declare one feature")
		suite.Assert().Equal("PnPLike", features[0].Name())

		warns := warnings(hook)
		suite.Require().Len(warns, 1, "duplicate MUST be reported once")
		suite.Assert().Contains(warns[0], "already declared")
	})

	suite.Run("V1 devices are ignored", func() {
		suite.device = suite.newDevice(testDeviceID, envMask)
		err := suite.device.DeclareFromCatalog(suite.Helper.Context(suite.TestTimeout), catalogFunc(func(uint8, uint8) ([]string, error) {
			suite.Fail("catalog MUST NOT be queried for a V1 device")
			return nil, nil
		}))
		suite.Require().NoError(err)
		suite.Assert().Len(suite.device.Features(), 2)
	})
}

func (suite *DeviceOperationsSuite) TestConnect() {
	suite.Run("binds implemented features", func() {
		// GOAL: Verify a connection negotiates the MTU and binds characteristics
		//
		// TEST SCENARIO: connect → MTU 248 (255 aligned to 8) → humidity and temperature enabled → console available

		suite.device = suite.newDevice(testDeviceID, envMask)
		suite.connect(suite.device)

		suite.Assert().Equal(248, suite.device.MTU(), "MTU MUST be aligned down to the burst size")
		suite.Assert().Equal(transport.MaxMTU, suite.Peripheral.NegotiatedMTU(), "device MUST request the maximum MTU")

		features := suite.device.Features()
		suite.Require().Len(features, 2)
		for _, f := range features {
			suite.Assert().True(f.Enabled(), "%s MUST be enabled", f.Name())
			_, bound := f.Characteristic()
			suite.Assert().True(bound, "%s MUST be bound to a characteristic", f.Name())
		}
		suite.Assert().NotNil(suite.device.DebugConsole(), "debug console MUST be available")
		suite.Assert().Len(device.FeaturesOf[feature.Decoder](suite.device), 2)
	})

	suite.Run("rejects a second connect", func() {
		err := suite.device.Connect(suite.Helper.Context(suite.TestTimeout), nil)
		suite.Assert().ErrorIs(err, bluest.ErrInvalidOperation, "connect MUST require IDLE")
	})

	suite.Run("disconnect returns to IDLE", func() {
		recorder := &stateRecorder{}
		suite.device.AddListener(recorder)

		suite.Require().NoError(suite.device.Disconnect(suite.Helper.Context(suite.TestTimeout)))
		suite.Assert().Equal(device.StateIdle, suite.device.State())
		suite.Assert().False(suite.Peripheral.Connected(), "link MUST be closed")
		suite.Assert().Nil(suite.device.DebugConsole(), "console MUST be released")

		suite.Assert().Eventually(func() bool {
			_, d := recorder.snapshot()
			return len(d) == 1 && !d[0]
		}, time.Second, 10*time.Millisecond, "MUST report one expected disconnect")

		err := suite.device.Disconnect(suite.Helper.Context(suite.TestTimeout))
		suite.Assert().ErrorIs(err, bluest.ErrInvalidOperation, "disconnect MUST require CONNECTED")
	})
}

func (suite *DeviceOperationsSuite) TestRetire() {
	// GOAL: Verify only an IDLE device can be retired and DEAD is terminal

	suite.device = suite.newDevice(testDeviceID, envMask)
	suite.connect(suite.device)
	suite.Assert().False(suite.device.Retire(), "a connected device MUST NOT be retired")
	suite.Assert().Equal(device.StateConnected, suite.device.State())

	suite.Require().NoError(suite.device.Disconnect(suite.Helper.Context(suite.TestTimeout)))
	suite.Require().True(suite.device.Retire(), "an IDLE device MUST be retired")
	suite.Assert().Equal(device.StateDead, suite.device.State())
	suite.Assert().Equal("DEAD", suite.device.State().String())

	err := suite.device.Connect(suite.Helper.Context(suite.TestTimeout), nil)
	suite.Assert().ErrorIs(err, bluest.ErrInvalidOperation, "DEAD MUST be terminal")
	suite.Assert().False(suite.device.Retire(), "retiring twice MUST report false")
}

func (suite *DeviceOperationsSuite) TestConnectFailures() {
	suite.Run("dial failure", func() {
		// GOAL: Verify an unreachable node reports a link error and an unexpected disconnect

		suite.Adapter.DialErr = errors.New("connection refused")
		suite.device = suite.newDevice(testDeviceID, envMask)
		recorder := &stateRecorder{}
		suite.device.AddListener(recorder)

		err := suite.device.Connect(suite.Helper.Context(suite.TestTimeout), nil)

		suite.Assert().ErrorIs(err, bluest.ErrLinkError)
		suite.Assert().Equal(device.StateIdle, suite.device.State())
		suite.Assert().Eventually(func() bool {
			_, d := recorder.snapshot()
			return len(d) == 1 && d[0]
		}, time.Second, 10*time.Millisecond, "MUST report one unexpected disconnect")
		suite.Adapter.DialErr = nil
	})

	suite.Run("cancelled connect returns to IDLE", func() {
		// GOAL: Verify a connect cancelled after dialing closes the link and leaves the device reusable
		//
		// TEST SCENARIO: dial succeeds → ctx cancelled → service discovery fails → IDLE, link closed → reconnect works

		ctx, cancel := context.WithCancel(suite.Helper.Context(suite.TestTimeout))
		defer cancel()
		suite.Adapter.OnDial = func(*testutils.FakePeripheral) { cancel() }
		suite.device = suite.newDevice(testDeviceID, envMask)

		err := suite.device.Connect(ctx, nil)
		suite.Adapter.OnDial = nil

		suite.Assert().ErrorIs(err, context.Canceled)
		suite.Assert().Equal(device.StateIdle, suite.device.State(), "cancelled connect MUST return to IDLE")
		suite.Assert().False(suite.Peripheral.Connected(), "cancelled connect MUST close the link")
		err = suite.device.Disconnect(suite.Helper.Context(suite.TestTimeout))
		suite.Assert().ErrorIs(err, bluest.ErrInvalidOperation, "nothing MUST be left to disconnect")

		suite.connect(suite.device)
		suite.Require().NoError(suite.device.Disconnect(suite.Helper.Context(suite.TestTimeout)))
	})

	suite.Run("MTU exchange failure keeps the default", func() {
		suite.Peripheral.MTUErr = errors.New("mtu exchange not supported")
		suite.device = suite.newDevice(testDeviceID, envMask)
		suite.connect(suite.device)

		suite.Assert().Equal(transport.DefaultMTU, suite.device.MTU())
		suite.Require().NoError(suite.device.Disconnect(suite.Helper.Context(suite.TestTimeout)))
		suite.Peripheral.MTUErr = nil
	})

	suite.Run("PROTEUS skips the exchange", func() {
		suite.device = suite.newDevice(uint8(advertising.Proteus), envMask)
		suite.connect(suite.device)

		suite.Assert().Equal(transport.DefaultMTU, suite.device.MTU())
		suite.Require().NoError(suite.device.Disconnect(suite.Helper.Context(suite.TestTimeout)))
	})
}

func (suite *DeviceOperationsSuite) TestReadFeature() {
	// GOAL: Verify a read decodes every feature of the characteristic
	//
	// TEST SCENARIO: characteristic value [ts][humidity 40.0][temperature 23.8] → read temperature → both samples stored

	suite.Peripheral.Characteristic(feature.BaseUUID(envMask)).SetValue(envPayload(0x0010, 400, 238))
	suite.device = suite.newDevice(testDeviceID, envMask)
	suite.connect(suite.device)
	ctx := suite.Helper.Context(suite.TestTimeout)

	temperature := suite.feature(suite.device, "Temperature")
	s, err := suite.device.ReadFeature(ctx, temperature)
	suite.Require().NoError(err, "MUST read successfully")
	v, ok := s.Value("Temperature")
	suite.Require().True(ok)
	suite.Assert().InDelta(23.8, v, 1e-6)
	suite.Assert().Equal(uint32(0x0010), s.Timestamp)

	humidity := suite.feature(suite.device, "Humidity")
	v, ok = humidity.LastSample().Value("Humidity")
	suite.Require().True(ok, "sibling feature MUST be updated by the same read")
	suite.Assert().InDelta(40.0, v, 1e-6)

	suite.Run("read through the feature", func() {
		s, err := temperature.Read(ctx)
		suite.Require().NoError(err)
		suite.Assert().NotNil(s)
	})

	suite.Run("short payload", func() {
		suite.Peripheral.Characteristic(feature.BaseUUID(envMask)).SetValue([]byte{0x01})
		_, err := suite.device.ReadFeature(ctx, temperature)
		suite.Assert().ErrorIs(err, bluest.ErrInsufficientData)
		suite.Assert().True(suite.device.IsConnected(), "decoding errors MUST NOT drop the link")
	})

	suite.Run("link failure", func() {
		suite.Peripheral.ReadErr = errors.New("device not connected")
		_, err := suite.device.ReadFeature(ctx, temperature)
		suite.Assert().ErrorIs(err, bluest.ErrLinkError)
		suite.Assert().Equal(device.StateIdle, suite.device.State(), "link errors MUST drop the connection")
		suite.Peripheral.ReadErr = nil
	})
}

func (suite *DeviceOperationsSuite) TestWriteAndCommand() {
	suite.device = suite.newDevice(testDeviceID, envMask)
	suite.connect(suite.device)
	ctx := suite.Helper.Context(suite.TestTimeout)

	suite.Run("feature without write property", func() {
		err := suite.device.WriteFeature(ctx, suite.feature(suite.device, "Temperature"), []byte{1})
		suite.Assert().ErrorIs(err, bluest.ErrInvalidOperation)
	})

	suite.Run("command characteristic", func() {
		suite.Require().NoError(suite.device.SendCommand(ctx, []byte{0x00, 0x04, 0x00, 0x00, 0x01}))

		writes := suite.Peripheral.Writes()
		suite.Require().Len(writes, 1)
		suite.Assert().Equal(strings.ToLower(feature.CommandUUID), writes[0].UUID)
		suite.Assert().True(writes[0].WithResponse, "command MUST be written with response")
	})
}

func (suite *DeviceOperationsSuite) TestNotifications() {
	suite.device = suite.newDevice(testDeviceID, envMask)
	suite.connect(suite.device)
	ctx := suite.Helper.Context(suite.TestTimeout)
	uuid := feature.BaseUUID(envMask)

	temperature := suite.feature(suite.device, "Temperature")
	humidity := suite.feature(suite.device, "Humidity")

	suite.Run("delivers samples to listeners", func() {
		// GOAL: Verify notifications are decoded and dispatched to feature listeners

		collector := newSampleCollector()
		temperature.AddListener(collector)
		defer temperature.RemoveListener(collector)

		suite.Require().NoError(suite.device.EnableNotifications(ctx, temperature))
		suite.Assert().True(suite.device.NotificationsEnabled(temperature))
		suite.Assert().True(suite.Peripheral.Subscribed(uuid))

		suite.Require().True(suite.Peripheral.Notify(uuid, envPayload(0x0100, 512, -52)))

		select {
		case s := <-collector.samples:
			v, _ := s.Value("Temperature")
			suite.Assert().InDelta(-5.2, v, 1e-6)
		case <-time.After(time.Second):
			suite.Fail("listener MUST receive the sample")
		}
	})

	suite.Run("wait for notifications", func() {
		suite.Assert().False(suite.device.WaitForNotifications(50*time.Millisecond), "MUST time out without traffic")

		go func() {
			time.Sleep(50 * time.Millisecond)
			suite.Peripheral.Notify(uuid, envPayload(0x0200, 500, 200))
		}()
		suite.Assert().True(suite.device.WaitForNotifications(2*time.Second), "MUST observe the notification")
	})

	suite.Run("short notification is dropped", func() {
		before := temperature.LastSample()
		suite.Peripheral.Notify(uuid, []byte{0x00, 0x03, 0x01})
		suite.Assert().Same(before, temperature.LastSample(), "short payload MUST NOT produce a sample")
		suite.Assert().True(suite.device.IsConnected())
	})

	suite.Run("shared characteristic stays subscribed", func() {
		// GOAL: Verify the CCCD is cleared only when no feature of the characteristic notifies
		//
		// TEST SCENARIO: enable humidity too → disable temperature → still subscribed → disable humidity → unsubscribed

		suite.Require().NoError(suite.device.EnableNotifications(ctx, humidity))
		suite.Assert().Equal(1, suite.Peripheral.SubscribeCount(uuid), "shared characteristic MUST be subscribed once")

		suite.Require().NoError(suite.device.DisableNotifications(ctx, temperature))
		suite.Assert().True(suite.Peripheral.Subscribed(uuid), "humidity still notifies")
		suite.Assert().Equal(0, suite.Peripheral.UnsubscribeCount(uuid))

		suite.Require().NoError(suite.device.DisableNotifications(ctx, humidity))
		suite.Assert().False(suite.Peripheral.Subscribed(uuid))
		suite.Assert().Equal(1, suite.Peripheral.UnsubscribeCount(uuid))
	})
}

func (suite *DeviceOperationsSuite) TestDebugConsole() {
	suite.PeripheralBuilder = nil
	suite.WithPeripheral().
		WithMTU(24).
		WithBaseFeatures(feature.MaskTemperature).
		WithDebugConsole()
	suite.FakeRadioSuite.SetupTest()

	suite.device = suite.newDevice(testDeviceID, feature.MaskTemperature)
	suite.connect(suite.device)
	ctx := suite.Helper.Context(suite.TestTimeout)

	console := suite.device.DebugConsole()
	suite.Require().NotNil(console)
	suite.Require().NoError(console.Enable(ctx))

	suite.Run("stdin is split by MTU", func() {
		msg := strings.Repeat("x", 50)
		n, err := console.Write(ctx, msg)
		suite.Require().NoError(err)
		suite.Assert().Equal(50, n)

		writes := suite.Peripheral.Writes()
		suite.Require().Len(writes, 3, "50 bytes over a 24 byte MTU MUST take three writes")
		suite.Assert().Len(writes[0].Data, 24)
		suite.Assert().Len(writes[2].Data, 2)
		suite.Assert().False(writes[0].WithResponse, "stdin MUST use write without response")
	})

	suite.Run("stdout and stderr are buffered", func() {
		suite.Require().True(suite.Peripheral.Notify(feature.DebugStdInOutUUID, []byte("hello")))
		suite.Require().True(suite.Peripheral.Notify(feature.DebugStdErrUUID, []byte("oops")))

		buf := make([]byte, 64)
		n := console.ReadStdout(buf)
		suite.Assert().Equal("hello", string(buf[:n]))
		n = console.ReadStderr(buf)
		suite.Assert().Equal("oops", string(buf[:n]))
		suite.Assert().Zero(console.ReadStdout(buf), "buffer MUST be drained")
	})

	suite.Run("overflow is counted", func() {
		big := make([]byte, device.DefaultConsoleBufferSize+10)
		suite.Peripheral.Notify(feature.DebugStdInOutUUID, big)
		stdout, _ := console.Dropped()
		suite.Assert().Equal(uint64(10), stdout)
	})
}

func (suite *DeviceOperationsSuite) TestPnPLike() {
	// GOAL: Verify framed features get the link MTU and reassemble replies
	//
	// TEST SCENARIO: connect with MTU 64 → PnPLike MTU 64 → send command → reply frames → JSON sample

	suite.PeripheralBuilder = nil
	suite.WithPeripheral().
		WithMTU(64).
		WithExtendedFeature(feature.ExtPnPLike)
	suite.FakeRadioSuite.SetupTest()

	suite.device = suite.newDevice(testDeviceID, 0)
	suite.connect(suite.device)
	ctx := suite.Helper.Context(suite.TestTimeout)

	pnpl := suite.feature(suite.device, "PnPLike")
	dec, ok := feature.DecoderAs[*feature.PnPLike](pnpl)
	suite.Require().True(ok)
	suite.Assert().Equal(64, dec.Transport().MTU(), "PnPLike MUST frame with the link MTU")

	suite.Require().NoError(suite.device.EnableNotifications(ctx, pnpl))
	suite.Require().NoError(feature.SendPnPLCommand(ctx, pnpl, `{"get_status":"all"}`))
	suite.Assert().NotEmpty(suite.Peripheral.Writes(), "command MUST be written")

	collector := newSampleCollector()
	pnpl.AddListener(collector)

	reply := `{"devices":[{"board_id":14,"fw_id":1,"components":[{"log":{"enable":true}}]}]}`
	frames, err := transport.Encapsulate(reply, 20)
	suite.Require().NoError(err)
	uuid := feature.ExtendedUUID(feature.ExtPnPLike)
	for _, frame := range frames {
		suite.Require().True(suite.Peripheral.Notify(uuid, frame))
	}

	select {
	case s := <-collector.samples:
		suite.Assert().JSONEq(reply, s.Text)
		status, err := dec.DeviceStatus(s)
		suite.Require().NoError(err)
		suite.Require().NotNil(status.BoardID)
		suite.Assert().Equal(14, *status.BoardID)
	case <-time.After(time.Second):
		suite.Fail("PnPLike reply MUST produce one sample")
	}
}

func (suite *DeviceOperationsSuite) TestExternalFeatures() {
	// GOAL: Verify characteristics outside the BlueST convention bind to external decoders

	custom := "0000ff01-0000-1000-8000-00805f9b34fb"
	suite.PeripheralBuilder = nil
	suite.WithPeripheral().
		WithService("0000ff00-0000-1000-8000-00805f9b34fb").
		WithCharacteristic(custom, "read,notify", []byte{0x01, 0x00, 0x2a})
	suite.FakeRadioSuite.SetupTest()

	suite.device = suite.newDevice(testDeviceID, 0)
	err := suite.device.Connect(suite.Helper.Context(suite.TestTimeout), map[string]feature.Constructor{
		custom: feature.NewMotionIntensity,
	})
	suite.Require().NoError(err)

	f := suite.feature(suite.device, "MotionIntensity")
	s, err := suite.device.ReadFeature(suite.Helper.Context(suite.TestTimeout), f)
	suite.Require().NoError(err)
	v, _ := s.At(0)
	suite.Assert().Equal(42.0, v)
}

func (suite *DeviceOperationsSuite) TestExtendedMaskCollision() {
	// GOAL: Verify two discovered characteristics with the same extended mask keep the first binding
	//
	// TEST SCENARIO: PnPLike in the feature service and again in a second service → one feature → bound to the first handle

	uuid := feature.ExtendedUUID(feature.ExtPnPLike)
	suite.PeripheralBuilder = nil
	suite.WithPeripheral().
		WithExtendedFeature(feature.ExtPnPLike).
		WithService("0000ff00-0000-1000-8000-00805f9b34fb").
		WithCharacteristic(uuid, "read,write,notify", nil)
	suite.FakeRadioSuite.SetupTest()

	hook := suite.captureLogs()
	suite.device = suite.newDevice(testDeviceID, 0)
	suite.connect(suite.device)

	pnpl := device.FeaturesOf[*feature.PnPLike](suite.device)
	suite.Require().Len(pnpl, 1, "colliding mask MUST produce one feature")
	handle, bound := pnpl[0].Characteristic()
	suite.Require().True(bound)
	suite.Assert().Equal(suite.Peripheral.Characteristic(uuid).Handle(), handle, "first characteristic MUST keep the feature")
	suite.Assert().Equal(uint16(0x0010), handle)

	warns := warnings(hook)
	suite.Require().Len(warns, 1, "collision MUST be reported once")
	suite.Assert().Contains(warns[0], "collision")
}

func (suite *DeviceOperationsSuite) TestCharacteristicAssignment() {
	// GOAL: Verify a feature exported by several characteristics uses the one carrying the most features

	suite.Run("multi-feature characteristic wins", func() {
		// TEST SCENARIO: temperature alone at 0x0010, temperature|humidity at 0x0012 → temperature bound to 0x0012

		suite.PeripheralBuilder = nil
		suite.WithPeripheral().
			WithBaseFeatures(feature.MaskTemperature).
			WithBaseFeatures(feature.MaskTemperature | feature.MaskHumidity)
		suite.FakeRadioSuite.SetupTest()

		suite.device = suite.newDevice(testDeviceID, envMask)
		suite.connect(suite.device)

		multi := suite.Peripheral.Characteristic(feature.BaseUUID(envMask)).Handle()
		for _, name := range []string{"Temperature", "Humidity"} {
			handle, bound := suite.feature(suite.device, name).Characteristic()
			suite.Require().True(bound, "%s MUST be bound", name)
			suite.Assert().Equal(multi, handle, "%s MUST use the multi-feature characteristic", name)
		}
		suite.Assert().Len(suite.device.Features(), 2, "shared masks MUST reuse the same features")
		suite.Require().NoError(suite.device.Disconnect(suite.Helper.Context(suite.TestTimeout)))
	})

	suite.Run("tie goes to the lowest handle", func() {
		// TEST SCENARIO: temperature alone at 0x0010 and again at 0x0012 → temperature bound to 0x0010

		suite.PeripheralBuilder = nil
		suite.WithPeripheral().
			WithBaseFeatures(feature.MaskTemperature).
			WithService("0000ff00-0000-1000-8000-00805f9b34fb").
			WithCharacteristic(feature.BaseUUID(feature.MaskTemperature), "read,notify", nil)
		suite.FakeRadioSuite.SetupTest()

		suite.device = suite.newDevice(testDeviceID, feature.MaskTemperature)
		suite.connect(suite.device)

		handle, bound := suite.feature(suite.device, "Temperature").Characteristic()
		suite.Require().True(bound)
		suite.Assert().Equal(uint16(0x0010), handle, "equal candidates MUST resolve to the lowest handle")
		suite.Require().NoError(suite.device.Disconnect(suite.Helper.Context(suite.TestTimeout)))
	})
}

func TestDeviceOperationsSuite(t *testing.T) {
	suite.Run(t, new(DeviceOperationsSuite))
}
