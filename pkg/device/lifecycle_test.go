//go:build test

//go:generate go run github.com/srgg/testify/depend/cmd/dependgen

package device_test

import (
	"testing"
	"time"

	"github.com/srgg/testify/depend"

	"github.com/srg/bluest/pkg/device"
	"github.com/srg/bluest/pkg/feature"
)

// LifecycleTestSuite walks one device through connect, notify, link loss and
// reconnect. Tests share the device and run in dependency order.
type LifecycleTestSuite struct {
	DeviceTestSuite

	recorder *stateRecorder
}

func (suite *LifecycleTestSuite) SetupSuite() {
	suite.DeviceTestSuite.SetupSuite()
	suite.FakeRadioSuite.SetupTest()

	suite.recorder = &stateRecorder{}
	suite.device = suite.newDevice(testDeviceID, envMask)
	suite.device.AddListener(suite.recorder)
}

// the device outlives single tests
func (suite *LifecycleTestSuite) SetupTest()    {}
func (suite *LifecycleTestSuite) TearDownTest() {}

func (suite *LifecycleTestSuite) TearDownSuite() {
	suite.DeviceTestSuite.TearDownTest()
}

func (suite *LifecycleTestSuite) TestConnect() {
	// GOAL: Verify IDLE → CONNECTED reports exactly one connect

	suite.connect(suite.device)

	suite.Assert().Eventually(func() bool {
		c, _ := suite.recorder.snapshot()
		return c == 1
	}, time.Second, 10*time.Millisecond, "MUST report one connect")
}

// @dependsOn TestConnect
func (suite *LifecycleTestSuite) TestNotify() {
	temperature := suite.feature(suite.device, "Temperature")
	suite.Require().NoError(suite.device.EnableNotifications(suite.Helper.Context(suite.TestTimeout), temperature))

	suite.Peripheral.Notify(feature.BaseUUID(envMask), envPayload(0xFFF0, 400, 250))
	suite.Peripheral.Notify(feature.BaseUUID(envMask), envPayload(0x0005, 400, 251))

	s := temperature.LastSample()
	suite.Require().NotNil(s)
	suite.Assert().Equal(uint32(0x10005), s.Timestamp, "timestamp MUST unwrap past the 16-bit rollover")
	suite.Assert().Len(temperature.DrainSamples(), 2, "history MUST keep both samples")
}

// @dependsOn TestNotify
func (suite *LifecycleTestSuite) TestUnexpectedDisconnect() {
	// GOAL: Verify a link drop ends in IDLE with exactly one unexpected disconnect
	//
	// TEST SCENARIO: peripheral drops → UNREACHABLE → IDLE → OnDisconnect(true) once → features detached

	temperature := suite.feature(suite.device, "Temperature")
	suite.Peripheral.Drop()

	suite.Require().Eventually(func() bool {
		return suite.device.State() == device.StateIdle
	}, time.Second, 10*time.Millisecond, "device MUST return to IDLE")

	suite.Require().Eventually(func() bool {
		_, d := suite.recorder.snapshot()
		return len(d) == 1
	}, time.Second, 10*time.Millisecond, "MUST report a disconnect")
	time.Sleep(50 * time.Millisecond)
	_, d := suite.recorder.snapshot()
	suite.Assert().Equal([]bool{true}, d, "MUST report exactly one unexpected disconnect")

	suite.Assert().Nil(temperature.Owner(), "implemented features MUST be detached")
	suite.Assert().False(temperature.Notifying())
	err := suite.device.EnableNotifications(suite.Helper.Context(suite.TestTimeout), temperature)
	suite.Assert().Error(err, "detached feature MUST NOT notify")
}

// @dependsOn TestUnexpectedDisconnect
func (suite *LifecycleTestSuite) TestReconnect() {
	suite.connect(suite.device)

	temperature := suite.feature(suite.device, "Temperature")
	suite.Require().NoError(suite.device.EnableNotifications(suite.Helper.Context(suite.TestTimeout), temperature))
	suite.Peripheral.Notify(feature.BaseUUID(envMask), envPayload(0x0002, 400, 252))

	s := temperature.LastSample()
	suite.Require().NotNil(s)
	suite.Assert().Equal(uint32(0x0002), s.Timestamp, "timestamps MUST restart on a new link")

	suite.Assert().Eventually(func() bool {
		c, _ := suite.recorder.snapshot()
		return c == 2
	}, time.Second, 10*time.Millisecond, "MUST report the second connect")
}

func TestLifecycleTestSuite(t *testing.T) {
	depend.RunSuite(t, new(LifecycleTestSuite))
}
