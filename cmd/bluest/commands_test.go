//go:build test

package main

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/internal/testutils"
	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/feature"
)

type CommandsTestSuite struct {
	CommandTestSuite
}

// envPayload is a base payload carrying humidity then temperature.
func envPayload(ts uint16, humidityTenths uint16, temperatureTenths int16) []byte {
	return []byte{
		byte(ts), byte(ts >> 8),
		byte(humidityTenths), byte(humidityTenths >> 8),
		byte(uint16(temperatureTenths)), byte(uint16(temperatureTenths) >> 8),
	}
}

// ----------------------------
// scan
// ----------------------------

func (s *CommandsTestSuite) TestScanTable() {
	// GOAL: Verify scan lists BlueST nodes and skips foreign advertisements
	//
	// TEST SCENARIO: two BlueST nodes + one foreign advertisement → table with two rows

	s.Advertise("SENSOR", TestDeviceAddress1, 0x06, feature.MaskTemperature|feature.MaskHumidity)
	s.Advertise("BCN", TestDeviceAddress2, 0x03, feature.MaskAccelerometer)
	s.Adapter.AddAdvertisements(testutils.NewAdvertisementBuilder().
		WithAddress("11:22:33:44:55:66").
		WithManufacturerData([]byte{0x4C, 0x00, 0x02}).
		Build())

	out, err := s.ExecuteCommand("scan", "--timeout", "200ms")
	s.Require().NoError(err, "scan MUST succeed")

	textAsserter := testutils.NewTextAsserter(s.T())
	textAsserter.Assert(out, `
NAME    ADDRESS            RSSI     TYPE              PROTOCOL  ID          FEATURES              STATUS
----    -------            ----     ----              --------  --          --------              ------
BCN     C0:FF:EE:00:00:02  -50 dBm  STEVAL_BCNKT01V1  V1        0x00800000  Accelerometer         active
SENSOR  C0:FF:EE:00:00:01  -50 dBm  STEVAL_MKSBOX1V1  V1        0x000C0000  Humidity,Temperature  active
`)
}

func (s *CommandsTestSuite) TestScanJSON() {
	// GOAL: Verify the JSON scan output carries the decoded identity

	s.Advertise("SENSOR", TestDeviceAddress1, 0x06, feature.MaskTemperature)

	out, err := s.ExecuteCommand("scan", "--timeout", "200ms", "--json")
	s.Require().NoError(err)

	var entries []scanEntry
	s.Require().NoError(json.Unmarshal([]byte(out), &entries), "output MUST be JSON")
	s.Require().Len(entries, 1)
	s.Assert().Equal("SENSOR", entries[0].Name)
	s.Assert().Equal(TestDeviceAddress1, entries[0].Address)
	s.Assert().Equal("V1", entries[0].Protocol)
	s.Assert().Equal("0x06", entries[0].DeviceID)
	s.Assert().Equal("0x00040000", entries[0].Mask)
	s.Assert().Equal([]string{"Temperature"}, entries[0].Features)
	s.Assert().False(entries[0].Sleeping)
}

func (s *CommandsTestSuite) TestScanDecodeLE() {
	// GOAL: Verify --decode-le attaches BlueST-LE telemetry from the LE catalog

	s.Adapter.AddAdvertisements(testutils.NewAdvertisementBuilder().
		WithName("ASTRA").
		WithAddress(TestDeviceAddress2).
		WithVLE(0x0C, 0xFE, 0x00, []byte{0x66, 0x66, 0xbe, 0x41, 0x00, 0x00, 0x20, 0x42, 0x66, 0x86, 0x79, 0x44}).
		Build())

	out, err := s.ExecuteCommand("scan", "--timeout", "200ms", "--json", "--decode-le")
	s.Require().NoError(err)

	var entries []scanEntry
	s.Require().NoError(json.Unmarshal([]byte(out), &entries))
	s.Require().Len(entries, 1)
	s.Assert().Equal("VLE", entries[0].Protocol)
	s.Assert().JSONEq(`{"environmental":{"temperature":23.8,"humidity":40,"pressure":998.1}}`, string(entries[0].Telemetry))
}

func (s *CommandsTestSuite) TestScanPassive() {
	// GOAL: Verify --passive reaches the radio

	_, err := s.ExecuteCommand("scan", "--timeout", "100ms", "--passive")
	s.Require().NoError(err)
	s.Assert().True(s.Adapter.LastScanOptions().Passive, "passive flag MUST reach the adapter")
}

func (s *CommandsTestSuite) TestScanFailure() {
	// GOAL: Verify a radio failure surfaces with a readable message

	s.Adapter.ScanErr = radio.ErrBluetoothOff

	_, err := s.ExecuteCommand("scan", "--timeout", "200ms")
	s.Require().Error(err)
	s.Assert().ErrorIs(err, bluest.ErrLinkError)
	s.Assert().Contains(FormatUserError(err), "Bluetooth is turned off")
}

func (s *CommandsTestSuite) TestInvalidLogLevel() {
	_, err := s.ExecuteCommand("scan", "--log-level", "loud")
	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "invalid log level")
}

// ----------------------------
// decode
// ----------------------------

func (s *CommandsTestSuite) TestDecode() {
	// GOAL: Verify offline decoding of manufacturer data and whole payloads

	v1 := hex.EncodeToString(advertising.EncodeV1(0x06, feature.MaskTemperature|feature.MaskPressure, nil))

	s.Run("V1 manufacturer data", func() {
		out, err := s.ExecuteCommand("decode", "--json", "--name", "SENSOR", v1)
		s.Require().NoError(err)

		var v identityView
		s.Require().NoError(json.Unmarshal([]byte(out), &v))
		s.Assert().Equal("SENSOR", v.Name)
		s.Assert().Equal("V1", v.Protocol)
		s.Assert().Equal("STEVAL_MKSBOX1V1", v.Type)
		s.Assert().Equal("0x00140000", v.Mask)
		s.Assert().Equal([]string{"Pressure", "Temperature"}, v.Features, "features MUST be listed most significant bit first")
	})

	s.Run("spaced hex", func() {
		out, err := s.ExecuteCommand("decode", "30", "00", "02", "0E", "01", "AA", "BB", "CC")
		s.Require().NoError(err)
		s.Assert().Contains(out, "STEVAL_STWINBX1")
		s.Assert().Contains(out, "0x01")
		s.Assert().Contains(out, "AA BB CC")
	})

	s.Run("advertising records", func() {
		mfg := advertising.EncodeV1(0x06, feature.MaskTemperature, nil)
		raw := []byte{0x07, advertising.TypeCompleteLocalName, 'S', 'E', 'N', 'S', 'O', 'R'}
		raw = append(raw, byte(len(mfg)+1), advertising.TypeManufacturerData)
		raw = append(raw, mfg...)

		out, err := s.ExecuteCommand("decode", "--records", "--json", hex.EncodeToString(raw))
		s.Require().NoError(err)
		var v identityView
		s.Require().NoError(json.Unmarshal([]byte(out), &v))
		s.Assert().Equal("SENSOR", v.Name, "name MUST come from the local name record")
	})

	tests := []struct {
		name string
		arg  string
		err  error
	}{
		{name: "not hex", arg: "zz"},
		{name: "foreign manufacturer", arg: "4c0002150000", err: bluest.ErrUnknownManufacturerID},
		{name: "bad length", arg: "0106", err: bluest.ErrUnsupportedPayloadLength},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.ExecuteCommand("decode", tt.arg)
			s.Require().Error(err)
			if tt.err != nil {
				s.Assert().ErrorIs(err, tt.err)
			}
		})
	}
}

// ----------------------------
// listen
// ----------------------------

func (s *CommandsTestSuite) TestListen() {
	// GOAL: Verify listen connects, enables the selected feature and prints its samples
	//
	// TEST SCENARIO: scan → connect → subscribe → notifications → JSON lines for Temperature only

	s.Advertise("SENSOR", TestDeviceAddress1, 0x06, feature.MaskTemperature|feature.MaskHumidity)
	uuid := feature.BaseUUID(feature.MaskTemperature | feature.MaskHumidity)
	done := make(chan struct{})
	defer close(done)
	s.NotifyUntil(done, uuid, envPayload(100, 455, 235))

	out, err := s.ExecuteCommand("listen", TestDeviceAddress1, "--feature", "temperature", "--duration", "400ms", "--json")
	s.Require().NoError(err, "listen MUST end cleanly after the duration")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().NotEmpty(lines[0], "at least one sample MUST be printed")
	for _, line := range lines {
		var v sampleView
		s.Require().NoError(json.Unmarshal([]byte(line), &v), "every line MUST be JSON: %q", line)
		s.Assert().Equal("Temperature", v.Feature, "only the selected feature MUST be printed")
		s.Assert().InDelta(23.5, v.Values["Temperature"], 0.001)
	}
	s.Assert().Equal(1, s.Peripheral.UnsubscribeCount(uuid), "notifications MUST be disabled on exit")
	s.Assert().False(s.Peripheral.Connected(), "device MUST be disconnected on exit")
}

func (s *CommandsTestSuite) TestListenUnknownFeature() {
	s.Advertise("SENSOR", TestDeviceAddress1, 0x06, feature.MaskTemperature|feature.MaskHumidity)

	_, err := s.ExecuteCommand("listen", TestDeviceAddress1, "--feature", "Gyroscope", "--duration", "100ms")
	s.Require().Error(err)
	s.Assert().Contains(err.Error(), `feature "Gyroscope" not found`)
	s.Assert().Contains(err.Error(), "Temperature")
}

func (s *CommandsTestSuite) TestListenDeviceNotFound() {
	_, err := s.ExecuteCommand("listen", TestDeviceAddress2, "--duration", "100ms")
	s.Require().Error(err)
	s.Assert().ErrorIs(err, ErrDeviceNotFound)
}

func (s *CommandsTestSuite) TestListenConnectionLost() {
	// GOAL: Verify an unexpected drop ends listen with ErrConnectionLost

	s.Advertise("SENSOR", TestDeviceAddress1, 0x06, feature.MaskTemperature|feature.MaskHumidity)
	uuid := feature.BaseUUID(feature.MaskTemperature | feature.MaskHumidity)
	go func() {
		deadline := time.Now().Add(s.TestTimeout)
		for !s.Peripheral.Subscribed(uuid) && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		s.Peripheral.Drop()
	}()

	_, err := s.ExecuteCommand("listen", TestDeviceAddress1)
	s.Require().Error(err)
	s.Assert().ErrorIs(err, ErrConnectionLost)
	s.Assert().Contains(FormatUserError(err), "dropped the connection")
}

// ----------------------------
// pnpl
// ----------------------------

func (s *CommandsTestSuite) TestPnPL() {
	// GOAL: Verify pnpl frames the command and prints the reassembled reply

	s.ResetPeripheral(func(b *testutils.PeripheralDeviceBuilder) {
		b.WithExtendedFeature(feature.ExtPnPLike)
	})
	s.Advertise("STWIN", TestDeviceAddress1, 0x06, 0)
	uuid := feature.ExtendedUUID(feature.ExtPnPLike)
	s.ReplyOnWrite(uuid, `{"devices":[{"board_id":14,"fw_id":1,"components":[{"log":{"enable":true}}]}]}`)

	out, err := s.ExecuteCommand("pnpl", TestDeviceAddress1, `{"get_status":"all"}`)
	s.Require().NoError(err, "pnpl MUST receive the reply")

	var reply map[string]any
	s.Require().NoError(json.Unmarshal([]byte(out), &reply), "reply MUST be printed as JSON")
	s.Assert().Contains(out, `"board_id": 14`, "reply MUST be indented")
	s.Assert().NotEmpty(s.Peripheral.Writes(), "command MUST be written")
}

func (s *CommandsTestSuite) TestPnPLErrors() {
	s.Run("invalid JSON", func() {
		_, err := s.ExecuteCommand("pnpl", TestDeviceAddress1, `{"get_status"`)
		s.Require().Error(err)
		s.Assert().Contains(err.Error(), "not valid JSON")
	})

	s.Run("no PnPLike feature", func() {
		s.Advertise("SENSOR", TestDeviceAddress1, 0x06, feature.MaskTemperature)
		_, err := s.ExecuteCommand("pnpl", TestDeviceAddress1, `{"get_status":"all"}`)
		s.Require().Error(err)
		s.Assert().Contains(err.Error(), "no PnPLike feature")
	})
}

// ----------------------------
// catalog
// ----------------------------

func (s *CommandsTestSuite) TestCatalog() {
	// GOAL: Verify catalog lookups print entries, features and models

	s.Run("V2 table", func() {
		out, err := s.ExecuteCommand("catalog", "0x0E", "01")
		s.Require().NoError(err)
		s.Assert().Contains(out, "STWIN.box")
		s.Assert().Contains(out, "DATALOG2 1.2.0")
		s.Assert().Regexp(`Environmental\s+base\s+0x000C0000`, out)
		s.Assert().Regexp(`PnPLike\s+extended\s+0x0000001B`, out)
	})

	s.Run("V1 JSON", func() {
		out, err := s.ExecuteCommand("catalog", "06", "--json")
		s.Require().NoError(err)
		s.Assert().Contains(out, `"brd_name": "SensorTile.box"`)
	})

	s.Run("model", func() {
		out, err := s.ExecuteCommand("catalog", "0E", "01", "--model")
		s.Require().NoError(err)
		s.Assert().Contains(out, `"@type": "Interface"`)
	})

	s.Run("unknown board", func() {
		_, err := s.ExecuteCommand("catalog", "0E", "7F")
		s.Require().Error(err)
		s.Assert().ErrorIs(err, bluest.ErrCatalogLookupFailed)
		s.Assert().Contains(FormatUserError(err), "catalog unavailable")
	})

	s.Run("invalid id", func() {
		_, err := s.ExecuteCommand("catalog", "0x1FF")
		s.Require().Error(err)
		s.Assert().Contains(err.Error(), "hex byte")
	})
}

func TestCommandsTestSuite(t *testing.T) {
	suite.Run(t, new(CommandsTestSuite))
}
