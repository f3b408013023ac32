//go:build test

package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/internal/testutils"
	"github.com/srg/bluest/pkg/feature"
	"github.com/srg/bluest/pkg/transport"
)

// Test node addresses
const (
	TestDeviceAddress1 = "C0:FF:EE:00:00:01"
	TestDeviceAddress2 = "C0:FF:EE:00:00:02"
)

// CommandTestSuite runs commands against the fake radio and a local
// catalog server. All cmd/bluest suites embed it.
type CommandTestSuite struct {
	testutils.FakeRadioSuite

	server          *httptest.Server
	configPath      string
	originalAdapter func(*logrus.Logger) radio.Adapter
}

func (s *CommandTestSuite) SetupTest() {
	s.FakeRadioSuite.SetupTest()

	s.originalAdapter = newAdapter
	newAdapter = func(*logrus.Logger) radio.Adapter { return s.Adapter }

	if s.server == nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/catalog.json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(testCatalogJSON))
		})
		mux.HandleFunc("/le.json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(testLECatalogJSON))
		})
		mux.HandleFunc("/dtmi/appconfig/steval_stwinbx1/fpsnsdatalog2_datalog2-4.json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(testModelJSON))
		})
		s.server = httptest.NewServer(mux)
	}

	dir := s.T().TempDir()
	s.configPath = filepath.Join(dir, "bluest.yaml")
	cfg := fmt.Sprintf(`
log_level: error
scan_timeout: 500ms
connect_timeout: 5s
stop_poll_interval: 10ms
worker_count: 2
dispatch_queue: 64
catalog_url: %[1]s/catalog.json
catalog_cache_path: %[2]s
catalog_timeout: 2s
model_repository_url: %[1]s
le_catalog_url: %[1]s/le.json
`, s.server.URL, filepath.Join(dir, "ble_catalog.json"))
	s.Require().NoError(os.WriteFile(s.configPath, []byte(cfg), 0o644), "config file MUST be written")
}

func (s *CommandTestSuite) TearDownTest() {
	newAdapter = s.originalAdapter
	s.FakeRadioSuite.TearDownTest()
}

func (s *CommandTestSuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
}

// ResetPeripheral rebuilds the adapter around a peripheral configured by fn.
func (s *CommandTestSuite) ResetPeripheral(fn func(b *testutils.PeripheralDeviceBuilder)) {
	s.PeripheralBuilder = nil
	fn(s.WithPeripheral())
	s.FakeRadioSuite.SetupTest()
}

// Advertise queues BlueST V1 advertisements for the next scan.
func (s *CommandTestSuite) Advertise(name, address string, deviceID uint8, mask uint32) {
	s.Adapter.AddAdvertisements(testutils.NewAdvertisementBuilder().
		WithName(name).
		WithAddress(address).
		WithV1(deviceID, mask, nil).
		Build())
}

// ExecuteCommand runs the root command with the suite config and returns
// everything written to stdout and stderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd := newRootCmd()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", s.configPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// NotifyUntil pushes payload to uuid every few milliseconds until done is
// closed. Notifications sent before the subscription are lost, as on air.
func (s *CommandTestSuite) NotifyUntil(done <-chan struct{}, uuid string, payload []byte) {
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Peripheral.Notify(uuid, payload)
			}
		}
	}()
}

// ReplyOnWrite answers the first write to uuid with the framed reply.
func (s *CommandTestSuite) ReplyOnWrite(uuid, reply string) {
	frames, err := transport.Encapsulate(reply, transport.DefaultMTU)
	s.Require().NoError(err)
	target := radio.NormalizeUUID(uuid)
	var once sync.Once
	s.Peripheral.OnWrite = func(p *testutils.FakePeripheral, c *testutils.FakeCharacteristic, data []byte) {
		if c.UUID() != target {
			return
		}
		once.Do(func() {
			go func() {
				for _, frame := range frames {
					p.Notify(target, frame)
				}
			}()
		})
	}
}

var testCatalogJSON = `{
  "bluestsdk_v1": [
    {"ble_dev_id": "0x06", "brd_name": "SensorTile.box", "characteristics": []}
  ],
  "bluestsdk_v2": [
    {
      "ble_dev_id": "0E",
      "ble_fw_id": "0x01",
      "brd_name": "STWIN.box",
      "fw_name": "DATALOG2",
      "fw_version": "1.2.0",
      "dtmi": "dtmi:appconfig:steval_stwinbx1:fpSnsDatalog2_datalog2;4",
      "characteristics": [
        {"uuid": "` + feature.BaseUUID(feature.MaskTemperature|feature.MaskHumidity) + `", "name": "Environmental"},
        {"uuid": "` + feature.ExtendedUUID(feature.ExtPnPLike) + `", "name": "PnPLike", "dtmi_name": "pnpl"}
      ]
    }
  ]
}`

var testModelJSON = `{"@id":"dtmi:appconfig:steval_stwinbx1:fpSnsDatalog2_datalog2;4","@type":"Interface"}`

var testLECatalogJSON = `[
  {
    "device_id": "0x0C",
    "fw_id": "0xFE",
    "payload_id": "0x00",
    "component": "environmental",
    "decoding_schema": [
      {"telemetry": "temperature", "type": "float"},
      {"telemetry": "humidity", "type": "float"},
      {"telemetry": "pressure", "type": "float"}
    ]
  }
]`
