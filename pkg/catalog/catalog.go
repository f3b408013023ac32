// Package catalog resolves BlueST V2 nodes against the published device
// catalog and fetches their DTDL device models.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/feature"
)

const (
	DefaultURL                = "https://raw.githubusercontent.com/STMicroelectronics/appconfig/release/bluestsdkv2/catalog.json"
	DefaultModelRepositoryURL = "https://raw.githubusercontent.com/STMicroelectronics/appconfig/release"
	DefaultCacheFile          = "ble_catalog.json"
	DefaultTimeout            = 10 * time.Second
	DefaultRetryBackoff       = 30 * time.Second
)

// Characteristic is one characteristic a catalog entry declares.
type Characteristic struct {
	UUID         string          `json:"uuid"`
	Name         string          `json:"name"`
	DTMIName     string          `json:"dtmi_name,omitempty"`
	FormatNotify json.RawMessage `json:"format_notify,omitempty"`
	FormatWrite  json.RawMessage `json:"format_write,omitempty"`
}

// Entry describes one board and firmware combination. Ids are hex strings
// as published ("0x0E" or "0E").
type Entry struct {
	DeviceID        string           `json:"ble_dev_id"`
	FirmwareID      string           `json:"ble_fw_id,omitempty"`
	BoardName       string           `json:"brd_name,omitempty"`
	FirmwareName    string           `json:"fw_name,omitempty"`
	FirmwareVersion string           `json:"fw_version,omitempty"`
	DTMI            string           `json:"dtmi,omitempty"`
	Characteristics []Characteristic `json:"characteristics"`
}

// DeclaredFeature is a catalog characteristic classified by its UUID.
type DeclaredFeature struct {
	UUID string
	Name string
	Kind feature.CharacteristicKind
	Mask uint32
}

// Features classifies the declared characteristics. Characteristics that
// are neither base nor extended feature characteristics are skipped.
func (e *Entry) Features() []DeclaredFeature {
	out := make([]DeclaredFeature, 0, len(e.Characteristics))
	for _, c := range e.Characteristics {
		kind, mask := feature.Classify(c.UUID)
		if kind != feature.KindBase && kind != feature.KindExtended {
			continue
		}
		out = append(out, DeclaredFeature{UUID: c.UUID, Name: c.Name, Kind: kind, Mask: mask})
	}
	return out
}

func (e *Entry) matches(deviceID uint8, firmwareID *uint8) bool {
	dev, err := parseHexID(e.DeviceID)
	if err != nil || dev != deviceID {
		return false
	}
	if firmwareID == nil {
		return true
	}
	fw, err := parseHexID(e.FirmwareID)
	return err == nil && fw == *firmwareID
}

func parseHexID(s string) (uint8, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 8)
	return uint8(v), err
}

// document is the catalog file layout.
type document struct {
	V1 []Entry `json:"bluestsdk_v1"`
	V2 []Entry `json:"bluestsdk_v2"`
}

// Options configures a Manager. Zero values are replaced with defaults.
type Options struct {
	Logger             *logrus.Logger
	URL                string
	ModelRepositoryURL string
	// CachePath is where the last downloaded catalog is stored. A leading
	// "~" expands to the home directory.
	CachePath string
	Timeout   time.Duration
	Client    *http.Client

	// RetryBackoff is how long lookups return the last sync failure before
	// trying the network again.
	RetryBackoff time.Duration
}

// Manager downloads the device catalog on first use and falls back to the
// cached copy when the download fails.
type Manager struct {
	logger *logrus.Logger
	client *http.Client
	opts   Options

	mu  sync.RWMutex
	doc *document

	// syncMu serializes lazy synchronization.
	syncMu     sync.Mutex
	failedAt   time.Time
	lastFailed error
}

func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.ModelRepositoryURL == "" {
		opts.ModelRepositoryURL = DefaultModelRepositoryURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	opts.CachePath = expandHome(opts.CachePath)
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Manager{logger: opts.Logger, client: client, opts: opts}
}

func expandHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	switch {
	case path == "":
		return filepath.Join(home, DefaultCacheFile)
	case path == "~":
		return home
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(home, path[2:])
	}
	return path
}

// CachePath returns the resolved cache file location.
func (m *Manager) CachePath() string { return m.opts.CachePath }

// Synchronize downloads the catalog and stores it in the cache file. When
// the download fails the cached copy is loaded instead; with no cache either
// it fails with CatalogLookupFailed.
func (m *Manager) Synchronize(ctx context.Context) error {
	log := m.logger.WithField("url", m.opts.URL)
	log.Debug("Downloading device catalog...")

	raw, fetchErr := m.get(ctx, m.opts.URL)
	if fetchErr == nil {
		doc, err := decode(raw)
		if err == nil {
			m.store(doc)
			if err := os.WriteFile(m.opts.CachePath, raw, 0o644); err != nil {
				log.WithError(err).WithField("path", m.opts.CachePath).Warn("Cannot store device catalog cache")
			}
			log.WithField("boards", len(doc.V1)+len(doc.V2)).Info("Device catalog synchronized")
			return nil
		}
		fetchErr = err
	}

	log.WithError(fetchErr).WithField("path", m.opts.CachePath).Warn("Device catalog download failed, using local cache")
	raw, err := os.ReadFile(m.opts.CachePath)
	if err != nil {
		return bluest.Wrap(bluest.CatalogLookupFailed, fetchErr,
			fmt.Sprintf("catalog unreachable and no local cache at %s", m.opts.CachePath))
	}
	doc, err := decode(raw)
	if err != nil {
		return bluest.Wrap(bluest.CatalogLookupFailed, err, "local catalog cache is corrupt")
	}
	m.store(doc)
	return nil
}

func decode(raw []byte) (*document, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode device catalog: %w", err)
	}
	return &doc, nil
}

func (m *Manager) store(doc *document) {
	m.mu.Lock()
	m.doc = doc
	m.mu.Unlock()
}

func (m *Manager) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// loaded synchronizes once on first use. A failed sync is remembered for
// RetryBackoff so lookups do not hit the network on every call.
func (m *Manager) loaded(ctx context.Context) (*document, error) {
	if doc := m.current(); doc != nil {
		return doc, nil
	}

	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	if doc := m.current(); doc != nil {
		return doc, nil
	}
	if m.lastFailed != nil && time.Since(m.failedAt) < m.opts.RetryBackoff {
		return nil, m.lastFailed
	}
	if err := m.Synchronize(ctx); err != nil {
		if ctx.Err() == nil {
			m.failedAt = time.Now()
			m.lastFailed = err
		}
		return nil, err
	}
	m.lastFailed = nil
	return m.current(), nil
}

func (m *Manager) current() *document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc
}

// ----------------------------
// Lookups
// ----------------------------

// Entry returns the V2 entry for a device and firmware id.
func (m *Manager) Entry(ctx context.Context, deviceID, firmwareID uint8) (*Entry, error) {
	doc, err := m.loaded(ctx)
	if err != nil {
		return nil, err
	}
	for i := range doc.V2 {
		if doc.V2[i].matches(deviceID, &firmwareID) {
			return &doc.V2[i], nil
		}
	}
	return nil, bluest.Errorf(bluest.CatalogLookupFailed, "no catalog entry for device 0x%02X firmware 0x%02X", deviceID, firmwareID)
}

// EntryV1 returns the V1 entry for a device id.
func (m *Manager) EntryV1(ctx context.Context, deviceID uint8) (*Entry, error) {
	doc, err := m.loaded(ctx)
	if err != nil {
		return nil, err
	}
	for i := range doc.V1 {
		if doc.V1[i].matches(deviceID, nil) {
			return &doc.V1[i], nil
		}
	}
	return nil, bluest.Errorf(bluest.CatalogLookupFailed, "no catalog entry for device 0x%02X", deviceID)
}

// DeclaredCharacteristics lists the characteristic UUIDs of a V2 entry. It
// lets a Manager serve as the device catalog resolver.
func (m *Manager) DeclaredCharacteristics(ctx context.Context, deviceID, firmwareID uint8) ([]string, error) {
	e, err := m.Entry(ctx, deviceID, firmwareID)
	if err != nil {
		return nil, err
	}
	uuids := make([]string, 0, len(e.Characteristics))
	for _, c := range e.Characteristics {
		m.logger.WithFields(logrus.Fields{
			"uuid": c.UUID,
			"name": c.Name,
		}).Debug("Characteristic declared")
		uuids = append(uuids, c.UUID)
	}
	return uuids, nil
}

// ----------------------------
// Device models
// ----------------------------

// ModelPath maps a DTMI to its path in a model repository:
// "dtmi:com:example:Thermostat;1" becomes "dtmi/com/example/thermostat-1.json".
func ModelPath(dtmi string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(dtmi))
	base, version, ok := strings.Cut(lower, ";")
	if !strings.HasPrefix(base, "dtmi:") || !ok || version == "" {
		return "", bluest.Errorf(bluest.InvalidOperation, "invalid DTMI %q", dtmi)
	}
	if _, err := strconv.ParseUint(version, 10, 32); err != nil {
		return "", bluest.Errorf(bluest.InvalidOperation, "invalid DTMI version in %q", dtmi)
	}
	return strings.ReplaceAll(base, ":", "/") + "-" + version + ".json", nil
}

// Model fetches the raw DTDL model of a DTMI.
func (m *Manager) Model(ctx context.Context, dtmi string) (json.RawMessage, error) {
	path, err := ModelPath(dtmi)
	if err != nil {
		return nil, err
	}
	url := strings.TrimSuffix(m.opts.ModelRepositoryURL, "/") + "/" + path
	raw, err := m.get(ctx, url)
	if err != nil {
		return nil, bluest.Wrap(bluest.CatalogLookupFailed, err, "device model "+dtmi)
	}
	if !json.Valid(raw) {
		return nil, bluest.Errorf(bluest.CatalogLookupFailed, "device model %s is not valid JSON", dtmi)
	}
	return raw, nil
}
