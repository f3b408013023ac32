// Package le decodes BlueST-LE advertisement payloads with the schemas of
// the published BlueST-LE catalog.
package le

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/numconv"
)

const (
	DefaultURL     = "https://raw.githubusercontent.com/SW-Platforms/appconfig/release/bluestsdkle/catalog.json"
	DefaultTimeout = 10 * time.Second
)

// SchemaField is one little-endian value of a payload.
type SchemaField struct {
	Telemetry string `json:"telemetry"`
	// Type is one of uint8, uint16, uint32, int8, int16, int32, float or string.
	Type   string `json:"type"`
	Length int    `json:"length,omitempty"`
}

func (f SchemaField) size() (int, error) {
	switch f.Type {
	case "uint8", "int8":
		return 1, nil
	case "uint16", "int16":
		return 2, nil
	case "uint32", "int32", "float":
		return 4, nil
	case "string":
		if f.Length <= 0 {
			return 0, fmt.Errorf("string telemetry %q needs a positive length", f.Telemetry)
		}
		return f.Length, nil
	}
	return 0, fmt.Errorf("telemetry %q has unsupported type %q", f.Telemetry, f.Type)
}

// Entry is one catalog record. Ids are "0x.." or decimal strings.
type Entry struct {
	DeviceID       string        `json:"device_id"`
	FirmwareID     string        `json:"fw_id"`
	PayloadID      string        `json:"payload_id"`
	Component      string        `json:"component,omitempty"`
	DecodingSchema []SchemaField `json:"decoding_schema"`
}

func (e *Entry) matches(deviceID, firmwareID, payloadID uint8) bool {
	return idEquals(e.DeviceID, deviceID) && idEquals(e.FirmwareID, firmwareID) && idEquals(e.PayloadID, payloadID)
}

func idEquals(s string, id uint8) bool {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	return err == nil && uint8(v) == id
}

// ----------------------------
// Parser
// ----------------------------

// Telemetry is a decoded payload. Fields keep the schema order.
type Telemetry struct {
	Component string
	Fields    *orderedmap.OrderedMap[string, any]
}

// Parser decodes the payloads of one catalog entry.
type Parser struct {
	component string
	schema    []SchemaField
	size      int
}

// NewParser validates the schema of e.
func NewParser(e *Entry) (*Parser, error) {
	p := &Parser{component: e.Component, schema: e.DecodingSchema}
	for _, f := range e.DecodingSchema {
		n, err := f.size()
		if err != nil {
			return nil, bluest.Wrap(bluest.CatalogLookupFailed, err, "invalid decoding schema")
		}
		p.size += n
	}
	return p, nil
}

// Size is the number of payload bytes the schema consumes.
func (p *Parser) Size() int { return p.size }

// Parse decodes data. Bytes past the schema are ignored.
func (p *Parser) Parse(data []byte) (*Telemetry, error) {
	if err := numconv.Need(data, 0, p.size); err != nil {
		return nil, err
	}
	fields := orderedmap.New[string, any](len(p.schema))
	off := 0
	for _, f := range p.schema {
		v, n, err := readField(f, data, off)
		if err != nil {
			return nil, err
		}
		fields.Set(f.Telemetry, v)
		off += n
	}
	return &Telemetry{Component: p.component, Fields: fields}, nil
}

func readField(f SchemaField, data []byte, off int) (any, int, error) {
	switch f.Type {
	case "uint8":
		v, err := numconv.Uint8(data, off)
		return v, 1, err
	case "int8":
		v, err := numconv.Int8(data, off)
		return v, 1, err
	case "uint16":
		v, err := numconv.Uint16LE(data, off)
		return v, 2, err
	case "int16":
		v, err := numconv.Int16LE(data, off)
		return v, 2, err
	case "uint32":
		v, err := numconv.Uint32LE(data, off)
		return v, 4, err
	case "int32":
		v, err := numconv.Int32LE(data, off)
		return v, 4, err
	case "float":
		v, err := numconv.Float32LE(data, off)
		if err != nil {
			return nil, 4, err
		}
		// shortest float32 text keeps 23.8 from printing as 23.799999237060547
		shortest, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
		return shortest, 4, nil
	case "string":
		if err := numconv.Need(data, off, f.Length); err != nil {
			return nil, f.Length, err
		}
		return string(bytes.TrimRight(data[off:off+f.Length], "\x00")), f.Length, nil
	}
	return nil, 0, bluest.Errorf(bluest.CatalogLookupFailed, "unsupported type %q", f.Type)
}

// Format nests the fields under the component name, or returns them flat
// when the entry has no component.
func Format(t *Telemetry) *orderedmap.OrderedMap[string, any] {
	if t.Component == "" {
		return t.Fields
	}
	out := orderedmap.New[string, any](1)
	out.Set(t.Component, t.Fields)
	return out
}

// ----------------------------
// Catalog
// ----------------------------

// Options configures a Catalog. Zero values are replaced with defaults.
type Options struct {
	Logger  *logrus.Logger
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// Catalog holds the BlueST-LE entries, downloaded on first use.
type Catalog struct {
	logger *logrus.Logger
	client *http.Client
	opts   Options

	mu      sync.RWMutex
	entries []Entry
	loaded  bool
}

func New(opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Catalog{logger: opts.Logger, client: client, opts: opts}
}

// NewFromJSON builds a Catalog from an already fetched catalog document.
func NewFromJSON(raw []byte, logger *logrus.Logger) (*Catalog, error) {
	c := New(Options{Logger: logger})
	if err := c.set(raw); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) set(raw []byte) error {
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return bluest.Wrap(bluest.CatalogLookupFailed, err, "failed to decode BlueST-LE catalog")
	}
	c.mu.Lock()
	c.entries = entries
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Load downloads the catalog.
func (c *Catalog) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return bluest.Wrap(bluest.CatalogLookupFailed, err, "failed to build request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return bluest.Wrap(bluest.CatalogLookupFailed, err, fmt.Sprintf("catalog %s not reachable", c.opts.URL))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return bluest.Errorf(bluest.CatalogLookupFailed, "catalog %s returned status %d", c.opts.URL, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return bluest.Wrap(bluest.CatalogLookupFailed, err, "failed to read BlueST-LE catalog")
	}
	if err := c.set(raw); err != nil {
		return err
	}
	c.logger.WithField("entries", len(c.entries)).Debug("BlueST-LE catalog loaded")
	return nil
}

func (c *Catalog) ensure(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Load(ctx)
}

// Entry returns the entry matching the three ids.
func (c *Catalog) Entry(ctx context.Context, deviceID, firmwareID, payloadID uint8) (*Entry, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.entries {
		if c.entries[i].matches(deviceID, firmwareID, payloadID) {
			e := c.entries[i]
			return &e, nil
		}
	}
	return nil, bluest.Errorf(bluest.CatalogLookupFailed,
		"unknown catalog entry for (0x%02X,0x%02X,0x%02X)", deviceID, firmwareID, payloadID)
}

// Parser returns the parser of the matching entry.
func (c *Catalog) Parser(ctx context.Context, deviceID, firmwareID, payloadID uint8) (*Parser, error) {
	e, err := c.Entry(ctx, deviceID, firmwareID, payloadID)
	if err != nil {
		return nil, err
	}
	return NewParser(e)
}

// Decode parses payload and formats it as JSON.
func (c *Catalog) Decode(ctx context.Context, deviceID, firmwareID, payloadID uint8, payload []byte) (string, error) {
	p, err := c.Parser(ctx, deviceID, firmwareID, payloadID)
	if err != nil {
		return "", err
	}
	t, err := p.Parse(payload)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(Format(t))
	if err != nil {
		return "", fmt.Errorf("failed to encode telemetry: %w", err)
	}
	return string(out), nil
}
