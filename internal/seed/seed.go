// Package seed provides the initial dataset a profile starts from.
//
// A seed document is one object mapping collection names to arrays of records,
// written as JSON, JSONC (comments and trailing commas) or YAML.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/Axmae/ambulance-management/internal/model"
)

//go:embed initial-data.json
var initialData []byte

// Source fetches a seed snapshot.
type Source interface {
	Fetch(ctx context.Context) (model.Snapshot, error)
	String() string
}

// Format of a seed document.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
	FormatYAML  Format = "yaml"
)

// FormatFromName guesses the format from a file name or URL path.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jsonc":
		return FormatJSONC
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes a seed document.
func Parse(data []byte, f Format) (model.Snapshot, error) {
	var snap model.Snapshot
	switch f {
	case FormatJSONC:
		data = jsonc.ToJSON(data)
	case FormatYAML:
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return snap, fmt.Errorf("parsing yaml seed: %w", err)
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return snap, fmt.Errorf("re-encoding yaml seed: %w", err)
		}
		data = b
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parsing seed: %w", err)
	}
	return snap, nil
}

// Embedded serves the dataset compiled into the binary.
type Embedded struct{}

func (Embedded) Fetch(context.Context) (model.Snapshot, error) {
	return Parse(initialData, FormatJSON)
}

func (Embedded) String() string { return "embedded" }

// File reads a seed document from disk.
type File struct{ Path string }

func (f File) Fetch(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("reading %s: %w", f.Path, err)
	}
	snap, err := Parse(data, FormatFromName(f.Path))
	if err != nil {
		return snap, fmt.Errorf("%s: %w", f.Path, err)
	}
	return snap, nil
}

func (f File) String() string { return f.Path }

// HTTP downloads a seed document.
type HTTP struct {
	URL    string
	client *resty.Client
}

// NewHTTP returns an HTTP source with the given request timeout.
func NewHTTP(url string, timeout time.Duration) *HTTP {
	c := resty.New().
		SetHeader("Accept", "application/json, application/yaml").
		SetTimeout(timeout)
	return &HTTP{URL: url, client: c}
}

func (h *HTTP) Fetch(ctx context.Context) (model.Snapshot, error) {
	resp, err := h.client.R().SetContext(ctx).Get(h.URL)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("seed request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return model.Snapshot{}, fmt.Errorf("seed status %d from %s", resp.StatusCode(), h.URL)
	}
	f := FormatFromName(resp.Request.RawRequest.URL.Path)
	if strings.Contains(resp.Header().Get("Content-Type"), "yaml") {
		f = FormatYAML
	}
	return Parse(resp.Body(), f)
}

func (h *HTTP) String() string { return h.URL }

// FromConfig maps a configured source onto a Source: "embedded" (or empty),
// an http(s) URL, or a file path.
func FromConfig(source string, timeout time.Duration) Source {
	switch {
	case source == "" || source == "embedded":
		return Embedded{}
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return NewHTTP(source, timeout)
	default:
		return File{Path: source}
	}
}
