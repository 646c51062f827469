// Package source decodes configuration documents into the untyped input maps
// accepted by the resolver.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ErrNotObject indicates a document whose top level is not a mapping.
var ErrNotObject = errors.New("source: document must be an object")

// ErrTrailingData indicates content after the first JSON document.
var ErrTrailingData = errors.New("source: unexpected data after json document")

// ErrUnsupportedFormat indicates a file extension with no known decoder.
var ErrUnsupportedFormat = errors.New("source: unsupported format")

// Format identifies a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// JSON decodes a JSON object. Numbers become int64 when integral and float64
// otherwise.
func JSON(payload []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return map[string]any{}, nil
	}
	return decodeJSON(bytes.NewReader(payload))
}

// YAML decodes a YAML mapping. Nested mappings with non-string keys are
// converted to map[string]any.
func YAML(payload []byte) (map[string]any, error) {
	var doc any
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("source: decode yaml: %w", err)
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	values, ok := normalize(doc).(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return values, nil
}

// Read decodes r according to format.
func Read(r io.Reader, format Format) (map[string]any, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(r)
	case FormatYAML:
		payload, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("source: read yaml: %w", err)
		}
		return YAML(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// File reads path and decodes it according to its extension.
func File(path string) (map[string]any, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %q: %w", path, err)
	}
	defer f.Close()
	values, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("source: %q: %w", path, err)
	}
	return values, nil
}

func decodeJSON(r io.Reader) (map[string]any, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("source: decode json: %w", err)
	}
	if err := expectEOF(decoder); err != nil {
		return nil, err
	}
	values, ok := normalize(doc).(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return values, nil
}

// expectEOF rejects anything after the first JSON document.
func expectEOF(decoder *json.Decoder) error {
	var extra any
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTrailingData, err)
	}
	return ErrTrailingData
}

// normalize converts json.Number and non-string keyed maps recursively.
func normalize(value any) any {
	switch typed := value.(type) {
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(key)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalize(item)
		}
		return out
	default:
		return value
	}
}
