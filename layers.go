package opts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goliatone/go-optresolver/layering"
)

// DefaultsSource names the origin of values that no layer supplied.
const DefaultsSource = "defaults"

const (
	// Recommended priorities for common configuration layering. Higher numbers win.
	LayerPriorityFile  = 100
	LayerPriorityEnv   = 200
	LayerPriorityFlags = 300
)

var (
	// ErrLayerNameRequired indicates a layer without a name.
	ErrLayerNameRequired = errors.New("layer: name must be provided")
	// ErrDuplicateLayerName indicates two layers share a name.
	ErrDuplicateLayerName = errors.New("layer: names must be unique")
	// ErrLayerPriorityOrder indicates two layers share a priority.
	ErrLayerPriorityOrder = errors.New("layer: priorities must be strictly ordered")
)

// Layer is one named source of input values. Higher priorities override
// lower ones.
type Layer struct {
	Name     string
	Label    string
	Priority int
	Values   map[string]any
}

// LayerOption configures optional layer metadata.
type LayerOption func(*Layer)

// WithLayerLabel sets a human-friendly label on the layer.
func WithLayerLabel(label string) LayerOption {
	return func(layer *Layer) {
		layer.Label = label
	}
}

// NewLayer builds a Layer holding a copy of values.
func NewLayer(name string, priority int, values map[string]any, opts ...LayerOption) Layer {
	layer := Layer{
		Name:     name,
		Priority: priority,
		Values:   layering.Clone(values),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&layer)
		}
	}
	return layer
}

// StandardLayers assembles the file, env and flags layers in that order of
// increasing precedence. Nil maps are skipped.
func StandardLayers(file, env, flags map[string]any) []Layer {
	var layers []Layer
	if flags != nil {
		layers = append(layers, NewLayer("flags", LayerPriorityFlags, flags, WithLayerLabel("Command line flags")))
	}
	if env != nil {
		layers = append(layers, NewLayer("env", LayerPriorityEnv, env, WithLayerLabel("Environment")))
	}
	if file != nil {
		layers = append(layers, NewLayer("file", LayerPriorityFile, file, WithLayerLabel("Configuration file")))
	}
	return layers
}

// Resolution is the outcome of ResolveLayers.
type Resolution struct {
	Values map[string]any
	Traces map[string]Trace
}

// Trace returns the provenance recorded for key.
func (r *Resolution) Trace(key string) (Trace, bool) {
	if r == nil {
		return Trace{}, false
	}
	trace, ok := r.Traces[key]
	return trace, ok
}

// ResolveLayers merges layers into a single input, strongest priority first,
// and resolves it. Each resolved key carries a Trace naming the layer that
// supplied it.
func (r *Resolver) ResolveLayers(ctx context.Context, layers ...Layer) (*Resolution, error) {
	ordered, err := orderLayers(layers)
	if err != nil {
		return nil, err
	}
	values := make([]map[string]any, len(ordered))
	for i := range ordered {
		values[i] = ordered[i].Values
	}
	input, origins := layering.Merge(values...)

	start := time.Now()
	run, err := r.run(input)
	r.report(ctx, start, run, err)
	if err != nil {
		return nil, err
	}

	traces := make(map[string]Trace, len(run.order))
	for _, key := range run.order {
		traces[key] = buildTrace(key, ordered, origins[key], run.validated[key])
	}
	return &Resolution{Values: run.options, Traces: traces}, nil
}

func orderLayers(layers []Layer) ([]Layer, error) {
	seen := make(map[string]struct{}, len(layers))
	ordered := make([]Layer, len(layers))
	for i, layer := range layers {
		if layer.Name == "" {
			return nil, ErrLayerNameRequired
		}
		if _, ok := seen[layer.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLayerName, layer.Name)
		}
		seen[layer.Name] = struct{}{}
		ordered[i] = layer
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Priority == ordered[i].Priority {
			return nil, fmt.Errorf("%w: %s and %s share %d", ErrLayerPriorityOrder,
				ordered[i-1].Name, ordered[i].Name, ordered[i].Priority)
		}
	}
	return ordered, nil
}

func buildTrace(key string, layers []Layer, origin []int, validated bool) Trace {
	trace := Trace{
		Key:       key,
		Source:    DefaultsSource,
		Validated: validated,
	}
	for i, index := range origin {
		layer := layers[index]
		trace.Layers = append(trace.Layers, Provenance{
			Layer:    layer.Name,
			Label:    layer.Label,
			Priority: layer.Priority,
			Value:    layer.Values[key],
			Applied:  i == 0,
		})
	}
	if len(trace.Layers) > 0 {
		trace.Source = trace.Layers[0].Layer
	}
	return trace
}
