package opts

import (
	"context"

	"github.com/goliatone/go-optresolver/internal/hydrate"
)

// DecodeOption configures how ResolveInto decodes the resolved map.
type DecodeOption func(*decodeConfig)

type decodeConfig struct {
	disallowUnknown bool
	useNumber       bool
	before          []func(map[string]any) (map[string]any, error)
}

// DecodeDisallowUnknown fails decoding when a resolved key has no field in T.
func DecodeDisallowUnknown() DecodeOption {
	return func(cfg *decodeConfig) {
		cfg.disallowUnknown = true
	}
}

// DecodeUseNumber decodes numbers held by interface fields as json.Number.
func DecodeUseNumber() DecodeOption {
	return func(cfg *decodeConfig) {
		cfg.useNumber = true
	}
}

// DecodeBefore reshapes the resolved map before it is decoded.
func DecodeBefore(fn func(map[string]any) (map[string]any, error)) DecodeOption {
	return func(cfg *decodeConfig) {
		if fn != nil {
			cfg.before = append(cfg.before, fn)
		}
	}
}

// ResolveInto resolves input with r and decodes the result into T using the
// struct's json tags. When T (or *T) implements Validate() error, it runs
// after decoding.
func ResolveInto[T any](ctx context.Context, r *Resolver, input map[string]any, opts ...DecodeOption) (T, error) {
	var zero T
	resolved, err := r.ResolveContext(ctx, input)
	if err != nil {
		return zero, err
	}

	cfg := decodeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	decoderOpts := []hydrate.DecoderOption[T]{
		hydrate.WithPostHook[T](func(_ hydrate.Context, value *T) error {
			return validateValue(value)
		}),
	}
	if cfg.disallowUnknown {
		decoderOpts = append(decoderOpts, hydrate.WithDisallowUnknownFields[T]())
	}
	if cfg.useNumber {
		decoderOpts = append(decoderOpts, hydrate.WithUseNumber[T]())
	}
	for _, fn := range cfg.before {
		fn := fn
		decoderOpts = append(decoderOpts, hydrate.WithPreHook[T](func(_ hydrate.Context, payload map[string]any) (map[string]any, error) {
			return fn(payload)
		}))
	}

	return hydrate.NewDecoder(decoderOpts...).Decode(hydrate.Context{Resolver: r.label()}, resolved)
}

func validateValue[T any](value *T) error {
	if v, ok := any(value).(interface{ Validate() error }); ok {
		return v.Validate()
	}
	if v, ok := any(*value).(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}
