package opts

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

// NewResolver constructs an empty, strict Resolver. Configure it through the
// Set* methods before calling Resolve.
func NewResolver(opts ...Option) *Resolver {
	cfg := applyOptions(opts)
	strict := true
	if cfg.strict != nil {
		strict = *cfg.strict
	}
	return &Resolver{
		schema: schema{
			defaults:   make(map[string]any),
			types:      make(map[string]TypeTag),
			validators: make(map[string]Validator),
			optional:   make(map[string]struct{}),
			required:   make(map[string]struct{}),
			strict:     strict,
		},
		cfg: cfg,
	}
}

// SetDefaults records a default value per key, replacing earlier defaults for
// the same keys only.
func (r *Resolver) SetDefaults(defaults map[string]any) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range sortedKeys(defaults) {
		if _, exists := r.schema.defaults[key]; !exists {
			r.schema.defaultKeys = append(r.schema.defaultKeys, key)
		}
		r.schema.defaults[key] = defaults[key]
	}
	return r
}

// SetTypes records the expected type per key. Tags are normalised through
// ParseTypeTag.
func (r *Resolver) SetTypes(types map[string]TypeTag) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, tag := range types {
		r.schema.types[key] = ParseTypeTag(string(tag))
	}
	return r
}

// SetValidators records a validator per key. A nil validator removes the one
// registered for that key.
func (r *Resolver) SetValidators(validators map[string]Validator) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, validator := range validators {
		if validator == nil {
			delete(r.schema.validators, key)
			continue
		}
		r.schema.validators[key] = validator
	}
	return r
}

// SetOptional declares keys that are accepted without a default.
func (r *Resolver) SetOptional(keys ...string) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		r.schema.optional[key] = struct{}{}
	}
	return r
}

// SetRequired declares keys that must hold a value once defaults and input
// are merged. Keys are checked in the order they were first declared.
func (r *Resolver) SetRequired(keys ...string) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		if _, exists := r.schema.required[key]; exists {
			continue
		}
		r.schema.required[key] = struct{}{}
		r.schema.requiredKeys = append(r.schema.requiredKeys, key)
	}
	return r
}

// AllowExtra disables unknown key rejection. There is no way back to strict
// mode for the same Resolver.
func (r *Resolver) AllowExtra() *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schema.strict = false
	return r
}

// Strict reports whether undeclared keys are rejected.
func (r *Resolver) Strict() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schema.strict
}

// Known reports whether key is declared anywhere in the schema.
func (r *Resolver) Known(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schema.known(key)
}

// Defaults returns a copy of the configured defaults.
func (r *Resolver) Defaults() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.schema.defaults)
}

// Resolve merges input over the defaults, runs validators, and checks the
// result against the schema. On failure no map is returned.
func (r *Resolver) Resolve(input map[string]any) (map[string]any, error) {
	return r.ResolveContext(context.Background(), input)
}

// ResolveContext behaves like Resolve; ctx is forwarded to activity hooks.
func (r *Resolver) ResolveContext(ctx context.Context, input map[string]any) (map[string]any, error) {
	start := time.Now()
	run, err := r.run(input)
	r.report(ctx, start, run, err)
	if err != nil {
		return nil, err
	}
	return run.options, nil
}

// resolution is the working state of one pipeline run.
type resolution struct {
	options   map[string]any
	order     []string
	validated map[string]bool
}

// snapshot copies the schema so a run never holds the lock while user
// validators execute.
func (r *Resolver) snapshot() schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schema.clone()
}

func (r *Resolver) run(input map[string]any) (resolution, error) {
	s := r.snapshot()
	run := s.merge(input)

	for _, key := range run.order {
		validator, ok := s.validators[key]
		if !ok {
			continue
		}
		value, err := validator(run.options[key])
		if err != nil {
			return resolution{}, err
		}
		run.options[key] = value
		run.validated[key] = true
	}

	if s.strict {
		for _, key := range run.order {
			if !s.known(key) {
				return resolution{}, &UnknownOptionError{Key: key}
			}
		}
	}

	for _, key := range run.order {
		expected, ok := s.types[key]
		if !ok {
			continue
		}
		value := run.options[key]
		if !matchesType(expected, value, r.cfg.matchers) {
			return resolution{}, &InvalidTypeError{
				Key:      key,
				Expected: expected,
				Actual:   Classify(value),
			}
		}
	}

	for _, key := range s.requiredKeys {
		if _, ok := run.options[key]; !ok {
			return resolution{}, &MissingRequiredError{Key: key}
		}
	}

	return run, nil
}

// merge copies the defaults and overlays input. Defaults keep their insertion
// order, input-only keys follow in lexical order.
func (s schema) merge(input map[string]any) resolution {
	run := resolution{
		options:   make(map[string]any, len(s.defaults)+len(input)),
		order:     make([]string, 0, len(s.defaults)+len(input)),
		validated: make(map[string]bool),
	}
	for _, key := range s.defaultKeys {
		run.options[key] = s.defaults[key]
		run.order = append(run.order, key)
	}
	for _, key := range sortedKeys(input) {
		if _, exists := run.options[key]; !exists {
			run.order = append(run.order, key)
		}
		run.options[key] = input[key]
	}
	return run
}

func (r *Resolver) report(ctx context.Context, start time.Time, run resolution, err error) {
	duration := time.Since(start)
	activityErr := r.emitResolveActivity(ctx, run, err)
	var keys []string
	if err == nil {
		keys = slices.Clone(run.order)
	}
	r.resolveLogger().LogResolve(ResolveLogEvent{
		Resolver:    r.label(),
		Keys:        keys,
		Duration:    duration,
		Err:         err,
		ActivityErr: activityErr,
	})
}

// failedKey extracts the option key named by a resolution error.
func failedKey(err error) string {
	var unknown *UnknownOptionError
	if errors.As(err, &unknown) {
		return unknown.Key
	}
	var invalid *InvalidTypeError
	if errors.As(err, &invalid) {
		return invalid.Key
	}
	var missing *MissingRequiredError
	if errors.As(err, &missing) {
		return missing.Key
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return evalErr.Key
	}
	return ""
}

func sortedKeys(values map[string]any) []string {
	return slices.Sorted(maps.Keys(values))
}
