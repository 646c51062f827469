package opts

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/goliatone/go-optresolver/pkg/activity"
)

// Resolver holds an option schema and resolves caller supplied values
// against it.
type Resolver struct {
	mu     sync.RWMutex
	schema schema

	cfg resolverConfig
}

// schema is the declarative part of a Resolver. Resolution works on a copy so
// validators may call back into the Resolver.
type schema struct {
	defaults    map[string]any
	defaultKeys []string
	types       map[string]TypeTag
	validators  map[string]Validator
	optional    map[string]struct{}
	required    map[string]struct{}
	// requiredKeys keeps declaration order for the required check.
	requiredKeys []string
	strict       bool
}

func (s schema) clone() schema {
	return schema{
		defaults:     maps.Clone(s.defaults),
		defaultKeys:  slices.Clone(s.defaultKeys),
		types:        maps.Clone(s.types),
		validators:   maps.Clone(s.validators),
		optional:     maps.Clone(s.optional),
		required:     maps.Clone(s.required),
		requiredKeys: slices.Clone(s.requiredKeys),
		strict:       s.strict,
	}
}

// known reports whether key is declared anywhere in the schema.
func (s schema) known(key string) bool {
	if _, ok := s.defaults[key]; ok {
		return true
	}
	if _, ok := s.types[key]; ok {
		return true
	}
	if _, ok := s.validators[key]; ok {
		return true
	}
	if _, ok := s.optional[key]; ok {
		return true
	}
	_, ok := s.required[key]
	return ok
}

// Validator transforms a merged option value before it is type checked. A
// non-nil error aborts resolution and is returned to the caller unchanged.
type Validator func(value any) (any, error)

// RuleContext carries inputs needed when evaluating a validator expression.
type RuleContext struct {
	Key   string
	Value any
	Now   *time.Time
	Args  map[string]any
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) keyLabel() string {
	if ctx.Key != "" {
		return ctx.Key
	}
	return "unknown"
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Option configures a Resolver at construction time.
type Option func(*resolverConfig)

type resolverConfig struct {
	name          string
	strict        *bool
	logger        ResolveLogger
	matchers      map[TypeTag]TypeMatcher
	activityHooks activity.Hooks
	activity      activity.Config
}

func applyOptions(opts []Option) resolverConfig {
	cfg := resolverConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithName labels the resolver in log and activity events.
func WithName(name string) Option {
	return func(cfg *resolverConfig) {
		cfg.name = name
	}
}

// WithStrict toggles rejection of undeclared keys. Resolvers are strict unless
// configured otherwise.
func WithStrict(strict bool) Option {
	return func(cfg *resolverConfig) {
		cfg.strict = &strict
	}
}

// WithAllowExtra is shorthand for WithStrict(false).
func WithAllowExtra() Option {
	return WithStrict(false)
}

// WithTypeMatcher registers match as the check for values declared with tag.
// Matchers take precedence over the built-in classification. tag is
// normalised like SetTypes, so aliases such as "int" reach the matcher.
func WithTypeMatcher(tag TypeTag, match TypeMatcher) Option {
	tag = ParseTypeTag(string(tag))
	return func(cfg *resolverConfig) {
		if tag == "" || match == nil {
			return
		}
		if cfg.matchers == nil {
			cfg.matchers = make(map[TypeTag]TypeMatcher)
		}
		cfg.matchers[tag] = match
	}
}

func (r *Resolver) label() string {
	if r.cfg.name != "" {
		return r.cfg.name
	}
	return "resolver"
}

func (r *Resolver) resolveLogger() ResolveLogger {
	if r.cfg.logger != nil {
		return r.cfg.logger
	}
	return noopResolveLogger{}
}
