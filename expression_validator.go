package opts

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

var ErrNoEvaluator = errors.New("opts: evaluator not configured")

// ConstraintError reports a predicate expression that rejected a value.
type ConstraintError struct {
	Key   string
	Expr  string
	Value any
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("opts: option %q value %v violates %q", e.Key, e.Value, e.Expr)
}

// ExpressionOption configures expression validators.
type ExpressionOption func(*expressionConfig)

type expressionConfig struct {
	evaluator Evaluator
	cache     ProgramCache
	functions *FunctionRegistry
	logger    EvaluatorLogger
	args      map[string]any
	key       string
}

// ExpressionWithEvaluator selects the engine. The expr engine is used when
// none is configured.
func ExpressionWithEvaluator(e Evaluator) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.evaluator = e
	}
}

// ExpressionWithProgramCache shares compiled programs through cache.
func ExpressionWithProgramCache(cache ProgramCache) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.cache = cache
	}
}

// ExpressionWithFunctionRegistry exposes registry functions to expressions.
// Functions from several registries and custom functions accumulate; a later
// option replaces a same-named function from an earlier one.
func ExpressionWithFunctionRegistry(registry *FunctionRegistry) ExpressionOption {
	return func(cfg *expressionConfig) {
		if registry == nil {
			return
		}
		cfg.registry().Merge(registry)
	}
}

// ExpressionWithCustomFunction registers fn under name for the expression.
func ExpressionWithCustomFunction(name string, fn Function) ExpressionOption {
	return func(cfg *expressionConfig) {
		_ = cfg.registry().set(name, fn)
	}
}

// ExpressionWithLogger reports every evaluation to logger.
func ExpressionWithLogger(logger EvaluatorLogger) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.logger = logger
	}
}

// ExpressionWithArgs binds static arguments available as `args`.
func ExpressionWithArgs(args map[string]any) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.args = copyArgs(args)
	}
}

// ExpressionWithKey names the option the validator is bound to; it shows up
// in errors and log events.
func ExpressionWithKey(key string) ExpressionOption {
	return func(cfg *expressionConfig) {
		cfg.key = key
	}
}

func (cfg *expressionConfig) registry() *FunctionRegistry {
	if cfg.functions == nil {
		cfg.functions = NewFunctionRegistry()
	}
	return cfg.functions
}

func applyExpressionOptions(opts []ExpressionOption) expressionConfig {
	cfg := expressionConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = noopEvaluatorLogger{}
	}
	return cfg
}

func (cfg expressionConfig) resolveEvaluator() (Evaluator, error) {
	if cfg.evaluator != nil {
		return cfg.evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if cfg.cache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(cfg.cache))
	}
	if cfg.functions != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(cfg.functions))
	}
	evaluator := NewExprEvaluator(exprOpts...)
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	return evaluator, nil
}

// ExpressionValidator compiles expr once and returns a Validator whose result
// replaces the option value. The value is bound to `value` inside expr.
func ExpressionValidator(expr string, opts ...ExpressionOption) (Validator, error) {
	rule, cfg, err := compileExpression(expr, opts)
	if err != nil {
		return nil, err
	}
	return func(value any) (any, error) {
		return cfg.evaluate(rule, expr, value)
	}, nil
}

// PredicateValidator compiles a boolean expression. The value passes through
// unchanged when expr yields true and fails with a ConstraintError otherwise.
func PredicateValidator(expr string, opts ...ExpressionOption) (Validator, error) {
	rule, cfg, err := compileExpression(expr, opts)
	if err != nil {
		return nil, err
	}
	return func(value any) (any, error) {
		result, err := cfg.evaluate(rule, expr, value)
		if err != nil {
			return nil, err
		}
		ok, isBool := result.(bool)
		if !isBool {
			return nil, cfg.ruleContext(value).failure(cfg.engine(), expr,
				fmt.Errorf("predicate returned %T, expected bool", result))
		}
		if !ok {
			return nil, &ConstraintError{Key: cfg.key, Expr: expr, Value: value}
		}
		return value, nil
	}, nil
}

// MustExpressionValidator is like ExpressionValidator but panics when expr
// does not compile.
func MustExpressionValidator(expr string, opts ...ExpressionOption) Validator {
	validator, err := ExpressionValidator(expr, opts...)
	if err != nil {
		panic(err)
	}
	return validator
}

// ExpressionValidators compiles one expression validator per key.
func ExpressionValidators(exprs map[string]string, opts ...ExpressionOption) (map[string]Validator, error) {
	validators := make(map[string]Validator, len(exprs))
	for _, key := range slices.Sorted(maps.Keys(exprs)) {
		keyOpts := append(append([]ExpressionOption(nil), opts...), ExpressionWithKey(key))
		validator, err := ExpressionValidator(exprs[key], keyOpts...)
		if err != nil {
			return nil, fmt.Errorf("opts: compile validator for %q: %w", key, err)
		}
		validators[key] = validator
	}
	return validators, nil
}

func compileExpression(expr string, opts []ExpressionOption) (CompiledRule, expressionConfig, error) {
	cfg := applyExpressionOptions(opts)
	evaluator, err := cfg.resolveEvaluator()
	if err != nil {
		return nil, cfg, err
	}
	cfg.evaluator = evaluator
	var rule CompiledRule
	if strings.TrimSpace(expr) == "" {
		err = ErrEmptyExpression
	} else {
		rule, err = evaluator.Compile(expr)
	}
	if err != nil {
		return nil, cfg, asEvaluationError(err, EvaluationError{
			Engine: cfg.engine(),
			Expr:   expr,
			Stage:  StageCompile,
			Key:    cfg.key,
		})
	}
	return rule, cfg, nil
}

func (cfg expressionConfig) ruleContext(value any) RuleContext {
	return RuleContext{
		Key:   cfg.key,
		Value: value,
		Args:  copyArgs(cfg.args),
	}.withDefaults()
}

func (cfg expressionConfig) evaluate(rule CompiledRule, expr string, value any) (any, error) {
	ctx := cfg.ruleContext(value)
	start := time.Now()
	result, err := rule.Evaluate(ctx)
	duration := time.Since(start)
	err = ctx.failure(cfg.engine(), expr, err)
	cfg.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   cfg.engine(),
		Expr:     expr,
		Key:      ctx.keyLabel(),
		Duration: duration,
		Err:      err,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (cfg expressionConfig) engine() string {
	return evaluatorEngineName(cfg.evaluator)
}

func evaluatorEngineName(e Evaluator) string {
	switch e.(type) {
	case nil:
		return "unknown"
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		if isJSEvaluator(e) {
			return "js"
		}
		return "custom"
	}
}

func copyArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		out[key] = value
	}
	return out
}
