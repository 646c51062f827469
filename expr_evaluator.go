package opts

import (
	"errors"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprEvaluatorOption configures an expr evaluator instance.
type ExprEvaluatorOption func(*exprEvaluator)

// ExprWithProgramCache wires a ProgramCache into the expr evaluator.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		e.cache = cache
	}
}

// ExprWithFunctionRegistry exposes registry functions by name and through
// call(name, ...args).
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// exprEvaluator runs validator expressions with github.com/expr-lang/expr.
// Programs are compiled against an open environment; registry functions are
// looked up when the program runs, so a cached program never carries the
// functions of the evaluator that compiled it.
type exprEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	e := &exprEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *exprEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, compileFailure("expr", expression, ErrEmptyExpression)
	}
	key := programKey("expr", "", expression)
	program, ok := cachedProgram[*exprvm.Program](e.cache, key)
	if !ok {
		compiled, err := exprlang.Compile(expression,
			exprlang.Env(map[string]any{}),
			exprlang.AllowUndefinedVariables(),
		)
		if err != nil {
			return nil, compileFailure("expr", expression, err)
		}
		program = compiled
		storeProgram(e.cache, key, program)
	}
	return &exprRule{evaluator: e, expression: expression, program: program}, nil
}

type exprRule struct {
	evaluator  *exprEvaluator
	expression string
	program    *exprvm.Program
}

func (r *exprRule) Evaluate(ctx RuleContext) (any, error) {
	if r.program == nil {
		return nil, ctx.failure("expr", r.expression, errors.New("rule has no compiled program"))
	}
	ctx = ctx.withDefaults()
	result, err := exprlang.Run(r.program, r.evaluator.bindings(ctx))
	if err != nil {
		return nil, ctx.failure("expr", r.expression, err)
	}
	return result, nil
}

// bindings is the runtime environment: the rule context plus one entry per
// registry function and the generic call(name, ...args).
func (e *exprEvaluator) bindings(ctx RuleContext) map[string]any {
	env := map[string]any{
		"value": ctx.Value,
		"key":   ctx.Key,
		"now":   ctx.timestamp(),
		"args":  ctx.Args,
	}
	if e.registry == nil {
		return env
	}
	registry := e.registry
	env["call"] = func(name string, arguments ...any) (any, error) {
		return registry.Call(name, arguments...)
	}
	for _, name := range registry.Names() {
		name := name
		env[name] = func(arguments ...any) (any, error) {
			return registry.Call(name, arguments...)
		}
	}
	return env
}
