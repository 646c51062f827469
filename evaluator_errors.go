package opts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEvaluation matches every *EvaluationError through errors.Is.
	ErrEvaluation = errors.New("opts: expression evaluation failed")
	// ErrEmptyExpression is returned when a validator expression is blank.
	ErrEmptyExpression = errors.New("opts: expression must not be empty")
)

// EvaluationStage tells whether an expression failed while compiling or while
// validating a value.
type EvaluationStage string

const (
	StageCompile  EvaluationStage = "compile"
	StageEvaluate EvaluationStage = "evaluate"
)

// EvaluationError reports a validator expression that failed for an option.
// Value holds the option value under validation when HasValue is set; compile
// failures carry no value.
type EvaluationError struct {
	Engine   string
	Expr     string
	Stage    EvaluationStage
	Key      string
	Value    any
	HasValue bool
	Err      error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("opts: ")
	if e.Key != "" {
		fmt.Fprintf(&b, "option %q: ", e.Key)
	}
	engine := e.Engine
	if engine == "" {
		engine = "custom"
	}
	if e.Expr != "" {
		fmt.Fprintf(&b, "%s expression %q", engine, e.Expr)
	} else {
		fmt.Fprintf(&b, "%s expression", engine)
	}
	switch {
	case e.Stage == StageCompile:
		b.WriteString(" does not compile")
	case e.HasValue:
		fmt.Fprintf(&b, " failed for value %v", e.Value)
	default:
		b.WriteString(" failed")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is ErrEvaluation.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// asEvaluationError wraps err in an EvaluationError shaped like template. When
// err already holds one, only its blank fields are filled from template.
func asEvaluationError(err error, template EvaluationError) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		wrapped := template
		wrapped.Err = err
		return &wrapped
	}
	if evalErr.Engine == "" {
		evalErr.Engine = template.Engine
	}
	if evalErr.Expr == "" {
		evalErr.Expr = template.Expr
	}
	if evalErr.Stage == "" {
		evalErr.Stage = template.Stage
	}
	if evalErr.Key == "" {
		evalErr.Key = template.Key
	}
	if !evalErr.HasValue && template.HasValue {
		evalErr.Value = template.Value
		evalErr.HasValue = true
	}
	return err
}

func compileFailure(engine, expr string, err error) error {
	return asEvaluationError(err, EvaluationError{
		Engine: engine,
		Expr:   expr,
		Stage:  StageCompile,
	})
}

// failure ties err to the option key and value held by ctx.
func (ctx RuleContext) failure(engine, expr string, err error) error {
	return asEvaluationError(err, EvaluationError{
		Engine:   engine,
		Expr:     expr,
		Stage:    StageEvaluate,
		Key:      ctx.Key,
		Value:    ctx.Value,
		HasValue: true,
	})
}
