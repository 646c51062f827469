package opts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

type resolveFixture struct {
	Description string `json:"description"`
	Schema      struct {
		Types    map[string]TypeTag `json:"types"`
		Required []string           `json:"required"`
		Optional []string           `json:"optional"`
		Defaults map[string]any     `json:"defaults"`
	} `json:"schema"`
	Cases []struct {
		Name   string         `json:"name"`
		Input  map[string]any `json:"input"`
		Expect map[string]any `json:"expect"`
		Err    string         `json:"err"`
	} `json:"cases"`
}

func TestResolveFixture(t *testing.T) {
	fx := loadFixture[resolveFixture](t, "resolve_cases.json")

	resolver := NewResolver().
		SetTypes(fx.Schema.Types).
		SetRequired(fx.Schema.Required...).
		SetOptional(fx.Schema.Optional...).
		SetDefaults(fx.Schema.Defaults)

	for _, tc := range fx.Cases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			got, err := resolver.Resolve(tc.Input)
			if tc.Err != "" {
				if err == nil {
					t.Fatalf("expected error %q but got nil", tc.Err)
				}
				if err.Error() != tc.Err {
					t.Fatalf("expected error %q, got %q", tc.Err, err.Error())
				}
				if got != nil {
					t.Fatalf("expected no map on failure, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error from Resolve: %v", err)
			}
			if !reflect.DeepEqual(tc.Expect, got) {
				t.Fatalf("resolved options mismatch:\nwant: %#v\n got: %#v", tc.Expect, got)
			}
		})
	}
}

func TestResolveRelaxedEmptySchemaReturnsInput(t *testing.T) {
	inputs := []map[string]any{
		{},
		{"foo": "bar"},
		{"a": 1, "b": []any{"x"}, "c": nil, "d": map[string]any{"e": true}},
	}
	for i, input := range inputs {
		got, err := NewResolver(WithAllowExtra()).Resolve(input)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		if !reflect.DeepEqual(input, got) {
			t.Fatalf("case %d: expected %v, got %v", i, input, got)
		}
	}
}

func TestResolveEmptyInputReturnsDefaultsCopy(t *testing.T) {
	defaults := map[string]any{"animation": true, "debug": false}
	resolver := NewResolver().SetDefaults(defaults)

	got, err := resolver.Resolve(map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(defaults, got) {
		t.Fatalf("expected defaults %v, got %v", defaults, got)
	}

	got["animation"] = false
	again, err := resolver.Resolve(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again["animation"] != true {
		t.Fatalf("mutating a resolved map leaked into the schema: %v", again)
	}
}

func TestResolveIdempotent(t *testing.T) {
	resolver := NewResolver().
		SetDefaults(map[string]any{"level": 1}).
		SetTypes(map[string]TypeTag{"level": TypeNumber}).
		SetValidators(map[string]Validator{"level": Clamp(0, 5)})

	input := map[string]any{"level": 9}
	first, err := resolver.Resolve(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := resolver.Resolve(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %v and %v", first, second)
	}
	if first["level"] != 5 {
		t.Fatalf("expected clamped level 5, got %v", first["level"])
	}
	if input["level"] != 9 {
		t.Fatalf("expected input untouched, got %v", input["level"])
	}
}

func TestResolveInputOverridesDefault(t *testing.T) {
	seen := []any{}
	resolver := NewResolver().
		SetDefaults(map[string]any{"color": "red"}).
		SetValidators(map[string]Validator{
			"color": func(value any) (any, error) {
				seen = append(seen, value)
				return value, nil
			},
		})

	got, err := resolver.Resolve(map[string]any{"color": "blue"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["color"] != "blue" {
		t.Fatalf("expected input value, got %v", got["color"])
	}
	if len(seen) != 1 || seen[0] != "blue" {
		t.Fatalf("expected validator to run once with the input value, got %v", seen)
	}
}

func TestResolveValidatorsRunBeforeTypeCheck(t *testing.T) {
	resolver := NewResolver().
		SetTypes(map[string]TypeTag{"foo": TypeNumber}).
		SetValidators(map[string]Validator{"foo": NumberFromString()})

	got, err := resolver.Resolve(map[string]any{"foo": "3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["foo"] != int64(3) {
		t.Fatalf("expected foo=3, got %#v", got["foo"])
	}
}

func TestResolveUnknownPrecedesTypeCheck(t *testing.T) {
	resolver := NewResolver().SetTypes(map[string]TypeTag{"foo": TypeNumber})

	_, err := resolver.Resolve(map[string]any{"bar": 1})
	var unknown *UnknownOptionError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownOptionError, got %v", err)
	}
	if unknown.Key != "bar" {
		t.Fatalf("expected key bar, got %q", unknown.Key)
	}
}

func TestResolveRequiredAcceptsExplicitNull(t *testing.T) {
	resolver := NewResolver().SetRequired("color")

	_, err := resolver.Resolve(map[string]any{})
	var missing *MissingRequiredError
	if !errors.As(err, &missing) || missing.Key != "color" {
		t.Fatalf("expected MissingRequiredError for color, got %v", err)
	}

	got, err := resolver.Resolve(map[string]any{"color": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, ok := got["color"]
	if !ok || value != nil {
		t.Fatalf("expected explicit nil color, got %v (present=%v)", value, ok)
	}
}

func TestResolveRequiredSatisfiedByDefault(t *testing.T) {
	resolver := NewResolver().
		SetRequired("color").
		SetDefaults(map[string]any{"color": "red"})

	got, err := resolver.Resolve(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["color"] != "red" {
		t.Fatalf("expected default color, got %v", got["color"])
	}
}

func TestResolveStrictVersusRelaxed(t *testing.T) {
	resolver := NewResolver()
	if !resolver.Strict() {
		t.Fatalf("expected resolvers to be strict by default")
	}
	if _, err := resolver.Resolve(map[string]any{"foo": "bar"}); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}

	resolver.AllowExtra()
	got, err := resolver.Resolve(map[string]any{"foo": "bar"})
	if err != nil {
		t.Fatalf("unexpected error after AllowExtra: %v", err)
	}
	if !reflect.DeepEqual(map[string]any{"foo": "bar"}, got) {
		t.Fatalf("expected input echoed, got %v", got)
	}

	if NewResolver(WithStrict(false)).Strict() {
		t.Fatalf("expected WithStrict(false) to relax the resolver")
	}
}

func TestResolveTypeMismatch(t *testing.T) {
	resolver := NewResolver().SetTypes(map[string]TypeTag{"animation": TypeBoolean})

	_, err := resolver.Resolve(map[string]any{"animation": "bar"})
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
	var invalid *InvalidTypeError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTypeError, got %T", err)
	}
	if invalid.Key != "animation" || invalid.Expected != TypeBoolean || invalid.Actual != TypeString {
		t.Fatalf("unexpected error fields: %+v", invalid)
	}
}

func TestResolveNoCoercionAfterValidation(t *testing.T) {
	resolver := NewResolver().
		SetTypes(map[string]TypeTag{"port": TypeNumber}).
		SetValidators(map[string]Validator{"port": TrimString()})

	if _, err := resolver.Resolve(map[string]any{"port": " 80 "}); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected type failure without coercion, got %v", err)
	}
}

func TestResolveOptionalNeverMaterialises(t *testing.T) {
	resolver := NewResolver().SetOptional("length").SetDefaults(map[string]any{"color": "red"})

	got, err := resolver.Resolve(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got["length"]; ok {
		t.Fatalf("expected optional key to stay absent, got %v", got)
	}

	got, err = resolver.Resolve(map[string]any{"length": 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["length"] != 4 {
		t.Fatalf("expected optional key accepted, got %v", got)
	}
}

func TestResolveValidatorErrorPropagatesUnchanged(t *testing.T) {
	errRange := errors.New("out of range")
	resolver := NewResolver().SetValidators(map[string]Validator{
		"port": func(any) (any, error) { return nil, errRange },
	})

	_, err := resolver.Resolve(map[string]any{"port": 70000})
	if err != errRange {
		t.Fatalf("expected validator error returned as is, got %v", err)
	}
}

func TestResolveValidatorsRunOncePerKeyInOrder(t *testing.T) {
	var order []string
	record := func(key string) Validator {
		return func(value any) (any, error) {
			order = append(order, key)
			return value, nil
		}
	}
	resolver := NewResolver(WithAllowExtra()).
		SetDefaults(map[string]any{"zeta": 1}).
		SetDefaults(map[string]any{"beta": 2, "alpha": 3}).
		SetValidators(map[string]Validator{
			"alpha": record("alpha"),
			"beta":  record("beta"),
			"zeta":  record("zeta"),
			"mid":   record("mid"),
			"aaa":   record("aaa"),
			"none":  record("none"),
		})

	if _, err := resolver.Resolve(map[string]any{"mid": 1, "aaa": 2, "beta": 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"zeta", "alpha", "beta", "aaa", "mid"}
	if !reflect.DeepEqual(want, order) {
		t.Fatalf("expected validator order %v, got %v", want, order)
	}
}

func TestResolveReportsFirstUnknownKey(t *testing.T) {
	_, err := NewResolver().Resolve(map[string]any{"zeta": 1, "alpha": 2})
	var unknown *UnknownOptionError
	if !errors.As(err, &unknown) || unknown.Key != "alpha" {
		t.Fatalf("expected alpha reported first, got %v", err)
	}
}

func TestKnownKeysFromEverySchemaPart(t *testing.T) {
	resolver := NewResolver().
		SetDefaults(map[string]any{"d": 1}).
		SetTypes(map[string]TypeTag{"t": TypeAny}).
		SetValidators(map[string]Validator{"v": Transform(nil)}).
		SetOptional("o").
		SetRequired("r")

	for _, key := range []string{"d", "t", "v", "o", "r"} {
		if !resolver.Known(key) {
			t.Fatalf("expected %q to be known", key)
		}
	}
	if resolver.Known("x") {
		t.Fatalf("expected x to be unknown")
	}

	input := map[string]any{"t": 1, "v": 2, "o": 3, "r": 4}
	if _, err := resolver.Resolve(input); err != nil {
		t.Fatalf("unexpected error for declared keys: %v", err)
	}
}

func TestConfigurationMergesEntries(t *testing.T) {
	resolver := NewResolver().
		SetDefaults(map[string]any{"a": 1, "b": 2}).
		SetDefaults(map[string]any{"b": 3}).
		SetTypes(map[string]TypeTag{"a": TypeNumber}).
		SetTypes(map[string]TypeTag{"b": TypeNumber})

	got, err := resolver.Resolve(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(map[string]any{"a": 1, "b": 3}, got) {
		t.Fatalf("expected merged defaults, got %v", got)
	}
	if _, err := resolver.Resolve(map[string]any{"a": "x"}); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected earlier type to survive later SetTypes, got %v", err)
	}

	defaults := resolver.Defaults()
	defaults["a"] = 100
	if resolver.Defaults()["a"] != 1 {
		t.Fatalf("Defaults should return a copy")
	}
}

func TestSetValidatorsNilRemoves(t *testing.T) {
	resolver := NewResolver(WithAllowExtra()).
		SetValidators(map[string]Validator{"a": Transform(func(any) any { return "x" })}).
		SetValidators(map[string]Validator{"a": nil})

	got, err := resolver.Resolve(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["a"] != 1 {
		t.Fatalf("expected validator removed, got %v", got["a"])
	}
}

func TestSetTypesNormalisesAliases(t *testing.T) {
	resolver := NewResolver().SetTypes(map[string]TypeTag{"debug": "bool", "count": "int"})

	if _, err := resolver.Resolve(map[string]any{"debug": true, "count": 2.0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := resolver.Resolve(map[string]any{"count": 2.5})
	var invalid *InvalidTypeError
	if !errors.As(err, &invalid) || invalid.Expected != TypeInteger || invalid.Actual != TypeNumber {
		t.Fatalf("expected integer mismatch, got %v", err)
	}
}

func TestCustomTypeMatcher(t *testing.T) {
	isPort := func(value any) bool {
		port, ok := value.(int)
		return ok && port > 0 && port < 65536
	}
	resolver := NewResolver(WithTypeMatcher("port", isPort)).
		SetTypes(map[string]TypeTag{"listen": "port"})

	if _, err := resolver.Resolve(map[string]any{"listen": 8080}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := resolver.Resolve(map[string]any{"listen": 0})
	var invalid *InvalidTypeError
	if !errors.As(err, &invalid) || invalid.Expected != "port" || invalid.Actual != TypeNumber {
		t.Fatalf("expected port mismatch, got %v", err)
	}
}

func TestTypeMatcherRegisteredUnderAlias(t *testing.T) {
	calls := 0
	lenient := func(any) bool {
		calls++
		return true
	}
	resolver := NewResolver(
		WithTypeMatcher("int", lenient),
		WithTypeMatcher(" Bool ", lenient),
	).SetTypes(map[string]TypeTag{"n": "integer", "flag": "bool"})

	if _, err := resolver.Resolve(map[string]any{"n": "abc", "flag": "yes"}); err != nil {
		t.Fatalf("expected alias matchers to accept the values, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both matchers to run, got %d calls", calls)
	}
}

func TestResolveLoggerReceivesEvents(t *testing.T) {
	var events []ResolveLogEvent
	resolver := NewResolver(
		WithName("display"),
		WithLogger(ResolveLoggerFunc(func(event ResolveLogEvent) {
			events = append(events, event)
		})),
	).SetDefaults(map[string]any{"color": "red"})

	if _, err := resolver.Resolve(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := resolver.Resolve(map[string]any{"foo": 1}); err == nil {
		t.Fatalf("expected unknown option error")
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 log events, got %d", len(events))
	}
	if events[0].Resolver != "display" || events[0].Err != nil || !reflect.DeepEqual([]string{"color"}, events[0].Keys) {
		t.Fatalf("unexpected success event: %+v", events[0])
	}
	if !errors.Is(events[1].Err, ErrUnknownOption) || events[1].Keys != nil {
		t.Fatalf("unexpected failure event: %+v", events[1])
	}
}

func TestResolveConcurrentCalls(t *testing.T) {
	resolver := NewResolver().
		SetDefaults(map[string]any{"level": 1}).
		SetTypes(map[string]TypeTag{"level": TypeNumber}).
		SetValidators(map[string]Validator{"level": Clamp(0, 10)})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(level int) {
			defer wg.Done()
			got, err := resolver.Resolve(map[string]any{"level": level})
			if err != nil {
				errs <- err
				return
			}
			if want := min(level, 10); got["level"] != want {
				errs <- fmt.Errorf("level %d resolved to %v", level, got["level"])
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func loadFixture[T any](t *testing.T, name string) T {
	t.Helper()
	path := filepath.Join("testdata", name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %q: %v", name, err)
	}
	var fx T
	if err := json.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("failed to unmarshal fixture %q: %v", name, err)
	}
	return fx
}

func TestValidatorMayCallBackIntoResolver(t *testing.T) {
	resolver := NewResolver().SetDefaults(map[string]any{"mode": "fast"})
	resolver.SetValidators(map[string]Validator{
		"mode": func(value any) (any, error) {
			if !resolver.Known("mode") || resolver.Defaults()["mode"] != "fast" {
				return nil, errors.New("schema not visible from validator")
			}
			resolver.SetOptional("seen")
			return value, nil
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := resolver.Resolve(map[string]any{"mode": "slow"})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("resolve blocked while a validator used the resolver")
	}
	if !resolver.Known("seen") {
		t.Fatalf("expected the validator's schema change to be kept")
	}
}
