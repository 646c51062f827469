package opts

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/goliatone/go-optresolver/pkg/activity"
	"github.com/google/uuid"
)

func TestResolveEmitsResolvedActivity(t *testing.T) {
	capture := &activity.CaptureHook{}
	resolver := NewResolver(
		WithName("server"),
		WithActivityHooks(activity.Hooks{nil, capture}),
	).SetDefaults(map[string]any{"port": 8080}).SetOptional("debug")

	ctx := activity.WithActor(context.Background(), activity.Actor{ID: "actor-1", TenantID: "tenant-1"})
	if _, err := resolver.ResolveContext(ctx, map[string]any{"debug": true}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	events := capture.Snapshot()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	event := events[0]
	if event.Verb != activity.VerbResolved || event.ObjectType != activity.ObjectTypeResolution {
		t.Fatalf("unexpected event identity: %+v", event)
	}
	if _, err := uuid.Parse(event.ObjectID); err != nil {
		t.Fatalf("expected resolution id to be a uuid, got %q", event.ObjectID)
	}
	if event.ActorID != "actor-1" || event.TenantID != "tenant-1" || event.Channel != activity.DefaultChannel {
		t.Fatalf("unexpected actor or channel: %+v", event)
	}
	if event.Metadata["resolver"] != "server" {
		t.Fatalf("expected resolver metadata, got %v", event.Metadata)
	}
	keys, _ := event.Metadata["keys"].([]string)
	if !slices.Equal(keys, []string{"port", "debug"}) {
		t.Fatalf("unexpected keys metadata: %v", keys)
	}
	if len(resolver.ActivityHooks()) != 1 {
		t.Fatalf("expected nil hooks to be dropped")
	}
}

func TestResolveEmitsRejectedActivity(t *testing.T) {
	capture := &activity.CaptureHook{}
	resolver := NewResolver(
		WithActivityHooks(activity.Hooks{capture}),
		WithActivityConfig(activity.Config{Channel: "config"}),
	).SetRequired("token")

	if _, err := resolver.Resolve(nil); !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("expected missing required, got %v", err)
	}
	events := capture.Snapshot()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	event := events[0]
	if event.Verb != activity.VerbRejected || event.Channel != "config" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Metadata["key"] != "token" || event.Metadata["error"] != `opts: option "token" is required` {
		t.Fatalf("unexpected rejection metadata: %v", event.Metadata)
	}
}

func TestResolveActivityErrorsDoNotFailResolution(t *testing.T) {
	boom := errors.New("sink down")
	var logged []ResolveLogEvent
	resolver := NewResolver(
		WithActivityHooks(activity.Hooks{activity.HookFunc(func(context.Context, activity.Event) error {
			return boom
		})}),
		WithLogger(ResolveLoggerFunc(func(event ResolveLogEvent) {
			logged = append(logged, event)
		})),
	)

	if _, err := resolver.Resolve(nil); err != nil {
		t.Fatalf("hook failure must not fail resolution, got %v", err)
	}
	if len(logged) != 1 || !errors.Is(logged[0].ActivityErr, boom) {
		t.Fatalf("expected hook error in log event, got %+v", logged)
	}
}

func TestResolveActivityDisabled(t *testing.T) {
	capture := &activity.CaptureHook{}
	resolver := NewResolver(
		WithActivityHooks(activity.Hooks{capture}),
		WithActivityConfig(activity.Config{Disabled: true}),
	)
	if _, err := resolver.Resolve(nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(capture.Snapshot()) != 0 {
		t.Fatalf("expected no events when disabled")
	}
}
