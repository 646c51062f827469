package opts

import (
	"context"
	"time"

	"github.com/goliatone/go-optresolver/pkg/activity"
	"github.com/google/uuid"
)

// WithActivityHooks attaches activity hooks notified after every resolution.
// Hooks are cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := activity.CloneHooks(hooks)
	return func(cfg *resolverConfig) {
		cfg.activityHooks = normalized
	}
}

// WithActivityConfig sets the emission defaults used with WithActivityHooks.
func WithActivityConfig(config activity.Config) Option {
	return func(cfg *resolverConfig) {
		cfg.activity = config
	}
}

// ActivityHooks returns a copy of the configured hooks.
func (r *Resolver) ActivityHooks() activity.Hooks {
	if r == nil {
		return nil
	}
	return activity.CloneHooks(r.cfg.activityHooks)
}

func (r *Resolver) emitResolveActivity(ctx context.Context, run resolution, err error) error {
	emitter := activity.NewEmitter(r.cfg.activityHooks, r.cfg.activity)
	if !emitter.Enabled() {
		return nil
	}
	input := activity.ResolveEventInput{
		Resolver:     r.label(),
		ResolutionID: uuid.NewString(),
		OccurredAt:   time.Now(),
	}
	if err != nil {
		input.Err = err
		input.FailedKey = failedKey(err)
		return emitter.Emit(ctx, activity.BuildRejectedEvent(input))
	}
	input.Keys = run.order
	return emitter.Emit(ctx, activity.BuildResolvedEvent(input))
}
