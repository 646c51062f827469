package activity

import (
	"strings"
	"time"
)

const (
	// VerbResolved is emitted after a successful resolution.
	VerbResolved = "options.resolved"
	// VerbRejected is emitted when resolution fails.
	VerbRejected = "options.rejected"
	// ObjectTypeResolution is the object type of resolution events.
	ObjectTypeResolution = "options.resolution"
)

// ResolveEventInput describes the outcome of one resolution.
type ResolveEventInput struct {
	Resolver     string
	ResolutionID string
	Keys         []string
	FailedKey    string
	Err          error
	Metadata     map[string]any
	OccurredAt   time.Time
}

// BuildResolvedEvent constructs an event for a successful resolution.
func BuildResolvedEvent(input ResolveEventInput) Event {
	return buildResolveEvent(VerbResolved, input)
}

// BuildRejectedEvent constructs an event for a failed resolution.
func BuildRejectedEvent(input ResolveEventInput) Event {
	return buildResolveEvent(VerbRejected, input)
}

func buildResolveEvent(verb string, input ResolveEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if resolver := strings.TrimSpace(input.Resolver); resolver != "" {
		metadata = ensureMetadata(metadata)
		metadata["resolver"] = resolver
	}
	if len(input.Keys) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["keys"] = append([]string{}, input.Keys...)
	}
	if input.FailedKey != "" {
		metadata = ensureMetadata(metadata)
		metadata["key"] = input.FailedKey
	}
	if input.Err != nil {
		metadata = ensureMetadata(metadata)
		metadata["error"] = input.Err.Error()
	}

	objectID := strings.TrimSpace(input.ResolutionID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.Resolver)
	}
	if objectID == "" {
		objectID = ObjectTypeResolution
	}

	return Event{
		Verb:       verb,
		ObjectType: ObjectTypeResolution,
		ObjectID:   objectID,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
