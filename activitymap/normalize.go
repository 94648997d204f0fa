// Package activitymap flattens access activity events into the audit record
// shape the back-office pipeline ingests. Raw events carry per-feature
// metadata maps; the pipeline filters on actor, target, path, and status
// transition, so those are first-class fields here.
package activitymap

import (
	"context"
	"strings"
	"time"

	access "github.com/xsterhouse/gatewaypagamento-sub000"
)

// Object types assigned to audit records.
const (
	ObjectTypeUser    = "user"
	ObjectTypeSession = "session"
	ObjectTypeRoute   = "route"
	ObjectTypeAccount = "account"
)

// Verbs produced for the known event types. Unknown event types pass through
// with their raw type string as the verb.
const (
	VerbImpersonationStart = "impersonation.start"
	VerbImpersonationStop  = "impersonation.stop"
	VerbImpersonationDeny  = "impersonation.deny"
	VerbLogoutStart        = "logout.start"
	VerbLogoutComplete     = "logout.complete"
	VerbNavigationBlock    = "navigation.block"
	VerbStatusChange       = "account.status_change"
)

const (
	defaultChannel = "back-office"
	defaultActorID = "system"
)

// Normalized is one audit record. TargetUserID, Path, and Reason are lifted
// out of the event metadata; whatever metadata remains after lifting rides
// along untouched.
type Normalized struct {
	Verb         string         `json:"verb"`
	ActorID      string         `json:"actor_id"`
	ActorType    string         `json:"actor_type,omitempty"`
	ObjectType   string         `json:"object_type,omitempty"`
	ObjectID     string         `json:"object_id,omitempty"`
	TargetUserID string         `json:"target_user_id,omitempty"`
	Path         string         `json:"path,omitempty"`
	FromStatus   string         `json:"from_status,omitempty"`
	ToStatus     string         `json:"to_status,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Channel      string         `json:"channel,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
}

// WithDefaultChannel sets the channel stamped on every record.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when the event names no actor,
// e.g. flag cleanup done by a startup job.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// Normalize converts an access.ActivityEvent into an audit record.
func Normalize(event access.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	meta := cloneMap(event.Metadata)

	record := Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		ActorType:    strings.TrimSpace(event.Actor.Type),
		TargetUserID: popString(meta, "target_user_id"),
		Path:         popString(meta, "path"),
		Reason:       popString(meta, "reason"),
		FromStatus:   string(event.FromStatus),
		ToStatus:     string(event.ToStatus),
		Channel:      options.channel,
		OccurredAt:   event.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}

	subject := strings.TrimSpace(event.UserID)

	switch event.EventType {
	case access.ActivityEventImpersonationStarted:
		record.Verb = VerbImpersonationStart
		record.ObjectType = ObjectTypeUser
		record.ObjectID = firstNonEmpty(record.TargetUserID, subject)
	case access.ActivityEventImpersonationStopped:
		record.Verb = VerbImpersonationStop
		record.ObjectType = ObjectTypeUser
		record.ObjectID = firstNonEmpty(record.TargetUserID, subject)
	case access.ActivityEventImpersonationDenied:
		record.Verb = VerbImpersonationDeny
		record.ObjectType = ObjectTypeUser
		record.ObjectID = firstNonEmpty(record.TargetUserID, subject)
	case access.ActivityEventLogoutStarted:
		record.Verb = VerbLogoutStart
		record.ObjectType = ObjectTypeSession
		record.ObjectID = subject
	case access.ActivityEventLogoutCompleted:
		record.Verb = VerbLogoutComplete
		record.ObjectType = ObjectTypeSession
		record.ObjectID = subject
	case access.ActivityEventNavigationBlocked:
		record.Verb = VerbNavigationBlock
		record.ObjectType = ObjectTypeRoute
		record.ObjectID = record.Path
	case access.ActivityEventStatusChanged:
		record.Verb = VerbStatusChange
		record.ObjectType = ObjectTypeAccount
		record.ObjectID = subject
	default:
		record.Verb = string(event.EventType)
		record.ObjectType = ObjectTypeUser
		record.ObjectID = subject
	}

	if len(meta) > 0 {
		record.Metadata = meta
	}

	return record
}

// NewSink returns an ActivitySink publishing audit records through publish.
// Pipelines plug their transport in without knowing the event types.
func NewSink(publish func(ctx context.Context, record Normalized) error, opts ...Option) access.ActivitySink {
	return access.ActivitySinkFunc(func(ctx context.Context, event access.ActivityEvent) error {
		if publish == nil {
			return nil
		}
		return publish(ctx, Normalize(event, opts...))
	})
}

func popString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	value, ok := meta[key].(string)
	if !ok {
		return ""
	}
	delete(meta, key)
	return strings.TrimSpace(value)
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
