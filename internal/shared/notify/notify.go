// Package notify delivers lifecycle notifications. Delivery is best effort
// and fully decoupled from the transition write: a failed send is queued
// for retry and never fails the transition that produced it.
package notify

import (
	"context"
	"time"
)

// Template keys, one per notified lifecycle transition.
const (
	TemplateEndorsed          = "plan_endorsed"
	TemplateApproved          = "plan_approved"
	TemplateApprovedForDecree = "plan_approved_for_decree"
	TemplateDecreed           = "plan_decreed"
	TemplatePublished         = "plan_published"
	TemplateRejected          = "plan_rejected"
)

// Event is one outbound notification, produced by a committed transition.
type Event struct {
	TemplateKey   string    `json:"template_key"`
	PlanID        string    `json:"plan_id"`
	PlanName      string    `json:"plan_name"`
	Year          int       `json:"year"`
	DirectionName string    `json:"direction_name"`
	ActorName     string    `json:"actor_name"`
	Comment       string    `json:"comment"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier sends a single notification event.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// NopNotifier discards events. Used when no gateway is configured.
type NopNotifier struct{}

func (NopNotifier) Send(ctx context.Context, event Event) error { return nil }
