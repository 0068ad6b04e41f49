package auth

import (
	"context"
	"time"
)

// Event is a domain event emitted after a successful mutation. Consumers
// subscribe out of process; nothing in this package depends on who listens.
type Event interface {
	Kind() string
}

// Publisher delivers domain events to external subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

type UserCreated struct {
	UserID    string
	Email     string
	CreatedAt time.Time
}

func (UserCreated) Kind() string { return "user.created" }

type RoleCreated struct {
	RoleID string
	Name   string
}

func (RoleCreated) Kind() string { return "role.created" }

type RoleDeleted struct {
	RoleID string
	Name   string
}

func (RoleDeleted) Kind() string { return "role.deleted" }

type RoleAssigned struct {
	UserID  string
	RoleID  string
	Role    string
	ActorID string
}

func (RoleAssigned) Kind() string { return "role.assigned" }

type RoleRemoved struct {
	UserID  string
	RoleID  string
	Role    string
	ActorID string
}

func (RoleRemoved) Kind() string { return "role.removed" }

type PermissionGranted struct {
	UserID     string
	Permission string
	ActorID    string
}

func (PermissionGranted) Kind() string { return "permission.granted" }

type PermissionRevoked struct {
	UserID     string
	Permission string
	ActorID    string
}

func (PermissionRevoked) Kind() string { return "permission.revoked" }

type OAuthAccountLinked struct {
	UserID   string
	Provider Provider
}

func (OAuthAccountLinked) Kind() string { return "oauth.linked" }

type OAuthAccountUnlinked struct {
	UserID   string
	Provider Provider
}

func (OAuthAccountUnlinked) Kind() string { return "oauth.unlinked" }
