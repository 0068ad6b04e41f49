package auth

import (
	"fmt"
	"regexp"
	"strings"
)

// WildcardAction matches any specific action on the same resource when held.
const WildcardAction = "*"

var grantPartPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Grant is a resource:action pair. The zero value is invalid; construct
// grants through ParseGrant so normalization and format rules apply.
type Grant struct {
	Resource string
	Action   string
}

// ParseGrant lower-cases name and splits it on exactly one colon. Resource
// must match ^[a-z][a-z0-9_]*$; action must match the same or be exactly "*".
func ParseGrant(name string) (Grant, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Grant{}, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	parts := strings.Split(name, ":")
	if len(parts) != 2 {
		return Grant{}, fmt.Errorf("%w: permission name must be resource:action", ErrInvalidInput)
	}
	resource, action := parts[0], parts[1]
	if !grantPartPattern.MatchString(resource) {
		return Grant{}, fmt.Errorf("%w: invalid resource %q", ErrInvalidInput, resource)
	}
	if action != WildcardAction && !grantPartPattern.MatchString(action) {
		return Grant{}, fmt.Errorf("%w: invalid action %q", ErrInvalidInput, action)
	}
	return Grant{Resource: resource, Action: action}, nil
}

// Name returns the canonical resource:action form.
func (g Grant) Name() string {
	return g.Resource + ":" + g.Action
}

// Grants reports whether a held grant satisfies the requested one. The
// wildcard is one-directional: a held wildcard covers any requested action
// on the same resource, a held specific action never covers a requested
// wildcard. A held wildcard covers a requested wildcard.
func (g Grant) Grants(requested Grant) bool {
	if g.Resource != requested.Resource {
		return false
	}
	return g.Action == requested.Action || g.Action == WildcardAction
}

// Matches is the symmetric relation used for set semantics: either side may
// be a wildcard. It must not be used for authorization checks.
func (g Grant) Matches(other Grant) bool {
	if g.Resource != other.Resource {
		return false
	}
	return g.Action == other.Action || g.Action == WildcardAction || other.Action == WildcardAction
}
