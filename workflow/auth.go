package workflow

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/flowengine/types"
)

// SystemActor names runs started without an actor (schedules, internal triggers).
const SystemActor = "system"

// PermissionSource resolves the role of an actor.
type PermissionSource interface {
	ActorRole(ctx context.Context, actorID string) (string, error)
}

// StaticPermissions is an in-memory actor to role table.
type StaticPermissions struct {
	mu    sync.RWMutex
	roles map[string]string
}

// NewStaticPermissions creates a table seeded with roles.
func NewStaticPermissions(roles map[string]string) *StaticPermissions {
	p := &StaticPermissions{roles: make(map[string]string, len(roles))}
	for actor, role := range roles {
		p.roles[actor] = role
	}
	return p
}

// Set assigns a role to an actor.
func (p *StaticPermissions) Set(actorID, role string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roles[actorID] = role
}

// ActorRole implements PermissionSource. Unknown actors have no role.
func (p *StaticPermissions) ActorRole(_ context.Context, actorID string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roles[actorID], nil
}

// Default elevated roles.
var DefaultElevatedRoles = []string{"ADMIN", "PROPERTY_MANAGER"}

// Authorizer decides whether an actor may run a workflow. Elevated roles run
// anything; restricted roles run only their whitelisted workflow ids.
type Authorizer struct {
	source     PermissionSource
	elevated   map[string]struct{}
	restricted map[string]map[string]struct{}
}

// NewAuthorizer creates an authorizer. Role names compare case-insensitively.
func NewAuthorizer(source PermissionSource, elevated []string, restricted map[string][]string) *Authorizer {
	a := &Authorizer{
		source:     source,
		elevated:   make(map[string]struct{}, len(elevated)),
		restricted: make(map[string]map[string]struct{}, len(restricted)),
	}
	for _, r := range elevated {
		a.elevated[strings.ToUpper(r)] = struct{}{}
	}
	for role, ids := range restricted {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		a.restricted[strings.ToUpper(role)] = set
	}
	return a
}

// Authorize returns an UNAUTHORIZED error when actorID may not run
// workflowID. An empty actor is the system trigger and always passes.
func (a *Authorizer) Authorize(ctx context.Context, actorID, workflowID string) error {
	if actorID == "" || actorID == SystemActor {
		return nil
	}
	if a.source == nil {
		return types.Errorf(types.ErrUnauthorized, "no permission source for actor %s", actorID)
	}
	role, err := a.source.ActorRole(ctx, actorID)
	if err != nil {
		return types.Errorf(types.ErrUnauthorized, "cannot resolve role of actor %s", actorID).
			WithCause(err).
			WithDetail("actorId", actorID)
	}
	role = strings.ToUpper(role)
	if _, ok := a.elevated[role]; ok {
		return nil
	}
	if allowed, ok := a.restricted[role]; ok {
		if _, ok := allowed[workflowID]; ok {
			return nil
		}
	}
	return types.Errorf(types.ErrUnauthorized, "actor %s may not execute workflow %s", actorID, workflowID).
		WithDetail("actorId", actorID).
		WithDetail("workflowId", workflowID).
		WithDetail("role", role)
}
