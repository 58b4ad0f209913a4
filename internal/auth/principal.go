package auth

import (
	"context"
	"slices"

	"github.com/gofrs/uuid"
)

type Role string

const (
	RoleStaff   Role = "staff"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
	RoleService Role = "service"
)

// Capability is something a principal may be allowed to do.
type Capability int

const (
	CapManage Capability = iota + 1
	CapPublishEvents
)

// Principal is the resolved identity behind a request or a hub connection.
type Principal struct {
	Subject uuid.UUID `json:"subject"`
	Name    string    `json:"name"`
	Roles   []Role    `json:"roles"`
}

func NewPrincipal(subject uuid.UUID, name string, labels []string) Principal {
	roles := make([]Role, 0, len(labels))
	for _, l := range labels {
		r := Role(l)
		if !slices.Contains(roles, r) {
			roles = append(roles, r)
		}
	}
	return Principal{Subject: subject, Name: name, Roles: roles}
}

func (p Principal) HasRole(r Role) bool {
	return slices.Contains(p.Roles, r)
}

func (p Principal) Can(c Capability) bool {
	switch c {
	case CapManage:
		return p.HasRole(RoleManager) || p.HasRole(RoleAdmin)
	case CapPublishEvents:
		return p.HasRole(RoleService) || p.HasRole(RoleManager) || p.HasRole(RoleAdmin)
	default:
		return false
	}
}

func (p Principal) IsManager() bool { return p.Can(CapManage) }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
