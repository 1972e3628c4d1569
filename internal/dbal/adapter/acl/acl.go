// Package acl wraps a storage adapter with per-kind role permission checks
// and audit logging. A call the actor's role does not cover fails with an
// unauthorized error before it reaches the backend.
package acl

import (
	"context"
	"fmt"
	"log"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// Operation names an adapter call a rule can grant.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
)

// Actor identifies the caller the guard evaluates rules against.
type Actor struct {
	ID       string
	Username string
	Role     entity.Role
}

// Rule grants a set of operations on one entity kind to a set of roles.
// RowFilter, when set, additionally restricts which records a matched role
// may touch.
type Rule struct {
	Kind       entity.Kind
	Roles      []entity.Role
	Operations []Operation
	RowFilter  func(actor Actor, rec entity.Record) bool
}

// DefaultRules is the standing permission matrix: gods administer
// everything, admins manage accounts and read the package and tenant
// surface, plain users see pages and only their own account and sessions.
func DefaultRules() []Rule {
	gods := []entity.Role{entity.RoleGod, entity.RoleSuperGod}
	admins := []entity.Role{entity.RoleAdmin, entity.RoleGod, entity.RoleSuperGod}
	members := []entity.Role{entity.RoleUser, entity.RoleModerator, entity.RoleAdmin, entity.RoleGod, entity.RoleSuperGod}
	all := []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpList}

	ownUser := func(actor Actor, rec entity.Record) bool {
		return rec.RecordID() == actor.ID
	}
	ownSession := func(actor Actor, rec entity.Record) bool {
		session, ok := rec.(*entity.Session)
		return ok && session.UserID == actor.ID
	}

	return []Rule{
		{Kind: entity.KindUser, Roles: []entity.Role{entity.RoleUser}, Operations: []Operation{OpRead, OpUpdate}, RowFilter: ownUser},
		{Kind: entity.KindUser, Roles: admins, Operations: all},
		{Kind: entity.KindCredential, Roles: gods, Operations: all},
		{Kind: entity.KindSession, Roles: []entity.Role{entity.RoleUser}, Operations: []Operation{OpRead, OpDelete}, RowFilter: ownSession},
		{Kind: entity.KindSession, Roles: gods, Operations: all},
		{Kind: entity.KindPage, Roles: members, Operations: []Operation{OpRead, OpList}},
		{Kind: entity.KindPage, Roles: gods, Operations: []Operation{OpCreate, OpUpdate, OpDelete}},
		{Kind: entity.KindWorkflow, Roles: gods, Operations: all},
		{Kind: entity.KindLuaScript, Roles: gods, Operations: all},
		{Kind: entity.KindInstalledPackage, Roles: admins, Operations: []Operation{OpRead, OpList}},
		{Kind: entity.KindInstalledPackage, Roles: gods, Operations: all},
		{Kind: entity.KindPackageData, Roles: gods, Operations: all},
		{Kind: entity.KindTenant, Roles: admins, Operations: []Operation{OpRead, OpList}},
		{Kind: entity.KindTenant, Roles: gods, Operations: all},
		{Kind: entity.KindPowerTransferRequest, Roles: gods, Operations: all},
	}
}

// Guard is a storage adapter that checks every call against the rule set
// before delegating to the wrapped backend.
type Guard struct {
	base  adapter.Adapter
	actor Actor
	rules []Rule
	logf  func(format string, args ...any)
}

// Option adjusts a Guard.
type Option func(*Guard)

// WithRules replaces the default rule set.
func WithRules(rules []Rule) Option {
	return func(g *Guard) { g.rules = rules }
}

// WithAuditLog routes audit lines to logf instead of the standard logger.
func WithAuditLog(logf func(format string, args ...any)) Option {
	return func(g *Guard) { g.logf = logf }
}

// WithoutAudit disables audit logging.
func WithoutAudit() Option {
	return func(g *Guard) { g.logf = nil }
}

// Wrap guards base with the actor's permissions.
func Wrap(base adapter.Adapter, actor Actor, opts ...Option) *Guard {
	g := &Guard{base: base, actor: actor, rules: DefaultRules(), logf: log.Printf}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) audit(kind entity.Kind, op Operation, success bool, detail string) {
	if g.logf == nil {
		return
	}
	if detail == "" {
		g.logf("audit actor=%s role=%s kind=%s op=%s success=%t",
			g.actor.Username, g.actor.Role, kind, op, success)
		return
	}
	g.logf("audit actor=%s role=%s kind=%s op=%s success=%t detail=%q",
		g.actor.Username, g.actor.Role, kind, op, success, detail)
}

// allowed reports whether any rule grants the actor's role the operation.
func (g *Guard) allowed(kind entity.Kind, op Operation) error {
	for _, rule := range g.rules {
		if rule.Kind != kind || !hasRole(rule.Roles, g.actor.Role) {
			continue
		}
		if hasOp(rule.Operations, op) {
			return nil
		}
	}
	g.audit(kind, op, false, "permission denied")
	return apperrors.WithMetadata(apperrors.CodeUnauthorized,
		fmt.Sprintf("%s (%s) cannot %s %s", g.actor.Username, g.actor.Role, op, kind),
		map[string]string{"kind": string(kind), "operation": string(op)})
}

// rowAllowed applies the row filters of every rule that matched the actor.
func (g *Guard) rowAllowed(kind entity.Kind, op Operation, rec entity.Record) error {
	for _, rule := range g.rules {
		if rule.Kind != kind || rule.RowFilter == nil {
			continue
		}
		if !hasRole(rule.Roles, g.actor.Role) || !hasOp(rule.Operations, op) {
			continue
		}
		if !rule.RowFilter(g.actor, rec) {
			g.audit(kind, op, false, "row access denied")
			return apperrors.WithMetadata(apperrors.CodeUnauthorized,
				fmt.Sprintf("row access denied for %s", kind),
				map[string]string{"kind": string(kind), "id": rec.RecordID()})
		}
	}
	return nil
}

func (g *Guard) Create(ctx context.Context, rec entity.Record) error {
	kind := rec.RecordKind()
	if err := g.allowed(kind, OpCreate); err != nil {
		return err
	}
	if err := g.base.Create(ctx, rec); err != nil {
		g.audit(kind, OpCreate, false, err.Error())
		return err
	}
	g.audit(kind, OpCreate, true, "")
	return nil
}

func (g *Guard) Read(ctx context.Context, kind entity.Kind, id string) (entity.Record, error) {
	if err := g.allowed(kind, OpRead); err != nil {
		return nil, err
	}
	rec, err := g.base.Read(ctx, kind, id)
	if err != nil {
		g.audit(kind, OpRead, false, err.Error())
		return nil, err
	}
	if err := g.rowAllowed(kind, OpRead, rec); err != nil {
		return nil, err
	}
	g.audit(kind, OpRead, true, "")
	return rec, nil
}

func (g *Guard) FindFirst(ctx context.Context, kind entity.Kind, where entity.Fields) (entity.Record, error) {
	if err := g.allowed(kind, OpRead); err != nil {
		return nil, err
	}
	rec, err := g.base.FindFirst(ctx, kind, where)
	if err != nil {
		g.audit(kind, OpRead, false, err.Error())
		return nil, err
	}
	if err := g.rowAllowed(kind, OpRead, rec); err != nil {
		return nil, err
	}
	g.audit(kind, OpRead, true, "")
	return rec, nil
}

func (g *Guard) Update(ctx context.Context, kind entity.Kind, id string, patch entity.Fields) (entity.Record, error) {
	if err := g.allowed(kind, OpUpdate); err != nil {
		return nil, err
	}
	if existing, err := g.base.Read(ctx, kind, id); err == nil {
		if err := g.rowAllowed(kind, OpUpdate, existing); err != nil {
			return nil, err
		}
	}
	rec, err := g.base.Update(ctx, kind, id, patch)
	if err != nil {
		g.audit(kind, OpUpdate, false, err.Error())
		return nil, err
	}
	g.audit(kind, OpUpdate, true, "")
	return rec, nil
}

func (g *Guard) Delete(ctx context.Context, kind entity.Kind, id string) error {
	if err := g.allowed(kind, OpDelete); err != nil {
		return err
	}
	if existing, err := g.base.Read(ctx, kind, id); err == nil {
		if err := g.rowAllowed(kind, OpDelete, existing); err != nil {
			return err
		}
	}
	if err := g.base.Delete(ctx, kind, id); err != nil {
		g.audit(kind, OpDelete, false, err.Error())
		return err
	}
	g.audit(kind, OpDelete, true, "")
	return nil
}

func (g *Guard) List(ctx context.Context, kind entity.Kind, opts adapter.ListOptions) (adapter.ListResult, error) {
	if err := g.allowed(kind, OpList); err != nil {
		return adapter.ListResult{}, err
	}
	res, err := g.base.List(ctx, kind, opts)
	if err != nil {
		g.audit(kind, OpList, false, err.Error())
		return adapter.ListResult{}, err
	}
	g.audit(kind, OpList, true, "")
	return res, nil
}

// Transact delegates to the backend transaction; every call inside it goes
// through the same checks.
func (g *Guard) Transact(ctx context.Context, fn func(tx adapter.Adapter) error) error {
	return g.base.Transact(ctx, func(tx adapter.Adapter) error {
		return fn(&Guard{base: tx, actor: g.actor, rules: g.rules, logf: g.logf})
	})
}

func (g *Guard) Close() error {
	return g.base.Close()
}

func hasRole(roles []entity.Role, role entity.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func hasOp(ops []Operation, op Operation) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

var _ adapter.Adapter = (*Guard)(nil)
