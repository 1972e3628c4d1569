// Package entity defines the closed set of record shapes the data layer
// stores. Every record crossing the adapter boundary is one of these typed
// variants; untyped maps exist only as transient JSON field projections.
package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags a record variant.
type Kind string

const (
	KindUser                 Kind = "User"
	KindCredential           Kind = "Credential"
	KindSession              Kind = "Session"
	KindWorkflow             Kind = "Workflow"
	KindPage                 Kind = "Page"
	KindInstalledPackage     Kind = "InstalledPackage"
	KindPackageData          Kind = "PackageData"
	KindLuaScript            Kind = "LuaScript"
	KindTenant               Kind = "Tenant"
	KindPowerTransferRequest Kind = "PowerTransferRequest"
)

// Record is implemented by every stored entity.
type Record interface {
	// RecordID returns the primary key. Most entities key by id; Credential
	// keys by username, InstalledPackage and PackageData by package id.
	RecordID() string
	// RecordKind returns the variant tag.
	RecordKind() Kind
}

// Fields is a flat JSON projection of a record, used for equality filters and
// partial updates.
type Fields map[string]any

// Role is a user role.
type Role string

const (
	RolePublic    Role = "public"
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
	RoleGod       Role = "god"
	RoleSuperGod  Role = "supergod"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePublic, RoleUser, RoleModerator, RoleAdmin, RoleGod, RoleSuperGod:
		return true
	}
	return false
}

// TransferStatus is the lifecycle state of a power transfer request.
type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferAccepted TransferStatus = "accepted"
	TransferExpired  TransferStatus = "expired"
)

// WorkflowTrigger is the trigger type of a workflow.
type WorkflowTrigger string

const (
	TriggerManual   WorkflowTrigger = "manual"
	TriggerSchedule WorkflowTrigger = "schedule"
	TriggerEvent    WorkflowTrigger = "event"
	TriggerWebhook  WorkflowTrigger = "webhook"
)

// Valid reports whether the trigger is one of the known trigger types.
func (t WorkflowTrigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerSchedule, TriggerEvent, TriggerWebhook:
		return true
	}
	return false
}

// User is an account in the system.
type User struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	Role            Role      `json:"role"`
	TenantID        string    `json:"tenantId,omitempty"`
	IsInstanceOwner bool      `json:"isInstanceOwner"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (u *User) RecordID() string { return u.ID }
func (u *User) RecordKind() Kind { return KindUser }

// Credential stores the password hash for a username.
type Credential struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

func (c *Credential) RecordID() string { return c.Username }
func (c *Credential) RecordKind() Kind { return KindCredential }

// Session is an authenticated session resolved by opaque token.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
}

func (s *Session) RecordID() string { return s.ID }
func (s *Session) RecordKind() Kind { return KindSession }

// Workflow is a builder-authored automation definition. Nodes and edges are
// opaque payloads owned by the builder UI.
type Workflow struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Trigger  WorkflowTrigger `json:"trigger"`
	Nodes    json.RawMessage `json:"nodes,omitempty"`
	Edges    json.RawMessage `json:"edges,omitempty"`
	Enabled  bool            `json:"enabled"`
	Version  int             `json:"version"`
	TenantID string          `json:"tenantId,omitempty"`
}

func (w *Workflow) RecordID() string { return w.ID }
func (w *Workflow) RecordKind() Kind { return KindWorkflow }

// Page is a routed page definition.
type Page struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Level    int    `json:"level"`
	Layout   string `json:"layout,omitempty"`
	IsActive bool   `json:"isActive"`
}

func (p *Page) RecordID() string { return p.ID }
func (p *Page) RecordKind() Kind { return KindPage }

// InstalledPackage is an installed package record keyed by package id.
type InstalledPackage struct {
	PackageID   string          `json:"packageId"`
	Version     string          `json:"version"`
	Enabled     bool            `json:"enabled"`
	InstalledAt time.Time       `json:"installedAt"`
	TenantID    string          `json:"tenantId,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

func (p *InstalledPackage) RecordID() string { return p.PackageID }
func (p *InstalledPackage) RecordKind() Kind { return KindInstalledPackage }

// PackageData is the opaque runtime payload for a package.
type PackageData struct {
	PackageID string          `json:"packageId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (p *PackageData) RecordID() string { return p.PackageID }
func (p *PackageData) RecordKind() Kind { return KindPackageData }

// LuaScript is a stored script definition. Execution happens elsewhere; the
// data layer only validates shape and syntax.
type LuaScript struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	IsSandboxed    bool      `json:"isSandboxed"`
	AllowedGlobals []string  `json:"allowedGlobals,omitempty"`
	TimeoutMs      int       `json:"timeoutMs"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (s *LuaScript) RecordID() string { return s.ID }
func (s *LuaScript) RecordKind() Kind { return KindLuaScript }

// Tenant is a multi-customer isolation boundary.
type Tenant struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	OwnerID        string          `json:"ownerId"`
	CreatedAt      time.Time       `json:"createdAt"`
	HomepageConfig json.RawMessage `json:"homepageConfig,omitempty"`
}

func (t *Tenant) RecordID() string { return t.ID }
func (t *Tenant) RecordKind() Kind { return KindTenant }

// PowerTransferRequest tracks a pending instance-ownership transfer.
type PowerTransferRequest struct {
	ID         string         `json:"id"`
	FromUserID string         `json:"fromUserId"`
	ToUserID   string         `json:"toUserId"`
	Status     TransferStatus `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
	ExpiresAt  time.Time      `json:"expiresAt"`
}

func (r *PowerTransferRequest) RecordID() string { return r.ID }
func (r *PowerTransferRequest) RecordKind() Kind { return KindPowerTransferRequest }

var constructors = map[Kind]func() Record{
	KindUser:                 func() Record { return &User{} },
	KindCredential:           func() Record { return &Credential{} },
	KindSession:              func() Record { return &Session{} },
	KindWorkflow:             func() Record { return &Workflow{} },
	KindPage:                 func() Record { return &Page{} },
	KindInstalledPackage:     func() Record { return &InstalledPackage{} },
	KindPackageData:          func() Record { return &PackageData{} },
	KindLuaScript:            func() Record { return &LuaScript{} },
	KindTenant:               func() Record { return &Tenant{} },
	KindPowerTransferRequest: func() Record { return &PowerTransferRequest{} },
}

// New returns an empty record of the given kind.
func New(kind Kind) (Record, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return ctor(), nil
}

// Known reports whether kind is part of the closed entity set.
func Known(kind Kind) bool {
	_, ok := constructors[kind]
	return ok
}

// FieldsOf projects a record into its flat JSON field map.
func FieldsOf(rec Record) (Fields, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s record: %w", rec.RecordKind(), err)
	}
	var fields Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("project %s record: %w", rec.RecordKind(), err)
	}
	return fields, nil
}

// FromFields builds a typed record of the given kind from a field map.
func FromFields(kind Kind, fields Fields) (Record, error) {
	rec, err := New(kind)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal %s fields: %w", kind, err)
	}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", kind, err)
	}
	return rec, nil
}

// Decode unmarshals a stored JSON payload into a typed record.
func Decode(kind Kind, data []byte) (Record, error) {
	rec, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", kind, err)
	}
	return rec, nil
}

// Clone deep-copies a record so backends never alias caller memory.
func Clone(rec Record) (Record, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s record: %w", rec.RecordKind(), err)
	}
	return Decode(rec.RecordKind(), raw)
}

// Merge applies a partial field patch to a record and returns the merged
// typed record. The original record is not modified.
func Merge(rec Record, patch Fields) (Record, error) {
	fields, err := FieldsOf(rec)
	if err != nil {
		return nil, err
	}
	for key, value := range patch {
		fields[key] = Normalize(value)
	}
	return FromFields(rec.RecordKind(), fields)
}

// Normalize converts a value to its JSON-shaped form (numbers become float64,
// times become RFC 3339 strings) so values compare consistently regardless of
// which side of the boundary they came from.
func Normalize(value any) any {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return value
	}
	return out
}
