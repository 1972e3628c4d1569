// Package validate holds field-level validators for stored entities.
//
// Validators collect every problem instead of stopping at the first, so
// callers can surface a complete list to the client. Messages are stable
// strings that API layers pass through verbatim.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kmarchand/studioforge/internal/dbal/entity"
)

const (
	maxEmailLength   = 254
	maxSlugLength    = 255
	minUsernameRunes = 3
	maxUsernameRunes = 50
)

var (
	slugPattern      = regexp.MustCompile(`^[a-z0-9-/]+$`)
	semverPattern    = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	packageIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// IsValidUUID reports whether value is a canonical 36-character UUID.
func IsValidUUID(value string) bool {
	if len(value) != 36 {
		return false
	}
	_, err := uuid.Parse(value)
	return err == nil
}

// IsValidSlug reports whether value is a lowercase path slug.
func IsValidSlug(value string) bool {
	if value == "" || len(value) > maxSlugLength {
		return false
	}
	return slugPattern.MatchString(value)
}

// IsValidSemver reports whether value is a bare major.minor.patch version.
func IsValidSemver(value string) bool {
	return semverPattern.MatchString(value)
}

// IsValidEmail reports whether value looks like an email address.
func IsValidEmail(value string) bool {
	if value == "" || len(value) > maxEmailLength {
		return false
	}
	return emailPattern.MatchString(value)
}

// IsValidUsername reports whether value is an acceptable account name.
func IsValidUsername(value string) bool {
	n := len([]rune(value))
	if n < minUsernameRunes || n > maxUsernameRunes {
		return false
	}
	return usernamePattern.MatchString(value)
}

// IsValidPackageID reports whether value is an acceptable package identifier.
func IsValidPackageID(value string) bool {
	if value == "" || len(value) > maxSlugLength {
		return false
	}
	return packageIDPattern.MatchString(value)
}

// ValidateID checks a record identifier. An empty identifier reports only
// the emptiness problem, never both messages.
func ValidateID(id string) []string {
	if strings.TrimSpace(id) == "" {
		return []string{"ID cannot be empty"}
	}
	if !IsValidUUID(id) {
		return []string{"ID must be a valid UUID"}
	}
	return nil
}

// ValidateUser checks a full user record before it is stored.
func ValidateUser(user *entity.User) []string {
	var problems []string
	problems = append(problems, ValidateID(user.ID)...)
	if !IsValidUsername(user.Username) {
		problems = append(problems, "username must be 3-50 characters of letters, digits, underscore or hyphen")
	}
	if !IsValidEmail(user.Email) {
		problems = append(problems, "email must be a valid address")
	}
	if !user.Role.Valid() {
		problems = append(problems, fmt.Sprintf("role %q is not recognized", user.Role))
	}
	if user.TenantID != "" && !IsValidUUID(user.TenantID) {
		problems = append(problems, "tenantId must be a valid UUID")
	}
	return problems
}

// ValidateUserPatch checks only the fields a partial update touches.
func ValidateUserPatch(patch entity.Fields) []string {
	var problems []string
	if value, ok := patch["username"]; ok {
		if s, ok := value.(string); !ok || !IsValidUsername(s) {
			problems = append(problems, "username must be 3-50 characters of letters, digits, underscore or hyphen")
		}
	}
	if value, ok := patch["email"]; ok {
		if s, ok := value.(string); !ok || !IsValidEmail(s) {
			problems = append(problems, "email must be a valid address")
		}
	}
	if value, ok := patch["role"]; ok {
		s, isString := value.(string)
		if !isString || !entity.Role(s).Valid() {
			problems = append(problems, fmt.Sprintf("role %v is not recognized", value))
		}
	}
	return problems
}

// ValidateCredential checks a credential record.
func ValidateCredential(cred *entity.Credential) []string {
	var problems []string
	if !IsValidUsername(cred.Username) {
		problems = append(problems, "username must be 3-50 characters of letters, digits, underscore or hyphen")
	}
	if strings.TrimSpace(cred.PasswordHash) == "" {
		problems = append(problems, "passwordHash cannot be empty")
	}
	return problems
}

// ValidateSession checks a session record.
func ValidateSession(session *entity.Session) []string {
	var problems []string
	problems = append(problems, ValidateID(session.ID)...)
	if !IsValidUUID(session.UserID) {
		problems = append(problems, "userId must be a valid UUID")
	}
	if strings.TrimSpace(session.Token) == "" {
		problems = append(problems, "token cannot be empty")
	}
	if session.ExpiresAt.IsZero() {
		problems = append(problems, "expiresAt must be set")
	}
	return problems
}

// ValidateWorkflow checks a workflow record.
func ValidateWorkflow(wf *entity.Workflow) []string {
	var problems []string
	problems = append(problems, ValidateID(wf.ID)...)
	if strings.TrimSpace(wf.Name) == "" {
		problems = append(problems, "name cannot be empty")
	}
	if !wf.Trigger.Valid() {
		problems = append(problems, fmt.Sprintf("trigger %q is not recognized", wf.Trigger))
	}
	if wf.Version < 0 {
		problems = append(problems, "version cannot be negative")
	}
	return problems
}

// ValidatePage checks a page record.
func ValidatePage(page *entity.Page) []string {
	var problems []string
	problems = append(problems, ValidateID(page.ID)...)
	if !IsValidSlug(page.Slug) {
		problems = append(problems, "slug must be lowercase letters, digits, hyphens or slashes")
	}
	if strings.TrimSpace(page.Title) == "" {
		problems = append(problems, "title cannot be empty")
	}
	if page.Level < 0 {
		problems = append(problems, "level cannot be negative")
	}
	return problems
}

// ValidateInstalledPackage checks an installed-package record.
func ValidateInstalledPackage(pkg *entity.InstalledPackage) []string {
	var problems []string
	if !IsValidPackageID(pkg.PackageID) {
		problems = append(problems, "packageId must be lowercase letters, digits or underscores")
	}
	if pkg.Version != "" && !IsValidSemver(pkg.Version) {
		problems = append(problems, "version must be major.minor.patch")
	}
	if pkg.TenantID != "" && !IsValidUUID(pkg.TenantID) {
		problems = append(problems, "tenantId must be a valid UUID")
	}
	return problems
}

// ValidateLuaScript checks a stored script record. Syntax checking happens
// separately so a bad script still gets its field problems reported.
func ValidateLuaScript(script *entity.LuaScript) []string {
	var problems []string
	problems = append(problems, ValidateID(script.ID)...)
	if strings.TrimSpace(script.Name) == "" {
		problems = append(problems, "name cannot be empty")
	}
	if strings.TrimSpace(script.Code) == "" {
		problems = append(problems, "code cannot be empty")
	}
	if script.TimeoutMs < 0 {
		problems = append(problems, "timeoutMs cannot be negative")
	}
	return problems
}

// ValidateTenant checks a tenant record.
func ValidateTenant(tenant *entity.Tenant) []string {
	var problems []string
	problems = append(problems, ValidateID(tenant.ID)...)
	if strings.TrimSpace(tenant.Name) == "" {
		problems = append(problems, "name cannot be empty")
	}
	if tenant.OwnerID != "" && !IsValidUUID(tenant.OwnerID) {
		problems = append(problems, "ownerId must be a valid UUID")
	}
	return problems
}
