// Package domain defines the persistent records, value types, and rule
// evaluation primitives used by sampleflow.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntitySample identifies a submitted sample record.
	EntitySample EntityType = "sample"
	// EntityUser identifies a user account record.
	EntityUser EntityType = "user"
	// EntitySettings identifies a settings version record.
	EntitySettings EntityType = "settings"
)

// ResubmittedOwner is the owner marker placed on samples created by a resubmission.
const ResubmittedOwner = "RESUBMITTED"

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Sample is a single intake event occupying one plate slot in one ISO week.
// PrimaryKey is assigned at creation and never recomputed.
type Sample struct {
	ID                           int64     `json:"id"`
	Email                        string    `json:"email"`
	PrimaryKey                   string    `json:"primary_key"`
	TubePrimaryKey               string    `json:"tube_primary_key"`
	Name                         string    `json:"name"`
	RunningOption                string    `json:"running_option"`
	Concentration                int       `json:"concentration"`
	Date                         time.Time `json:"date"`
	HasReferenceSeqZip           bool      `json:"has_reference_seq_zip"`
	ReferenceSequenceDescription *string   `json:"reference_sequence_description"`
	HasResultsZip                bool      `json:"has_results_zip"`
	HasResultsFasta              bool      `json:"has_results_fasta"`
	HasResultsGbk                bool      `json:"has_results_gbk"`
	CreatedAt                    time.Time `json:"created_at"`
	UpdatedAt                    time.Time `json:"updated_at"`
}

// IsResubmission reports whether the sample points at an earlier tube.
func (s Sample) IsResubmission() bool {
	return s.TubePrimaryKey != "" && s.TubePrimaryKey != s.PrimaryKey
}

// User is an account able to submit samples. Admins additionally manage
// settings and upload results.
type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"password_hash"`
	Activated         bool      `json:"activated"`
	IsAdmin           bool      `json:"is_admin"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	PasswordChangedAt time.Time `json:"password_changed_at,omitempty"`
}

// PublicUser is the client-facing projection of a User.
type PublicUser struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Activated bool   `json:"activated"`
	IsAdmin   bool   `json:"is_admin"`
}

// Public strips credential material from the user record.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Activated: u.Activated, IsAdmin: u.IsAdmin}
}

// NormalizeEmail returns the lookup form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SettingsVersion is one append-only row of the settings log. Values holds the
// payload exactly as submitted so older versions keep their original keys.
type SettingsVersion struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Author    string         `json:"author"`
	Values    map[string]any `json:"values"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the transaction log.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Message != "" {
			return v.Message
		}
	}
	return "transaction blocked by rules"
}
