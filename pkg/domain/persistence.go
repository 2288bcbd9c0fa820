package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. All reads inside a transaction observe
// the writes made earlier in the same transaction.
type Transaction interface {
	Snapshot() TransactionView
	CreateSample(Sample) (Sample, error)
	UpdateSample(primaryKey string, mutator func(*Sample) error) (Sample, error)
	FindSample(primaryKey string) (Sample, bool)
	CreateUser(User) (User, error)
	UpdateUser(id int64, mutator func(*User) error) (User, error)
	FindUserByEmail(email string) (User, bool)
	AppendSettings(SettingsVersion) (SettingsVersion, error)
	LatestSettings() (SettingsVersion, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	ListUsers() []User
	FindUser(id int64) (User, bool)
	FindUserByEmail(email string) (User, bool)
	ListSettings() []SettingsVersion
}

// PersistentStore is the minimal abstraction over durable backends used by
// higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}

// WeekRange is a half-open [Start, End) interval of sample dates.
type WeekRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r WeekRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}
