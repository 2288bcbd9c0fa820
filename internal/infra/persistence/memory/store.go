// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments, and as the transactional
// engine behind the snapshotting sqlite and postgres stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sampleflow/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Sample aliases domain.Sample for in-memory persistence operations.
	Sample = domain.Sample
	// User aliases domain.User.
	User = domain.User
	// SettingsVersion aliases domain.SettingsVersion.
	SettingsVersion = domain.SettingsVersion
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Sequences holds the next identifier handed out per entity.
type Sequences struct {
	Sample   int64 `json:"sample"`
	User     int64 `json:"user"`
	Settings int64 `json:"settings"`
}

type memoryState struct {
	samples  map[string]Sample
	users    map[int64]User
	emails   map[string]int64
	settings []SettingsVersion
	seq      Sequences
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Samples   map[string]Sample `json:"samples"`
	Users     map[int64]User    `json:"users"`
	Settings  []SettingsVersion `json:"settings"`
	Sequences Sequences         `json:"sequences"`
}

func newMemoryState() memoryState {
	return memoryState{
		samples: make(map[string]Sample),
		users:   make(map[int64]User),
		emails:  make(map[string]int64),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Samples:   make(map[string]Sample, len(state.samples)),
		Users:     make(map[int64]User, len(state.users)),
		Settings:  make([]SettingsVersion, 0, len(state.settings)),
		Sequences: state.seq,
	}
	for k, v := range state.samples {
		s.Samples[k] = cloneSample(v)
	}
	for k, v := range state.users {
		s.Users[k] = v
	}
	for _, v := range state.settings {
		s.Settings = append(s.Settings, cloneSettings(v))
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Samples {
		state.samples[k] = cloneSample(v)
	}
	for k, v := range s.Users {
		state.users[k] = v
		state.emails[domain.NormalizeEmail(v.Email)] = k
	}
	for _, v := range s.Settings {
		state.settings = append(state.settings, cloneSettings(v))
	}
	sort.Slice(state.settings, func(i, j int) bool { return state.settings[i].ID < state.settings[j].ID })
	state.seq = reconcileSequences(s.Sequences, state)
	return state
}

// reconcileSequences guards against snapshots written before sequences were
// tracked by never handing out an identifier lower than one already in use.
func reconcileSequences(seq Sequences, state memoryState) Sequences {
	for _, v := range state.samples {
		if v.ID > seq.Sample {
			seq.Sample = v.ID
		}
	}
	for id := range state.users {
		if id > seq.User {
			seq.User = id
		}
	}
	for _, v := range state.settings {
		if v.ID > seq.Settings {
			seq.Settings = v.ID
		}
	}
	return seq
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

func cloneSample(s Sample) Sample {
	if s.ReferenceSequenceDescription != nil {
		desc := *s.ReferenceSequenceDescription
		s.ReferenceSequenceDescription = &desc
	}
	return s
}

func cloneSettings(v SettingsVersion) SettingsVersion {
	v.Values = cloneValue(v.Values).(map[string]any)
	return v
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, inner := range typed {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = cloneValue(inner)
		}
		return out
	case []string:
		out := make([]string, len(typed))
		copy(out, typed)
		return out
	case nil:
		return map[string]any(nil)
	default:
		return typed
	}
}

// Store provides an in-memory transactional store for the domain. Every
// transaction holds the exclusive lock from first read to commit, so a
// count-then-insert sequence inside one transaction cannot interleave with
// another writer.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the timestamp source used for created/updated fields.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListSamples returns all samples ordered by creation.
func (v transactionView) ListSamples() []Sample {
	out := make([]Sample, 0, len(v.state.samples))
	for _, sample := range v.state.samples {
		out = append(out, cloneSample(sample))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SamplesBetween returns samples dated within [start, end) ordered by creation.
func (v transactionView) SamplesBetween(start, end time.Time) []Sample {
	week := domain.WeekRange{Start: start, End: end}
	var out []Sample
	for _, sample := range v.ListSamples() {
		if week.Contains(sample.Date) {
			out = append(out, sample)
		}
	}
	return out
}

// FindSample retrieves a sample by primary key.
func (v transactionView) FindSample(primaryKey string) (Sample, bool) {
	sample, ok := v.state.samples[primaryKey]
	if !ok {
		return Sample{}, false
	}
	return cloneSample(sample), true
}

// LatestSettings returns the settings version with the highest ID.
func (v transactionView) LatestSettings() (SettingsVersion, bool) {
	if len(v.state.settings) == 0 {
		return SettingsVersion{}, false
	}
	return cloneSettings(v.state.settings[len(v.state.settings)-1]), true
}

// ListSettings returns every settings version, oldest first.
func (v transactionView) ListSettings() []SettingsVersion {
	out := make([]SettingsVersion, 0, len(v.state.settings))
	for _, version := range v.state.settings {
		out = append(out, cloneSettings(version))
	}
	return out
}

// ListUsers returns all users ordered by ID.
func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindUser retrieves a user by ID.
func (v transactionView) FindUser(id int64) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

// FindUserByEmail retrieves a user by case-insensitive email.
func (v transactionView) FindUserByEmail(email string) (User, bool) {
	id, ok := v.state.emails[domain.NormalizeEmail(email)]
	if !ok {
		return User{}, false
	}
	return v.FindUser(id)
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no rule blocks.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindSample exposes sample lookup within the transaction scope.
func (tx *transaction) FindSample(primaryKey string) (Sample, bool) {
	return tx.Snapshot().FindSample(primaryKey)
}

// FindUserByEmail exposes user lookup within the transaction scope.
func (tx *transaction) FindUserByEmail(email string) (User, bool) {
	return tx.Snapshot().FindUserByEmail(email)
}

// LatestSettings exposes the newest settings version within the transaction scope.
func (tx *transaction) LatestSettings() (SettingsVersion, bool) {
	return tx.Snapshot().LatestSettings()
}

// CreateSample stores a new sample. The primary key must be unused.
func (tx *transaction) CreateSample(sample Sample) (Sample, error) {
	if sample.PrimaryKey == "" {
		return Sample{}, fmt.Errorf("sample primary key required")
	}
	if _, exists := tx.state.samples[sample.PrimaryKey]; exists {
		return Sample{}, domain.IntegrityError{Entity: domain.EntitySample, Key: sample.PrimaryKey}
	}
	if sample.TubePrimaryKey == "" {
		sample.TubePrimaryKey = sample.PrimaryKey
	}
	tx.state.seq.Sample++
	sample.ID = tx.state.seq.Sample
	sample.CreatedAt = tx.now
	sample.UpdatedAt = tx.now
	tx.state.samples[sample.PrimaryKey] = cloneSample(sample)
	tx.recordChange(Change{Entity: domain.EntitySample, Action: domain.ActionCreate, After: cloneSample(sample)})
	return cloneSample(sample), nil
}

// UpdateSample mutates a sample using the provided mutator function. Identity
// fields are restored after the mutator runs.
func (tx *transaction) UpdateSample(primaryKey string, mutator func(*Sample) error) (Sample, error) {
	current, ok := tx.state.samples[primaryKey]
	if !ok {
		return Sample{}, domain.NotFoundError{Entity: domain.EntitySample, ID: primaryKey}
	}
	before := cloneSample(current)
	if err := mutator(&current); err != nil {
		return Sample{}, err
	}
	current.ID = before.ID
	current.PrimaryKey = before.PrimaryKey
	current.TubePrimaryKey = before.TubePrimaryKey
	current.Date = before.Date
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.samples[primaryKey] = cloneSample(current)
	tx.recordChange(Change{Entity: domain.EntitySample, Action: domain.ActionUpdate, Before: before, After: cloneSample(current)})
	return cloneSample(current), nil
}

// CreateUser stores a new user. Emails are unique ignoring case.
func (tx *transaction) CreateUser(u User) (User, error) {
	key := domain.NormalizeEmail(u.Email)
	if key == "" {
		return User{}, fmt.Errorf("user email required")
	}
	if _, exists := tx.state.emails[key]; exists {
		return User{}, domain.IntegrityError{Entity: domain.EntityUser, Key: u.Email}
	}
	tx.state.seq.User++
	u.ID = tx.state.seq.User
	u.Email = key
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = u
	tx.state.emails[key] = u.ID
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: u})
	return u, nil
}

// UpdateUser mutates an existing user. The email address is immutable.
func (tx *transaction) UpdateUser(id int64, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: fmt.Sprint(id)}
	}
	before := current
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = before.ID
	current.Email = before.Email
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.users[id] = current
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// AppendSettings adds a new settings version; earlier versions are never touched.
func (tx *transaction) AppendSettings(version SettingsVersion) (SettingsVersion, error) {
	if version.Values == nil {
		return SettingsVersion{}, fmt.Errorf("settings values required")
	}
	tx.state.seq.Settings++
	version.ID = tx.state.seq.Settings
	if version.Timestamp.IsZero() {
		version.Timestamp = tx.now
	}
	version = cloneSettings(version)
	tx.state.settings = append(tx.state.settings, version)
	tx.recordChange(Change{Entity: domain.EntitySettings, Action: domain.ActionCreate, After: cloneSettings(version)})
	return cloneSettings(version), nil
}
