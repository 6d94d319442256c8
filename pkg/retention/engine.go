package retention

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/memlayer-go/pkg/storage"
)

// ErrRunInProgress indicates a retention run is already executing for the
// tenant. Concurrent runs for the same tenant are mutually exclusive;
// different tenants run independently.
var ErrRunInProgress = errors.New("retention run already in progress for tenant")

// ErrNoMover indicates a move_to_cold_storage rule matched but no Mover was
// configured on the engine.
var ErrNoMover = errors.New("no cold storage mover configured")

// ErrNoCustomEvaluator indicates the rule set contains an enabled custom
// rule but no evaluator was configured on the engine.
var ErrNoCustomEvaluator = errors.New("no custom rule evaluator configured")

// Mover transfers a record to cold storage. Move must be idempotent: moving
// a record that already exists in cold storage succeeds without duplicating
// it. On success the engine deletes the record from the hot store.
type Mover interface {
	Move(ctx context.Context, record *storage.Record) error
}

// CustomEvaluator decides whether a custom rule matches a record. The
// engine passes the rule's parsed CustomConditions through untouched.
type CustomEvaluator func(ctx context.Context, conditions *CustomConditions, record *storage.Record) (bool, error)

// ActionError reports one record the engine could not act on. The run
// continues past action failures; they are collected here instead.
type ActionError struct {
	RuleID   int64
	RecordID int64
	Action   Action
	Err      error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	return fmt.Sprintf("rule %d: %s record %d: %v", e.RuleID, e.Action, e.RecordID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ActionError) Unwrap() error { return e.Err }

// RunResult is the outcome of one retention run.
//
// The decision sets (Archived, Deleted, MovedToCold) record which action
// each matched record was assigned. In a dry run no state changes; the
// decision sets are what a real run over the same population would produce.
// In a real run a record whose action failed appears only in Errors.
type RunResult struct {
	// RunID uniquely identifies this run.
	RunID string

	// TenantID is the tenant the run was scoped to.
	TenantID string

	// StartedAt is the evaluation time every age comparison used.
	StartedAt time.Time

	// DryRun reports whether actions were actually applied.
	DryRun bool

	// Archived lists record IDs assigned the archive action.
	Archived []int64

	// Deleted lists record IDs assigned the delete action.
	Deleted []int64

	// MovedToCold lists record IDs assigned the move_to_cold_storage action.
	MovedToCold []int64

	// Matched counts matches per rule ID, including rules that matched
	// nothing (count 0) so callers can see every rule was evaluated.
	Matched map[int64]int

	// Errors collects per-record failures. A non-empty slice does not mean
	// the run failed; successfully actioned records stay actioned.
	Errors []*ActionError
}

// Engine executes retention rule sets against a tenant's record population.
//
// Rules are evaluated in ascending priority order. Once a rule matches a
// record, the record is terminal for the run: later rules never see it.
// Actions are applied per record; a failure is collected and the run
// continues.
type Engine struct {
	records storage.RecordStore
	rules   storage.RuleStore
	mover   Mover
	custom  CustomEvaluator

	mu      sync.Mutex
	running map[string]bool
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithMover configures the cold-storage destination for
// move_to_cold_storage actions.
func WithMover(mover Mover) EngineOption {
	return func(e *Engine) {
		e.mover = mover
	}
}

// WithCustomEvaluator configures the predicate used by custom rules.
func WithCustomEvaluator(eval CustomEvaluator) EngineOption {
	return func(e *Engine) {
		e.custom = eval
	}
}

// NewEngine creates an Engine over the given stores. The rule store may be
// nil when callers pass pre-loaded rule sets to Execute; Run requires it.
func NewEngine(records storage.RecordStore, rules storage.RuleStore, opts ...EngineOption) *Engine {
	e := &Engine{
		records: records,
		rules:   rules,
		running: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run loads the tenant's rules and full record population, then executes
// the rule set. See Execute for evaluation semantics.
//
// Returns ErrRunInProgress if another run for the same tenant is active.
// Malformed rules abort the run before any record is touched.
func (e *Engine) Run(ctx context.Context, tenantID string, dryRun bool) (*RunResult, error) {
	if e.rules == nil {
		return nil, errors.New("retention: engine has no rule store")
	}

	rows, err := e.rules.ListRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("retention: load rules: %w", err)
	}
	rules, err := ParseRules(rows)
	if err != nil {
		return nil, err
	}

	return e.Execute(ctx, tenantID, rules, dryRun)
}

// Execute runs a pre-loaded rule set against the tenant's population.
//
// The population is every record of the tenant, archived included, queried
// once at the start; records ingested after that are not considered.
// Every age comparison uses the run's single StartedAt timestamp.
//
// Disabled rules are skipped but a rule that matches zero records is still
// a successful evaluation. After a successful non-dry-run execution every
// enabled rule's LastApplied is stamped with StartedAt.
//
// Cancellation is honored between records: actions already applied stay
// applied and the partial result is returned alongside the context error.
func (e *Engine) Execute(ctx context.Context, tenantID string, rules []*Rule, dryRun bool) (*RunResult, error) {
	if !e.tryAcquire(tenantID) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, tenantID)
	}
	defer e.release(tenantID)

	result := &RunResult{
		RunID:     uuid.NewString(),
		TenantID:  tenantID,
		StartedAt: time.Now().UTC(),
		DryRun:    dryRun,
		Matched:   make(map[int64]int),
	}

	enabled := make([]*Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority < enabled[j].Priority
		}
		return enabled[i].ID < enabled[j].ID
	})

	for _, rule := range enabled {
		if rule.Type == RuleTypeCustom && e.custom == nil {
			return nil, fmt.Errorf("%w (rule %d)", ErrNoCustomEvaluator, rule.ID)
		}
		if rule.Action == ActionMoveToColdStorage && e.mover == nil {
			return nil, fmt.Errorf("%w (rule %d)", ErrNoMover, rule.ID)
		}
	}

	population, err := e.records.Query(ctx, tenantID, &storage.QueryOptions{IncludeArchived: true})
	if err != nil {
		return nil, fmt.Errorf("retention: load records: %w", err)
	}

	terminal := make(map[int64]bool, len(population))
	for _, rule := range enabled {
		remaining := make([]*storage.Record, 0, len(population))
		for _, record := range population {
			if !terminal[record.ID] {
				remaining = append(remaining, record)
			}
		}

		matched, err := e.evaluate(ctx, rule, remaining, population, result)
		if err != nil {
			return result, err
		}
		result.Matched[rule.ID] = len(matched)

		for _, record := range matched {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			terminal[record.ID] = true
			e.apply(ctx, rule, record, dryRun, result)
		}
	}

	if !dryRun && e.rules != nil {
		for _, rule := range enabled {
			if err := e.rules.UpdateLastApplied(ctx, tenantID, rule.ID, result.StartedAt); err != nil {
				result.Errors = append(result.Errors, &ActionError{
					RuleID: rule.ID,
					Action: rule.Action,
					Err:    fmt.Errorf("stamp last_applied: %w", err),
				})
			}
		}
	}

	return result, nil
}

// evaluate returns the remaining records matched by a rule.
func (e *Engine) evaluate(ctx context.Context, rule *Rule, remaining, population []*storage.Record, result *RunResult) ([]*storage.Record, error) {
	switch rule.Type {
	case RuleTypeAge:
		return matchByAge(remaining, rule.Age.MaxAge(), result.StartedAt), nil
	case RuleTypeImportance:
		return matchByImportance(remaining, rule.Importance.Threshold), nil
	case RuleTypeConversationAge:
		return matchByConversationAge(remaining, population, rule.ConversationAge.MaxAge(), result.StartedAt), nil
	case RuleTypeMaxItems:
		return matchOverflow(remaining, rule.MaxItems), nil
	case RuleTypeCustom:
		return e.matchCustom(ctx, rule, remaining, result)
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, rule.Type)
	}
}

func matchByAge(remaining []*storage.Record, maxAge time.Duration, now time.Time) []*storage.Record {
	var matched []*storage.Record
	for _, record := range remaining {
		if now.Sub(record.CreatedAt) >= maxAge {
			matched = append(matched, record)
		}
	}
	return matched
}

func matchByImportance(remaining []*storage.Record, threshold float64) []*storage.Record {
	var matched []*storage.Record
	for _, record := range remaining {
		if record.ImportanceScore <= threshold {
			matched = append(matched, record)
		}
	}
	return matched
}

// matchByConversationAge computes each conversation's latest record time
// over the full population, so earlier rules removing records from the
// remaining set cannot make a conversation look older than it is.
func matchByConversationAge(remaining, population []*storage.Record, maxAge time.Duration, now time.Time) []*storage.Record {
	latest := make(map[string]time.Time)
	for _, record := range population {
		if record.ConversationID == "" {
			continue
		}
		if record.CreatedAt.After(latest[record.ConversationID]) {
			latest[record.ConversationID] = record.CreatedAt
		}
	}

	var matched []*storage.Record
	for _, record := range remaining {
		if record.ConversationID == "" {
			continue
		}
		if now.Sub(latest[record.ConversationID]) >= maxAge {
			matched = append(matched, record)
		}
	}
	return matched
}

// matchOverflow groups the remaining records by scope and matches everything
// past the limit, worst first per the rule's order.
func matchOverflow(remaining []*storage.Record, conditions *MaxItemsConditions) []*storage.Record {
	groups := make(map[string][]*storage.Record)
	var keys []string
	for _, record := range remaining {
		key := ""
		if conditions.Scope == ScopeConversation {
			key = record.ConversationID
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], record)
	}
	sort.Strings(keys)

	var matched []*storage.Record
	for _, key := range keys {
		group := groups[key]
		if len(group) <= conditions.Limit {
			continue
		}

		sorted := make([]*storage.Record, len(group))
		copy(sorted, group)
		switch conditions.Order {
		case OrderOldestFirst:
			sort.SliceStable(sorted, func(i, j int) bool {
				if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
					return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
				}
				return sorted[i].ID < sorted[j].ID
			})
		default: // least_important_first
			sort.SliceStable(sorted, func(i, j int) bool {
				if sorted[i].ImportanceScore != sorted[j].ImportanceScore {
					return sorted[i].ImportanceScore < sorted[j].ImportanceScore
				}
				if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
					return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
				}
				return sorted[i].ID < sorted[j].ID
			})
		}

		matched = append(matched, sorted[:len(group)-conditions.Limit]...)
	}
	return matched
}

// matchCustom applies the injected evaluator per record. Evaluator errors
// are collected and the record stays non-terminal.
func (e *Engine) matchCustom(ctx context.Context, rule *Rule, remaining []*storage.Record, result *RunResult) ([]*storage.Record, error) {
	var matched []*storage.Record
	for _, record := range remaining {
		if err := ctx.Err(); err != nil {
			return matched, err
		}
		ok, err := e.custom(ctx, rule.Custom, record)
		if err != nil {
			result.Errors = append(result.Errors, &ActionError{
				RuleID:   rule.ID,
				RecordID: record.ID,
				Action:   rule.Action,
				Err:      fmt.Errorf("custom evaluator: %w", err),
			})
			continue
		}
		if ok {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// apply performs the rule's action on one matched record. In a dry run only
// the decision sets are updated.
func (e *Engine) apply(ctx context.Context, rule *Rule, record *storage.Record, dryRun bool, result *RunResult) {
	if dryRun {
		result.record(rule.Action, record.ID)
		return
	}

	var err error
	switch rule.Action {
	case ActionArchive:
		archived := true
		_, err = e.records.Update(ctx, record.TenantID, record.ID, &storage.RecordUpdate{Archived: &archived})
	case ActionDelete:
		err = e.records.Delete(ctx, record.TenantID, record.ID)
	case ActionMoveToColdStorage:
		if err = e.mover.Move(ctx, record); err == nil {
			err = e.records.Delete(ctx, record.TenantID, record.ID)
		}
	}

	if err != nil {
		result.Errors = append(result.Errors, &ActionError{
			RuleID:   rule.ID,
			RecordID: record.ID,
			Action:   rule.Action,
			Err:      err,
		})
		return
	}
	result.record(rule.Action, record.ID)
}

func (r *RunResult) record(action Action, id int64) {
	switch action {
	case ActionArchive:
		r.Archived = append(r.Archived, id)
	case ActionDelete:
		r.Deleted = append(r.Deleted, id)
	case ActionMoveToColdStorage:
		r.MovedToCold = append(r.MovedToCold, id)
	}
}

func (e *Engine) tryAcquire(tenantID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[tenantID] {
		return false
	}
	e.running[tenantID] = true
	return true
}

func (e *Engine) release(tenantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, tenantID)
}
