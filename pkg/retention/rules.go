// Package retention evaluates tenant-scoped lifecycle rules against the
// stored record population and applies archive, delete, or cold-storage
// actions.
//
// Rules are persisted with an untyped JSON conditions bag (see
// storage.RetentionRule); this package parses that bag into a typed variant
// per rule type, so malformed conditions are rejected when the rule set is
// loaded, before any run begins.
package retention

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/recallhq/memlayer-go/pkg/storage"
)

// RuleType classifies what a rule's condition evaluates.
type RuleType string

const (
	// RuleTypeAge matches records older than a configured number of days.
	RuleTypeAge RuleType = "age"

	// RuleTypeImportance matches records at or below an importance threshold.
	RuleTypeImportance RuleType = "importance"

	// RuleTypeConversationAge matches records in conversations whose most
	// recent record is older than a configured number of days.
	RuleTypeConversationAge RuleType = "conversation_age"

	// RuleTypeMaxItems caps the number of records per conversation or per
	// tenant and matches the overflow.
	RuleTypeMaxItems RuleType = "max_items"

	// RuleTypeCustom delegates the condition to a caller-supplied evaluator.
	RuleTypeCustom RuleType = "custom"
)

// Action is what happens to a matched record.
type Action string

const (
	// ActionArchive sets the archived flag without deleting.
	ActionArchive Action = "archive"

	// ActionDelete removes the record permanently.
	ActionDelete Action = "delete"

	// ActionMoveToColdStorage hands the record to the cold-storage mover
	// and, on success, removes it from the hot store.
	ActionMoveToColdStorage Action = "move_to_cold_storage"
)

// ErrInvalidRule indicates a malformed rule definition: unknown type or
// action, or conditions that do not match the rule type's schema.
var ErrInvalidRule = errors.New("invalid retention rule")

// AgeConditions parameterizes an age rule.
type AgeConditions struct {
	// MaxAgeDays is the age, in days, past which a record matches.
	MaxAgeDays int `json:"max_age_days"`
}

// MaxAge returns the age threshold as a duration.
func (c *AgeConditions) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

func (c *AgeConditions) validate() error {
	if c.MaxAgeDays <= 0 {
		return fmt.Errorf("%w: max_age_days must be positive, got %d", ErrInvalidRule, c.MaxAgeDays)
	}
	return nil
}

// ImportanceConditions parameterizes an importance rule.
type ImportanceConditions struct {
	// Threshold matches records whose importance score is <= this value.
	Threshold float64 `json:"threshold"`
}

func (c *ImportanceConditions) validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be in [0,1], got %v", ErrInvalidRule, c.Threshold)
	}
	return nil
}

// ConversationAgeConditions parameterizes a conversation_age rule.
type ConversationAgeConditions struct {
	// MaxAgeDays matches every record of a conversation whose most recent
	// record is older than this many days.
	MaxAgeDays int `json:"max_age_days"`
}

// MaxAge returns the age threshold as a duration.
func (c *ConversationAgeConditions) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

func (c *ConversationAgeConditions) validate() error {
	if c.MaxAgeDays <= 0 {
		return fmt.Errorf("%w: max_age_days must be positive, got %d", ErrInvalidRule, c.MaxAgeDays)
	}
	return nil
}

// Scope values for max_items rules.
const (
	ScopeConversation = "conversation"
	ScopeTenant       = "tenant"
)

// Overflow orders for max_items rules.
const (
	// OrderLeastImportantFirst actions the lowest-importance records first,
	// keeping the N most important. This is the default.
	OrderLeastImportantFirst = "least_important_first"

	// OrderOldestFirst actions the oldest records first, keeping the N
	// most recent.
	OrderOldestFirst = "oldest_first"
)

// MaxItemsConditions parameterizes a max_items rule.
type MaxItemsConditions struct {
	// Limit is the number of records to keep within the scope.
	Limit int `json:"limit"`

	// Scope is "conversation" or "tenant".
	Scope string `json:"scope"`

	// Order decides which overflow records are actioned first; empty
	// means least_important_first.
	Order string `json:"order,omitempty"`
}

func (c *MaxItemsConditions) validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidRule, c.Limit)
	}
	if c.Scope != ScopeConversation && c.Scope != ScopeTenant {
		return fmt.Errorf("%w: scope must be %q or %q, got %q", ErrInvalidRule, ScopeConversation, ScopeTenant, c.Scope)
	}
	if c.Order == "" {
		c.Order = OrderLeastImportantFirst
	}
	if c.Order != OrderLeastImportantFirst && c.Order != OrderOldestFirst {
		return fmt.Errorf("%w: order must be %q or %q, got %q", ErrInvalidRule, OrderLeastImportantFirst, OrderOldestFirst, c.Order)
	}
	return nil
}

// CustomConditions parameterizes a custom rule. The engine never interprets
// Params; they are passed through to the injected evaluator.
type CustomConditions struct {
	// Name identifies the predicate to the evaluator.
	Name string `json:"name"`

	// Params is the evaluator-specific parameter bag.
	Params json.RawMessage `json:"params,omitempty"`
}

func (c *CustomConditions) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: custom rule requires a predicate name", ErrInvalidRule)
	}
	return nil
}

// Rule is a parsed, validated retention rule: the tagged-variant form of
// storage.RetentionRule. Exactly one of the condition fields is non-nil,
// matching Type.
type Rule struct {
	ID          int64
	TenantID    string
	Name        string
	Description string
	Type        RuleType
	Action      Action
	Priority    int
	Enabled     bool
	LastApplied *time.Time

	Age             *AgeConditions
	Importance      *ImportanceConditions
	ConversationAge *ConversationAgeConditions
	MaxItems        *MaxItemsConditions
	Custom          *CustomConditions
}

// ParseRule converts a stored rule row into its typed form.
//
// Unknown rule types or actions, and condition bags that do not match the
// rule type's schema (wrong fields, wrong value ranges), are rejected with
// ErrInvalidRule.
func ParseRule(row *storage.RetentionRule) (*Rule, error) {
	rule := &Rule{
		ID:          row.ID,
		TenantID:    row.TenantID,
		Name:        row.Name,
		Description: row.Description,
		Type:        RuleType(row.RuleType),
		Action:      Action(row.Action),
		Priority:    row.Priority,
		Enabled:     row.Enabled,
		LastApplied: row.LastApplied,
	}

	switch rule.Action {
	case ActionArchive, ActionDelete, ActionMoveToColdStorage:
	default:
		return nil, fmt.Errorf("%w: unknown action %q (rule %d)", ErrInvalidRule, row.Action, row.ID)
	}

	conditions := row.Conditions
	if len(conditions) == 0 {
		conditions = json.RawMessage("{}")
	}

	var err error
	switch rule.Type {
	case RuleTypeAge:
		rule.Age = &AgeConditions{}
		err = decodeConditions(conditions, rule.Age)
		if err == nil {
			err = rule.Age.validate()
		}
	case RuleTypeImportance:
		rule.Importance = &ImportanceConditions{}
		err = decodeConditions(conditions, rule.Importance)
		if err == nil {
			err = rule.Importance.validate()
		}
	case RuleTypeConversationAge:
		rule.ConversationAge = &ConversationAgeConditions{}
		err = decodeConditions(conditions, rule.ConversationAge)
		if err == nil {
			err = rule.ConversationAge.validate()
		}
	case RuleTypeMaxItems:
		rule.MaxItems = &MaxItemsConditions{}
		err = decodeConditions(conditions, rule.MaxItems)
		if err == nil {
			err = rule.MaxItems.validate()
		}
	case RuleTypeCustom:
		rule.Custom = &CustomConditions{}
		err = decodeConditions(conditions, rule.Custom)
		if err == nil {
			err = rule.Custom.validate()
		}
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q (rule %d)", ErrInvalidRule, row.RuleType, row.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("rule %d (%s): %w", row.ID, row.Name, err)
	}

	return rule, nil
}

// ParseRules parses a slice of stored rules, failing on the first invalid
// definition.
func ParseRules(rows []*storage.RetentionRule) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := ParseRule(row)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// decodeConditions strictly decodes a conditions bag into its typed struct.
func decodeConditions(raw json.RawMessage, into interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("%w: malformed conditions: %v", ErrInvalidRule, err)
	}
	return nil
}
