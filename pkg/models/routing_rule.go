package models

import "time"

// ConditionSet maps a document metadata field to an operator/value object,
// e.g. {"amount": {"greater_than": 10000}}. A bare value is shorthand for equals.
type ConditionSet map[string]any

// RoutingRule sends documents matching its conditions to a target chain.
type RoutingRule struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"        validate:"required,min=3"`
	Description string       `json:"description"`
	Conditions  ConditionSet `json:"conditions"`
	ChainID     string       `json:"chain_id"    validate:"required"`
	Priority    int          `json:"priority"`
	Active      bool         `json:"active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
