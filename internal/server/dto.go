package server

import (
	"encoding/json"

	"sellconfig/internal/domain"
	"sellconfig/internal/pricing"
	"sellconfig/internal/workflow"
)

// SaveSellConfigRequest is the upsert body. Version enables optimistic
// locking when greater than zero.
type SaveSellConfigRequest struct {
	ProductID string           `json:"productId" example:"iphone-13-128gb"`
	Steps     []workflow.Step  `json:"steps"`
	Rules     pricing.RuleSet  `json:"rules"`
	Options   []pricing.Option `json:"options,omitempty"`
	Version   int64            `json:"version,omitempty" example:"3"`
}

// UpdateRulesRequest replaces only the rule set.
type UpdateRulesRequest struct {
	Rules pricing.RuleSet `json:"rules"`
}

type TestPricingRequest struct {
	BasePrice   float64              `json:"basePrice" example:"10000"`
	Adjustments []pricing.Adjustment `json:"adjustments,omitempty"`
	Selected    []string             `json:"selected,omitempty" doc:"Option keys applied after the explicit adjustments"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actorId" example:"admin@example.com"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts" format:"date-time"`
	Type      string         `json:"type"`
	ProductID string         `json:"productId"`
	ActorID   string         `json:"actorId"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// Envelopes share the {success, data, message} shape.

type SellConfigEnvelope struct {
	Success bool              `json:"success"`
	Data    domain.SellConfig `json:"data"`
	Message string            `json:"message,omitempty"`
}

type SellConfigListEnvelope struct {
	Success bool                       `json:"success"`
	Data    []domain.SellConfigSummary `json:"data"`
	Message string                     `json:"message,omitempty"`
}

type PricingEnvelope struct {
	Success bool           `json:"success"`
	Data    pricing.Result `json:"data"`
	Message string         `json:"message,omitempty"`
}

type EventsEnvelope struct {
	Success bool            `json:"success"`
	Data    paginatedEvents `json:"data"`
	Message string          `json:"message,omitempty"`
}

type MessageEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type HealthEnvelope struct {
	Success bool              `json:"success"`
	Data    map[string]string `json:"data"`
}

type DevLoginEnvelope struct {
	Success bool             `json:"success"`
	Data    DevLoginResponse `json:"data"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		TS:        e.TS,
		Type:      e.Type,
		ProductID: e.ProductID,
		ActorID:   e.ActorID,
		Payload:   decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func normalizeConfig(c domain.SellConfig) domain.SellConfig {
	c.Steps = nonNilSlice(c.Steps)
	c.Options = nonNilSlice(c.Options)
	return c
}
