package domain

import (
	"sellconfig/internal/pricing"
	"sellconfig/internal/workflow"
)

// SellConfig is the persisted valuation setup of one product.
type SellConfig struct {
	ProductID string           `json:"productId"`
	Steps     []workflow.Step  `json:"steps"`
	Rules     pricing.RuleSet  `json:"rules"`
	Options   []pricing.Option `json:"options"`
	Version   int64            `json:"version"`
	UpdatedBy string           `json:"updatedBy,omitempty"`
	CreatedAt string           `json:"createdAt" format:"date-time"`
	UpdatedAt string           `json:"updatedAt" format:"date-time"`
}

// SellConfigSummary is the listing row; it omits steps and options.
type SellConfigSummary struct {
	ProductID   string `json:"productId"`
	StepCount   int    `json:"stepCount"`
	OptionCount int    `json:"optionCount"`
	Version     int64  `json:"version"`
	UpdatedBy   string `json:"updatedBy,omitempty"`
	UpdatedAt   string `json:"updatedAt" format:"date-time"`
}

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	ProductID string `json:"productId"`
	ActorID   string `json:"actorId"`
	Payload   string `json:"payloadJson"`
}

// Audit event types.
const (
	EventSellConfigSaved   = "sellconfig.saved"
	EventSellConfigReset   = "sellconfig.reset"
	EventSellConfigDeleted = "sellconfig.deleted"
)
