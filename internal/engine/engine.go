package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sellconfig/internal/apperr"
	"sellconfig/internal/config"
	"sellconfig/internal/domain"
	"sellconfig/internal/events"
	"sellconfig/internal/logging"
	"sellconfig/internal/pricing"
	"sellconfig/internal/repo"
	"sellconfig/internal/workflow"
)

const maxProductIDLen = 128

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Defaults *config.Config
	Log      *zap.Logger
	Now      func() time.Time
}

func New(db *sql.DB, defaults *config.Config, log *zap.Logger) Engine {
	if defaults == nil {
		defaults = config.Default()
	}
	log = logging.OrNop(log)
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{},
		Defaults: defaults,
		Log:      log,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	return logging.OrNop(e.Log)
}

func (e Engine) defaults() *config.Config {
	if e.Defaults != nil {
		return e.Defaults
	}
	return config.Default()
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// ValidateProductID trims id and rejects empty or oversized values.
func ValidateProductID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperr.New(apperr.KindInvalidInput, "productId is required")
	}
	if len(id) > maxProductIDLen {
		return "", apperr.New(apperr.KindInvalidInput, "productId exceeds %d characters", maxProductIDLen)
	}
	if strings.ContainsAny(id, "/?#") {
		return "", apperr.New(apperr.KindInvalidInput, "productId %q contains reserved characters", id)
	}
	return id, nil
}

func (e Engine) GetSellConfig(ctx context.Context, productID string) (domain.SellConfig, error) {
	id, err := ValidateProductID(productID)
	if err != nil {
		return domain.SellConfig{}, err
	}
	c, err := e.Repo.GetSellConfig(ctx, nil, id)
	if err != nil {
		return domain.SellConfig{}, fmt.Errorf("sell config %s: %w", id, err)
	}
	return c, nil
}

func (e Engine) ListSellConfigs(ctx context.Context) ([]domain.SellConfigSummary, error) {
	return e.Repo.ListSellConfigs(ctx)
}

// SaveOptions are parameters for an upsert.
type SaveOptions struct {
	ProductID string
	Steps     []workflow.Step
	Rules     pricing.RuleSet
	Options   []pricing.Option
	// ExpectedVersion > 0 enables optimistic locking; 0 means last write wins.
	ExpectedVersion int64
	ActorID         string
}

// validated is a config that passed every local check.
type validated struct {
	productID string
	steps     []workflow.Step
	rules     pricing.RuleSet
	options   []pricing.Option
}

func validateConfig(productID string, steps []workflow.Step, rules pricing.RuleSet, options []pricing.Option) (validated, error) {
	id, err := ValidateProductID(productID)
	if err != nil {
		return validated{}, err
	}
	r, err := pricing.SetRules(rules)
	if err != nil {
		return validated{}, err
	}
	seq, err := workflow.NewSequence(steps)
	if err != nil {
		return validated{}, err
	}
	if err := pricing.ValidateOptions(options, workflow.OffersOptions); err != nil {
		return validated{}, err
	}
	opts := append([]pricing.Option{}, options...)
	return validated{productID: id, steps: seq.Steps(), rules: r, options: opts}, nil
}

// SaveSellConfig validates the whole config before opening a transaction,
// then upserts it and bumps its version.
func (e Engine) SaveSellConfig(ctx context.Context, opts SaveOptions) (domain.SellConfig, error) {
	v, err := validateConfig(opts.ProductID, opts.Steps, opts.Rules, opts.Options)
	if err != nil {
		return domain.SellConfig{}, err
	}
	if opts.ExpectedVersion < 0 {
		return domain.SellConfig{}, apperr.New(apperr.KindInvalidInput, "version must not be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SellConfig{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	current, err := e.Repo.GetSellConfig(ctx, tx, v.productID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		current = domain.SellConfig{ProductID: v.productID, CreatedAt: now}
	case err != nil:
		return domain.SellConfig{}, err
	}
	if opts.ExpectedVersion > 0 && opts.ExpectedVersion != current.Version {
		return domain.SellConfig{}, apperr.New(apperr.KindVersionConflict, "sell config %s is at version %d, not %d", v.productID, current.Version, opts.ExpectedVersion)
	}
	next := domain.SellConfig{
		ProductID: v.productID,
		Steps:     v.steps,
		Rules:     v.rules,
		Options:   v.options,
		Version:   current.Version + 1,
		UpdatedBy: opts.ActorID,
		CreatedAt: current.CreatedAt,
		UpdatedAt: now,
	}
	if err := e.Repo.UpsertSellConfig(ctx, tx, next); err != nil {
		return domain.SellConfig{}, fmt.Errorf("upsert sell config: %w", err)
	}
	if _, err := e.events().Append(ctx, tx, domain.EventSellConfigSaved, next.ProductID, opts.ActorID, events.Payload{
		"version": next.Version,
		"steps":   len(next.Steps),
		"options": len(next.Options),
		"rules":   next.Rules,
	}); err != nil {
		return domain.SellConfig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SellConfig{}, err
	}
	e.log().Info("sell config saved",
		zap.String("product_id", next.ProductID),
		zap.Int64("version", next.Version),
		zap.String("actor", opts.ActorID))
	return next, nil
}

// ResetSellConfig restores the default rules and steps. Options are kept.
// A product without a config gets the defaults as its first version.
func (e Engine) ResetSellConfig(ctx context.Context, productID, actorID string) (domain.SellConfig, error) {
	id, err := ValidateProductID(productID)
	if err != nil {
		return domain.SellConfig{}, err
	}
	defaults := e.defaults()
	return e.update(ctx, id, actorID, domain.EventSellConfigReset, true, func(c *domain.SellConfig) error {
		c.Rules = defaults.DefaultRules()
		c.Steps = defaults.DefaultSteps()
		return nil
	})
}

// EditSteps applies fn to the product's step sequence and saves the result.
func (e Engine) EditSteps(ctx context.Context, productID, actorID string, fn func(*workflow.Sequence) error) (domain.SellConfig, error) {
	id, err := ValidateProductID(productID)
	if err != nil {
		return domain.SellConfig{}, err
	}
	return e.update(ctx, id, actorID, domain.EventSellConfigSaved, false, func(c *domain.SellConfig) error {
		seq, err := workflow.NewSequence(c.Steps)
		if err != nil {
			return err
		}
		if err := fn(seq); err != nil {
			return err
		}
		c.Steps = seq.Steps()
		return nil
	})
}

// UpdateRules replaces only the rule set of an existing config.
func (e Engine) UpdateRules(ctx context.Context, productID, actorID string, rules pricing.RuleSet) (domain.SellConfig, error) {
	id, err := ValidateProductID(productID)
	if err != nil {
		return domain.SellConfig{}, err
	}
	r, err := pricing.SetRules(rules)
	if err != nil {
		return domain.SellConfig{}, err
	}
	return e.update(ctx, id, actorID, domain.EventSellConfigSaved, false, func(c *domain.SellConfig) error {
		c.Rules = r
		return nil
	})
}

// UpdateOptions replaces only the option catalog of an existing config.
func (e Engine) UpdateOptions(ctx context.Context, productID, actorID string, options []pricing.Option) (domain.SellConfig, error) {
	id, err := ValidateProductID(productID)
	if err != nil {
		return domain.SellConfig{}, err
	}
	if err := pricing.ValidateOptions(options, workflow.OffersOptions); err != nil {
		return domain.SellConfig{}, err
	}
	return e.update(ctx, id, actorID, domain.EventSellConfigSaved, false, func(c *domain.SellConfig) error {
		c.Options = append([]pricing.Option{}, options...)
		return nil
	})
}

// update runs a read-modify-write of one config inside a single transaction.
// When seed is set a missing config starts from an empty record instead of
// failing with repo.ErrNotFound.
func (e Engine) update(ctx context.Context, productID, actorID, evtType string, seed bool, fn func(*domain.SellConfig) error) (domain.SellConfig, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SellConfig{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	c, err := e.Repo.GetSellConfig(ctx, tx, productID)
	switch {
	case errors.Is(err, repo.ErrNotFound) && seed:
		c = domain.SellConfig{ProductID: productID, Options: []pricing.Option{}, CreatedAt: now}
	case err != nil:
		return domain.SellConfig{}, fmt.Errorf("sell config %s: %w", productID, err)
	}
	if err := fn(&c); err != nil {
		return domain.SellConfig{}, err
	}
	if _, err := validateConfig(c.ProductID, c.Steps, c.Rules, c.Options); err != nil {
		return domain.SellConfig{}, err
	}
	c.Version++
	c.UpdatedBy = actorID
	c.UpdatedAt = now
	if err := e.Repo.UpsertSellConfig(ctx, tx, c); err != nil {
		return domain.SellConfig{}, fmt.Errorf("upsert sell config: %w", err)
	}
	if _, err := e.events().Append(ctx, tx, evtType, c.ProductID, actorID, events.Payload{
		"version": c.Version,
		"steps":   len(c.Steps),
		"options": len(c.Options),
		"rules":   c.Rules,
	}); err != nil {
		return domain.SellConfig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SellConfig{}, err
	}
	e.log().Info("sell config updated",
		zap.String("product_id", c.ProductID),
		zap.String("event", evtType),
		zap.Int64("version", c.Version),
		zap.String("actor", actorID))
	return c, nil
}

func (e Engine) DeleteSellConfig(ctx context.Context, productID, actorID string) error {
	id, err := ValidateProductID(productID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteSellConfig(ctx, tx, id); err != nil {
		return fmt.Errorf("sell config %s: %w", id, err)
	}
	if _, err := e.events().Append(ctx, tx, domain.EventSellConfigDeleted, id, actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("sell config deleted", zap.String("product_id", id), zap.String("actor", actorID))
	return nil
}

// PricingRequest is a test-pricing preview. Explicit adjustments are applied
// first, then the catalog options named in Selected, in that order.
type PricingRequest struct {
	BasePrice   float64
	Adjustments []pricing.Adjustment
	Selected    []string
}

// TestPricing evaluates req against the product's stored rules. Nothing is
// persisted. A product without a config has no rule set to apply.
func (e Engine) TestPricing(ctx context.Context, productID string, req PricingRequest) (pricing.Result, error) {
	id, err := ValidateProductID(productID)
	if err != nil {
		return pricing.Result{}, err
	}
	for i, adj := range req.Adjustments {
		if err := adj.Validate(); err != nil {
			return pricing.Result{}, apperr.New(apperr.KindOf(err), "adjustment %d (%s): %v", i, adj.Label, err)
		}
	}
	c, err := e.Repo.GetSellConfig(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return pricing.Result{}, apperr.New(apperr.KindMissingRuleSet, "product %s has no sell config; save or reset it first", id)
	}
	if err != nil {
		return pricing.Result{}, err
	}
	selected, err := pricing.ResolveOptions(c.Options, req.Selected)
	if err != nil {
		return pricing.Result{}, err
	}
	adjs := make([]pricing.Adjustment, 0, len(req.Adjustments)+len(selected))
	adjs = append(adjs, req.Adjustments...)
	adjs = append(adjs, selected...)
	rules := c.Rules
	return pricing.Evaluate(req.BasePrice, adjs, &rules)
}

// ListEvents returns the newest audit events for a product.
func (e Engine) ListEvents(ctx context.Context, productID string, limit int, cursor int64) ([]domain.Event, error) {
	id := strings.TrimSpace(productID)
	if id != "" {
		var err error
		if id, err = ValidateProductID(id); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return e.Repo.LatestEvents(ctx, limit, cursor, id, "")
}
