// Package risk implements the pre-trade checks that gate every order before
// it reaches a book. Rules run in a fixed order and the first failure is the
// order's rejection reason; nothing past the failing rule executes.
package risk

import (
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// Limits holds the configurable risk parameters applied to every owner.
type Limits struct {
	MaxOpenPositions int     `yaml:"max_open_positions" json:"max_open_positions" validate:"gt=0"`
	MaxOrderValue    float64 `yaml:"max_order_value" json:"max_order_value" validate:"gt=0"`
	// MaxDailyLoss is a negative floor; realized P&L below it blocks new
	// risk-adding orders for the rest of the day.
	MaxDailyLoss     float64 `yaml:"max_daily_loss" json:"max_daily_loss" validate:"lt=0"`
	MaxConcentration float64 `yaml:"max_concentration" json:"max_concentration" validate:"gt=0,lte=1"`
	// SellMarginRate is the fraction of underlying notional blocked per lot
	// when writing options, approximating SPAN margin.
	SellMarginRate       float64 `yaml:"sell_margin_rate" json:"sell_margin_rate" validate:"gt=0,lte=1"`
	MarginMultiplierBuy  float64 `yaml:"margin_multiplier_buy" json:"margin_multiplier_buy" validate:"gt=0"`
	MarginMultiplierSell float64 `yaml:"margin_multiplier_sell" json:"margin_multiplier_sell" validate:"gt=0"`
	// ExemptClosingOrders lets owners in drawdown past the daily loss floor
	// still exit positions.
	ExemptClosingOrders bool `yaml:"exempt_closing_orders" json:"exempt_closing_orders"`
}

// DefaultLimits returns the stock risk parameters.
func DefaultLimits() Limits {
	return Limits{
		MaxOpenPositions:     10,
		MaxOrderValue:        500_000,
		MaxDailyLoss:         -50_000,
		MaxConcentration:     0.30,
		SellMarginRate:       0.18,
		MarginMultiplierBuy:  1.0,
		MarginMultiplierSell: 1.0,
		ExemptClosingOrders:  true,
	}
}

// Validate validates the Limits struct.
func (l *Limits) Validate() error {
	validate := validator.New()
	if err := validate.Struct(l); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid risk limits", err)
	}

	return nil
}

// AccountSnapshot is the owner state the engine evaluates an order against.
// The order lifecycle pins it under the owner lock so the margin
// check-then-reserve sequence cannot race a concurrent fill.
type AccountSnapshot struct {
	Portfolio types.Portfolio
	Positions []types.Position
}

// Quoter reports a live price for a symbol when one is known. Unlike a full
// price source it has no fallback; the engine falls back to the product
// catalog itself.
type Quoter interface {
	Quote(symbol string) (float64, bool)
}

// Engine evaluates orders against risk limits. It is stateless between
// calls; all account state arrives in the snapshot.
type Engine struct {
	limits     Limits
	catalog    *types.ProductCatalog
	underlying Quoter
	log        *logger.Logger
}

// NewEngine creates a risk engine. underlying may be nil, in which case
// short-option margin always uses the catalog's underlying price.
func NewEngine(limits Limits, catalog *types.ProductCatalog, underlying Quoter, log *logger.Logger) *Engine {
	return &Engine{
		limits:     limits,
		catalog:    catalog,
		underlying: underlying,
		log:        log,
	}
}

// Limits returns the engine's configured limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

// RequiredMargin computes the margin an order would block if filled.
//
// Buying options costs the full premium: quantity times the estimated fill
// price. Writing options blocks a fraction of underlying notional per lot,
// which is materially larger because short option risk is unbounded.
func (e *Engine) RequiredMargin(req types.OrderRequest, referencePrice float64) (float64, error) {
	if req.Side == types.SideBuy {
		return req.Quantity * e.estimatedPrice(req, referencePrice) * e.limits.MarginMultiplierBuy, nil
	}

	product, err := e.catalog.Resolve(req.Symbol)
	if err != nil {
		return 0, err
	}

	underlying := e.underlyingPrice(product)
	marginPerLot := underlying * float64(product.LotSize) * e.limits.SellMarginRate
	numLots := req.Quantity / float64(product.LotSize)

	return marginPerLot * numLots * e.limits.MarginMultiplierSell, nil
}

// CheckOrder runs every rule in order and returns the first violation. The
// request must already have passed parameter validation.
func (e *Engine) CheckOrder(req types.OrderRequest, referencePrice float64, snapshot AccountSnapshot) error {
	if err := e.checkMargin(req, referencePrice, snapshot.Portfolio); err != nil {
		return err
	}

	if err := e.checkPositionLimit(req, snapshot.Positions); err != nil {
		return err
	}

	if err := e.checkOrderValue(req, referencePrice); err != nil {
		return err
	}

	if err := e.checkDailyLoss(req, snapshot); err != nil {
		return err
	}

	if err := e.checkConcentration(req, referencePrice, snapshot); err != nil {
		return err
	}

	e.log.Debug("pre-trade risk check passed",
		zap.String("owner_id", req.OwnerID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("quantity", req.Quantity),
	)

	return nil
}

// Report summarizes the owner's current standing against the limits.
func (e *Engine) Report(snapshot AccountSnapshot) types.RiskReport {
	totalValue := snapshot.Portfolio.CashBalance + snapshot.Portfolio.MarginUsed

	exposure := make(map[string]float64)
	for i := range snapshot.Positions {
		pos := &snapshot.Positions[i]
		exposure[e.productKey(pos.Symbol)] += pos.NotionalAt(markPrice(pos))
	}

	maxConcentration := 0.0
	utilization := 0.0

	if totalValue > 0 {
		for _, value := range exposure {
			if c := value / totalValue; c > maxConcentration {
				maxConcentration = c
			}
		}

		utilization = snapshot.Portfolio.MarginUsed / totalValue
	}

	return types.RiskReport{
		MarginUsed:         snapshot.Portfolio.MarginUsed,
		MarginAvailable:    snapshot.Portfolio.MarginAvailable,
		MarginUtilization:  utilization,
		OpenPositions:      len(snapshot.Positions),
		MaxPositions:       e.limits.MaxOpenPositions,
		TotalPnL:           snapshot.Portfolio.TotalPnL,
		DailyLossLimit:     e.limits.MaxDailyLoss,
		ExposureByProduct:  exposure,
		MaxConcentration:   maxConcentration,
		ConcentrationLimit: e.limits.MaxConcentration,
	}
}

func (e *Engine) checkMargin(req types.OrderRequest, referencePrice float64, portfolio types.Portfolio) error {
	required, err := e.RequiredMargin(req, referencePrice)
	if err != nil {
		return err
	}

	if portfolio.MarginAvailable < required {
		return errors.Newf(errors.ErrCodeInsufficientMargin,
			"insufficient margin: required %.2f, available %.2f", required, portfolio.MarginAvailable)
	}

	return nil
}

// checkPositionLimit counts only orders that would open a position in a new
// symbol. Adds to an existing position and reducing orders never hit the
// ceiling.
func (e *Engine) checkPositionLimit(req types.OrderRequest, positions []types.Position) error {
	if positionFor(req.Symbol, positions) != nil {
		return nil
	}

	if len(positions) >= e.limits.MaxOpenPositions {
		return errors.Newf(errors.ErrCodePositionLimitExceeded,
			"maximum %d open positions allowed", e.limits.MaxOpenPositions)
	}

	return nil
}

func (e *Engine) checkOrderValue(req types.OrderRequest, referencePrice float64) error {
	value := req.Quantity * e.estimatedPrice(req, referencePrice)

	if value > e.limits.MaxOrderValue {
		return errors.Newf(errors.ErrCodeOrderValueExceeded,
			"order value %.2f exceeds limit %.2f", value, e.limits.MaxOrderValue)
	}

	return nil
}

func (e *Engine) checkDailyLoss(req types.OrderRequest, snapshot AccountSnapshot) error {
	if snapshot.Portfolio.DailyRealizedPnL >= e.limits.MaxDailyLoss {
		return nil
	}

	if e.limits.ExemptClosingOrders && hasOffsettingPosition(req, snapshot.Positions) {
		return nil
	}

	return errors.Newf(errors.ErrCodeDailyLossLimitExceeded,
		"daily loss limit %.2f breached: realized %.2f",
		e.limits.MaxDailyLoss, snapshot.Portfolio.DailyRealizedPnL)
}

func (e *Engine) checkConcentration(req types.OrderRequest, referencePrice float64, snapshot AccountSnapshot) error {
	totalValue := snapshot.Portfolio.CashBalance + snapshot.Portfolio.MarginUsed
	if totalValue <= 0 {
		return nil
	}

	product := e.productKey(req.Symbol)

	currentExposure := 0.0
	for i := range snapshot.Positions {
		pos := &snapshot.Positions[i]
		if e.productKey(pos.Symbol) == product {
			currentExposure += pos.NotionalAt(markPrice(pos))
		}
	}

	newExposure := currentExposure + req.Quantity*referencePrice
	concentration := newExposure / totalValue

	if concentration > e.limits.MaxConcentration {
		return errors.Newf(errors.ErrCodeConcentrationExceeded,
			"%s concentration %.1f%% exceeds limit %.1f%%",
			product, concentration*100, e.limits.MaxConcentration*100)
	}

	return nil
}

// estimatedPrice is the limit price when the request carries one, otherwise
// the reference price.
func (e *Engine) estimatedPrice(req types.OrderRequest, referencePrice float64) float64 {
	if req.LimitPrice.IsSome() {
		return req.LimitPrice.Unwrap()
	}

	return referencePrice
}

func (e *Engine) underlyingPrice(product types.Product) float64 {
	if e.underlying != nil {
		if price, ok := e.underlying.Quote(product.Name); ok && price > 0 {
			return price
		}
	}

	return product.UnderlyingPrice
}

func (e *Engine) productKey(symbol string) string {
	product, err := e.catalog.Resolve(symbol)
	if err != nil {
		return symbol
	}

	return product.Name
}

// hasOffsettingPosition reports whether the order trades against an existing
// position in the opposite direction.
func hasOffsettingPosition(req types.OrderRequest, positions []types.Position) bool {
	pos := positionFor(req.Symbol, positions)
	if pos == nil {
		return false
	}

	if req.Side == types.SideBuy && pos.IsShort() {
		return true
	}

	if req.Side == types.SideSell && pos.IsLong() {
		return true
	}

	return false
}

func positionFor(symbol string, positions []types.Position) *types.Position {
	for i := range positions {
		if positions[i].Symbol == symbol {
			return &positions[i]
		}
	}

	return nil
}

func markPrice(pos *types.Position) float64 {
	if pos.CurrentPrice > 0 {
		return pos.CurrentPrice
	}

	return pos.AvgEntryPrice
}
