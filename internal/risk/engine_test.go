package risk

import (
	"fmt"
	"testing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/pricing"
	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/mocks"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

type RiskEngineTestSuite struct {
	suite.Suite
	logger  *logger.Logger
	catalog *types.ProductCatalog
	engine  *Engine
}

func TestRiskEngineSuite(t *testing.T) {
	suite.Run(t, new(RiskEngineTestSuite))
}

func (suite *RiskEngineTestSuite) SetupSuite() {
	log, err := logger.NewLogger()
	suite.Require().NoError(err)
	suite.logger = log
	suite.catalog = types.NewProductCatalog(types.DefaultProducts())
}

func (suite *RiskEngineTestSuite) SetupTest() {
	underlying := pricing.NewStaticSource(map[string]float64{
		"NIFTY":     21500.0,
		"BANKNIFTY": 46000.0,
		"FINNIFTY":  21500.0,
	}, pricing.DefaultReferencePrice)

	suite.engine = NewEngine(DefaultLimits(), suite.catalog, underlying, suite.logger)
}

func (suite *RiskEngineTestSuite) TearDownSuite() {
	if suite.logger != nil {
		_ = suite.logger.Sync()
	}
}

// cleanAccount returns a fresh portfolio with no positions, mirroring a new
// owner's initial funding.
func (suite *RiskEngineTestSuite) cleanAccount() AccountSnapshot {
	return AccountSnapshot{
		Portfolio: types.Portfolio{
			OwnerID:         "user-1",
			CashBalance:     1_000_000,
			MarginUsed:      0,
			MarginAvailable: 1_000_000,
		},
		Positions: nil,
	}
}

func (suite *RiskEngineTestSuite) TestRequiredMarginBuyMarket() {
	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  100,
	}

	margin, err := suite.engine.RequiredMargin(req, 125.75)
	suite.Require().NoError(err)
	suite.InDelta(12575.0, margin, 1e-9)
}

func (suite *RiskEngineTestSuite) TestRequiredMarginBuyLimitUsesLimitPrice() {
	req := types.OrderRequest{
		OwnerID:    "user-1",
		Symbol:     "NIFTY24500CE",
		Side:       types.SideBuy,
		OrderType:  types.OrderTypeLimit,
		Quantity:   100,
		LimitPrice: optional.Some(120.0),
	}

	margin, err := suite.engine.RequiredMargin(req, 125.75)
	suite.Require().NoError(err)
	suite.InDelta(12000.0, margin, 1e-9)
}

func (suite *RiskEngineTestSuite) TestRequiredMarginSellShortOption() {
	// 18% of underlying notional per lot: 21500 * 50 * 0.18 * (5/50).
	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideSell,
		OrderType: types.OrderTypeMarket,
		Quantity:  5,
	}

	margin, err := suite.engine.RequiredMargin(req, 125.75)
	suite.Require().NoError(err)
	suite.InDelta(19350.0, margin, 1e-9)
}

func (suite *RiskEngineTestSuite) TestRequiredMarginSellFallsBackToCatalog() {
	engine := NewEngine(DefaultLimits(), suite.catalog, nil, suite.logger)

	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "BANKNIFTY46000CE",
		Side:      types.SideSell,
		OrderType: types.OrderTypeMarket,
		Quantity:  25,
	}

	margin, err := engine.RequiredMargin(req, 300.0)
	suite.Require().NoError(err)
	suite.InDelta(207000.0, margin, 1e-9)
}

func (suite *RiskEngineTestSuite) TestRequiredMarginSellUsesQuotedUnderlying() {
	ctrl := gomock.NewController(suite.T())
	defer ctrl.Finish()

	quoter := mocks.NewMockQuoter(ctrl)
	quoter.EXPECT().Quote("NIFTY").Return(22_000.0, true).Times(1)

	engine := NewEngine(DefaultLimits(), suite.catalog, quoter, suite.logger)

	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideSell,
		OrderType: types.OrderTypeMarket,
		Quantity:  5,
	}

	// 22000 * 50 * 0.18 * (5/50): the live quote replaces the catalog price.
	margin, err := engine.RequiredMargin(req, 125.75)
	suite.Require().NoError(err)
	suite.InDelta(19800.0, margin, 1e-9)
}

func (suite *RiskEngineTestSuite) TestRequiredMarginSellIgnoresStaleZeroQuote() {
	ctrl := gomock.NewController(suite.T())
	defer ctrl.Finish()

	quoter := mocks.NewMockQuoter(ctrl)
	quoter.EXPECT().Quote("BANKNIFTY").Return(0.0, true).Times(1)

	engine := NewEngine(DefaultLimits(), suite.catalog, quoter, suite.logger)

	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "BANKNIFTY46000CE",
		Side:      types.SideSell,
		OrderType: types.OrderTypeMarket,
		Quantity:  25,
	}

	margin, err := engine.RequiredMargin(req, 300.0)
	suite.Require().NoError(err)
	suite.InDelta(207000.0, margin, 1e-9)
}

func (suite *RiskEngineTestSuite) TestRequiredMarginSellUnknownSymbol() {
	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "GOLDM24500CE",
		Side:      types.SideSell,
		OrderType: types.OrderTypeMarket,
		Quantity:  5,
	}

	_, err := suite.engine.RequiredMargin(req, 125.75)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownSymbol))
}

func (suite *RiskEngineTestSuite) TestSellMarginExceedsBuyMargin() {
	buy := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  50,
	}
	sell := buy
	sell.Side = types.SideSell

	buyMargin, err := suite.engine.RequiredMargin(buy, 125.75)
	suite.Require().NoError(err)

	sellMargin, err := suite.engine.RequiredMargin(sell, 125.75)
	suite.Require().NoError(err)

	suite.GreaterOrEqual(sellMargin, buyMargin)
}

func (suite *RiskEngineTestSuite) TestCheckOrderInsufficientMargin() {
	snapshot := AccountSnapshot{
		Portfolio: types.Portfolio{
			OwnerID:         "user-1",
			CashBalance:     10_000,
			MarginAvailable: 10_000,
		},
	}

	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideSell,
		OrderType: types.OrderTypeMarket,
		Quantity:  5,
	}

	err := suite.engine.CheckOrder(req, 125.75, snapshot)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientMargin))
	suite.True(errors.IsRiskRejection(err))
}

func (suite *RiskEngineTestSuite) TestCheckOrderPositionLimitNewSymbol() {
	snapshot := suite.cleanAccount()
	for i := 0; i < DefaultLimits().MaxOpenPositions; i++ {
		snapshot.Positions = append(snapshot.Positions, types.Position{
			OwnerID:       "user-1",
			Symbol:        fmt.Sprintf("FINNIFTY2%d000CE", i),
			Quantity:      1,
			AvgEntryPrice: 10,
			CurrentPrice:  10,
		})
	}

	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  10,
	}

	err := suite.engine.CheckOrder(req, 125.75, snapshot)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodePositionLimitExceeded))
}

func (suite *RiskEngineTestSuite) TestCheckOrderPositionLimitSkipsExistingSymbol() {
	snapshot := suite.cleanAccount()
	for i := 0; i < DefaultLimits().MaxOpenPositions; i++ {
		snapshot.Positions = append(snapshot.Positions, types.Position{
			OwnerID:       "user-1",
			Symbol:        fmt.Sprintf("FINNIFTY2%d000CE", i),
			Quantity:      1,
			AvgEntryPrice: 10,
			CurrentPrice:  10,
		})
	}

	// Adding to a symbol already held does not open a new position.
	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "FINNIFTY20000CE",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  10,
	}

	suite.NoError(suite.engine.CheckOrder(req, 12.0, snapshot))
}

func (suite *RiskEngineTestSuite) TestCheckOrderPositionLimitSkipsReducing() {
	snapshot := suite.cleanAccount()
	snapshot.Positions = append(snapshot.Positions, types.Position{
		OwnerID:       "user-1",
		Symbol:        "NIFTY24500CE",
		Quantity:      100,
		AvgEntryPrice: 120,
		CurrentPrice:  125,
	})
	for i := 1; i < DefaultLimits().MaxOpenPositions; i++ {
		snapshot.Positions = append(snapshot.Positions, types.Position{
			OwnerID:       "user-1",
			Symbol:        fmt.Sprintf("FINNIFTY2%d000CE", i),
			Quantity:      1,
			AvgEntryPrice: 10,
			CurrentPrice:  10,
		})
	}

	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideSell,
		OrderType: types.OrderTypeMarket,
		Quantity:  50,
	}

	suite.NoError(suite.engine.CheckOrder(req, 125.0, snapshot))
}

func (suite *RiskEngineTestSuite) TestCheckOrderValueCap() {
	snapshot := suite.cleanAccount()

	req := types.OrderRequest{
		OwnerID:    "user-1",
		Symbol:     "NIFTY24500CE",
		Side:       types.SideBuy,
		OrderType:  types.OrderTypeLimit,
		Quantity:   5000,
		LimitPrice: optional.Some(101.0),
	}

	err := suite.engine.CheckOrder(req, 101.0, snapshot)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeOrderValueExceeded))
}

func (suite *RiskEngineTestSuite) TestCheckOrderDailyLossBlocksNewRisk() {
	snapshot := suite.cleanAccount()
	snapshot.Portfolio.DailyRealizedPnL = -60_000

	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  10,
	}

	err := suite.engine.CheckOrder(req, 125.75, snapshot)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDailyLossLimitExceeded))
}

func (suite *RiskEngineTestSuite) TestCheckOrderDailyLossExemptsClosing() {
	snapshot := suite.cleanAccount()
	snapshot.Portfolio.DailyRealizedPnL = -60_000
	snapshot.Positions = []types.Position{{
		OwnerID:       "user-1",
		Symbol:        "NIFTY24500CE",
		Quantity:      100,
		AvgEntryPrice: 120,
		CurrentPrice:  125,
	}}

	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideSell,
		OrderType: types.OrderTypeMarket,
		Quantity:  50,
	}

	suite.NoError(suite.engine.CheckOrder(req, 125.0, snapshot))
}

func (suite *RiskEngineTestSuite) TestCheckOrderDailyLossExemptionDisabled() {
	limits := DefaultLimits()
	limits.ExemptClosingOrders = false
	engine := NewEngine(limits, suite.catalog, nil, suite.logger)

	snapshot := suite.cleanAccount()
	snapshot.Portfolio.DailyRealizedPnL = -60_000
	snapshot.Positions = []types.Position{{
		OwnerID:       "user-1",
		Symbol:        "NIFTY24500CE",
		Quantity:      100,
		AvgEntryPrice: 120,
		CurrentPrice:  125,
	}}

	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideSell,
		OrderType: types.OrderTypeMarket,
		Quantity:  50,
	}

	err := engine.CheckOrder(req, 125.0, snapshot)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDailyLossLimitExceeded))
}

func (suite *RiskEngineTestSuite) TestCheckOrderConcentration() {
	snapshot := suite.cleanAccount()
	snapshot.Portfolio.MarginAvailable = 750_000
	snapshot.Portfolio.MarginUsed = 250_000
	snapshot.Portfolio.CashBalance = 750_000
	snapshot.Positions = []types.Position{{
		OwnerID:       "user-1",
		Symbol:        "NIFTY24500CE",
		Quantity:      2000,
		AvgEntryPrice: 120,
		CurrentPrice:  125,
	}}

	// Exposure 250,000 plus the order's 62,500 is 31.25% of the 1,000,000
	// portfolio value.
	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  500,
	}

	err := suite.engine.CheckOrder(req, 125.0, snapshot)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeConcentrationExceeded))
}

func (suite *RiskEngineTestSuite) TestCheckOrderPassesAllRules() {
	req := types.OrderRequest{
		OwnerID:   "user-1",
		Symbol:    "NIFTY24500CE",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  100,
	}

	suite.NoError(suite.engine.CheckOrder(req, 125.75, suite.cleanAccount()))
}

func (suite *RiskEngineTestSuite) TestReportMetrics() {
	snapshot := AccountSnapshot{
		Portfolio: types.Portfolio{
			OwnerID:         "user-1",
			CashBalance:     1_000_000,
			MarginUsed:      200_000,
			MarginAvailable: 800_000,
			TotalPnL:        12_500,
		},
		Positions: []types.Position{
			{OwnerID: "user-1", Symbol: "NIFTY24500CE", Quantity: 100, AvgEntryPrice: 120, CurrentPrice: 125},
			{OwnerID: "user-1", Symbol: "BANKNIFTY46500PE", Quantity: -50, AvgEntryPrice: 280, CurrentPrice: 300},
		},
	}

	report := suite.engine.Report(snapshot)

	suite.Equal(200_000.0, report.MarginUsed)
	suite.Equal(800_000.0, report.MarginAvailable)
	suite.InDelta(200_000.0/1_200_000.0, report.MarginUtilization, 1e-9)
	suite.Equal(2, report.OpenPositions)
	suite.Equal(10, report.MaxPositions)
	suite.Equal(12_500.0, report.TotalPnL)
	suite.Equal(-50_000.0, report.DailyLossLimit)
	suite.InDelta(12_500.0, report.ExposureByProduct["NIFTY"], 1e-9)
	suite.InDelta(15_000.0, report.ExposureByProduct["BANKNIFTY"], 1e-9)
	suite.InDelta(15_000.0/1_200_000.0, report.MaxConcentration, 1e-9)
	suite.Equal(0.30, report.ConcentrationLimit)
}

func (suite *RiskEngineTestSuite) TestReportEmptyAccount() {
	report := suite.engine.Report(suite.cleanAccount())

	suite.Equal(0, report.OpenPositions)
	suite.Equal(0.0, report.MaxConcentration)
	suite.Empty(report.ExposureByProduct)
}

func (suite *RiskEngineTestSuite) TestLimitsValidation() {
	limits := DefaultLimits()
	suite.NoError(limits.Validate())

	limits.MaxDailyLoss = 50_000
	err := limits.Validate()
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}
