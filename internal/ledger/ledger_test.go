package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

type stubMarks struct {
	prices map[string]float64
}

func (s stubMarks) ReferencePrice(symbol string) (float64, error) {
	if price, ok := s.prices[symbol]; ok {
		return price, nil
	}

	return 0, errors.Newf(errors.ErrCodePriceUnavailable, "no mark for %s", symbol)
}

type LedgerTestSuite struct {
	suite.Suite
	logger *logger.Logger
	ledger *Ledger
	base   time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func (suite *LedgerTestSuite) SetupSuite() {
	log, err := logger.NewLogger()
	suite.Require().NoError(err)
	suite.logger = log
	suite.base = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)
}

func (suite *LedgerTestSuite) SetupTest() {
	suite.ledger = NewLedger(1_000_000, suite.logger)
}

func (suite *LedgerTestSuite) TearDownSuite() {
	if suite.logger != nil {
		_ = suite.logger.Sync()
	}
}

func (suite *LedgerTestSuite) TestEnsurePortfolioCreatesInitialFunding() {
	p := suite.ledger.EnsurePortfolio("user-1", suite.base)

	suite.Equal(1_000_000.0, p.CashBalance)
	suite.Equal(0.0, p.MarginUsed)
	suite.Equal(1_000_000.0, p.MarginAvailable)
	suite.Equal(suite.base, p.CreatedAt)

	// A second touch returns the existing portfolio, not a fresh one.
	again := suite.ledger.EnsurePortfolio("user-1", suite.base.Add(time.Hour))
	suite.Equal(suite.base, again.CreatedAt)
}

func (suite *LedgerTestSuite) TestApplyFillOpensLongPosition() {
	change, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 100, 125.79, suite.base)
	suite.Require().NoError(err)

	suite.False(change.Deleted)
	suite.Equal(100.0, change.Position.Quantity)
	suite.Equal(125.79, change.Position.AvgEntryPrice)
	suite.Equal(suite.base, change.Position.OpenedAt)

	pos, ok := suite.ledger.Position("user-1", "NIFTY24500CE")
	suite.True(ok)
	suite.True(pos.IsLong())
}

func (suite *LedgerTestSuite) TestApplyFillOpensShortPosition() {
	change, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideSell, 50, 130, suite.base)
	suite.Require().NoError(err)

	suite.Equal(-50.0, change.Position.Quantity)
	suite.True(change.Position.IsShort())
	suite.Equal(130.0, change.Position.AvgEntryPrice)
}

func (suite *LedgerTestSuite) TestApplyFillWeightedAverageOnAdd() {
	_, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 100, 125, suite.base)
	suite.Require().NoError(err)

	change, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 50, 130, suite.base.Add(time.Minute))
	suite.Require().NoError(err)

	suite.Equal(150.0, change.Position.Quantity)
	suite.InDelta((100.0*125+50*130)/150, change.Position.AvgEntryPrice, 1e-9)
}

func (suite *LedgerTestSuite) TestApplyFillReducingKeepsEntryPrice() {
	_, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 100, 125, suite.base)
	suite.Require().NoError(err)

	change, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideSell, 40, 130, suite.base.Add(time.Minute))
	suite.Require().NoError(err)

	suite.Equal(60.0, change.Position.Quantity)
	suite.Equal(125.0, change.Position.AvgEntryPrice)
}

func (suite *LedgerTestSuite) TestApplyFillExactCloseDeletes() {
	_, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 100, 125, suite.base)
	suite.Require().NoError(err)

	change, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideSell, 100, 130, suite.base.Add(time.Minute))
	suite.Require().NoError(err)

	suite.True(change.Deleted)
	suite.Equal(0.0, change.Position.Quantity)

	_, ok := suite.ledger.Position("user-1", "NIFTY24500CE")
	suite.False(ok)
	suite.Empty(suite.ledger.Positions("user-1"))
}

func (suite *LedgerTestSuite) TestApplyFillZeroCrossOpensOppositePosition() {
	_, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 100, 125, suite.base)
	suite.Require().NoError(err)

	flipAt := suite.base.Add(time.Minute)
	change, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideSell, 150, 130, flipAt)
	suite.Require().NoError(err)

	suite.False(change.Deleted)
	suite.Equal(-50.0, change.Position.Quantity)
	suite.Equal(130.0, change.Position.AvgEntryPrice)
	suite.Equal(flipAt, change.Position.OpenedAt)
}

func (suite *LedgerTestSuite) TestApplyFillRejectsNonPositiveQuantity() {
	_, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 0, 125, suite.base)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidQuantity))
}

func (suite *LedgerTestSuite) TestApplyTradesBuyCashFlow() {
	trades := []types.Trade{
		testTrade("NIFTY24500CE", types.SideBuy, 100, 125.75, 6.2875, suite.base),
	}

	p := suite.ledger.ApplyTrades("user-1", types.SideBuy, trades, 12575.0, suite.base)

	suite.InDelta(1_000_000-12581.2875, p.CashBalance, 1e-9)
	suite.InDelta(12575.0, p.MarginUsed, 1e-9)
	suite.InDelta(p.CashBalance-p.MarginUsed, p.MarginAvailable, 1e-9)
	suite.Len(suite.ledger.Trades("user-1"), 1)
}

func (suite *LedgerTestSuite) TestApplyTradesSellCashFlow() {
	trades := []types.Trade{
		testTrade("NIFTY24500CE", types.SideSell, 50, 130, 20, suite.base),
	}

	p := suite.ledger.ApplyTrades("user-1", types.SideSell, trades, 193_500.0, suite.base)

	suite.InDelta(1_000_000+6480.0, p.CashBalance, 1e-9)
	suite.InDelta(193_500.0, p.MarginUsed, 1e-9)
	suite.InDelta(p.CashBalance-p.MarginUsed, p.MarginAvailable, 1e-9)
}

func (suite *LedgerTestSuite) TestRefreshPnLRealizedAndDaily() {
	day1 := suite.base
	day2 := suite.base.Add(24 * time.Hour)

	_, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 100, 125, day1)
	suite.Require().NoError(err)
	suite.ledger.ApplyTrades("user-1", types.SideBuy,
		[]types.Trade{testTrade("NIFTY24500CE", types.SideBuy, 100, 125, 0, day1)}, 12500, day1)

	_, err = suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideSell, 75, 132, day2)
	suite.Require().NoError(err)
	suite.ledger.ApplyTrades("user-1", types.SideSell,
		[]types.Trade{testTrade("NIFTY24500CE", types.SideSell, 75, 132, 0, day2)}, 0, day2)

	marks := stubMarks{prices: map[string]float64{"NIFTY24500CE": 132.0}}

	p := suite.ledger.RefreshPnL("user-1", marks, day2.Add(time.Hour))

	suite.InDelta(525.0, p.RealizedPnL, 1e-9)
	suite.InDelta(525.0, p.DailyRealizedPnL, 1e-9)
	// 25 remaining long marked at 132 against the 125 entry.
	suite.InDelta(175.0, p.UnrealizedPnL, 1e-9)
	suite.InDelta(700.0, p.TotalPnL, 1e-9)

	// The next day the realized figure stays but the daily one resets.
	p = suite.ledger.RefreshPnL("user-1", marks, day2.Add(25*time.Hour))
	suite.InDelta(525.0, p.RealizedPnL, 1e-9)
	suite.Equal(0.0, p.DailyRealizedPnL)
}

func (suite *LedgerTestSuite) TestPnLSummaryByPeriod() {
	day1 := suite.base
	day2 := suite.base.Add(24 * time.Hour)
	now := day2.Add(time.Hour)

	suite.ledger.EnsurePortfolio("user-1", day1)
	_, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 100, 125, day1)
	suite.Require().NoError(err)
	suite.ledger.ApplyTrades("user-1", types.SideBuy,
		[]types.Trade{testTrade("NIFTY24500CE", types.SideBuy, 100, 125, 0, day1)}, 12500, day1)

	_, err = suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideSell, 75, 132, day2)
	suite.Require().NoError(err)
	suite.ledger.ApplyTrades("user-1", types.SideSell,
		[]types.Trade{testTrade("NIFTY24500CE", types.SideSell, 75, 132, 0, day2)}, 0, day2)

	marks := stubMarks{prices: map[string]float64{"NIFTY24500CE": 132.0}}

	all := suite.ledger.PnLSummary("user-1", types.PeriodAll, marks, now)
	suite.Equal(types.PeriodAll, all.Period)
	suite.InDelta(525.0, all.RealizedPnL, 1e-9)
	suite.InDelta(175.0, all.UnrealizedPnL, 1e-9)
	suite.InDelta(700.0, all.TotalPnL, 1e-9)
	suite.InDelta(0.07, all.ReturnsPct, 1e-9)
	suite.Equal(1_000_000.0, all.InitialCapital)
	suite.InDelta(1_000_700.0, all.CurrentValue, 1e-9)

	today := suite.ledger.PnLSummary("user-1", types.PeriodToday, marks, now)
	suite.InDelta(525.0, today.RealizedPnL, 1e-9)

	// A week later nothing realized falls inside today.
	later := suite.ledger.PnLSummary("user-1", types.PeriodToday, marks, now.Add(7*24*time.Hour))
	suite.Equal(0.0, later.RealizedPnL)
	suite.InDelta(175.0, later.UnrealizedPnL, 1e-9)
}

func (suite *LedgerTestSuite) TestPerformanceFromRoundTrips() {
	at := suite.base

	winBuy := testTrade("NIFTY24500CE", types.SideBuy, 100, 125, 0, at)
	winSell := testTrade("NIFTY24500CE", types.SideSell, 100, 132, 0, at.Add(time.Minute))
	lossBuy := testTrade("BANKNIFTY46500PE", types.SideBuy, 50, 200, 0, at.Add(2*time.Minute))
	lossSell := testTrade("BANKNIFTY46500PE", types.SideSell, 50, 190, 0, at.Add(3*time.Minute))

	suite.ledger.ApplyTrades("user-1", types.SideBuy, []types.Trade{winBuy}, winBuy.Value, at)
	suite.ledger.ApplyTrades("user-1", types.SideSell, []types.Trade{winSell}, 0, at)
	suite.ledger.ApplyTrades("user-1", types.SideBuy, []types.Trade{lossBuy}, lossBuy.Value, at)
	suite.ledger.ApplyTrades("user-1", types.SideSell, []types.Trade{lossSell}, 0, at)

	perf := suite.ledger.Performance("user-1")

	suite.Equal(4, perf.TotalTrades)
	suite.Equal(2, perf.RoundTrips)
	suite.InDelta(50.0, perf.WinRate, 1e-9)
	suite.InDelta(700.0, perf.AvgWin, 1e-9)
	suite.InDelta(500.0, perf.AvgLoss, 1e-9)
	suite.InDelta(700.0, perf.GrossProfit, 1e-9)
	suite.InDelta(500.0, perf.GrossLoss, 1e-9)
	suite.InDelta(1.4, perf.ProfitFactor, 1e-9)
}

func (suite *LedgerTestSuite) TestPerformanceEmptyHistory() {
	perf := suite.ledger.Performance("user-1")

	suite.Equal(0, perf.TotalTrades)
	suite.Equal(0, perf.RoundTrips)
	suite.Equal(0.0, perf.WinRate)
	suite.Equal(0.0, perf.ProfitFactor)
}

func (suite *LedgerTestSuite) TestTradeHistoryNewestFirst() {
	for i := 0; i < 5; i++ {
		trade := testTrade("NIFTY24500CE", types.SideBuy, 10, 125, 0, suite.base.Add(time.Duration(i)*time.Minute))
		suite.ledger.ApplyTrades("user-1", types.SideBuy, []types.Trade{trade}, trade.Value, trade.ExecutedAt)
	}

	history := suite.ledger.TradeHistory("user-1", 3)

	suite.Len(history, 3)
	suite.Equal(suite.base.Add(4*time.Minute), history[0].ExecutedAt)
	suite.Equal(suite.base.Add(2*time.Minute), history[2].ExecutedAt)
}

func (suite *LedgerTestSuite) TestMarkedPositionsRefreshMarks() {
	_, err := suite.ledger.ApplyFill("user-1", "NIFTY24500CE", types.SideBuy, 100, 125, suite.base)
	suite.Require().NoError(err)

	marks := stubMarks{prices: map[string]float64{"NIFTY24500CE": 130.0}}
	positions := suite.ledger.MarkedPositions("user-1", marks)

	suite.Require().Len(positions, 1)
	suite.Equal(130.0, positions[0].CurrentPrice)
	suite.InDelta(500.0, positions[0].UnrealizedPnL, 1e-9)

	// A symbol the source cannot price keeps its previous mark.
	positions = suite.ledger.MarkedPositions("user-1", stubMarks{prices: map[string]float64{}})
	suite.Equal(130.0, positions[0].CurrentPrice)
}

func (suite *LedgerTestSuite) TestOwnersSorted() {
	suite.ledger.EnsurePortfolio("user-b", suite.base)
	suite.ledger.EnsurePortfolio("user-a", suite.base)

	suite.Equal([]string{"user-a", "user-b"}, suite.ledger.Owners())
}
