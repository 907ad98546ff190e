package types

// PnLSummary aggregates realized and unrealized P&L for one owner over a
// period, measured against the initial capital.
type PnLSummary struct {
	Period         Period  `json:"period"`
	RealizedPnL    float64 `json:"realized_pnl"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	TotalPnL       float64 `json:"total_pnl"`
	ReturnsPct     float64 `json:"returns_pct"`
	InitialCapital float64 `json:"initial_capital"`
	CurrentValue   float64 `json:"current_value"`
}

// Performance summarizes FIFO round trips for one owner.
type Performance struct {
	TotalTrades int `json:"total_trades"`
	// RoundTrips is the number of FIFO buy/sell matches with both legs done.
	RoundTrips   int     `json:"round_trips"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
}

// RiskReport is the current risk posture of one owner against the
// configured limits.
type RiskReport struct {
	MarginUsed         float64            `json:"margin_used"`
	MarginAvailable    float64            `json:"margin_available"`
	MarginUtilization  float64            `json:"margin_utilization"`
	OpenPositions      int                `json:"open_positions"`
	MaxPositions       int                `json:"max_positions"`
	TotalPnL           float64            `json:"total_pnl"`
	DailyLossLimit     float64            `json:"daily_loss_limit"`
	ExposureByProduct  map[string]float64 `json:"exposure_by_product"`
	MaxConcentration   float64            `json:"max_concentration"`
	ConcentrationLimit float64            `json:"concentration_limit"`
}

// BookLevel is one visible price level of a depth snapshot.
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// BookSnapshot is a read-only view of one symbol's order book.
type BookSnapshot struct {
	Symbol         string      `json:"symbol"`
	MidPrice       float64     `json:"mid_price"`
	LastTradePrice float64     `json:"last_trade_price"`
	Spread         float64     `json:"spread"`
	Bids           []BookLevel `json:"bids"`
	Asks           []BookLevel `json:"asks"`
}
