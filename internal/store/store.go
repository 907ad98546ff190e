// Package store persists orders, trades, positions and portfolios to
// DuckDB. The in-memory ledger stays authoritative: the store records the
// outcome of each lifecycle transition after the fact and serves the
// replay path that reconciles state from the trade log.
package store

import (
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"

	"github.com/deltastream-lab/tradesim/internal/logger"
	"github.com/deltastream-lab/tradesim/internal/types"
	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// InMemoryPath opens a throwaway database, used by tests and the default
// development configuration.
const InMemoryPath = ":memory:"

type Store struct {
	db  *sql.DB
	sq  squirrel.StatementBuilderType
	log *logger.Logger
}

// NewStore opens (or creates) the DuckDB database at path. An empty path
// falls back to an in-memory database.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	if path == "" {
		path = InMemoryPath
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodePersistenceFailure, err, "open database at %s", path)
	}

	return &Store{
		db:  db,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		log: log,
	}, nil
}

// Initialize creates the tables if they do not exist.
func (s *Store) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			owner_id TEXT,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			limit_price DOUBLE,
			status TEXT,
			filled_quantity DOUBLE,
			avg_fill_price DOUBLE,
			rejection_reason TEXT,
			created_at TIMESTAMP,
			filled_at TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailure, "create orders table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			order_id TEXT,
			owner_id TEXT,
			symbol TEXT,
			side TEXT,
			price DOUBLE,
			quantity DOUBLE,
			value DOUBLE,
			commission DOUBLE,
			net_value DOUBLE,
			executed_at TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailure, "create trades table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			owner_id TEXT,
			symbol TEXT,
			quantity DOUBLE,
			avg_entry_price DOUBLE,
			current_price DOUBLE,
			unrealized_pnl DOUBLE,
			opened_at TIMESTAMP,
			updated_at TIMESTAMP,
			PRIMARY KEY (owner_id, symbol)
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailure, "create positions table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS portfolios (
			owner_id TEXT PRIMARY KEY,
			cash_balance DOUBLE,
			margin_used DOUBLE,
			margin_available DOUBLE,
			realized_pnl DOUBLE,
			unrealized_pnl DOUBLE,
			total_pnl DOUBLE,
			daily_realized_pnl DOUBLE,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailure, "create portfolios table", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// SaveOrder inserts a terminal order. Orders are immutable once saved.
func (s *Store) SaveOrder(order types.Order) error {
	insert := s.sq.
		Insert("orders").
		Columns(
			"order_id", "owner_id", "symbol", "side", "order_type", "quantity",
			"limit_price", "status", "filled_quantity", "avg_fill_price",
			"rejection_reason", "created_at", "filled_at",
		).
		Values(
			order.OrderID, order.OwnerID, order.Symbol, string(order.Side),
			string(order.OrderType), order.Quantity, nullableFloat(order.LimitPrice),
			string(order.Status), order.FilledQuantity, nullableFloat(order.AvgFillPrice),
			nullableString(order.RejectionReason), order.CreatedAt, nullableTime(order.FilledAt),
		).
		RunWith(s.db)

	if _, err := insert.Exec(); err != nil {
		return errors.Wrapf(errors.ErrCodePersistenceFailure, err, "insert order %s", order.OrderID)
	}

	return nil
}

// SaveTrades inserts all trades of one order in a single transaction.
func (s *Store) SaveTrades(trades []types.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailure, "begin transaction", err)
	}

	for _, trade := range trades {
		insert := s.sq.
			Insert("trades").
			Columns(
				"trade_id", "order_id", "owner_id", "symbol", "side",
				"price", "quantity", "value", "commission", "net_value", "executed_at",
			).
			Values(
				trade.TradeID, trade.OrderID, trade.OwnerID, trade.Symbol, string(trade.Side),
				trade.Price, trade.Quantity, trade.Value, trade.Commission, trade.NetValue, trade.ExecutedAt,
			).
			RunWith(tx)

		if _, err := insert.Exec(); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(errors.ErrCodePersistenceFailure, err, "insert trade %s", trade.TradeID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailure, "commit trades", err)
	}

	return nil
}

// UpsertPosition writes the current state of a position.
func (s *Store) UpsertPosition(position types.Position) error {
	insert := s.sq.
		Insert("positions").
		Options("OR REPLACE").
		Columns(
			"owner_id", "symbol", "quantity", "avg_entry_price",
			"current_price", "unrealized_pnl", "opened_at", "updated_at",
		).
		Values(
			position.OwnerID, position.Symbol, position.Quantity, position.AvgEntryPrice,
			position.CurrentPrice, position.UnrealizedPnL, position.OpenedAt, position.UpdatedAt,
		).
		RunWith(s.db)

	if _, err := insert.Exec(); err != nil {
		return errors.Wrapf(errors.ErrCodePersistenceFailure, err, "upsert position %s/%s", position.OwnerID, position.Symbol)
	}

	return nil
}

// DeletePosition removes a closed position.
func (s *Store) DeletePosition(ownerID, symbol string) error {
	del := s.sq.
		Delete("positions").
		Where(squirrel.Eq{"owner_id": ownerID, "symbol": symbol}).
		RunWith(s.db)

	if _, err := del.Exec(); err != nil {
		return errors.Wrapf(errors.ErrCodePersistenceFailure, err, "delete position %s/%s", ownerID, symbol)
	}

	return nil
}

// SavePortfolio writes the current state of a portfolio.
func (s *Store) SavePortfolio(portfolio types.Portfolio) error {
	insert := s.sq.
		Insert("portfolios").
		Options("OR REPLACE").
		Columns(
			"owner_id", "cash_balance", "margin_used", "margin_available",
			"realized_pnl", "unrealized_pnl", "total_pnl", "daily_realized_pnl",
			"created_at", "updated_at",
		).
		Values(
			portfolio.OwnerID, portfolio.CashBalance, portfolio.MarginUsed, portfolio.MarginAvailable,
			portfolio.RealizedPnL, portfolio.UnrealizedPnL, portfolio.TotalPnL, portfolio.DailyRealizedPnL,
			portfolio.CreatedAt, portfolio.UpdatedAt,
		).
		RunWith(s.db)

	if _, err := insert.Exec(); err != nil {
		return errors.Wrapf(errors.ErrCodePersistenceFailure, err, "upsert portfolio %s", portfolio.OwnerID)
	}

	return nil
}

// GetOrder loads one order by id.
func (s *Store) GetOrder(orderID string) (types.Order, error) {
	query := s.sq.
		Select(orderColumns()...).
		From("orders").
		Where(squirrel.Eq{"order_id": orderID}).
		RunWith(s.db)

	order, err := scanOrder(query.QueryRow())
	if err == sql.ErrNoRows {
		return types.Order{}, errors.Newf(errors.ErrCodeOrderNotFound, "order %s not found", orderID)
	}

	if err != nil {
		return types.Order{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "query order %s", orderID)
	}

	return order, nil
}

// ListOrders returns an owner's orders, newest first, optionally filtered
// by status. A non-positive limit means no cap.
func (s *Store) ListOrders(ownerID string, status optional.Option[types.OrderStatus], limit int) ([]types.Order, error) {
	query := s.sq.
		Select(orderColumns()...).
		From("orders").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC")

	if status.IsSome() {
		query = query.Where(squirrel.Eq{"status": string(status.Unwrap())})
	}

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	rows, err := query.RunWith(s.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "query orders", err)
	}
	defer rows.Close()

	orders := make([]types.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "scan order", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "iterate orders", err)
	}

	return orders, nil
}

// ListTrades returns an owner's trades, newest first. A non-positive limit
// means no cap.
func (s *Store) ListTrades(ownerID string, limit int) ([]types.Trade, error) {
	query := s.sq.
		Select(tradeColumns()...).
		From("trades").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("executed_at DESC")

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	return s.queryTrades(query)
}

// AllTrades returns every trade in execution order, the input to replay.
// Trades from one multi-level fill share a timestamp, so ties fall back
// to insertion order via the rowid pseudocolumn.
func (s *Store) AllTrades() ([]types.Trade, error) {
	query := s.sq.
		Select(tradeColumns()...).
		From("trades").
		OrderBy("executed_at ASC", "rowid ASC")

	return s.queryTrades(query)
}

// ListPositions returns an owner's open positions sorted by symbol.
func (s *Store) ListPositions(ownerID string) ([]types.Position, error) {
	query := s.sq.
		Select(
			"owner_id", "symbol", "quantity", "avg_entry_price",
			"current_price", "unrealized_pnl", "opened_at", "updated_at",
		).
		From("positions").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("symbol ASC").
		RunWith(s.db)

	rows, err := query.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "query positions", err)
	}
	defer rows.Close()

	positions := make([]types.Position, 0)
	for rows.Next() {
		var pos types.Position
		err := rows.Scan(
			&pos.OwnerID, &pos.Symbol, &pos.Quantity, &pos.AvgEntryPrice,
			&pos.CurrentPrice, &pos.UnrealizedPnL, &pos.OpenedAt, &pos.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "scan position", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "iterate positions", err)
	}

	return positions, nil
}

// GetPortfolio loads one portfolio by owner.
func (s *Store) GetPortfolio(ownerID string) (types.Portfolio, error) {
	query := s.sq.
		Select(
			"owner_id", "cash_balance", "margin_used", "margin_available",
			"realized_pnl", "unrealized_pnl", "total_pnl", "daily_realized_pnl",
			"created_at", "updated_at",
		).
		From("portfolios").
		Where(squirrel.Eq{"owner_id": ownerID}).
		RunWith(s.db)

	var p types.Portfolio
	err := query.QueryRow().Scan(
		&p.OwnerID, &p.CashBalance, &p.MarginUsed, &p.MarginAvailable,
		&p.RealizedPnL, &p.UnrealizedPnL, &p.TotalPnL, &p.DailyRealizedPnL,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return types.Portfolio{}, errors.Newf(errors.ErrCodePortfolioMissing, "portfolio for %s not found", ownerID)
	}

	if err != nil {
		return types.Portfolio{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "query portfolio %s", ownerID)
	}

	return p, nil
}

// ResetDerived clears positions and portfolios, the state replay rebuilds
// from the trade log. Orders and trades are never touched.
func (s *Store) ResetDerived() error {
	_, err := s.db.Exec(`
		DELETE FROM positions;
		DELETE FROM portfolios;
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailure, "reset derived state", err)
	}

	s.log.Info("derived state cleared for replay")

	return nil
}

func (s *Store) queryTrades(query squirrel.SelectBuilder) ([]types.Trade, error) {
	rows, err := query.RunWith(s.db).Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "query trades", err)
	}
	defer rows.Close()

	trades := make([]types.Trade, 0)
	for rows.Next() {
		var t types.Trade
		var side string
		err := rows.Scan(
			&t.TradeID, &t.OrderID, &t.OwnerID, &t.Symbol, &side,
			&t.Price, &t.Quantity, &t.Value, &t.Commission, &t.NetValue, &t.ExecutedAt,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "scan trade", err)
		}
		t.Side = types.Side(side)
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "iterate trades", err)
	}

	return trades, nil
}

func orderColumns() []string {
	return []string{
		"order_id", "owner_id", "symbol", "side", "order_type", "quantity",
		"limit_price", "status", "filled_quantity", "avg_fill_price",
		"rejection_reason", "created_at", "filled_at",
	}
}

func tradeColumns() []string {
	return []string{
		"trade_id", "order_id", "owner_id", "symbol", "side",
		"price", "quantity", "value", "commission", "net_value", "executed_at",
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (types.Order, error) {
	var (
		order           types.Order
		side, orderType string
		status          string
		limitPrice      sql.NullFloat64
		avgFillPrice    sql.NullFloat64
		rejectionReason sql.NullString
		filledAt        sql.NullTime
	)

	err := row.Scan(
		&order.OrderID, &order.OwnerID, &order.Symbol, &side, &orderType, &order.Quantity,
		&limitPrice, &status, &order.FilledQuantity, &avgFillPrice,
		&rejectionReason, &order.CreatedAt, &filledAt,
	)
	if err != nil {
		return types.Order{}, err
	}

	order.Side = types.Side(side)
	order.OrderType = types.OrderType(orderType)
	order.Status = types.OrderStatus(status)
	order.LimitPrice = nullToOptFloat(limitPrice)
	order.AvgFillPrice = nullToOptFloat(avgFillPrice)

	if rejectionReason.Valid {
		order.RejectionReason = optional.Some(rejectionReason.String)
	} else {
		order.RejectionReason = optional.None[string]()
	}

	if filledAt.Valid {
		order.FilledAt = optional.Some(filledAt.Time)
	} else {
		order.FilledAt = optional.None[time.Time]()
	}

	return order, nil
}

func nullableFloat(o optional.Option[float64]) any {
	if o.IsSome() {
		return o.Unwrap()
	}

	return nil
}

func nullableString(o optional.Option[string]) any {
	if o.IsSome() {
		return o.Unwrap()
	}

	return nil
}

func nullableTime(o optional.Option[time.Time]) any {
	if o.IsSome() {
		return o.Unwrap()
	}

	return nil
}

func nullToOptFloat(v sql.NullFloat64) optional.Option[float64] {
	if v.Valid {
		return optional.Some(v.Float64)
	}

	return optional.None[float64]()
}
