package ledger

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Journal persists every order transition and fill of a run in DuckDB so
// the trade history can be exported to parquet and inspected with SQL
// after the run.
type Journal struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewJournal opens a journal at path (":memory:" for throwaway runs).
func NewJournal(path string, log *logger.Logger) (*Journal, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	return &Journal{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the journal tables.
func (j *Journal) Initialize() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			symbol TEXT,
			amount DOUBLE,
			kind TEXT,
			limit_price DOUBLE,
			status TEXT,
			created_at TIMESTAMP,
			sequence INTEGER,
			filled_amount DOUBLE,
			reason TEXT,
			message TEXT,
			strategy_name TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS fills (
			order_id TEXT,
			symbol TEXT,
			amount DOUBLE,
			price DOUBLE,
			commission DOUBLE,
			timestamp TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create fills table: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordOrder writes the order's current state, replacing any earlier
// state for the same id.
func (j *Journal) RecordOrder(order types.Order) error {
	update := j.sq.
		Update("orders").
		Set("status", string(order.Status)).
		Set("filled_amount", order.FilledAmount).
		Set("reason", order.Reason.Reason).
		Set("message", order.Reason.Message).
		Where(squirrel.Eq{"id": order.ID}).
		RunWith(j.db)

	result, err := update.Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to update order", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	insert := j.sq.
		Insert("orders").
		Columns("id", "symbol", "amount", "kind", "limit_price", "status", "created_at",
			"sequence", "filled_amount", "reason", "message", "strategy_name").
		Values(order.ID, order.Symbol, order.Amount, string(order.Kind), order.LimitPrice,
			string(order.Status), order.CreatedAt, order.Sequence, order.FilledAmount,
			order.Reason.Reason, order.Reason.Message, order.StrategyName).
		RunWith(j.db)

	if _, err := insert.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to insert order", err)
	}

	return nil
}

// RecordFill appends one fill row.
func (j *Journal) RecordFill(fill types.Fill) error {
	insert := j.sq.
		Insert("fills").
		Columns("order_id", "symbol", "amount", "price", "commission", "timestamp").
		Values(fill.OrderID, fill.Symbol, fill.Amount, fill.Price, fill.Commission, fill.Timestamp).
		RunWith(j.db)

	if _, err := insert.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to insert fill", err)
	}

	return nil
}

// Counts returns the number of recorded orders and fills.
func (j *Journal) Counts() (orders int, fills int, err error) {
	row := j.sq.Select("COUNT(*)").From("orders").RunWith(j.db).QueryRow()
	if err := row.Scan(&orders); err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count orders", err)
	}

	row = j.sq.Select("COUNT(*)").From("fills").RunWith(j.db).QueryRow()
	if err := row.Scan(&fills); err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count fills", err)
	}

	return orders, fills, nil
}

// TotalCommission returns the sum of commissions across all fills.
func (j *Journal) TotalCommission() (float64, error) {
	row := j.sq.Select("COALESCE(SUM(commission), 0)").From("fills").RunWith(j.db).QueryRow()

	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to sum commissions", err)
	}

	return total, nil
}

// Write exports the journal to orders.parquet and fills.parquet in dir.
func (j *Journal) Write(dir string) error {
	exports := map[string]string{
		"orders": filepath.Join(dir, "orders.parquet"),
		"fills":  filepath.Join(dir, "fills.parquet"),
	}

	for table, path := range exports {
		query := fmt.Sprintf(`COPY (SELECT * FROM %s) TO '%s' (FORMAT PARQUET)`, table, path)
		if _, err := j.db.Exec(query); err != nil {
			return errors.Wrapf(errors.ErrCodeJournalWriteFailed, err, "failed to export %s to parquet", table)
		}

		j.logger.Info("Journal table exported", zap.String("table", table), zap.String("path", path))
	}

	return nil
}
