package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/blanket-orders/internal/domain/report"
)

// reportRowsSQL classifies every currently assigned move by the commitment
// that requested it: a blanket order line back-reference wins, then a
// sales-order origin prefix, everything else is other.
const reportRowsSQL = `SELECT
		id,
		product,
		source,
		quantity,
		CASE
			WHEN line_id IS NOT NULL THEN 'blanket'
			WHEN origin LIKE 'SO%' THEN 'sales'
			ELSE 'other'
		END AS reservation_type,
		origin,
		created_at
	FROM stock_moves
	WHERE state = 'assigned'
	  AND product <> ''
	  AND source <> ''
	ORDER BY product, reservation_type, origin`

var _ report.Repository = (*ReportRepository)(nil)

// ReportRepository implements report.Repository backed by PostgreSQL.
// Rows are derived from ledger state on every call; nothing is cached.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository returns a ReportRepository that uses the given pool.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// Rows returns the current reservation report.
func (r *ReportRepository) Rows(ctx context.Context) ([]report.Row, error) {
	rows, err := r.pool.Query(ctx, reportRowsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying reservation report: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.Row, error) {
		var out report.Row
		err := row.Scan(&out.MoveID, &out.Product, &out.Location, &out.Quantity,
			&out.Type, &out.Reference, &out.Date)
		return out, err
	})
}
