package stats

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Statistics struct {
	TotalOrders      int             `json:"total_orders"`
	PendingOrders    int             `json:"pending_orders"`
	ProcessingOrders int             `json:"processing_orders"`
	ShippedOrders    int             `json:"shipped_orders"`
	DeliveredOrders  int             `json:"delivered_orders"`
	CancelledOrders  int             `json:"cancelled_orders"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	PendingPayments  decimal.Decimal `json:"pending_payments"`
	RecentOrders     []DailyOrders   `json:"recent_orders"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

type DailyOrders struct {
	Date    string          `json:"date"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

const recentWindow = 30 * 24 * time.Hour

type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) Compute(ctx context.Context, now time.Time) (*Statistics, error) {
	s := &Statistics{GeneratedAt: now}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'shipped'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_status = 'paid'), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_status = 'pending'), 0)
		FROM orders
	`).Scan(&s.TotalOrders, &s.PendingOrders, &s.ProcessingOrders, &s.ShippedOrders,
		&s.DeliveredOrders, &s.CancelledOrders, &s.TotalRevenue, &s.PendingPayments)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT TO_CHAR(DATE(created_at), 'YYYY-MM-DD') AS day, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM orders
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day DESC
	`, now.Add(-recentWindow))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	s.RecentOrders = []DailyOrders{}
	for rows.Next() {
		var d DailyOrders
		if err := rows.Scan(&d.Date, &d.Count, &d.Revenue); err != nil {
			return nil, err
		}
		s.RecentOrders = append(s.RecentOrders, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return s, nil
}
