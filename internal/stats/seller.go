package stats

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type SellerDashboard struct {
	Products    ProductCounts `json:"products"`
	Sales       SalesSummary  `json:"sales"`
	RecentSales []DailyOrders `json:"recent_sales"`
	TopProducts []TopProduct  `json:"top_products"`
	Days        int           `json:"days"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type ProductCounts struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	OutOfStock int `json:"out_of_stock"`
}

// SalesSummary counts the seller's order items by fulfillment status.
// Revenue only includes items of paid orders.
type SalesSummary struct {
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalOrders     int             `json:"total_orders"`
	PendingItems    int             `json:"pending_items"`
	ProcessingItems int             `json:"processing_items"`
	ShippedItems    int             `json:"shipped_items"`
	DeliveredItems  int             `json:"delivered_items"`
}

type TopProduct struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Items     int             `json:"order_items"`
	UnitsSold int             `json:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

const topProductsLimit = 5

// SellerDashboard reports one seller's catalog and sales. Daily sales cover
// paid orders placed in the last days days, newest first.
func (r *StatsRepository) SellerDashboard(ctx context.Context, sellerID string, days int, now time.Time) (*SellerDashboard, error) {
	d := &SellerDashboard{Days: days, GeneratedAt: now}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE stock = 0)
		FROM products
		WHERE owner_id = $1
	`, sellerID).Scan(&d.Products.Total, &d.Products.Active, &d.Products.OutOfStock)
	if err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(i.subtotal) FILTER (WHERE o.payment_status = 'paid'), 0),
			COUNT(DISTINCT i.order_id),
			COUNT(*) FILTER (WHERE i.fulfillment_status = 'pending'),
			COUNT(*) FILTER (WHERE i.fulfillment_status = 'processing'),
			COUNT(*) FILTER (WHERE i.fulfillment_status = 'shipped'),
			COUNT(*) FILTER (WHERE i.fulfillment_status = 'delivered')
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE i.seller_id = $1
	`, sellerID).Scan(&d.Sales.TotalRevenue, &d.Sales.TotalOrders, &d.Sales.PendingItems,
		&d.Sales.ProcessingItems, &d.Sales.ShippedItems, &d.Sales.DeliveredItems)
	if err != nil {
		return nil, err
	}

	if d.RecentSales, err = r.recentSales(ctx, sellerID, now.AddDate(0, 0, -days)); err != nil {
		return nil, err
	}
	if d.TopProducts, err = r.topProducts(ctx, sellerID); err != nil {
		return nil, err
	}

	return d, nil
}

func (r *StatsRepository) recentSales(ctx context.Context, sellerID string, since time.Time) ([]DailyOrders, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT TO_CHAR(DATE(i.created_at), 'YYYY-MM-DD') AS day, COUNT(*), COALESCE(SUM(i.subtotal), 0)
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE i.seller_id = $1 AND o.payment_status = 'paid' AND o.created_at >= $2
		GROUP BY day
		ORDER BY day DESC
	`, sellerID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sales := []DailyOrders{}
	for rows.Next() {
		var d DailyOrders
		if err := rows.Scan(&d.Date, &d.Count, &d.Revenue); err != nil {
			return nil, err
		}
		sales = append(sales, d)
	}

	return sales, rows.Err()
}

func (r *StatsRepository) topProducts(ctx context.Context, sellerID string) ([]TopProduct, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			i.product_id,
			MAX(i.product_name),
			COUNT(*),
			SUM(i.quantity),
			COALESCE(SUM(i.subtotal) FILTER (WHERE o.payment_status = 'paid'), 0)
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE i.seller_id = $1
		GROUP BY i.product_id
		ORDER BY SUM(i.quantity) DESC, i.product_id
		LIMIT $2
	`, sellerID, topProductsLimit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	top := []TopProduct{}
	for rows.Next() {
		var p TopProduct
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Items, &p.UnitsSold, &p.Revenue); err != nil {
			return nil, err
		}
		top = append(top, p)
	}

	return top, rows.Err()
}
