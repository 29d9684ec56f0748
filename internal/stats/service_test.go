package stats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/auth"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

var admin = auth.Caller{ID: "root", Role: auth.RoleAdmin}

type countingSource struct {
	calls int
	err   error

	dashboardSeller string
	dashboardDays   int
}

func (s *countingSource) Compute(_ context.Context, now time.Time) (*Statistics, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Statistics{
		TotalOrders:   3,
		PendingOrders: 2,
		TotalRevenue:  decimal.RequireFromString("186.00"),
		RecentOrders:  []DailyOrders{{Date: "2026-03-14", Count: 3, Revenue: decimal.RequireFromString("300")}},
		GeneratedAt:   now,
	}, nil
}

func (s *countingSource) SellerDashboard(_ context.Context, sellerID string, days int, now time.Time) (*SellerDashboard, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	s.dashboardSeller = sellerID
	s.dashboardDays = days
	return &SellerDashboard{
		Products:    ProductCounts{Total: 2, Active: 2},
		Sales:       SalesSummary{TotalRevenue: decimal.RequireFromString("160"), TotalOrders: 1, ShippedItems: 1},
		RecentSales: []DailyOrders{{Date: "2026-03-14", Count: 1, Revenue: decimal.RequireFromString("160")}},
		TopProducts: []TopProduct{{ProductID: "x", Name: "Product X", Items: 1, UnitsSold: 2, Revenue: decimal.RequireFromString("160")}},
		Days:        days,
		GeneratedAt: now,
	}, nil
}

type mapCache struct {
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (c *mapCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.values[key] = string(value.([]byte))
	c.ttls[key] = ttl
	return nil
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	if c.getErr != nil {
		return "", c.getErr
	}
	return c.values[key], nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

func (c *mapCache) GenerateKey(operation, key string) string {
	return "test:" + operation + ":" + key
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_Statistics(t *testing.T) {
	t.Run("reads through the cache", func(t *testing.T) {
		source := &countingSource{}
		c := newMapCache()
		svc := NewService(source, c, time.Minute, discardLogger())

		first, err := svc.Statistics(context.Background(), admin)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := svc.Statistics(context.Background(), admin)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if source.calls != 1 {
			t.Errorf("expected 1 computation, got %d", source.calls)
		}
		if c.ttls["test:statistics:orders"] != time.Minute {
			t.Errorf("expected ttl of one minute, got %v", c.ttls["test:statistics:orders"])
		}
		if !second.TotalRevenue.Equal(first.TotalRevenue) || len(second.RecentOrders) != 1 {
			t.Errorf("cached statistics differ: %+v vs %+v", second, first)
		}
	})

	t.Run("recomputes after invalidation", func(t *testing.T) {
		source := &countingSource{}
		c := newMapCache()
		svc := NewService(source, c, time.Minute, discardLogger())

		if _, err := svc.Statistics(context.Background(), admin); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := InvalidateCache(context.Background(), c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.Statistics(context.Background(), admin); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if source.calls != 2 {
			t.Errorf("expected 2 computations, got %d", source.calls)
		}
	})

	t.Run("falls back to the source when the cache fails", func(t *testing.T) {
		source := &countingSource{}
		c := newMapCache()
		c.getErr = errors.New("connection refused")
		svc := NewService(source, c, time.Minute, discardLogger())

		if _, err := svc.Statistics(context.Background(), admin); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if source.calls != 1 {
			t.Errorf("expected 1 computation, got %d", source.calls)
		}
	})

	t.Run("works without a cache", func(t *testing.T) {
		source := &countingSource{}
		svc := NewService(source, nil, time.Minute, discardLogger())

		for range 2 {
			if _, err := svc.Statistics(context.Background(), admin); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if source.calls != 2 {
			t.Errorf("expected 2 computations, got %d", source.calls)
		}
	})

	t.Run("admin only", func(t *testing.T) {
		svc := NewService(&countingSource{}, nil, 0, discardLogger())
		_, err := svc.Statistics(context.Background(), auth.Caller{ID: "s1", Role: auth.RoleSeller})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestHandler_HandleStatistics(t *testing.T) {
	h := NewHandler(NewService(&countingSource{}, nil, 0, discardLogger()), discardLogger())

	tests := []struct {
		name   string
		caller auth.Caller
		want   int
	}{
		{"admin", admin, http.StatusOK},
		{"customer", auth.Caller{ID: "c1", Role: auth.RoleCustomer}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/statistics", nil)
			req = req.WithContext(auth.WithCaller(req.Context(), tt.caller))
			rec := httptest.NewRecorder()

			h.HandleStatistics(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}

	t.Run("source failure", func(t *testing.T) {
		h := NewHandler(NewService(&countingSource{err: errors.New("db down")}, nil, 0, discardLogger()), discardLogger())
		req := httptest.NewRequest(http.MethodGet, "/admin/statistics", nil)
		req = req.WithContext(auth.WithCaller(req.Context(), admin))
		rec := httptest.NewRecorder()

		h.HandleStatistics(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
	})
}

func TestService_SellerDashboard(t *testing.T) {
	seller := auth.Caller{ID: "seller-a", Role: auth.RoleSeller}

	t.Run("scoped to the calling seller with default window", func(t *testing.T) {
		source := &countingSource{}
		svc := NewService(source, newMapCache(), time.Minute, discardLogger())

		d, err := svc.SellerDashboard(context.Background(), seller, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if source.dashboardSeller != "seller-a" || source.dashboardDays != DefaultDashboardDays {
			t.Errorf("unexpected source call seller=%q days=%d", source.dashboardSeller, source.dashboardDays)
		}
		if !d.Sales.TotalRevenue.Equal(decimal.NewFromInt(160)) || len(d.TopProducts) != 1 {
			t.Errorf("unexpected dashboard %+v", d)
		}
	})

	t.Run("custom window", func(t *testing.T) {
		source := &countingSource{}
		svc := NewService(source, nil, 0, discardLogger())

		if _, err := svc.SellerDashboard(context.Background(), seller, 7); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if source.dashboardDays != 7 {
			t.Errorf("expected 7 days, got %d", source.dashboardDays)
		}
	})

	t.Run("rejects out of range windows", func(t *testing.T) {
		svc := NewService(&countingSource{}, nil, 0, discardLogger())

		for _, days := range []int{-1, 366} {
			var validation *domain.ValidationError
			if _, err := svc.SellerDashboard(context.Background(), seller, days); !errors.As(err, &validation) {
				t.Errorf("days=%d: expected validation error, got %v", days, err)
			}
		}
	})

	t.Run("sellers only", func(t *testing.T) {
		svc := NewService(&countingSource{}, nil, 0, discardLogger())

		for _, c := range []auth.Caller{admin, {ID: "c1", Role: auth.RoleCustomer}} {
			if _, err := svc.SellerDashboard(context.Background(), c, 0); !errors.Is(err, domain.ErrForbidden) {
				t.Errorf("%s: expected ErrForbidden, got %v", c.Role, err)
			}
		}
	})
}

func TestHandler_HandleSellerDashboard(t *testing.T) {
	seller := auth.Caller{ID: "seller-a", Role: auth.RoleSeller}

	tests := []struct {
		name   string
		caller auth.Caller
		query  string
		want   int
	}{
		{"seller", seller, "", http.StatusOK},
		{"seller with window", seller, "?days=7", http.StatusOK},
		{"non numeric window", seller, "?days=week", http.StatusBadRequest},
		{"window too large", seller, "?days=1000", http.StatusBadRequest},
		{"customer", auth.Caller{ID: "c1", Role: auth.RoleCustomer}, "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(NewService(&countingSource{}, nil, 0, discardLogger()), discardLogger())
			req := httptest.NewRequest(http.MethodGet, "/seller/dashboard"+tt.query, nil)
			req = req.WithContext(auth.WithCaller(req.Context(), tt.caller))
			rec := httptest.NewRecorder()

			h.HandleSellerDashboard(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
