package service

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailnexus/backend/internal/billing"
	"retailnexus/backend/internal/cache"
	"retailnexus/backend/internal/domain"
	"retailnexus/backend/internal/store"
)

const (
	defaultNearExpiryDays    = 5
	deadStockLookbackDays    = 30
	restockLookbackDays      = 30
	restockCoverDays         = 7
	restockOrderDays         = 14
	defaultLowStockThreshold = 10
	salesTrendMonths         = 6
)

type contextKey string

const actorContextKey contextKey = "actor"

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(domain.Actor)
	return actor, ok
}

// Service orchestrates the catalog, batch ledger, billing engine, and
// reporting on top of a store.Repository.
type Service struct {
	repo              store.Repository
	engine            *billing.Engine
	dashboardCache    cache.DashboardCache
	dashboardCacheTTL time.Duration
	lowStockThreshold int
}

func New(repo store.Repository, engine *billing.Engine, dashboardCache cache.DashboardCache, dashboardCacheTTL time.Duration, lowStockThreshold int) *Service {
	if dashboardCache == nil {
		dashboardCache = cache.NoopDashboardCache{}
	}
	if dashboardCacheTTL <= 0 {
		dashboardCacheTTL = 30 * time.Second
	}
	if lowStockThreshold < 1 {
		lowStockThreshold = defaultLowStockThreshold
	}

	return &Service{
		repo:              repo,
		engine:            engine,
		dashboardCache:    dashboardCache,
		dashboardCacheTTL: dashboardCacheTTL,
		lowStockThreshold: lowStockThreshold,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	if strings.TrimSpace(query) == "" {
		return s.repo.ListProducts(ctx)
	}
	return s.repo.SearchProducts(ctx, query)
}

func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.repo.GetProductByBarcode(ctx, barcode)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	product := domain.Product{
		Name:         strings.TrimSpace(req.Name),
		Barcode:      strings.TrimSpace(req.Barcode),
		Category:     strings.TrimSpace(req.Category),
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		GSTPercent:   req.GSTPercent,
		Unit:         domain.ParseUnit(req.Unit),
	}
	return s.repo.CreateProduct(ctx, product)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (*domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	product := *existing
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Barcode != nil {
		product.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.CostPrice != nil {
		product.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		product.SellingPrice = *req.SellingPrice
	}
	if req.GSTPercent != nil {
		product.GSTPercent = *req.GSTPercent
	}
	if req.Unit != nil {
		product.Unit = domain.ParseUnit(*req.Unit)
	}

	return s.repo.UpdateProduct(ctx, product)
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) StockLevels(ctx context.Context) ([]domain.StockLevel, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	levels := make([]domain.StockLevel, 0, len(products))
	for _, product := range products {
		stock, err := s.repo.GetTotalStock(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		levels = append(levels, domain.StockLevel{Product: product, TotalStock: stock})
	}
	return levels, nil
}

func (s *Service) Restock(ctx context.Context, req domain.RestockRequest) (*domain.Batch, error) {
	if req.Quantity < 1 || strings.TrimSpace(req.BatchNumber) == "" {
		return nil, fmt.Errorf("%w: batch number and a positive quantity are required", store.ErrInvalidInput)
	}
	expiry, err := time.Parse("2006-01-02", strings.TrimSpace(req.ExpiryDate))
	if err != nil {
		return nil, fmt.Errorf("%w: expiry_date must be YYYY-MM-DD", store.ErrInvalidInput)
	}

	return s.repo.RestockBatch(ctx, domain.Batch{
		ProductID:   req.ProductID,
		BatchNumber: strings.TrimSpace(req.BatchNumber),
		ExpiryDate:  expiry.UTC(),
		Quantity:    req.Quantity,
	})
}

func (s *Service) SetStock(ctx context.Context, req domain.SetStockRequest) error {
	return s.repo.SetProductStock(ctx, req.ProductID, req.Quantity)
}

// AddStock shifts a product's signed total by delta and reconciles the
// result through SetProductStock, so the whole adjustment lands on the
// earliest batch.
func (s *Service) AddStock(ctx context.Context, req domain.AddStockRequest) error {
	total, err := s.repo.GetTotalStock(ctx, req.ProductID)
	if err != nil {
		return err
	}
	target := total + req.Delta
	if target < 0 {
		return fmt.Errorf("%w: stock cannot go below zero", store.ErrInvalidInput)
	}
	return s.repo.SetProductStock(ctx, req.ProductID, target)
}

func (s *Service) NearExpiryBatches(ctx context.Context, withinDays int) ([]domain.NearExpiryBatch, error) {
	if withinDays < 1 {
		withinDays = defaultNearExpiryDays
	}

	batches, err := s.repo.FindNearExpiryBatches(ctx, withinDays)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]domain.NearExpiryBatch, 0, len(batches))
	for _, b := range batches {
		product, ok := products[b.ProductID]
		if !ok {
			continue
		}
		result = append(result, domain.NearExpiryBatch{Batch: b, Product: product})
	}
	return result, nil
}

func (s *Service) ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error) {
	if productID > 0 {
		return s.repo.ListBatchesByProduct(ctx, productID)
	}
	return s.repo.ListBatchesWithStock(ctx)
}

func (s *Service) BatchTransactions(ctx context.Context, batchID int64, limit int) ([]domain.InventoryTransaction, error) {
	if batchID < 1 {
		return nil, fmt.Errorf("%w: batch_id is required", store.ErrInvalidInput)
	}
	return s.repo.ListBatchTransactions(ctx, batchID, limit)
}

// CompleteSale parses the raw cart, allocates it against batches, and posts
// the resulting sale atomically. Cart lines that reference unknown products
// are dropped, matching the parser's treatment of malformed lines.
func (s *Service) CompleteSale(ctx context.Context, req domain.CompleteSaleRequest) (*domain.Sale, error) {
	actor, _ := ActorFromContext(ctx)
	soldBy := actor.Username
	if soldBy == "" {
		soldBy = "unknown"
	}

	lines := billing.ParseCart(req.Cart)
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if _, ok := products[line.ProductID]; !ok {
			log.Printf("[service] WARN: dropping cart line for unknown product %d", line.ProductID)
		}
	}

	method := billing.ParsePaymentMethod(req.PaymentMethod)
	sale, deductions, err := s.engine.BuildSale(ctx, lines, products, method, soldBy)
	if err != nil {
		return nil, err
	}

	return s.repo.CreateSale(ctx, *sale, deductions)
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) DailyReport(ctx context.Context, date time.Time) (domain.DailyReport, error) {
	date = date.UTC()
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}

	return domain.DailyReport{
		Date:       from.Format("2006-01-02"),
		Sales:      sales,
		TotalSales: sumSaleAmounts(sales),
	}, nil
}

func (s *Service) MonthlyReport(ctx context.Context, year int, month int) (domain.MonthlyReport, error) {
	if year < 2000 || month < 1 || month > 12 {
		return domain.MonthlyReport{}, fmt.Errorf("%w: invalid year or month", store.ErrInvalidInput)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.MonthlyReport{}, err
	}

	return domain.MonthlyReport{
		Year:       year,
		Month:      month,
		Sales:      sales,
		TotalSales: sumSaleAmounts(sales),
	}, nil
}

func sumSaleAmounts(sales []domain.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(sale.TotalAmount)
	}
	return total
}

// LowStock lists products whose sellable stock is at or below the
// threshold, lowest first. Sellable stock counts positive batches only, so
// an oversold product reports zero rather than a negative figure.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]domain.LowStockItem, error) {
	if threshold < 1 {
		threshold = s.lowStockThreshold
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]domain.LowStockItem, 0, len(products))
	for _, product := range products {
		stock, err := s.repo.GetPositiveStock(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		if stock <= threshold {
			items = append(items, domain.LowStockItem{Product: product, Stock: stock})
		}
	}
	slices.SortFunc(items, func(a, b domain.LowStockItem) int {
		return a.Stock - b.Stock
	})
	return items, nil
}

// DeadStock lists products holding sellable stock with no sales in the
// trailing 30 days.
func (s *Service) DeadStock(ctx context.Context) ([]domain.DeadStockItem, error) {
	sold, err := s.repo.QuantitySoldSince(ctx, time.Now().UTC().AddDate(0, 0, -deadStockLookbackDays))
	if err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]domain.DeadStockItem, 0, len(products))
	for _, product := range products {
		if sold[product.ID].Sign() > 0 {
			continue
		}
		stock, err := s.repo.GetPositiveStock(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		if stock > 0 {
			items = append(items, domain.DeadStockItem{Product: product, Stock: stock})
		}
	}
	return items, nil
}

// RestockSuggestions flags products whose sellable stock covers less than a
// week of average daily sales and suggests a two-week order. Sellable stock
// counts positive batches only, so an oversold batch never inflates the gap.
func (s *Service) RestockSuggestions(ctx context.Context) ([]domain.RestockSuggestion, error) {
	sold, err := s.repo.QuantitySoldSince(ctx, time.Now().UTC().AddDate(0, 0, -restockLookbackDays))
	if err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	suggestions := make([]domain.RestockSuggestion, 0, 16)
	for _, product := range products {
		avgDaily := int(sold[product.ID].IntPart()) / restockLookbackDays
		if avgDaily < 1 {
			continue
		}
		stock, err := s.repo.GetPositiveStock(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		if stock >= avgDaily*restockCoverDays {
			continue
		}
		suggestions = append(suggestions, domain.RestockSuggestion{
			Product:       product,
			CurrentStock:  stock,
			AvgDailySales: avgDaily,
			SuggestedQty:  avgDaily * restockOrderDays,
		})
	}
	return suggestions, nil
}

func (s *Service) Dashboard(ctx context.Context) (*domain.DashboardSummary, error) {
	now := time.Now().UTC()
	cacheKey := "retail:dashboard:" + now.Format("2006-01-02")

	if cached, ok, err := s.dashboardCache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	}

	summary, err := s.buildDashboard(ctx, now)
	if err != nil {
		return nil, err
	}

	if err := s.dashboardCache.Set(ctx, cacheKey, summary, s.dashboardCacheTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache write failed: %v", err)
	}
	return summary, nil
}

func (s *Service) buildDashboard(ctx context.Context, now time.Time) (*domain.DashboardSummary, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	todayTotals, err := s.repo.SalesTotalsBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	monthTotals, err := s.repo.SalesTotalsBetween(ctx, monthStart, dayEnd)
	if err != nil {
		return nil, err
	}

	lowStock, err := s.LowStock(ctx, 0)
	if err != nil {
		return nil, err
	}
	// The report lists zero-stock products; the headline count tracks only
	// products that still hold stock and are running low.
	lowStockCount := 0
	for _, item := range lowStock {
		if item.Stock > 0 {
			lowStockCount++
		}
	}
	nearExpiry, err := s.repo.FindNearExpiryBatches(ctx, defaultNearExpiryDays)
	if err != nil {
		return nil, err
	}
	deadStock, err := s.DeadStock(ctx)
	if err != nil {
		return nil, err
	}
	suggestions, err := s.RestockSuggestions(ctx)
	if err != nil {
		return nil, err
	}

	trend := make([]domain.TrendPoint, 0, salesTrendMonths)
	for i := salesTrendMonths - 1; i >= 0; i-- {
		start := monthStart.AddDate(0, -i, 0)
		end := start.AddDate(0, 1, 0)
		totals, err := s.repo.SalesTotalsBetween(ctx, start, end)
		if err != nil {
			return nil, err
		}
		trend = append(trend, domain.TrendPoint{Label: start.Format("Jan 2006"), Total: totals.Amount})
	}

	categorySales, profitDistribution, err := s.categoryBreakdown(ctx, now.AddDate(0, -1, 0), now)
	if err != nil {
		return nil, err
	}

	return &domain.DashboardSummary{
		TotalSalesToday:    todayTotals.Amount,
		MonthlyRevenue:     monthTotals.Amount,
		MonthlyProfit:      monthTotals.Profit,
		LowStockCount:      lowStockCount,
		NearExpiryCount:    len(nearExpiry),
		DeadStockCount:     len(deadStock),
		SalesTrend:         trend,
		CategorySales:      categorySales,
		ProfitDistribution: profitDistribution,
		RestockSuggestions: suggestions,
		GeneratedAt:        now.Format(time.RFC3339),
	}, nil
}

// categoryBreakdown aggregates sold quantity at catalog price and realized
// profit per category over the window.
func (s *Service) categoryBreakdown(ctx context.Context, from time.Time, to time.Time) ([]domain.CategoryAmount, []domain.CategoryAmount, error) {
	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]int64, 0, 32)
	seen := make(map[int64]struct{}, 32)
	for _, sale := range sales {
		for _, item := range sale.Items {
			if _, ok := seen[item.ProductID]; ok {
				continue
			}
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	salesByCategory := make(map[string]decimal.Decimal)
	profitByCategory := make(map[string]decimal.Decimal)
	for _, sale := range sales {
		for _, item := range sale.Items {
			product, ok := products[item.ProductID]
			if !ok {
				continue
			}
			salesByCategory[product.Category] = salesByCategory[product.Category].
				Add(item.Quantity.Mul(product.SellingPrice))
			profitByCategory[product.Category] = profitByCategory[product.Category].
				Add(item.Profit)
		}
	}

	return sortedCategoryAmounts(salesByCategory), sortedCategoryAmounts(profitByCategory), nil
}

func sortedCategoryAmounts(amounts map[string]decimal.Decimal) []domain.CategoryAmount {
	result := make([]domain.CategoryAmount, 0, len(amounts))
	for category, amount := range amounts {
		result = append(result, domain.CategoryAmount{Category: category, Amount: amount})
	}
	slices.SortFunc(result, func(a, b domain.CategoryAmount) int {
		return strings.Compare(a.Category, b.Category)
	})
	return result
}
