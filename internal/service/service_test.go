package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"retailnexus/backend/internal/billing"
	"retailnexus/backend/internal/cache"
	"retailnexus/backend/internal/domain"
	"retailnexus/backend/internal/store"
	"retailnexus/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	svc := New(repo, billing.NewEngine(repo), cache.NoopDashboardCache{}, time.Second, 10)
	return svc, repo
}

func seedProduct(t *testing.T, repo *memory.Store, name, category, cost, sell, gst string) domain.Product {
	t.Helper()
	product, err := repo.CreateProduct(context.Background(), domain.Product{
		Name:         name,
		Category:     category,
		CostPrice:    decimal.RequireFromString(cost),
		SellingPrice: decimal.RequireFromString(sell),
		GSTPercent:   decimal.RequireFromString(gst),
		Unit:         domain.UnitPieces,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", name, err)
	}
	return *product
}

func seedBatch(t *testing.T, repo *memory.Store, productID int64, batchNumber string, quantity int, expiry time.Time) domain.Batch {
	t.Helper()
	batch, err := repo.RestockBatch(context.Background(), domain.Batch{
		ProductID:   productID,
		BatchNumber: batchNumber,
		ExpiryDate:  expiry,
		Quantity:    quantity,
	})
	if err != nil {
		t.Fatalf("seed batch %s: %v", batchNumber, err)
	}
	return *batch
}

func cashierContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func TestCompleteSalePostsSaleAndDeductsStock(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, repo, "Nescafe Classic 100g", "Beverages", "60", "100", "18")
	batch := seedBatch(t, repo, product.ID, "B1", 10, time.Now().UTC().AddDate(0, 1, 0))

	sale, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:2", PaymentMethod: "upi"})
	if err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}
	if sale.ID != 1 {
		t.Fatalf("sale id: got %d", sale.ID)
	}
	if sale.SoldBy != "cashier" {
		t.Fatalf("sold by: got %q", sale.SoldBy)
	}
	if sale.PaymentMethod != domain.PaymentUPI {
		t.Fatalf("payment method: got %s", sale.PaymentMethod)
	}
	if !sale.TotalAmount.Equal(decimal.NewFromInt(236)) {
		t.Fatalf("total amount: got %s want 236", sale.TotalAmount)
	}
	if !sale.TotalGST.Equal(decimal.NewFromInt(36)) {
		t.Fatalf("total gst: got %s want 36", sale.TotalGST)
	}
	if !sale.TotalProfit.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("total profit: got %s want 80", sale.TotalProfit)
	}

	stock, err := repo.GetTotalStock(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("GetTotalStock: %v", err)
	}
	if stock != 8 {
		t.Fatalf("stock after sale: got %d want 8", stock)
	}

	entries, err := repo.ListBatchTransactions(context.Background(), batch.ID, 10)
	if err != nil {
		t.Fatalf("ListBatchTransactions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected restock + sale entries, got %d", len(entries))
	}
	if entries[0].Type != domain.TxTypeSale || entries[0].QuantityChange != -2 || entries[0].Reference != "SALE-1" {
		t.Fatalf("sale ledger entry: %+v", entries[0])
	}
}

func TestCompleteSaleSplitsAcrossBatchesByExpiry(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, repo, "Parle-G 800g", "Snacks", "72", "80", "0")
	now := time.Now().UTC()
	first := seedBatch(t, repo, product.ID, "B1", 5, now.AddDate(0, 0, 10))
	second := seedBatch(t, repo, product.ID, "B2", 20, now.AddDate(0, 0, 30))

	sale, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:8", PaymentMethod: "cash"})
	if err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}
	if len(sale.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(sale.Items))
	}
	if sale.Items[0].BatchID != first.ID || !sale.Items[0].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("first item: %+v", sale.Items[0])
	}
	if sale.Items[1].BatchID != second.ID || !sale.Items[1].Quantity.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("second item: %+v", sale.Items[1])
	}

	b1, _ := repo.GetBatch(context.Background(), first.ID)
	b2, _ := repo.GetBatch(context.Background(), second.ID)
	if b1.Quantity != 0 || b2.Quantity != 17 {
		t.Fatalf("batch quantities after sale: %d and %d", b1.Quantity, b2.Quantity)
	}
}

func TestCompleteSaleOversellGoesNegative(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, repo, "Amul Milk 1L", "Dairy", "48", "56", "0")
	seedBatch(t, repo, product.ID, "B1", 3, time.Now().UTC().AddDate(0, 1, 0))

	sale, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:5", PaymentMethod: "cash"})
	if err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}
	if len(sale.Items) != 2 {
		t.Fatalf("expected split into stock + shortfall, got %d items", len(sale.Items))
	}

	total, _ := repo.GetTotalStock(context.Background(), product.ID)
	if total != -2 {
		t.Fatalf("total stock: got %d want -2", total)
	}
	positive, _ := repo.GetPositiveStock(context.Background(), product.ID)
	if positive != 0 {
		t.Fatalf("positive stock: got %d want 0", positive)
	}
}

func TestCompleteSaleDropsUnknownAndInvalidLines(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, repo, "Lays Classic 52g", "Snacks", "16", "20", "0")
	seedBatch(t, repo, product.ID, "B1", 10, time.Now().UTC().AddDate(0, 1, 0))

	sale, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:0;abc;999:2;1:1", PaymentMethod: "cash"})
	if err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}
	if len(sale.Items) != 1 || !sale.Items[0].Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected one surviving line, got %+v", sale.Items)
	}
}

func TestCompleteSaleEmptyCart(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, repo, "Dove Soap 100g", "Toiletries", "48", "60", "18")
	seedBatch(t, repo, product.ID, "B1", 10, time.Now().UTC().AddDate(0, 1, 0))

	_, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:0;junk", PaymentMethod: "cash"})
	if !errors.Is(err, billing.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	if _, err := repo.GetSale(context.Background(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("no sale should have been posted, got %v", err)
	}
}

func TestRestockValidation(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, repo, "Toor Dal", "Pulses", "130", "155", "0")

	cases := []domain.RestockRequest{
		{ProductID: product.ID, BatchNumber: "", Quantity: 10, ExpiryDate: "2027-01-01"},
		{ProductID: product.ID, BatchNumber: "B1", Quantity: 0, ExpiryDate: "2027-01-01"},
		{ProductID: product.ID, BatchNumber: "B1", Quantity: 10, ExpiryDate: "01-01-2027"},
	}
	for i, req := range cases {
		if _, err := svc.Restock(context.Background(), req); !errors.Is(err, store.ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}

	batch, err := svc.Restock(context.Background(), domain.RestockRequest{
		ProductID:   product.ID,
		BatchNumber: "B1",
		Quantity:    25,
		ExpiryDate:  "2027-06-30",
	})
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if batch.Quantity != 25 || batch.ExpiryDate.Format("2006-01-02") != "2027-06-30" {
		t.Fatalf("restocked batch: %+v", batch)
	}

	entries, err := repo.ListBatchTransactions(context.Background(), batch.ID, 10)
	if err != nil {
		t.Fatalf("ListBatchTransactions: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != domain.TxTypeRestock || entries[0].QuantityChange != 25 {
		t.Fatalf("restock ledger entry: %+v", entries)
	}
}

func TestSetStockAndAddStock(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, repo, "Basmati Rice", "Grains", "95", "120", "0")
	now := time.Now().UTC()
	first := seedBatch(t, repo, product.ID, "B1", 40, now.AddDate(0, 0, 15))
	second := seedBatch(t, repo, product.ID, "B2", 60, now.AddDate(0, 2, 0))

	if err := svc.SetStock(context.Background(), domain.SetStockRequest{ProductID: product.ID, Quantity: 7}); err != nil {
		t.Fatalf("SetStock: %v", err)
	}
	b1, _ := repo.GetBatch(context.Background(), first.ID)
	b2, _ := repo.GetBatch(context.Background(), second.ID)
	if b1.Quantity != 7 || b2.Quantity != 0 {
		t.Fatalf("batches after SetStock: %d and %d", b1.Quantity, b2.Quantity)
	}

	if err := svc.AddStock(context.Background(), domain.AddStockRequest{ProductID: product.ID, Delta: 3}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	total, _ := repo.GetTotalStock(context.Background(), product.ID)
	if total != 10 {
		t.Fatalf("total after AddStock: got %d want 10", total)
	}

	err := svc.AddStock(context.Background(), domain.AddStockRequest{ProductID: product.ID, Delta: -15})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative target, got %v", err)
	}
}

func TestNearExpiryBatchesJoinsProducts(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, repo, "Nandini Curd 1kg", "Dairy", "52", "62", "0")
	now := time.Now().UTC()
	soon := seedBatch(t, repo, product.ID, "SOON", 10, now.AddDate(0, 0, 3))
	seedBatch(t, repo, product.ID, "LATER", 10, now.AddDate(0, 1, 0))

	result, err := svc.NearExpiryBatches(context.Background(), 5)
	if err != nil {
		t.Fatalf("NearExpiryBatches: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 near-expiry batch, got %d", len(result))
	}
	if result[0].Batch.ID != soon.ID || result[0].Product.Name != "Nandini Curd 1kg" {
		t.Fatalf("near-expiry result: %+v", result[0])
	}
}

func TestLowStockSortsAscending(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Now().UTC()
	low := seedProduct(t, repo, "Vim Bar 300g", "Household", "22", "28", "18")
	seedBatch(t, repo, low.ID, "B1", 5, now.AddDate(0, 2, 0))
	empty := seedProduct(t, repo, "Chana Dal", "Pulses", "78", "95", "0")
	plenty := seedProduct(t, repo, "Surf Excel 1kg", "Household", "118", "140", "18")
	seedBatch(t, repo, plenty.ID, "B2", 50, now.AddDate(0, 2, 0))

	items, err := svc.LowStock(context.Background(), 10)
	if err != nil {
		t.Fatalf("LowStock: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 low-stock items, got %d", len(items))
	}
	if items[0].Product.ID != empty.ID || items[0].Stock != 0 {
		t.Fatalf("first item should be the empty product: %+v", items[0])
	}
	if items[1].Product.ID != low.ID || items[1].Stock != 5 {
		t.Fatalf("second item: %+v", items[1])
	}
}

func TestDeadStockExcludesSoldAndEmptyProducts(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Now().UTC()
	dead := seedProduct(t, repo, "Haldiram Bhujia 400g", "Snacks", "88", "105", "0")
	seedBatch(t, repo, dead.ID, "B1", 10, now.AddDate(0, 2, 0))
	selling := seedProduct(t, repo, "Tata Tea Gold 500g", "Beverages", "245", "290", "0")
	seedBatch(t, repo, selling.ID, "B2", 10, now.AddDate(0, 2, 0))
	seedProduct(t, repo, "Paneer 200g", "Dairy", "72", "90", "0")

	if _, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "2:1", PaymentMethod: "cash"}); err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}

	items, err := svc.DeadStock(context.Background())
	if err != nil {
		t.Fatalf("DeadStock: %v", err)
	}
	if len(items) != 1 || items[0].Product.ID != dead.ID {
		t.Fatalf("dead stock: %+v", items)
	}
}

func TestRestockSuggestions(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Now().UTC()
	product := seedProduct(t, repo, "Aashirvaad Atta", "Grains", "42", "52", "0")
	seedBatch(t, repo, product.ID, "B1", 100, now.AddDate(0, 2, 0))
	slow := seedProduct(t, repo, "Colgate Strong Teeth 200g", "Toiletries", "92", "112", "0")
	seedBatch(t, repo, slow.ID, "B2", 5, now.AddDate(0, 2, 0))

	// 60 units in the window puts average daily sales at 2; the slow mover
	// stays below one unit a day and must never be suggested.
	if _, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:60;2:4", PaymentMethod: "cash"}); err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}

	suggestions, err := svc.RestockSuggestions(context.Background())
	if err != nil {
		t.Fatalf("RestockSuggestions: %v", err)
	}
	if len(suggestions) != 0 {
		t.Fatalf("stock of 40 covers a week at 2/day, got %+v", suggestions)
	}

	if err := svc.SetStock(context.Background(), domain.SetStockRequest{ProductID: product.ID, Quantity: 10}); err != nil {
		t.Fatalf("SetStock: %v", err)
	}
	suggestions, err = svc.RestockSuggestions(context.Background())
	if err != nil {
		t.Fatalf("RestockSuggestions: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	got := suggestions[0]
	if got.Product.ID != product.ID || got.CurrentStock != 10 || got.AvgDailySales != 2 || got.SuggestedQty != 28 {
		t.Fatalf("suggestion: %+v", got)
	}
}

func TestRestockSuggestionsIgnoreNegativeBatches(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Now().UTC()
	product := seedProduct(t, repo, "Sugar", "Grains", "38", "45", "0")
	seedBatch(t, repo, product.ID, "B1", 30, now.AddDate(0, 0, 10))

	// Overselling drives B1 to -30; the later restock holds the only
	// sellable units.
	if _, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:60", PaymentMethod: "cash"}); err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}
	seedBatch(t, repo, product.ID, "B2", 20, now.AddDate(0, 1, 0))

	suggestions, err := svc.RestockSuggestions(context.Background())
	if err != nil {
		t.Fatalf("RestockSuggestions: %v", err)
	}
	// Sellable stock is 20, a full week at 2/day; the signed total of -10
	// must not trigger a suggestion.
	if len(suggestions) != 0 {
		t.Fatalf("expected no suggestions, got %+v", suggestions)
	}

	if _, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:15", PaymentMethod: "cash"}); err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}
	suggestions, err = svc.RestockSuggestions(context.Background())
	if err != nil {
		t.Fatalf("RestockSuggestions: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	if suggestions[0].CurrentStock != 5 || suggestions[0].AvgDailySales != 2 || suggestions[0].SuggestedQty != 28 {
		t.Fatalf("suggestion: %+v", suggestions[0])
	}
}

func TestDailyAndMonthlyReports(t *testing.T) {
	svc, repo := newTestService(t)
	product := seedProduct(t, repo, "Maaza Mango 1.2L", "Beverages", "55", "70", "0")
	seedBatch(t, repo, product.ID, "B1", 20, time.Now().UTC().AddDate(0, 1, 0))

	sale, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:2", PaymentMethod: "cash"})
	if err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}

	now := time.Now().UTC()
	daily, err := svc.DailyReport(context.Background(), now)
	if err != nil {
		t.Fatalf("DailyReport: %v", err)
	}
	if daily.Date != now.Format("2006-01-02") {
		t.Fatalf("daily date: got %q", daily.Date)
	}
	if len(daily.Sales) != 1 || !daily.TotalSales.Equal(sale.TotalAmount) {
		t.Fatalf("daily report: %d sales, total %s", len(daily.Sales), daily.TotalSales)
	}

	monthly, err := svc.MonthlyReport(context.Background(), now.Year(), int(now.Month()))
	if err != nil {
		t.Fatalf("MonthlyReport: %v", err)
	}
	if len(monthly.Sales) != 1 || !monthly.TotalSales.Equal(sale.TotalAmount) {
		t.Fatalf("monthly report: %d sales, total %s", len(monthly.Sales), monthly.TotalSales)
	}

	if _, err := svc.MonthlyReport(context.Background(), now.Year(), 13); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for month 13, got %v", err)
	}
}

func TestBatchTransactionsRequiresBatchID(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.BatchTransactions(context.Background(), 0, 10); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDashboardLowStockCountExcludesZeroStock(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Now().UTC()
	low := seedProduct(t, repo, "Red Label Tea 250g", "Beverages", "120", "145", "5")
	seedBatch(t, repo, low.ID, "B1", 5, now.AddDate(0, 2, 0))
	seedProduct(t, repo, "Horlicks 500g", "Beverages", "210", "245", "18")

	// The report includes the zero-stock product; the dashboard count does not.
	items, err := svc.LowStock(context.Background(), 10)
	if err != nil {
		t.Fatalf("LowStock: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 low-stock items, got %d", len(items))
	}

	summary, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if summary.LowStockCount != 1 {
		t.Fatalf("low stock count: got %d want 1", summary.LowStockCount)
	}
}

type recordingCache struct {
	stored map[string]*domain.DashboardSummary
	sets   int
}

func (c *recordingCache) Get(_ context.Context, key string) (*domain.DashboardSummary, bool, error) {
	summary, ok := c.stored[key]
	return summary, ok, nil
}

func (c *recordingCache) Set(_ context.Context, key string, summary *domain.DashboardSummary, _ time.Duration) error {
	c.stored[key] = summary
	c.sets++
	return nil
}

func TestDashboardBuildsAndCaches(t *testing.T) {
	repo := memory.New()
	cached := &recordingCache{stored: make(map[string]*domain.DashboardSummary)}
	svc := New(repo, billing.NewEngine(repo), cached, time.Minute, 10)

	product := seedProduct(t, repo, "Amul Butter 500g", "Dairy", "240", "275", "12")
	seedBatch(t, repo, product.ID, "B1", 50, time.Now().UTC().AddDate(0, 2, 0))

	sale, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:2", PaymentMethod: "credit card"})
	if err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}

	summary, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if !summary.TotalSalesToday.Equal(sale.TotalAmount) {
		t.Fatalf("today: got %s want %s", summary.TotalSalesToday, sale.TotalAmount)
	}
	if !summary.MonthlyRevenue.Equal(sale.TotalAmount) || !summary.MonthlyProfit.Equal(sale.TotalProfit) {
		t.Fatalf("monthly: revenue %s profit %s", summary.MonthlyRevenue, summary.MonthlyProfit)
	}
	if len(summary.SalesTrend) != 6 {
		t.Fatalf("trend: got %d points", len(summary.SalesTrend))
	}
	if !summary.SalesTrend[5].Total.Equal(sale.TotalAmount) {
		t.Fatalf("current month trend: got %s", summary.SalesTrend[5].Total)
	}
	if len(summary.CategorySales) != 1 || summary.CategorySales[0].Category != "Dairy" {
		t.Fatalf("category sales: %+v", summary.CategorySales)
	}
	if summary.GeneratedAt == "" {
		t.Fatalf("generated_at is empty")
	}
	if cached.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cached.sets)
	}

	// A second read must come from the cache, even after new sales.
	if _, err := svc.CompleteSale(cashierContext(), domain.CompleteSaleRequest{Cart: "1:1", PaymentMethod: "cash"}); err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}
	again, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if !again.TotalSalesToday.Equal(summary.TotalSalesToday) {
		t.Fatalf("expected cached summary, got %s", again.TotalSalesToday)
	}
	if cached.sets != 1 {
		t.Fatalf("cache should not be rewritten on a hit, got %d sets", cached.sets)
	}
}
