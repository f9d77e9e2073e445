package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"retailnexus/backend/internal/domain"
)

// fakeBatchSource serves batches pre-sorted by expiry, mirroring the store's
// FIFO ordering, and hands out a zero-quantity default batch on demand.
type fakeBatchSource struct {
	batches     map[int64][]domain.Batch
	nextBatchID int64
	created     []domain.Batch
}

func newFakeBatchSource() *fakeBatchSource {
	return &fakeBatchSource{batches: make(map[int64][]domain.Batch), nextBatchID: 1000}
}

func (f *fakeBatchSource) FindAvailableBatchesFIFO(_ context.Context, productID int64) ([]domain.Batch, error) {
	var out []domain.Batch
	for _, b := range f.batches[productID] {
		if b.Quantity > 0 {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBatchSource) GetOrCreateDefaultBatch(_ context.Context, productID int64) (*domain.Batch, error) {
	if existing := f.batches[productID]; len(existing) > 0 {
		b := existing[0]
		return &b, nil
	}
	f.nextBatchID++
	b := domain.Batch{
		ID:          f.nextBatchID,
		ProductID:   productID,
		BatchNumber: "DEF",
		ExpiryDate:  time.Now().UTC().AddDate(1, 0, 0),
	}
	f.batches[productID] = append(f.batches[productID], b)
	f.created = append(f.created, b)
	return &b, nil
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func testProduct() domain.Product {
	return domain.Product{
		ID:           1,
		Name:         "Test Item",
		Category:     "Snacks",
		CostPrice:    decimal.NewFromInt(60),
		SellingPrice: decimal.NewFromInt(100),
		GSTPercent:   decimal.NewFromInt(18),
		Unit:         domain.UnitPieces,
	}
}

func TestBuildSaleDrainsBatchesByExpiry(t *testing.T) {
	source := newFakeBatchSource()
	now := time.Now().UTC()
	source.batches[1] = []domain.Batch{
		{ID: 10, ProductID: 1, BatchNumber: "B1", ExpiryDate: now.AddDate(0, 0, 10), Quantity: 5},
		{ID: 11, ProductID: 1, BatchNumber: "B2", ExpiryDate: now.AddDate(0, 0, 30), Quantity: 20},
	}
	engine := NewEngine(source)

	product := testProduct()
	product.GSTPercent = decimal.Zero
	lines := []domain.CartLine{{ProductID: 1, Quantity: decimal.NewFromInt(8)}}
	products := map[int64]domain.Product{1: product}

	sale, deductions, err := engine.BuildSale(context.Background(), lines, products, domain.PaymentCash, "cashier")
	if err != nil {
		t.Fatalf("BuildSale: %v", err)
	}
	if len(sale.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(sale.Items))
	}
	if sale.Items[0].BatchID != 10 || !sale.Items[0].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("first item should take 5 from batch 10, got %d qty %s", sale.Items[0].BatchID, sale.Items[0].Quantity)
	}
	if sale.Items[1].BatchID != 11 || !sale.Items[1].Quantity.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("second item should take 3 from batch 11, got %d qty %s", sale.Items[1].BatchID, sale.Items[1].Quantity)
	}
	want := []domain.BatchDeduction{{BatchID: 10, Quantity: 5}, {BatchID: 11, Quantity: 3}}
	if len(deductions) != len(want) {
		t.Fatalf("expected %d deductions, got %d", len(want), len(deductions))
	}
	for i := range want {
		if deductions[i] != want[i] {
			t.Fatalf("deduction %d: got %+v want %+v", i, deductions[i], want[i])
		}
	}
}

func TestBuildSaleComputesGSTAndProfit(t *testing.T) {
	source := newFakeBatchSource()
	source.batches[1] = []domain.Batch{
		{ID: 10, ProductID: 1, ExpiryDate: time.Now().UTC().AddDate(0, 1, 0), Quantity: 10},
	}
	engine := NewEngine(source)

	lines := []domain.CartLine{{ProductID: 1, Quantity: decimal.NewFromInt(2)}}
	products := map[int64]domain.Product{1: testProduct()}

	sale, _, err := engine.BuildSale(context.Background(), lines, products, domain.PaymentUPI, "cashier")
	if err != nil {
		t.Fatalf("BuildSale: %v", err)
	}
	item := sale.Items[0]
	if !item.GSTAmount.Equal(dec(t, "36")) {
		t.Fatalf("gst: got %s want 36.00", item.GSTAmount)
	}
	if !item.TotalPrice.Equal(dec(t, "236")) {
		t.Fatalf("total: got %s want 236.00", item.TotalPrice)
	}
	if !item.Profit.Equal(dec(t, "80")) {
		t.Fatalf("profit: got %s want 80.00", item.Profit)
	}
	if !sale.TotalAmount.Equal(dec(t, "236")) || !sale.TotalGST.Equal(dec(t, "36")) || !sale.TotalProfit.Equal(dec(t, "80")) {
		t.Fatalf("sale totals: amount %s gst %s profit %s", sale.TotalAmount, sale.TotalGST, sale.TotalProfit)
	}
}

func TestBuildSaleShortfallUsesDefaultBatch(t *testing.T) {
	source := newFakeBatchSource()
	engine := NewEngine(source)

	product := testProduct()
	lines := []domain.CartLine{{ProductID: 1, Quantity: decimal.NewFromInt(4)}}
	products := map[int64]domain.Product{1: product}

	sale, deductions, err := engine.BuildSale(context.Background(), lines, products, domain.PaymentCash, "cashier")
	if err != nil {
		t.Fatalf("BuildSale: %v", err)
	}
	if len(source.created) != 1 {
		t.Fatalf("expected a default batch to be created, got %d", len(source.created))
	}
	if len(sale.Items) != 1 || sale.Items[0].BatchID != source.created[0].ID {
		t.Fatalf("item should land on the default batch")
	}
	if len(deductions) != 1 || deductions[0].Quantity != 4 {
		t.Fatalf("deduction: got %+v", deductions)
	}
}

func TestBuildSaleFractionalQuantityDeductsWholeUnits(t *testing.T) {
	source := newFakeBatchSource()
	source.batches[1] = []domain.Batch{
		{ID: 10, ProductID: 1, ExpiryDate: time.Now().UTC().AddDate(0, 1, 0), Quantity: 10},
	}
	engine := NewEngine(source)

	product := testProduct()
	product.Unit = domain.UnitKG
	product.GSTPercent = decimal.Zero
	lines := []domain.CartLine{{ProductID: 1, Quantity: dec(t, "2.5")}}
	products := map[int64]domain.Product{1: product}

	sale, deductions, err := engine.BuildSale(context.Background(), lines, products, domain.PaymentCash, "cashier")
	if err != nil {
		t.Fatalf("BuildSale: %v", err)
	}
	if !sale.Items[0].Quantity.Equal(dec(t, "2.5")) {
		t.Fatalf("item quantity: got %s want 2.5", sale.Items[0].Quantity)
	}
	if !sale.Items[0].TotalPrice.Equal(dec(t, "250")) {
		t.Fatalf("total: got %s want 250", sale.Items[0].TotalPrice)
	}
	if deductions[0].Quantity != 3 {
		t.Fatalf("ledger deduction should round up to 3, got %d", deductions[0].Quantity)
	}
}

func TestBuildSaleKeepsSubCentPrecision(t *testing.T) {
	source := newFakeBatchSource()
	source.batches[1] = []domain.Batch{
		{ID: 10, ProductID: 1, ExpiryDate: time.Now().UTC().AddDate(0, 1, 0), Quantity: 10},
	}
	engine := NewEngine(source)

	product := testProduct()
	product.Unit = domain.UnitKG
	product.SellingPrice = dec(t, "99.90")
	product.CostPrice = dec(t, "80")
	product.GSTPercent = decimal.Zero
	lines := []domain.CartLine{{ProductID: 1, Quantity: dec(t, "0.255")}}
	products := map[int64]domain.Product{1: product}

	sale, _, err := engine.BuildSale(context.Background(), lines, products, domain.PaymentCash, "cashier")
	if err != nil {
		t.Fatalf("BuildSale: %v", err)
	}
	item := sale.Items[0]
	// Only GST is rounded; the line total carries the full product of a
	// fractional quantity and the unit price.
	if !item.TotalPrice.Equal(dec(t, "25.4745")) {
		t.Fatalf("total: got %s want 25.4745", item.TotalPrice)
	}
	if !item.Profit.Equal(dec(t, "5.0745")) {
		t.Fatalf("profit: got %s want 5.0745", item.Profit)
	}
	if !sale.TotalAmount.Equal(dec(t, "25.4745")) {
		t.Fatalf("sale total: got %s", sale.TotalAmount)
	}
}

func TestBuildSaleHonorsLineOverrides(t *testing.T) {
	source := newFakeBatchSource()
	source.batches[1] = []domain.Batch{
		{ID: 10, ProductID: 1, ExpiryDate: time.Now().UTC().AddDate(0, 1, 0), Quantity: 10},
	}
	engine := NewEngine(source)

	price := decimal.NewFromInt(50)
	gst := decimal.Zero
	lines := []domain.CartLine{{ProductID: 1, Quantity: decimal.NewFromInt(1), UnitPrice: &price, GSTPercent: &gst}}
	products := map[int64]domain.Product{1: testProduct()}

	sale, _, err := engine.BuildSale(context.Background(), lines, products, domain.PaymentCash, "cashier")
	if err != nil {
		t.Fatalf("BuildSale: %v", err)
	}
	item := sale.Items[0]
	if !item.UnitPrice.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unit price override ignored: %s", item.UnitPrice)
	}
	if !item.GSTAmount.Equal(decimal.Zero) {
		t.Fatalf("gst override ignored: %s", item.GSTAmount)
	}
	if !item.TotalPrice.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("total: got %s want 50", item.TotalPrice)
	}
}

func TestBuildSaleSharesAvailabilityAcrossLines(t *testing.T) {
	source := newFakeBatchSource()
	source.batches[1] = []domain.Batch{
		{ID: 10, ProductID: 1, ExpiryDate: time.Now().UTC().AddDate(0, 1, 0), Quantity: 8},
	}
	engine := NewEngine(source)

	lines := []domain.CartLine{
		{ProductID: 1, Quantity: decimal.NewFromInt(5)},
		{ProductID: 1, Quantity: decimal.NewFromInt(5)},
	}
	products := map[int64]domain.Product{1: testProduct()}

	_, deductions, err := engine.BuildSale(context.Background(), lines, products, domain.PaymentCash, "cashier")
	if err != nil {
		t.Fatalf("BuildSale: %v", err)
	}
	// Second line sees only 3 units left and pushes the remaining 2 onto the
	// default batch, which here is the same batch going negative.
	want := []domain.BatchDeduction{{BatchID: 10, Quantity: 5}, {BatchID: 10, Quantity: 3}, {BatchID: 10, Quantity: 2}}
	if len(deductions) != len(want) {
		t.Fatalf("expected %d deductions, got %d: %+v", len(want), len(deductions), deductions)
	}
	for i := range want {
		if deductions[i] != want[i] {
			t.Fatalf("deduction %d: got %+v want %+v", i, deductions[i], want[i])
		}
	}
}

func TestBuildSaleSkipsUnknownProducts(t *testing.T) {
	source := newFakeBatchSource()
	source.batches[1] = []domain.Batch{
		{ID: 10, ProductID: 1, ExpiryDate: time.Now().UTC().AddDate(0, 1, 0), Quantity: 10},
	}
	engine := NewEngine(source)

	lines := []domain.CartLine{
		{ProductID: 99, Quantity: decimal.NewFromInt(1)},
		{ProductID: 1, Quantity: decimal.NewFromInt(1)},
	}
	products := map[int64]domain.Product{1: testProduct()}

	sale, _, err := engine.BuildSale(context.Background(), lines, products, domain.PaymentCash, "cashier")
	if err != nil {
		t.Fatalf("BuildSale: %v", err)
	}
	if len(sale.Items) != 1 || sale.Items[0].ProductID != 1 {
		t.Fatalf("unknown product line should be skipped, got %+v", sale.Items)
	}
}

func TestBuildSaleEmptyCart(t *testing.T) {
	engine := NewEngine(newFakeBatchSource())

	_, _, err := engine.BuildSale(context.Background(), nil, map[int64]domain.Product{}, domain.PaymentCash, "cashier")
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}
