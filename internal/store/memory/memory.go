package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"retailnexus/backend/internal/domain"
	"retailnexus/backend/internal/store"
)

// Store is a mutex-guarded in-memory implementation of store.Repository,
// used for dev/demo mode and as the test fixture. Multi-step writes hold
// the write lock for their full duration, so a posted sale and its batch
// deductions are observed atomically.
type Store struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	batches  map[int64]domain.Batch
	ledger   []domain.InventoryTransaction
	sales    map[int64]domain.Sale
	users    map[string]domain.UserAccount

	nextProductID int64
	nextBatchID   int64
	nextSaleID    int64
	nextItemID    int64
	nextLedgerID  int64
}

func New() *Store {
	return &Store{
		products: make(map[int64]domain.Product),
		batches:  make(map[int64]domain.Batch),
		ledger:   make([]domain.InventoryTransaction, 0, 256),
		sales:    make(map[int64]domain.Sale),
		users:    make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables, with hardcoded dev defaults when unset. These
// accounts are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with the demo grocery catalog: one
// INIT batch of 100 units per product, expiring in a year.
func NewSeeded() *Store {
	s := New()
	s.users = seedUsers()

	type seedProduct struct {
		name     string
		barcode  string
		category string
		cost     string
		sell     string
		gst      string
		unit     domain.Unit
	}
	catalog := []seedProduct{
		{"Amul Milk 1L", "8901234567001", "Dairy", "48", "56", "0", domain.UnitLitre},
		{"Amul Butter 500g", "8901234567002", "Dairy", "240", "275", "12", domain.UnitPieces},
		{"Nandini Curd 1kg", "8901234567003", "Dairy", "52", "62", "0", domain.UnitKG},
		{"Paneer 200g", "8901234567004", "Dairy", "72", "90", "5", domain.UnitPieces},
		{"Tata Tea Gold 500g", "8901234567005", "Beverages", "245", "290", "5", domain.UnitPieces},
		{"Nescafe Classic 100g", "8901234567006", "Beverages", "310", "360", "18", domain.UnitPieces},
		{"Maaza Mango 1.2L", "8901234567007", "Beverages", "55", "70", "12", domain.UnitLitre},
		{"Lays Classic 52g", "8901234567008", "Snacks", "16", "20", "12", domain.UnitPieces},
		{"Parle-G 800g", "8901234567009", "Snacks", "72", "80", "18", domain.UnitPieces},
		{"Haldiram Bhujia 400g", "8901234567010", "Snacks", "88", "105", "12", domain.UnitPieces},
		{"Basmati Rice", "8901234567011", "Grains", "95", "120", "0", domain.UnitKG},
		{"Aashirvaad Atta", "8901234567012", "Grains", "42", "52", "0", domain.UnitKG},
		{"Toor Dal", "8901234567013", "Pulses", "130", "155", "0", domain.UnitKG},
		{"Chana Dal", "8901234567014", "Pulses", "78", "95", "0", domain.UnitKG},
		{"Colgate Strong Teeth 200g", "8901234567015", "Toiletries", "92", "112", "18", domain.UnitPieces},
		{"Dove Soap 100g", "8901234567016", "Toiletries", "48", "60", "18", domain.UnitPieces},
		{"Surf Excel 1kg", "8901234567017", "Household", "118", "140", "18", domain.UnitPieces},
		{"Vim Bar 300g", "8901234567018", "Household", "22", "28", "18", domain.UnitPieces},
	}

	now := time.Now().UTC()
	expiry := now.AddDate(1, 0, 0)
	for _, p := range catalog {
		s.nextProductID++
		product := domain.Product{
			ID:           s.nextProductID,
			Name:         p.name,
			Barcode:      p.barcode,
			Category:     p.category,
			CostPrice:    decimal.RequireFromString(p.cost),
			SellingPrice: decimal.RequireFromString(p.sell),
			GSTPercent:   decimal.RequireFromString(p.gst),
			Unit:         p.unit,
			CreatedAt:    now,
		}
		s.products[product.ID] = product

		s.nextBatchID++
		s.batches[s.nextBatchID] = domain.Batch{
			ID:          s.nextBatchID,
			ProductID:   product.ID,
			BatchNumber: fmt.Sprintf("INIT-%04d", product.ID),
			ExpiryDate:  expiry,
			Quantity:    100,
			CreatedAt:   now,
		}
	}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedProductsLocked(func(domain.Product) bool { return true }), nil
}

func (s *Store) SearchProducts(_ context.Context, query string) ([]domain.Product, error) {
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedProductsLocked(func(p domain.Product) bool {
		if needle == "" {
			return true
		}
		return strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Category), needle)
	}), nil
}

func (s *Store) sortedProductsLocked(keep func(domain.Product) bool) []domain.Product {
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if keep(p) {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products
}

func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.products))
	categories := make([]string, 0, 8)
	for _, p := range s.products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	slices.Sort(categories)
	return categories, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Barcode == barcode {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func validateProduct(product domain.Product) error {
	if strings.TrimSpace(product.Name) == "" || strings.TrimSpace(product.Category) == "" {
		return store.ErrInvalidInput
	}
	if product.CostPrice.Sign() < 0 || product.SellingPrice.Sign() < 0 || product.GSTPercent.Sign() < 0 {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.barcodeTakenLocked(product.Barcode, 0) {
		return nil, store.ErrInvalidInput
	}

	s.nextProductID++
	product.ID = s.nextProductID
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.barcodeTakenLocked(product.Barcode, product.ID) {
		return nil, store.ErrInvalidInput
	}

	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) barcodeTakenLocked(barcode string, selfID int64) bool {
	if strings.TrimSpace(barcode) == "" {
		return false
	}
	for _, p := range s.products {
		if p.ID != selfID && p.Barcode == barcode {
			return true
		}
	}
	return false
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) GetBatch(_ context.Context, id int64) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := batch
	return &found, nil
}

func (s *Store) ListBatchesByProduct(_ context.Context, productID int64) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchesByExpiryLocked(func(b domain.Batch) bool {
		return b.ProductID == productID
	}), nil
}

func (s *Store) ListBatchesWithStock(_ context.Context) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchesByExpiryLocked(func(b domain.Batch) bool {
		return b.Quantity > 0
	}), nil
}

func (s *Store) FindAvailableBatchesFIFO(_ context.Context, productID int64) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchesByExpiryLocked(func(b domain.Batch) bool {
		return b.ProductID == productID && b.Quantity > 0
	}), nil
}

func (s *Store) FindNearExpiryBatches(_ context.Context, withinDays int) ([]domain.Batch, error) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, withinDays)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchesByExpiryLocked(func(b domain.Batch) bool {
		return b.Quantity > 0 && !b.ExpiryDate.Before(now) && !b.ExpiryDate.After(cutoff)
	}), nil
}

func (s *Store) batchesByExpiryLocked(keep func(domain.Batch) bool) []domain.Batch {
	batches := make([]domain.Batch, 0, 16)
	for _, b := range s.batches {
		if keep(b) {
			batches = append(batches, b)
		}
	}
	slices.SortFunc(batches, func(a, b domain.Batch) int {
		if a.ExpiryDate.Equal(b.ExpiryDate) {
			return int(a.ID - b.ID)
		}
		if a.ExpiryDate.Before(b.ExpiryDate) {
			return -1
		}
		return 1
	})
	return batches
}

func (s *Store) GetOrCreateDefaultBatch(_ context.Context, productID int64) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return nil, store.ErrNotFound
	}

	existing := s.batchesByExpiryLocked(func(b domain.Batch) bool {
		return b.ProductID == productID
	})
	if len(existing) > 0 {
		first := existing[0]
		return &first, nil
	}

	s.nextBatchID++
	batch := domain.Batch{
		ID:          s.nextBatchID,
		ProductID:   productID,
		BatchNumber: fmt.Sprintf("DEF-%d", productID),
		ExpiryDate:  time.Now().UTC().AddDate(1, 0, 0),
		Quantity:    0,
		CreatedAt:   time.Now().UTC(),
	}
	s.batches[batch.ID] = batch

	created := batch
	return &created, nil
}

func (s *Store) GetTotalStock(_ context.Context, productID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, b := range s.batches {
		if b.ProductID == productID {
			total += b.Quantity
		}
	}
	return total, nil
}

func (s *Store) GetPositiveStock(_ context.Context, productID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, b := range s.batches {
		if b.ProductID == productID && b.Quantity > 0 {
			total += b.Quantity
		}
	}
	return total, nil
}

func (s *Store) RestockBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.Quantity < 1 || strings.TrimSpace(batch.BatchNumber) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[batch.ProductID]; !ok {
		return nil, store.ErrNotFound
	}

	s.nextBatchID++
	batch.ID = s.nextBatchID
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	s.batches[batch.ID] = batch

	s.appendLedgerLocked(domain.InventoryTransaction{
		BatchID:        batch.ID,
		Type:           domain.TxTypeRestock,
		QuantityChange: batch.Quantity,
		Reference:      "RESTOCK",
	})

	created := batch
	return &created, nil
}

// SetProductStock forces a product's total stock to an exact figure: the
// earliest batch absorbs the full quantity and every other batch is zeroed.
// Bulk reconciliation writes no ledger entries.
func (s *Store) SetProductStock(_ context.Context, productID int64, quantity int) error {
	if quantity < 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return store.ErrNotFound
	}

	batches := s.batchesByExpiryLocked(func(b domain.Batch) bool {
		return b.ProductID == productID
	})
	if len(batches) == 0 {
		s.nextBatchID++
		s.batches[s.nextBatchID] = domain.Batch{
			ID:          s.nextBatchID,
			ProductID:   productID,
			BatchNumber: fmt.Sprintf("STOCK-%d", productID),
			ExpiryDate:  time.Now().UTC().AddDate(1, 0, 0),
			Quantity:    quantity,
			CreatedAt:   time.Now().UTC(),
		}
		return nil
	}

	for i, b := range batches {
		if i == 0 {
			b.Quantity = quantity
		} else {
			b.Quantity = 0
		}
		s.batches[b.ID] = b
	}
	return nil
}

func (s *Store) CreateInventoryTransaction(_ context.Context, entry domain.InventoryTransaction) error {
	if entry.Type == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[entry.BatchID]; !ok {
		return store.ErrNotFound
	}
	s.appendLedgerLocked(entry)
	return nil
}

func (s *Store) appendLedgerLocked(entry domain.InventoryTransaction) {
	s.nextLedgerID++
	entry.ID = s.nextLedgerID
	if entry.TransactionDate.IsZero() {
		entry.TransactionDate = time.Now().UTC()
	}
	s.ledger = append(s.ledger, entry)
}

func (s *Store) ListBatchTransactions(_ context.Context, batchID int64, limit int) ([]domain.InventoryTransaction, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.InventoryTransaction, 0, limit)
	for i := len(s.ledger) - 1; i >= 0 && len(entries) < limit; i-- {
		if s.ledger[i].BatchID == batchID {
			entries = append(entries, s.ledger[i])
		}
	}
	return entries, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, deductions []domain.BatchDeduction) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range deductions {
		if _, ok := s.batches[d.BatchID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	s.nextSaleID++
	sale.ID = s.nextSaleID
	if sale.SaleDate.IsZero() {
		sale.SaleDate = time.Now().UTC()
	}

	items := make([]domain.SaleItem, len(sale.Items))
	copy(items, sale.Items)
	for i := range items {
		s.nextItemID++
		items[i].ID = s.nextItemID
		items[i].SaleID = sale.ID
	}
	sale.Items = items
	s.sales[sale.ID] = sale

	reference := fmt.Sprintf("SALE-%d", sale.ID)
	for _, d := range deductions {
		batch := s.batches[d.BatchID]
		batch.Quantity -= d.Quantity
		s.batches[d.BatchID] = batch

		s.appendLedgerLocked(domain.InventoryTransaction{
			BatchID:        d.BatchID,
			Type:           domain.TxTypeSale,
			QuantityChange: -d.Quantity,
			Reference:      reference,
		})
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := sale
	found.Items = make([]domain.SaleItem, len(sale.Items))
	copy(found.Items, sale.Items)
	return &found, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if sale.SaleDate.Before(from) || !sale.SaleDate.Before(to) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.SaleDate.Equal(b.SaleDate) {
			return int(b.ID - a.ID)
		}
		if a.SaleDate.After(b.SaleDate) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) SalesTotalsBetween(ctx context.Context, from time.Time, to time.Time) (domain.SalesTotals, error) {
	sales, err := s.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.SalesTotals{}, err
	}

	totals := domain.SalesTotals{Amount: decimal.Zero, Profit: decimal.Zero}
	for _, sale := range sales {
		totals.Amount = totals.Amount.Add(sale.TotalAmount)
		totals.Profit = totals.Profit.Add(sale.TotalProfit)
	}
	return totals, nil
}

func (s *Store) QuantitySoldSince(_ context.Context, since time.Time) (map[int64]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sold := make(map[int64]decimal.Decimal)
	for _, sale := range s.sales {
		if sale.SaleDate.Before(since) {
			continue
		}
		for _, item := range sale.Items {
			sold[item.ProductID] = sold[item.ProductID].Add(item.Quantity)
		}
	}
	return sold, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}
