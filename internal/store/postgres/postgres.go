package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"retailnexus/backend/internal/domain"
	"retailnexus/backend/internal/store"
)

// Store is the PostgreSQL-backed Repository. It assumes the schema already
// exists; migrations are handled outside this process.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, COALESCE(barcode, ''), category, cost_price, selling_price, gst_percent, unit, created_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var unit string
	err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.Category, &p.CostPrice, &p.SellingPrice, &p.GSTPercent, &unit, &p.CreatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.Unit = domain.Unit(unit)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name
	`)
}

func (s *Store) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	needle := "%" + strings.TrimSpace(query) + "%"
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE name ILIKE $1 OR category ILIKE $1
		ORDER BY name
	`, needle)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT category
		FROM products
		ORDER BY category
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]string, 0, 16)
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, store.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE barcode = $1
	`, barcode)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, barcode, category, cost_price, selling_price, gst_percent, unit, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, now())
		RETURNING id, created_at
	`, product.Name, product.Barcode, product.Category, product.CostPrice, product.SellingPrice,
		product.GSTPercent, string(product.Unit)).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	product.CreatedAt = product.CreatedAt.UTC()
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = NULLIF($3, ''), category = $4, cost_price = $5,
		    selling_price = $6, gst_percent = $7, unit = $8
		WHERE id = $1
	`, product.ID, product.Name, product.Barcode, product.Category, product.CostPrice,
		product.SellingPrice, product.GSTPercent, string(product.Unit))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const batchColumns = `id, product_id, batch_number, expiry_date, quantity, created_at`

func scanBatch(row interface{ Scan(...any) error }) (domain.Batch, error) {
	var b domain.Batch
	if err := row.Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.ExpiryDate, &b.Quantity, &b.CreatedAt); err != nil {
		return domain.Batch{}, err
	}
	b.ExpiryDate = b.ExpiryDate.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (s *Store) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE id = $1
	`, id)
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (s *Store) ListBatchesByProduct(ctx context.Context, productID int64) ([]domain.Batch, error) {
	return s.queryBatches(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE product_id = $1
		ORDER BY expiry_date, id
	`, productID)
}

func (s *Store) ListBatchesWithStock(ctx context.Context) ([]domain.Batch, error) {
	return s.queryBatches(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE quantity > 0
		ORDER BY expiry_date, id
	`)
}

func (s *Store) FindAvailableBatchesFIFO(ctx context.Context, productID int64) ([]domain.Batch, error) {
	return s.queryBatches(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE product_id = $1 AND quantity > 0
		ORDER BY expiry_date, id
	`, productID)
}

func (s *Store) FindNearExpiryBatches(ctx context.Context, withinDays int) ([]domain.Batch, error) {
	return s.queryBatches(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE quantity > 0
		  AND expiry_date >= now()
		  AND expiry_date <= now() + make_interval(days => $1)
		ORDER BY expiry_date, id
	`, withinDays)
}

func (s *Store) queryBatches(ctx context.Context, query string, args ...any) ([]domain.Batch, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, 32)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) GetOrCreateDefaultBatch(ctx context.Context, productID int64) (*domain.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE product_id = $1
		ORDER BY expiry_date, id
		LIMIT 1
	`, productID)
	batch, err := scanBatch(row)
	if err == nil {
		return &batch, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	batch = domain.Batch{
		ProductID:   productID,
		BatchNumber: fmt.Sprintf("DEF-%d", productID),
		ExpiryDate:  time.Now().UTC().AddDate(1, 0, 0),
		Quantity:    0,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO batches (product_id, batch_number, expiry_date, quantity, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at
	`, batch.ProductID, batch.BatchNumber, batch.ExpiryDate, batch.Quantity).Scan(&batch.ID, &batch.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	batch.CreatedAt = batch.CreatedAt.UTC()
	return &batch, nil
}

func (s *Store) GetTotalStock(ctx context.Context, productID int64) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM batches
		WHERE product_id = $1
	`, productID).Scan(&total)
	return total, err
}

func (s *Store) GetPositiveStock(ctx context.Context, productID int64) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM batches
		WHERE product_id = $1 AND quantity > 0
	`, productID).Scan(&total)
	return total, err
}

func (s *Store) RestockBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.Quantity < 1 || strings.TrimSpace(batch.BatchNumber) == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO batches (product_id, batch_number, expiry_date, quantity, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at
	`, batch.ProductID, batch.BatchNumber, batch.ExpiryDate, batch.Quantity).Scan(&batch.ID, &batch.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (batch_id, type, quantity_change, transaction_date, reference)
		VALUES ($1, $2, $3, now(), $4)
	`, batch.ID, string(domain.TxTypeRestock), batch.Quantity, "RESTOCK")
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	batch.CreatedAt = batch.CreatedAt.UTC()
	created := batch
	return &created, nil
}

// SetProductStock forces a product's total stock to an exact figure: the
// earliest batch absorbs the full quantity and every other batch is zeroed.
// Bulk reconciliation writes no ledger entries.
func (s *Store) SetProductStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 0 {
		return store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	var firstBatchID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM batches
		WHERE product_id = $1
		ORDER BY expiry_date, id
		LIMIT 1
		FOR UPDATE
	`, productID).Scan(&firstBatchID)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batches (product_id, batch_number, expiry_date, quantity, created_at)
			VALUES ($1, $2, now() + interval '1 year', $3, now())
		`, productID, fmt.Sprintf("STOCK-%d", productID), quantity)
		if err != nil {
			return err
		}
		return tx.Commit()
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE batches SET quantity = 0 WHERE product_id = $1 AND id <> $2
	`, productID, firstBatchID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE batches SET quantity = $2 WHERE id = $1
	`, firstBatchID, quantity); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) CreateInventoryTransaction(ctx context.Context, entry domain.InventoryTransaction) error {
	if entry.Type == "" {
		return store.ErrInvalidInput
	}
	if entry.TransactionDate.IsZero() {
		entry.TransactionDate = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_transactions (batch_id, type, quantity_change, transaction_date, reference)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, entry.BatchID, string(entry.Type), entry.QuantityChange, entry.TransactionDate, entry.Reference)
	if err != nil && isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) ListBatchTransactions(ctx context.Context, batchID int64, limit int) ([]domain.InventoryTransaction, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, type, quantity_change, transaction_date, COALESCE(reference, '')
		FROM inventory_transactions
		WHERE batch_id = $1
		ORDER BY transaction_date DESC, id DESC
		LIMIT $2
	`, batchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.InventoryTransaction, 0, limit)
	for rows.Next() {
		var entry domain.InventoryTransaction
		var txType string
		if err := rows.Scan(&entry.ID, &entry.BatchID, &txType, &entry.QuantityChange, &entry.TransactionDate, &entry.Reference); err != nil {
			return nil, err
		}
		entry.Type = domain.TransactionType(txType)
		entry.TransactionDate = entry.TransactionDate.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateSale persists the sale header and items, then applies the batch
// deductions with in-place decrements and a SALE ledger entry per
// deduction, all inside one serializable transaction. The touched batch
// rows are locked first so concurrent sales serialize on the same stock.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, deductions []domain.BatchDeduction) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	batchIDs := make([]int64, 0, len(deductions))
	for _, d := range deductions {
		batchIDs = append(batchIDs, d.BatchID)
	}
	if len(batchIDs) > 0 {
		lockRows, err := tx.QueryContext(ctx, `
			SELECT id FROM batches WHERE id = ANY($1) ORDER BY id FOR UPDATE
		`, batchIDs)
		if err != nil {
			return nil, err
		}
		locked := 0
		for lockRows.Next() {
			var id int64
			if err := lockRows.Scan(&id); err != nil {
				_ = lockRows.Close()
				return nil, err
			}
			locked++
		}
		if err := lockRows.Err(); err != nil {
			_ = lockRows.Close()
			return nil, err
		}
		_ = lockRows.Close()

		unique := make(map[int64]struct{}, len(batchIDs))
		for _, id := range batchIDs {
			unique[id] = struct{}{}
		}
		if locked != len(unique) {
			return nil, store.ErrNotFound
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (sale_date, total_amount, total_gst, total_profit, payment_method, sold_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, sale.SaleDate, sale.TotalAmount, sale.TotalGST, sale.TotalProfit,
		string(sale.PaymentMethod), sale.SoldBy).Scan(&sale.ID)
	if err != nil {
		return nil, err
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		item.SaleID = sale.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, batch_id, quantity, unit_price, gst_percent, gst_amount, total_price, profit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, item.SaleID, item.ProductID, item.BatchID, item.Quantity, item.UnitPrice,
			item.GSTPercent, item.GSTAmount, item.TotalPrice, item.Profit).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
	}

	reference := fmt.Sprintf("SALE-%d", sale.ID)
	for _, d := range deductions {
		if _, err := tx.ExecContext(ctx, `
			UPDATE batches SET quantity = quantity - $2 WHERE id = $1
		`, d.BatchID, d.Quantity); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_transactions (batch_id, type, quantity_change, transaction_date, reference)
			VALUES ($1, $2, $3, now(), $4)
		`, d.BatchID, string(domain.TxTypeSale), -d.Quantity, reference); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

const saleColumns = `id, sale_date, total_amount, total_gst, total_profit, payment_method, sold_by`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var method string
	err := row.Scan(&sale.ID, &sale.SaleDate, &sale.TotalAmount, &sale.TotalGST, &sale.TotalProfit, &method, &sale.SoldBy)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.SaleDate = sale.SaleDate.UTC()
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.querySaleItems(ctx, []int64{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE sale_date >= $1 AND sale_date < $2
		ORDER BY sale_date DESC, id DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	saleIDs := make([]int64, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.querySaleItems(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) querySaleItems(ctx context.Context, saleIDs []int64) (map[int64][]domain.SaleItem, error) {
	result := make(map[int64][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, batch_id, quantity, unit_price, gst_percent, gst_amount, total_price, profit
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.BatchID, &item.Quantity,
			&item.UnitPrice, &item.GSTPercent, &item.GSTAmount, &item.TotalPrice, &item.Profit); err != nil {
			return nil, err
		}
		result[item.SaleID] = append(result[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SalesTotalsBetween(ctx context.Context, from time.Time, to time.Time) (domain.SalesTotals, error) {
	totals := domain.SalesTotals{Amount: decimal.Zero, Profit: decimal.Zero}
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount), 0), COALESCE(SUM(total_profit), 0)
		FROM sales
		WHERE sale_date >= $1 AND sale_date < $2
	`, from, to).Scan(&totals.Amount, &totals.Profit)
	return totals, err
}

func (s *Store) QuantitySoldSince(ctx context.Context, since time.Time) (map[int64]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, COALESCE(SUM(si.quantity), 0)
		FROM sale_items si
		JOIN sales sa ON sa.id = si.sale_id
		WHERE sa.sale_date >= $1
		GROUP BY si.product_id
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sold := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var productID int64
		var qty decimal.Decimal
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		sold[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sold, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
