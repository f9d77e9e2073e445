package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"retailnexus/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	GetBatch(ctx context.Context, id int64) (*domain.Batch, error)
	ListBatchesByProduct(ctx context.Context, productID int64) ([]domain.Batch, error)
	ListBatchesWithStock(ctx context.Context) ([]domain.Batch, error)
	FindAvailableBatchesFIFO(ctx context.Context, productID int64) ([]domain.Batch, error)
	FindNearExpiryBatches(ctx context.Context, withinDays int) ([]domain.Batch, error)
	GetOrCreateDefaultBatch(ctx context.Context, productID int64) (*domain.Batch, error)
	GetTotalStock(ctx context.Context, productID int64) (int, error)
	GetPositiveStock(ctx context.Context, productID int64) (int, error)
	RestockBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	SetProductStock(ctx context.Context, productID int64, quantity int) error
	CreateInventoryTransaction(ctx context.Context, entry domain.InventoryTransaction) error
	ListBatchTransactions(ctx context.Context, batchID int64, limit int) ([]domain.InventoryTransaction, error)

	CreateSale(ctx context.Context, sale domain.Sale, deductions []domain.BatchDeduction) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	SalesTotalsBetween(ctx context.Context, from time.Time, to time.Time) (domain.SalesTotals, error)
	QuantitySoldSince(ctx context.Context, since time.Time) (map[int64]decimal.Decimal, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
