package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Unit is the measurement unit a product is sold in.
type Unit string

const (
	UnitKG     Unit = "KG"
	UnitLitre  Unit = "LITRE"
	UnitPieces Unit = "PIECES"
)

func (u Unit) Label() string {
	switch u {
	case UnitKG:
		return "kg"
	case UnitLitre:
		return "L"
	default:
		return "pcs"
	}
}

// ParseUnit normalizes a unit string. Anything unrecognized falls back to PIECES.
func ParseUnit(raw string) Unit {
	switch Unit(strings.ToUpper(strings.TrimSpace(raw))) {
	case UnitKG:
		return UnitKG
	case UnitLitre:
		return UnitLitre
	default:
		return UnitPieces
	}
}

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "CASH"
	PaymentCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentUPI        PaymentMethod = "UPI"
)

// TransactionType classifies an inventory ledger entry.
type TransactionType string

const (
	TxTypeRestock    TransactionType = "RESTOCK"
	TxTypeSale       TransactionType = "SALE"
	TxTypeAdjustment TransactionType = "ADJUSTMENT"
	TxTypeShrinkage  TransactionType = "SHRINKAGE"
)

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Barcode      string          `json:"barcode,omitempty"`
	Category     string          `json:"category"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	GSTPercent   decimal.Decimal `json:"gst_percent"`
	Unit         Unit            `json:"unit"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Batch is one physical lot of a product. Quantity is signed: the sale
// engine is allowed to drive it negative on oversell so the shortfall stays
// visible for reconciliation.
type Batch struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	BatchNumber string    `json:"batch_number"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"created_at"`
}

// InventoryTransaction is an append-only ledger entry for a batch.
type InventoryTransaction struct {
	ID              int64           `json:"id"`
	BatchID         int64           `json:"batch_id"`
	Type            TransactionType `json:"type"`
	QuantityChange  int             `json:"quantity_change"`
	TransactionDate time.Time       `json:"transaction_date"`
	Reference       string          `json:"reference,omitempty"`
}

type SaleItem struct {
	ID         int64           `json:"id"`
	SaleID     int64           `json:"sale_id"`
	ProductID  int64           `json:"product_id"`
	BatchID    int64           `json:"batch_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
	GSTAmount  decimal.Decimal `json:"gst_amount"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Profit     decimal.Decimal `json:"profit"`
}

type Sale struct {
	ID            int64           `json:"id"`
	SaleDate      time.Time       `json:"sale_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalGST      decimal.Decimal `json:"total_gst"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	SoldBy        string          `json:"sold_by"`
	Items         []SaleItem      `json:"items"`
}

// CartLine is one parsed line of a billing cart. UnitPrice and GSTPercent
// are optional per-line overrides of the catalog values.
type CartLine struct {
	ProductID  int64
	Quantity   decimal.Decimal
	UnitPrice  *decimal.Decimal
	GSTPercent *decimal.Decimal
}

// BatchDeduction is a whole-unit stock deduction queued against a batch.
type BatchDeduction struct {
	BatchID  int64
	Quantity int
}

// SalesTotals is an aggregate over a sale window.
type SalesTotals struct {
	Amount decimal.Decimal `json:"amount"`
	Profit decimal.Decimal `json:"profit"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	Barcode      string          `json:"barcode"`
	Category     string          `json:"category"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	GSTPercent   decimal.Decimal `json:"gst_percent"`
	Unit         string          `json:"unit"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Barcode      *string          `json:"barcode,omitempty"`
	Category     *string          `json:"category,omitempty"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	GSTPercent   *decimal.Decimal `json:"gst_percent,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
}

type RestockRequest struct {
	ProductID   int64  `json:"product_id"`
	BatchNumber string `json:"batch_number"`
	ExpiryDate  string `json:"expiry_date"`
	Quantity    int    `json:"quantity"`
}

type SetStockRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type AddStockRequest struct {
	ProductID int64 `json:"product_id"`
	Delta     int   `json:"delta"`
}

// CompleteSaleRequest carries the raw cart string
// ("productId:qty[:unitPrice[:gstPercent]]" segments joined by ";").
type CompleteSaleRequest struct {
	Cart          string `json:"cart"`
	PaymentMethod string `json:"payment_method"`
}

type StockLevel struct {
	Product    Product `json:"product"`
	TotalStock int     `json:"total_stock"`
}

type NearExpiryBatch struct {
	Batch   Batch   `json:"batch"`
	Product Product `json:"product"`
}

type LowStockItem struct {
	Product Product `json:"product"`
	Stock   int     `json:"stock"`
}

type DeadStockItem struct {
	Product Product `json:"product"`
	Stock   int     `json:"stock"`
}

type RestockSuggestion struct {
	Product       Product `json:"product"`
	CurrentStock  int     `json:"current_stock"`
	AvgDailySales int     `json:"avg_daily_sales"`
	SuggestedQty  int     `json:"suggested_qty"`
}

type DailyReport struct {
	Date       string          `json:"date"`
	Sales      []Sale          `json:"sales"`
	TotalSales decimal.Decimal `json:"total_sales"`
}

type MonthlyReport struct {
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	Sales      []Sale          `json:"sales"`
	TotalSales decimal.Decimal `json:"total_sales"`
}

type TrendPoint struct {
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
}

type CategoryAmount struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

type DashboardSummary struct {
	TotalSalesToday    decimal.Decimal     `json:"total_sales_today"`
	MonthlyRevenue     decimal.Decimal     `json:"monthly_revenue"`
	MonthlyProfit      decimal.Decimal     `json:"monthly_profit"`
	LowStockCount      int                 `json:"low_stock_count"`
	NearExpiryCount    int                 `json:"near_expiry_count"`
	DeadStockCount     int                 `json:"dead_stock_count"`
	SalesTrend         []TrendPoint        `json:"sales_trend"`
	CategorySales      []CategoryAmount    `json:"category_sales"`
	ProfitDistribution []CategoryAmount    `json:"profit_distribution"`
	RestockSuggestions []RestockSuggestion `json:"restock_suggestions"`
	GeneratedAt        string              `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
