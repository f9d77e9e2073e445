package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"retailnexus/backend/internal/domain"
)

var ErrEmptyCart = errors.New("cart is empty")

var hundred = decimal.NewFromInt(100)

// BatchSource provides the batch views the allocator walks. The store
// Repository satisfies it directly.
type BatchSource interface {
	FindAvailableBatchesFIFO(ctx context.Context, productID int64) ([]domain.Batch, error)
	GetOrCreateDefaultBatch(ctx context.Context, productID int64) (*domain.Batch, error)
}

// Engine turns a parsed cart into a draft Sale plus the whole-unit batch
// deductions the store applies when the sale is posted. Allocation is
// first-expiry-first-out: each line drains positive batches in expiry order
// and any shortfall lands on the product's default batch, which may go
// negative. The engine never writes stock itself.
type Engine struct {
	batches BatchSource
}

func NewEngine(batches BatchSource) *Engine {
	return &Engine{batches: batches}
}

// BuildSale computes sale items, totals, and the deduction queue for the
// given cart lines. Lines whose product is missing from the products map are
// skipped. An empty result returns ErrEmptyCart.
func (e *Engine) BuildSale(
	ctx context.Context,
	lines []domain.CartLine,
	products map[int64]domain.Product,
	method domain.PaymentMethod,
	soldBy string,
) (*domain.Sale, []domain.BatchDeduction, error) {
	sale := &domain.Sale{
		SaleDate:      time.Now().UTC(),
		TotalAmount:   decimal.Zero,
		TotalGST:      decimal.Zero,
		TotalProfit:   decimal.Zero,
		PaymentMethod: method,
		SoldBy:        soldBy,
	}
	deductions := make([]domain.BatchDeduction, 0, len(lines))

	// Whole units already claimed per batch in this cart, so a later line
	// for the same product sees the reduced availability.
	claimed := make(map[int64]int)

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}

		unitPrice := product.SellingPrice
		if line.UnitPrice != nil {
			unitPrice = *line.UnitPrice
		}
		gstPercent := product.GSTPercent
		if line.GSTPercent != nil {
			gstPercent = *line.GSTPercent
		}

		remaining := line.Quantity
		batches, err := e.batches.FindAvailableBatchesFIFO(ctx, line.ProductID)
		if err != nil {
			return nil, nil, err
		}

		for _, batch := range batches {
			if remaining.Sign() <= 0 {
				break
			}
			available := batch.Quantity - claimed[batch.ID]
			if available <= 0 {
				continue
			}

			take := decimal.Min(remaining, decimal.NewFromInt(int64(available)))
			item, deducted := buildItem(product, batch.ID, take, unitPrice, gstPercent)
			sale.Items = append(sale.Items, item)
			deductions = append(deductions, domain.BatchDeduction{BatchID: batch.ID, Quantity: deducted})
			claimed[batch.ID] += deducted
			remaining = remaining.Sub(take)
		}

		if remaining.Sign() > 0 {
			fallback, err := e.batches.GetOrCreateDefaultBatch(ctx, line.ProductID)
			if err != nil {
				return nil, nil, err
			}
			item, deducted := buildItem(product, fallback.ID, remaining, unitPrice, gstPercent)
			sale.Items = append(sale.Items, item)
			deductions = append(deductions, domain.BatchDeduction{BatchID: fallback.ID, Quantity: deducted})
			claimed[fallback.ID] += deducted
		}
	}

	if len(sale.Items) == 0 {
		return nil, nil, ErrEmptyCart
	}

	for _, item := range sale.Items {
		sale.TotalAmount = sale.TotalAmount.Add(item.TotalPrice)
		sale.TotalGST = sale.TotalGST.Add(item.GSTAmount)
		sale.TotalProfit = sale.TotalProfit.Add(item.Profit)
	}

	return sale, deductions, nil
}

// buildItem prices one allocation. GST is computed on the pre-tax subtotal
// and rounded to 2 decimals; the line total and profit stay unrounded so
// fractional-quantity lines keep their sub-cent precision. The ledger
// deduction is the quantity rounded up to whole units, since batches count
// whole units even for weight-based products.
func buildItem(
	product domain.Product,
	batchID int64,
	take decimal.Decimal,
	unitPrice decimal.Decimal,
	gstPercent decimal.Decimal,
) (domain.SaleItem, int) {
	subtotal := unitPrice.Mul(take)
	gstAmount := subtotal.Mul(gstPercent).Div(hundred).Round(2)
	totalPrice := subtotal.Add(gstAmount)
	profit := totalPrice.Sub(gstAmount).Sub(product.CostPrice.Mul(take))

	item := domain.SaleItem{
		ProductID:  product.ID,
		BatchID:    batchID,
		Quantity:   take,
		UnitPrice:  unitPrice,
		GSTPercent: gstPercent,
		GSTAmount:  gstAmount,
		TotalPrice: totalPrice,
		Profit:     profit,
	}
	return item, int(take.Ceil().IntPart())
}
