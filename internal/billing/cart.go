package billing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"retailnexus/backend/internal/domain"
)

// ParseCart decodes the terminal cart wire format: segments of
// "productId:quantity[:unitPrice[:gstPercent]]" joined by ";".
// Segments that fail to parse, or carry a non-positive quantity, are
// dropped silently so one bad scan never blocks the rest of the cart.
func ParseCart(raw string) []domain.CartLine {
	segments := strings.Split(raw, ";")
	lines := make([]domain.CartLine, 0, len(segments))

	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		parts := strings.Split(segment, ":")
		if len(parts) < 2 {
			continue
		}

		productID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil || productID < 1 {
			continue
		}
		quantity, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil || quantity.Sign() <= 0 {
			continue
		}

		line := domain.CartLine{ProductID: productID, Quantity: quantity}
		if len(parts) > 2 {
			price, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
			if err != nil {
				continue
			}
			line.UnitPrice = &price
		}
		if len(parts) > 3 {
			gst, err := decimal.NewFromString(strings.TrimSpace(parts[3]))
			if err != nil {
				continue
			}
			line.GSTPercent = &gst
		}

		lines = append(lines, line)
	}

	return lines
}

// ParsePaymentMethod normalizes a free-form payment method string.
// Unknown values fall back to CASH so a sale is never blocked at the till.
func ParsePaymentMethod(raw string) domain.PaymentMethod {
	normalized := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "_")
	switch domain.PaymentMethod(normalized) {
	case domain.PaymentCreditCard:
		return domain.PaymentCreditCard
	case domain.PaymentUPI:
		return domain.PaymentUPI
	default:
		return domain.PaymentCash
	}
}
