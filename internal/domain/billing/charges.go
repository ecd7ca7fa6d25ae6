package billing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/apperr"
)

// InsuranceRate is the share of a bill's total the insurer covers.
var InsuranceRate = decimal.RequireFromString("0.8")

// Charges is the priced form of a set of line items.
type Charges struct {
	Items                 []*BillingItem  `json:"items"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	InsuranceCoverage     decimal.Decimal `json:"insurance_coverage"`
	PatientResponsibility decimal.Decimal `json:"patient_responsibility"`
}

// CalculateCharges prices items and splits the total between insurer and
// patient. It has no side effects; CreateBillingRecord stores exactly what it
// returns. Amounts are rounded to cents, and coverage plus responsibility
// always equals the total.
func CalculateCharges(items []ItemInput) (*Charges, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeEmptyBill, "a bill needs at least one item")
	}

	c := &Charges{Items: make([]*BillingItem, 0, len(items)), TotalAmount: decimal.Zero}
	for i, in := range items {
		item, err := priceItem(i, in)
		if err != nil {
			return nil, err
		}
		c.Items = append(c.Items, item)
		c.TotalAmount = c.TotalAmount.Add(item.TotalPrice)
	}
	c.InsuranceCoverage = c.TotalAmount.Mul(InsuranceRate).Round(2)
	c.PatientResponsibility = c.TotalAmount.Sub(c.InsuranceCoverage)
	return c, nil
}

func priceItem(i int, in ItemInput) (*BillingItem, error) {
	item := &BillingItem{ServiceType: strings.TrimSpace(in.ServiceType)}
	switch {
	case item.ServiceType == "":
		return nil, apperr.MissingField(field(i, "service_type"))
	case in.Quantity == nil:
		return nil, apperr.MissingField(field(i, "quantity"))
	case in.UnitPrice == nil:
		return nil, apperr.MissingField(field(i, "unit_price"))
	case in.Quantity.IsNegative():
		return nil, apperr.Invalid("%s must not be negative", field(i, "quantity"))
	case in.UnitPrice.IsNegative():
		return nil, apperr.Invalid("%s must not be negative", field(i, "unit_price"))
	case in.TotalPrice != nil && in.TotalPrice.IsNegative():
		return nil, apperr.Invalid("%s must not be negative", field(i, "total_price"))
	case !fitsCents(*in.Quantity):
		return nil, apperr.Invalid("%s allows at most 2 decimal places", field(i, "quantity"))
	case !fitsCents(*in.UnitPrice):
		return nil, apperr.Invalid("%s allows at most 2 decimal places", field(i, "unit_price"))
	}
	item.Quantity = *in.Quantity
	item.UnitPrice = *in.UnitPrice
	if in.TotalPrice != nil {
		item.TotalPrice = in.TotalPrice.Round(2)
	} else {
		item.TotalPrice = item.Quantity.Mul(item.UnitPrice).Round(2)
	}
	return item, nil
}

// fitsCents reports whether d is stored unchanged in a NUMERIC(_,2) column.
func fitsCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func field(i int, name string) string {
	return "items[" + strconv.Itoa(i) + "]." + name
}
