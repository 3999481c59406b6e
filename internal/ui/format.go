package ui

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Money formats amounts in the conventions of a locale.
type Money struct {
	printer *message.Printer
}

// NewMoney returns a formatter for tag. Receipts are in pesos, so the
// default UI uses Spanish grouping: 12.500 and 1.234,5.
func NewMoney(tag language.Tag) Money {
	return Money{printer: message.NewPrinter(tag)}
}

// Format renders d with a currency sign and at most two decimals.
func (m Money) Format(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	return sign + "$" + m.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.MaxFractionDigits(2)))
}

// Number renders d without a currency sign.
func (m Money) Number(d decimal.Decimal) string {
	return m.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.MaxFractionDigits(2)))
}
