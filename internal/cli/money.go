package cli

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Money formats amounts for one locale.
type Money struct {
	printer *message.Printer
	symbol  string
}

// NewMoney returns a formatter for the given BCP 47 locale tag. Unknown tags
// fall back to Italian.
func NewMoney(locale, symbol string) *Money {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Italian
	}
	return &Money{printer: message.NewPrinter(tag), symbol: symbol}
}

// Format renders an amount with two decimals, locale grouping and the
// currency symbol.
func (m *Money) Format(d decimal.Decimal) string {
	s := m.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
	if m.symbol == "" {
		return s
	}
	return s + " " + m.symbol
}

// Signed renders an amount styled by sign: income green, expense red.
func (m *Money) Signed(d decimal.Decimal) string {
	switch {
	case d.IsNegative():
		return ErrorStyle.Render(m.Format(d))
	case d.IsPositive():
		return SuccessStyle.Render(m.Format(d))
	default:
		return m.Format(d)
	}
}

// Percent renders a confidence in [0,1] as a whole percentage.
func (m *Money) Percent(f float64) string {
	return m.printer.Sprint(number.Percent(f, number.MaxFractionDigits(0)))
}
