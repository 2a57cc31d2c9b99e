package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxBracket taxes the part of taxable income in [Low, High) at Rate.
// A nil High means the bracket is unbounded.
type TaxBracket struct {
	Low  decimal.Decimal  `json:"low"`
	High *decimal.Decimal `json:"high,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

// TaxConfig holds the statutory rates: a flat contribution rate on the base
// and progressive income tax brackets on what remains.
type TaxConfig struct {
	FlatRate decimal.Decimal `json:"flat_rate"`
	Brackets []TaxBracket    `json:"brackets"`
}

// BracketTax is the unrounded tax owed in one bracket.
type BracketTax struct {
	Low     decimal.Decimal  `json:"low"`
	High    *decimal.Decimal `json:"high,omitempty"`
	Rate    decimal.Decimal  `json:"rate"`
	Portion decimal.Decimal  `json:"portion"`
	Tax     decimal.Decimal  `json:"tax"`
}

// StatutoryDeductions is the breakdown of the statutory deduction. Only Total is rounded.
type StatutoryDeductions struct {
	Contribution  decimal.Decimal `json:"contribution"`
	TaxableIncome decimal.Decimal `json:"taxable_income"`
	IncomeTax     decimal.Decimal `json:"income_tax"`
	Brackets      []BracketTax    `json:"brackets,omitempty"`
	Total         decimal.Decimal `json:"total"`
}

var one = decimal.NewFromInt(1)

// Validate checks rates are in [0, 1] and brackets are ordered, non-overlapping
// and only the last one is unbounded.
func (c TaxConfig) Validate() error {
	if c.FlatRate.IsNegative() || c.FlatRate.GreaterThan(one) {
		return Wrap(KindValidation, ErrInvalidTaxConfig.Message, fmt.Errorf("flat rate %s out of range", c.FlatRate))
	}
	for i, b := range c.Brackets {
		if b.Low.IsNegative() {
			return Wrap(KindValidation, ErrInvalidTaxConfig.Message, fmt.Errorf("bracket %d: negative lower bound", i))
		}
		if b.Rate.IsNegative() || b.Rate.GreaterThan(one) {
			return Wrap(KindValidation, ErrInvalidTaxConfig.Message, fmt.Errorf("bracket %d: rate %s out of range", i, b.Rate))
		}
		if b.High == nil {
			if i != len(c.Brackets)-1 {
				return Wrap(KindValidation, ErrInvalidTaxConfig.Message, fmt.Errorf("bracket %d: only the last bracket may be unbounded", i))
			}
		} else if !b.High.GreaterThan(b.Low) {
			return Wrap(KindValidation, ErrInvalidTaxConfig.Message, fmt.Errorf("bracket %d: upper bound must exceed lower bound", i))
		}
		if i > 0 && b.Low.LessThan(*c.Brackets[i-1].High) {
			return Wrap(KindValidation, ErrInvalidTaxConfig.Message, fmt.Errorf("bracket %d overlaps bracket %d", i, i-1))
		}
	}
	return nil
}

// ComputeStatutory computes the statutory deduction on base.
// Every intermediate amount keeps full precision; only Total is rounded to
// 2 decimal places, half up, once.
func ComputeStatutory(base decimal.Decimal, cfg TaxConfig) StatutoryDeductions {
	contribution := base.Mul(cfg.FlatRate)
	taxable := base.Sub(contribution)

	result := StatutoryDeductions{
		Contribution:  contribution,
		TaxableIncome: taxable,
		IncomeTax:     decimal.Zero,
	}

	if taxable.IsPositive() {
		for _, b := range cfg.Brackets {
			portion := bracketPortion(taxable, b)
			if !portion.IsPositive() {
				continue
			}
			tax := portion.Mul(b.Rate)
			result.Brackets = append(result.Brackets, BracketTax{
				Low:     b.Low,
				High:    b.High,
				Rate:    b.Rate,
				Portion: portion,
				Tax:     tax,
			})
			result.IncomeTax = result.IncomeTax.Add(tax)
		}
	}

	result.Total = RoundMoney(contribution.Add(result.IncomeTax))
	return result
}

func bracketPortion(taxable decimal.Decimal, b TaxBracket) decimal.Decimal {
	if !taxable.GreaterThan(b.Low) {
		return decimal.Zero
	}
	upper := taxable
	if b.High != nil && b.High.LessThan(taxable) {
		upper = *b.High
	}
	return upper.Sub(b.Low)
}

// RoundMoney rounds to 2 decimal places, half away from zero, which is half up
// for the non-negative amounts payroll deals in.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
