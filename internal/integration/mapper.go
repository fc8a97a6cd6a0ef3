package integration

import "github.com/shopspring/decimal"

func round2(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

func sumTax(lines []InvoiceLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(round2(line.Tax))
	}
	return total
}
