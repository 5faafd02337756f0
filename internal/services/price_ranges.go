package services

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const million = 1_000_000

// PriceRange is one budget band of the recommendation chatbot. Max is nil
// for the open-ended top band.
type PriceRange struct {
	Index int    `json:"index"`
	Min   int64  `json:"min"`
	Max   *int64 `json:"max"`
	Label string `json:"label"`
}

// Contains reports whether price falls inside [Min, Max), or [Min, inf) for
// the top band.
func (r PriceRange) Contains(price int64) bool {
	if price < r.Min {
		return false
	}
	return r.Max == nil || price < *r.Max
}

func bounded(i int, lo, hi int64) PriceRange {
	return PriceRange{Index: i, Min: lo, Max: &hi, Label: FormatPrice(lo) + " - " + FormatPrice(hi)}
}

// priceLadder is fixed; clients address bands by index.
var priceLadder = []PriceRange{
	bounded(0, 0, 10*million),
	bounded(1, 10*million, 20*million),
	bounded(2, 20*million, 30*million),
	bounded(3, 30*million, 50*million),
	{Index: 4, Min: 50 * million, Label: "Over " + FormatPrice(50*million)},
}

// PriceRanges returns a copy of the fixed ladder.
func PriceRanges() []PriceRange {
	out := make([]PriceRange, len(priceLadder))
	copy(out, priceLadder)
	return out
}

// PriceRangeAt returns the band at index, or ErrInvalidRange.
func PriceRangeAt(index int) (PriceRange, error) {
	if index < 0 || index >= len(priceLadder) {
		return PriceRange{}, ErrInvalidRange
	}
	return priceLadder[index], nil
}

var pricePrinter = message.NewPrinter(language.English)

// FormatPrice renders an amount with thousand separators and the store currency.
func FormatPrice(amount int64) string {
	return pricePrinter.Sprintf("%d", amount) + " VND"
}
