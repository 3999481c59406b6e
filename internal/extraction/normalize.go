package extraction

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/numparse"
)

// Line is a receipt row after post-processing.
type Line struct {
	Name     string          `json:"name" yaml:"name"`
	Quantity int             `json:"quantity" yaml:"quantity"`
	Price    decimal.Decimal `json:"price" yaml:"price"`
}

// Normalize turns raw extracted items into catalog rows. Items with a
// quantity below 1, a blank name or a price that does not parse to a positive
// amount are dropped. Items whose folded names and prices are equal merge
// into one row with the summed quantity; rows keep first-seen order and the
// first-seen display name.
func Normalize(items []Item) []Line {
	var out []Line
	index := make(map[string]int)
	for _, item := range items {
		name := strings.Join(strings.Fields(item.Name), " ")
		if item.Quantity <= 0 || name == "" {
			continue
		}
		price, err := numparse.Parse(item.Price)
		if err != nil || !price.IsPositive() {
			continue
		}

		key := foldName(name) + "\x00" + price.String()
		if i, ok := index[key]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, Line{Name: name, Quantity: item.Quantity, Price: price})
	}
	return out
}

// foldName compares names ignoring case and accents.
func foldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	folded, _, err := transform.String(t, name)
	if err != nil {
		return strings.ToLower(name)
	}
	return folded
}

// ToCatalog builds a product catalog from normalized lines, one product per
// line with an ID from newID.
func ToCatalog(lines []Line, newID func() string) models.Catalog {
	catalog := make(models.Catalog, len(lines))
	for _, l := range lines {
		id := newID()
		catalog[id] = models.Product{ID: id, Name: l.Name, Price: l.Price, Quantity: l.Quantity}
	}
	return catalog
}
