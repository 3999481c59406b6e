// Package numparse converts amounts written with locale separators, as they
// appear on printed receipts and in user input ("2.500", "1.234,56",
// "$ 3,5"), into decimals.
package numparse

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrInvalid is returned when the input cannot be read as a number.
var ErrInvalid = errors.New("invalid number")

// Parse reads s as a decimal number.
//
// When both '.' and ',' appear, the right-most one is the decimal separator.
// A lone ',' is a decimal separator unless it forms at least two thousands
// groups ("1,234,567"). A lone '.' is a grouping separator when every group
// after the first has exactly three digits ("2.500", "1.234.567"), otherwise
// it is the decimal separator ("12.5").
func Parse(s string) (decimal.Decimal, error) {
	cleaned := clean(s)
	neg := strings.HasPrefix(cleaned, "-")
	cleaned = strings.TrimPrefix(cleaned, "-")

	canon, ok := canonical(cleaned)
	if !ok || !wellFormed(canon) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	if strings.HasPrefix(canon, ".") {
		canon = "0" + canon
	}
	d, err := decimal.NewFromString(canon)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// Coerce is Parse with invalid input mapped to zero.
func Coerce(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseInt reads s as a whole number ("3", "1.000").
func ParseInt(s string) (int, error) {
	d, err := Parse(s)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: %q is not a whole number", ErrInvalid, s)
	}
	return int(d.IntPart()), nil
}

// clean drops whitespace, currency symbols and surrounding currency codes
// such as "CLP" or "USD".
func clean(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimFunc(b.String(), unicode.IsLetter)
}

func canonical(s string) (string, bool) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec, group, at := ".", ",", lastDot
		if lastComma > lastDot {
			dec, group, at = ",", ".", lastComma
		}
		if strings.Count(s, dec) > 1 {
			return "", false
		}
		intPart, frac := s[:at], s[at+1:]
		if !grouped(intPart, group) {
			return "", false
		}
		return strings.ReplaceAll(intPart, group, "") + "." + frac, true

	case lastComma >= 0:
		if strings.Count(s, ",") >= 2 {
			if !grouped(s, ",") {
				return "", false
			}
			return strings.ReplaceAll(s, ",", ""), true
		}
		return strings.Replace(s, ",", ".", 1), true

	case lastDot >= 0:
		if grouped(s, ".") {
			return strings.ReplaceAll(s, ".", ""), true
		}
		if strings.Count(s, ".") > 1 {
			return "", false
		}
		return s, true
	}
	return s, true
}

// grouped reports whether s is digits split by sep into thousands groups.
func grouped(s, sep string) bool {
	parts := strings.Split(s, sep)
	if len(parts) < 2 {
		return false
	}
	head := parts[0]
	if len(head) == 0 || len(head) > 3 || !allDigits(head) || head == "0" {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 || !allDigits(p) {
			return false
		}
	}
	return true
}

func wellFormed(s string) bool {
	intPart, frac, _ := strings.Cut(s, ".")
	if intPart == "" && frac == "" {
		return false
	}
	return allDigits(intPart) && allDigits(frac)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
