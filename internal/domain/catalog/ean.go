package catalog

import (
	"strings"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// ean lengths accepted on the wire: EAN-8, UPC-A, EAN-13, GTIN-14.
var eanLengths = map[int]bool{8: true, 12: true, 13: true, 14: true}

// NormalizeEAN strips surrounding whitespace and rejects anything that
// is not a digit string of a barcode length with a correct checksum.
// This is the operator write path: barcodes typed by a human get the
// full treatment before they reach the marketplace.
func NormalizeEAN(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !isDigitBarcode(s) {
		return "", shared.NewValidationError("ean", "must be 8, 12, 13 or 14 digits")
	}
	if !eanChecksumOK(s) {
		return "", shared.NewValidationError("ean", "checksum mismatch")
	}
	return s, nil
}

// SanitizeEANs is the ingest path: marketplace and supplier feeds are
// authoritative for their own barcodes, so entries are only trimmed,
// shape-checked and deduplicated, never checksum-rejected. First-seen
// order is kept. Malformed entries are dropped.
func SanitizeEANs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		s := strings.TrimSpace(r)
		if !isDigitBarcode(s) {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isDigitBarcode(s string) bool {
	if !eanLengths[len(s)] {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// eanChecksumOK verifies the GS1 check digit: digits are weighted
// 3,1,3,1,... from the position next to the check digit leftwards.
func eanChecksumOK(s string) bool {
	sum := 0
	weight := 3
	for i := len(s) - 2; i >= 0; i-- {
		sum += int(s[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	check := (10 - sum%10) % 10
	return check == int(s[len(s)-1]-'0')
}
