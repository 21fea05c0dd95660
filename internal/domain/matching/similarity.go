package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Supplier listings are written in Chinese with embedded ASCII model
// numbers ("单片机键盘 4X4"). Names are compared as token sets: 2-grams
// over each run of Han characters plus whole ASCII words. NFKC folds
// full-width digits and letters into their ASCII forms first, so
// "４Ｘ４" and "4X4" tokenize identically.

// Normalize applies NFKC, lowercases and collapses whitespace.
func Normalize(s string) string {
	folded := norm.NFKC.String(s)
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// NormalizedLength is the rune length of the normalized name, used by
// the deterministic tie-break.
func NormalizedLength(s string) int {
	return len([]rune(Normalize(s)))
}

// Tokenize builds the token set of a name. Han runs shorter than two
// characters yield no 2-gram and are dropped; they carry no signal a
// single character could safely claim.
func Tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var han []rune
	var ascii []rune

	flushHan := func() {
		for i := 0; i+1 < len(han); i++ {
			tokens[string(han[i:i+2])] = struct{}{}
		}
		han = han[:0]
	}
	flushASCII := func() {
		if len(ascii) > 0 {
			tokens[string(ascii)] = struct{}{}
			ascii = ascii[:0]
		}
	}

	for _, r := range Normalize(s) {
		switch {
		case unicode.Is(unicode.Han, r):
			flushASCII()
			han = append(han, r)
		case r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			flushHan()
			ascii = append(ascii, r)
		default:
			flushHan()
			flushASCII()
		}
	}
	flushHan()
	flushASCII()
	return tokens
}

// Score returns the name similarity in [0,1] as the Sørensen overlap
// of the two token sets, 2·|A∩B| / (|A|+|B|). The denominator damps
// the score by the size difference, so a short name does not trivially
// match inside every longer listing that contains it.
func Score(a, b string) float64 {
	ta := Tokenize(a)
	tb := Tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	return 2 * float64(inter) / float64(len(ta)+len(tb))
}
