package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
)

func TestNormalizeEAN_ValidBarcodes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ean13", "4006381333931", "4006381333931"},
		{"ean8", "96385074", "96385074"},
		{"upc_a", "036000291452", "036000291452"},
		{"surrounding_space", "  4006381333931 ", "4006381333931"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := catalog.NormalizeEAN(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeEAN_Rejections(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"bad_checksum", "4006381333930"},
		{"too_short", "1234567"},
		{"too_long", "123456789012345"},
		{"letters", "40063813339AB"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := catalog.NormalizeEAN(tc.in)
			assert.Error(t, err)
		})
	}
}

func TestSanitizeEANs_LenientIngest(t *testing.T) {
	// Feed barcodes come from the marketplace or a supplier sheet and
	// are kept even when the check digit does not verify.
	in := []string{" 5941234567890", "5941234567890", "junk", "", "96385074"}

	got := catalog.SanitizeEANs(in)

	assert.Equal(t, []string{"5941234567890", "96385074"}, got)
}
