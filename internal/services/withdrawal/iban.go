package withdrawal

import (
	"fmt"
	"strings"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// ibanLengths pins the length for countries we pay out to. Others only get
// the generic 15..34 bound.
var ibanLengths = map[string]int{
	"TR": 26,
	"DE": 22,
	"GB": 22,
	"NL": 18,
	"FR": 27,
}

// NormalizeIBAN strips spaces and upper-cases the IBAN.
func NormalizeIBAN(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// ValidateIBAN checks the structure and the ISO 13616 mod-97 checksum of a
// normalised IBAN.
func ValidateIBAN(iban string) error {
	if len(iban) < 15 || len(iban) > 34 {
		return fmt.Errorf("length %d: %w", len(iban), models.ErrInvalidIBAN)
	}

	for i := 0; i < 2; i++ {
		if iban[i] < 'A' || iban[i] > 'Z' {
			return fmt.Errorf("country code %q: %w", iban[:2], models.ErrInvalidIBAN)
		}
	}

	if iban[2] < '0' || iban[2] > '9' || iban[3] < '0' || iban[3] > '9' {
		return fmt.Errorf("check digits %q: %w", iban[2:4], models.ErrInvalidIBAN)
	}

	if want, ok := ibanLengths[iban[:2]]; ok && len(iban) != want {
		return fmt.Errorf("%s iban has %d characters, want %d: %w", iban[:2], len(iban), want, models.ErrInvalidIBAN)
	}

	rearranged := iban[4:] + iban[:4]
	rem := 0

	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]

		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			rem = (rem*100 + int(c-'A') + 10) % 97
		default:
			return fmt.Errorf("character %q: %w", c, models.ErrInvalidIBAN)
		}
	}

	if rem != 1 {
		return fmt.Errorf("checksum: %w", models.ErrInvalidIBAN)
	}

	return nil
}
