package profile

import (
	"github.com/xenking/storefront/internal/domain/apperr"
)

func validateCard(in CardInput) error {
	switch {
	case in.CardholderName == "":
		return apperr.Format("cardholder_name is required")
	case len(in.Number) < 12 || len(in.Number) > 19 || !digits(in.Number):
		return apperr.Format("card_number must be 12 to 19 digits")
	case !validMonth(in.ExpiryMonth):
		return apperr.Format("expiry_month must be 01-12")
	case !validYear(in.ExpiryYear):
		return apperr.Format("expiry_year must be a four digit year between 2020 and 2099")
	case in.CVV != "" && (len(in.CVV) < 3 || len(in.CVV) > 4 || !digits(in.CVV)):
		return apperr.Format("cvv must be 3 or 4 digits")
	}
	return nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// validMonth accepts "01" through "12".
func validMonth(s string) bool {
	if len(s) != 2 || !digits(s) {
		return false
	}
	m := int(s[0]-'0')*10 + int(s[1]-'0')
	return m >= 1 && m <= 12
}

// validYear accepts 2020 through 2099.
func validYear(s string) bool {
	return len(s) == 4 && digits(s) && s[0] == '2' && s[1] == '0' && s[2] >= '2'
}
