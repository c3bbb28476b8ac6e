package auth

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used for numbers written without a country code
const DefaultPhoneRegion = "AL"

// NormalizePhone parses raw in the given region and returns it in E.164
// form. An empty input yields an empty result.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", withMeta(ErrInvalidPhone, map[string]any{"phone_number": raw})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
