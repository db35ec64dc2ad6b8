package validation

import (
	"fmt"
	"net"
	"strings"
	"unicode"

	"winbridge/internal/constants"
	"winbridge/internal/errors"
)

// ValidateSnowflake checks that id looks like a platform snowflake: digits only, plausible length
func ValidateSnowflake(field, id string) error {
	if id == "" {
		return errors.NewValidationError(field, fmt.Sprintf("%s cannot be empty", field))
	}
	if len(id) < constants.MinSnowflakeLength || len(id) > constants.MaxSnowflakeLength {
		return errors.NewValidationError(field,
			fmt.Sprintf("%s must be %d-%d digits", field, constants.MinSnowflakeLength, constants.MaxSnowflakeLength))
	}
	for _, r := range id {
		if !unicode.IsDigit(r) {
			return errors.NewValidationError(field, fmt.Sprintf("%s must contain only digits", field))
		}
	}
	return nil
}

// ValidateText rejects control characters that would corrupt a rendered direct message
func ValidateText(field, value string, maxLen int) error {
	if maxLen > 0 && len(value) > maxLen {
		return errors.NewValidationError(field, fmt.Sprintf("%s too long (max %d characters)", field, maxLen))
	}
	for _, r := range value {
		if r == '\x00' {
			return errors.NewValidationError(field, fmt.Sprintf("%s contains invalid characters", field))
		}
	}
	return nil
}

// ValidateNetwork accepts an IP address or a CIDR range
func ValidateNetwork(field, value string) error {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "/") {
		if _, _, err := net.ParseCIDR(value); err != nil {
			return errors.NewValidationError(field, fmt.Sprintf("%s: invalid CIDR %q", field, value))
		}
		return nil
	}
	if net.ParseIP(value) == nil {
		return errors.NewValidationError(field, fmt.Sprintf("%s: invalid IP address %q", field, value))
	}
	return nil
}
