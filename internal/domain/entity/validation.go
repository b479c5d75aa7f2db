package entity

import (
	"fmt"
	"net/mail"
	"net/url"
)

// maxURLLength defines the maximum allowed length for URLs embedded in payloads.
const maxURLLength = 2048

// ValidateURL validates that rawURL is a well-formed absolute http(s) URL.
// field names the offending field in the returned ValidationError.
func ValidateURL(field, rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: field, Message: "URL is required"}
	}

	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: field, Message: "URL is invalid"}
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: field, Message: "URL must use http or https scheme"}
	}

	if parsedURL.Host == "" {
		return &ValidationError{Field: field, Message: "URL must have a valid host"}
	}

	return nil
}

// ValidateEmailAddress checks that address is a single bare RFC 5322 address.
func ValidateEmailAddress(address string) error {
	if address == "" {
		return &ValidationError{Field: "email", Message: "address is required"}
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return &ValidationError{Field: "email", Message: "address is invalid"}
	}
	return nil
}

// ValidateLocalizedText checks that at least one non-empty locale entry exists.
func ValidateLocalizedText(field string, lt LocalizedText) error {
	for locale, text := range lt {
		if locale != "" && text != "" {
			return nil
		}
	}
	return &ValidationError{Field: field, Message: "at least one locale is required"}
}
