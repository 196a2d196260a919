package entity

import (
	"fmt"
	"net/url"
)

// maxURLLength caps stored feed and story URLs. Longer values are almost
// always corrupt markup rather than real addresses.
const maxURLLength = 2048

// ValidateURL checks that a URL is well-formed enough to store: absolute,
// http or https, with a host. The check is purely syntactic; private
// address blocking happens at fetch time, where redirect targets are
// validated hop by hop as well.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "url is required"}
	}
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Message: err.Error()}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "url must use http or https scheme"}
	}
	if parsed.Host == "" {
		return &ValidationError{Field: "url", Message: "url must have a host"}
	}
	return nil
}
