package feedlib

import "strconv"

// Synthetic response statuses for fetches that never produced an HTTP
// status line. They are negative so they can share a field with real HTTP
// codes, grouped by hundreds the way HTTP groups its classes:
// -2xx transport, -3xx response handling, -4xx policy.
const (
	StatusUnknownError         = -100
	StatusDNSError             = -201
	StatusPrivateAddress       = -202
	StatusConnectionReset      = -203
	StatusConnectionTimeout    = -204
	StatusSSLError             = -205
	StatusReadTimeout          = -206
	StatusTooManyRedirects     = -301
	StatusContentTooLarge      = -302
	StatusContentDecodingError = -303
	StatusContentTypeInvalid   = -304
	StatusRefererDeny          = -401
	StatusRefererNotAllowed    = -402
)

var statusNames = map[int]string{
	StatusUnknownError:         "UNKNOWN_ERROR",
	StatusDNSError:             "DNS_ERROR",
	StatusPrivateAddress:       "PRIVATE_ADDRESS",
	StatusConnectionReset:      "CONNECTION_RESET",
	StatusConnectionTimeout:    "CONNECTION_TIMEOUT",
	StatusSSLError:             "SSL_ERROR",
	StatusReadTimeout:          "READ_TIMEOUT",
	StatusTooManyRedirects:     "TOO_MANY_REDIRECTS",
	StatusContentTooLarge:      "CONTENT_TOO_LARGE",
	StatusContentDecodingError: "CONTENT_DECODING_ERROR",
	StatusContentTypeInvalid:   "CONTENT_TYPE_INVALID",
	StatusRefererDeny:          "REFERER_DENY",
	StatusRefererNotAllowed:    "REFERER_NOT_ALLOWED",
}

// StatusName returns a log-friendly name for a response status: the
// symbolic name for synthetic codes, the decimal number for HTTP codes.
func StatusName(status int) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return strconv.Itoa(status)
}

// refererDenyStatuses are the probe results that mean "this image rejects
// hotlinking and must be served through the proxy".
var refererDenyStatuses = map[int]bool{
	400:                     true,
	401:                     true,
	403:                     true,
	404:                     true,
	StatusRefererDeny:       true,
	StatusRefererNotAllowed: true,
}

// IsRefererDenyStatus reports whether an image probe result indicates the
// host denies cross-site referers.
func IsRefererDenyStatus(status int) bool {
	return refererDenyStatuses[status]
}
