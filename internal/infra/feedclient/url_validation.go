package feedclient

import (
	"fmt"
	"net"
	"net/url"

	"feedpipe/internal/feedlib"
)

// checkURL validates a URL before a request is made. It returns the
// synthetic status describing the rejection, or 0 when the URL is safe.
// When denyPrivateIPs is set the host is resolved and every address is
// checked, which stops requests from reaching the local network.
func checkURL(rawURL string, denyPrivateIPs bool) (int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return feedlib.StatusUnknownError, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return feedlib.StatusUnknownError, fmt.Errorf("scheme %q not allowed", u.Scheme)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return feedlib.StatusUnknownError, fmt.Errorf("empty hostname in %q", rawURL)
	}
	if !denyPrivateIPs {
		return 0, nil
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return feedlib.StatusDNSError, fmt.Errorf("resolve %s: %w", hostname, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return feedlib.StatusPrivateAddress,
				fmt.Errorf("%s resolves to private address %s", hostname, ip)
		}
	}
	return 0, nil
}

// isPrivateIP reports whether ip is loopback, private or link-local,
// covering both IPv4 and IPv6 ranges.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
