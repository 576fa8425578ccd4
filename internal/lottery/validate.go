package lottery

import (
	"net"
	"regexp"
)

var requesterIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)

// ValidateRequesterID checks the requester identifier format: 1 to 32
// characters from [A-Za-z0-9_-].
func ValidateRequesterID(id string) error {
	if !requesterIDPattern.MatchString(id) {
		return newError(CodeInvalidRequester, "invalid requester id", nil)
	}
	return nil
}

// ValidateSourceIP checks that the value parses as an IPv4 or IPv6
// address and stays within 45 characters.
func ValidateSourceIP(ip string) error {
	if ip == "" || len(ip) > 45 || net.ParseIP(ip) == nil {
		return newError(CodeInvalidIP, "invalid source ip", nil)
	}
	return nil
}
