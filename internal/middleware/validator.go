package middleware

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/civic-triage/internal/domain/jobs"
)

// Input validation for the producer and admin endpoints.

var reportIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateReportID allows alphanumeric, dash, underscore (max 64 chars);
// covers UUIDs and Mongo-style ObjectIDs.
func ValidateReportID(id string) error {
	if id == "" {
		return fmt.Errorf("report ID cannot be empty")
	}
	if !reportIDPattern.MatchString(id) {
		return fmt.Errorf("invalid report ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateJobID requires a UUID.
func ValidateJobID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid job ID format")
	}
	return nil
}

// ValidateURL validates photo URLs handed to the fetcher (SSRF protection).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("URL has no host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("localhost/internal hosts are not allowed")
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		ip = ip.Unmap()
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() ||
			ip.IsLinkLocalMulticast() || ip.IsMulticast() {
			return fmt.Errorf("private or internal IPs are not allowed")
		}
	}
	return nil
}

// ValidatePayload checks a job payload from the create-report path.
func ValidatePayload(p jobs.Payload) error {
	if err := ValidateReportID(p.ReportID); err != nil {
		return err
	}
	if p.Storage == jobs.StoragePublic {
		if err := ValidateURL(p.URL); err != nil {
			return err
		}
	}
	if p.Storage == jobs.StorageS3 && strings.Contains(p.Key, "..") {
		return fmt.Errorf("invalid object key")
	}
	return p.Validate()
}

// ValidateLimit validates pagination limit
func ValidateLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ClientIP strips the port from a RemoteAddr.
func ClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
