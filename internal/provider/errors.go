package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// checkStatus converts a non-2xx response into a typed error. Providers call
// it before decoding a body; resource names the thing that was requested.
func checkStatus(provider, resource string, resp *Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	message := errorMessage(resp.Body)
	details := map[string]any{"status": resp.StatusCode, "provider": provider}
	if message != "" {
		details["message"] = message
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode == http.StatusForbidden && isRateLimited(resp, message)):
		if wait := retryAfter(resp.Header, time.Now()); wait > 0 {
			details["retry_after_seconds"] = int(wait.Seconds())
		}
		return apperrors.NewRateLimitError(provider, details)
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.NewPermissionError(fmt.Sprintf("%s rejected the credentials", provider), details)
	case resp.StatusCode == http.StatusForbidden:
		return apperrors.NewPermissionError(fmt.Sprintf("%s denied access to %s", provider, resource), details)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFound(resource, details)
	case resp.StatusCode >= 500:
		return apperrors.NewNetworkError(fmt.Sprintf("%s is unavailable (HTTP %d)", provider, resp.StatusCode), nil)
	default:
		return apperrors.NewNetworkError(fmt.Sprintf("%s returned HTTP %d", provider, resp.StatusCode), nil)
	}
}

// isRateLimited recognises primary rate limit 403s, which GitHub signals with
// an exhausted remaining count or a recognisable message.
func isRateLimited(resp *Response, message string) bool {
	if resp.Header != nil && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection")
}

// retryAfter reads Retry-After seconds, falling back to X-RateLimit-Reset.
func retryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	if v := header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if v := header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(unix, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}

// errorMessage extracts a human readable message from the error bodies used
// by GitHub ({"message"}), Jira ({"errorMessages":[...]}) and Slack ({"error"}).
func errorMessage(body []byte) string {
	var payload struct {
		Message       string   `json:"message"`
		ErrorMessages []string `json:"errorMessages"`
		Error         string   `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case len(payload.ErrorMessages) > 0:
		return strings.Join(payload.ErrorMessages, "; ")
	default:
		return payload.Error
	}
}

// decodeObject unmarshals raw into v, requiring a JSON object.
func decodeObject(provider string, raw []byte, v any) error {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return apperrors.NewParsingError(fmt.Sprintf("%s record is not a JSON object", provider), nil)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.NewParsingError(fmt.Sprintf("malformed %s record", provider), err)
	}
	return nil
}
