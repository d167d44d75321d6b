// Package presenter turns error kinds into short end-user messages. It is the
// only place that writes user-facing copy.
package presenter

import (
	"fmt"
	"strings"

	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// Contexts describe what the user was doing when the error happened.
const (
	ContextTicketFetch        = "ticket_fetch"
	ContextBuild              = "context_build"
	ContextAIGeneration       = "ai_generation"
	ContextProviderConnection = "provider_connection"
	ContextSettingsSave       = "settings_save"
)

// Kinds are the recognised error categories.
const (
	KindConnectionFailed   = "connection_failed"
	KindInvalidCredentials = "invalid_credentials"
	KindServiceUnavailable = "service_unavailable"
	KindTimeout            = "timeout"
	KindRateLimit          = "rate_limit"
	KindInvalidConfig      = "invalid_config"
	KindNotFound           = "not_found"
	KindInvalidInput       = "invalid_input"
	KindUnexpected         = "unexpected"
)

var contextActions = map[string]string{
	ContextTicketFetch:        "load the ticket",
	ContextBuild:              "gather context for this ticket",
	ContextAIGeneration:       "generate a plan",
	ContextProviderConnection: "connect to the provider",
	ContextSettingsSave:       "save your settings",
}

var kindMessages = map[string]string{
	KindConnectionFailed:   "We couldn't reach the service. Check your network connection and try again.",
	KindInvalidCredentials: "The provider rejected your credentials. Update the access token in settings.",
	KindServiceUnavailable: "The service is temporarily unavailable. Please try again in a few minutes.",
	KindTimeout:            "The request took too long. Please try again.",
	KindRateLimit:          "Too many requests were sent to the provider. Wait a moment before retrying.",
	KindInvalidConfig:      "The provider configuration is incomplete or invalid. Review the provider settings.",
	KindNotFound:           "The requested item could not be found. Check the ticket ID and your access to it.",
	KindInvalidInput:       "The ticket ID is not in a format this provider recognises.",
}

// Contexts lists every supported context.
func Contexts() []string {
	return []string{ContextTicketFetch, ContextBuild, ContextAIGeneration, ContextProviderConnection, ContextSettingsSave}
}

// Kinds lists the kinds with dedicated copy.
func Kinds() []string {
	return []string{KindConnectionFailed, KindInvalidCredentials, KindServiceUnavailable, KindTimeout, KindRateLimit, KindInvalidConfig, KindNotFound, KindInvalidInput}
}

// Message renders a user message for an error kind in a context. Unknown
// kinds are treated as free-form error detail and embedded in a generic message.
func Message(kind, context string) string {
	action, ok := contextActions[context]
	if !ok {
		action = "complete that action"
	}
	kind = strings.TrimSpace(kind)
	if body, ok := kindMessages[kind]; ok {
		return fmt.Sprintf("Unable to %s. %s", action, body)
	}
	if kind == "" || kind == KindUnexpected {
		return fmt.Sprintf("Unable to %s because of an unexpected error. Please try again.", action)
	}
	return fmt.Sprintf("Unable to %s because of an unexpected error: %s", action, kind)
}

// KindOf classifies an error for Message.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case apperrors.IsTimeout(err):
		return KindTimeout
	case apperrors.IsRateLimit(err):
		return KindRateLimit
	case apperrors.IsPermission(err), apperrors.HasCode(err, apperrors.CodeUnauthed):
		return KindInvalidCredentials
	case apperrors.IsValidation(err):
		return KindInvalidInput
	case apperrors.IsNotFound(err):
		return KindNotFound
	case apperrors.IsNetwork(err):
		if strings.Contains(strings.ToLower(apperrors.ToDomainError(err).Message), "unavailable") {
			return KindServiceUnavailable
		}
		return KindConnectionFailed
	case apperrors.IsParsing(err):
		return KindServiceUnavailable
	default:
		return KindUnexpected
	}
}

// ForError is Message(KindOf(err), context).
func ForError(err error, context string) string {
	return Message(KindOf(err), context)
}
