package errs

import "errors"

// Доменные сентинель-ошибки для маппинга в HTTP коды и WebSocket close codes в handlers.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrReferenceUnresolved = errors.New("no nail reference resolvable")
	ErrResultNotFound      = errors.New("result not found")
	ErrPostNotFound        = errors.New("post not found")
	ErrNotConnected        = errors.New("not connected to AI service")
	ErrUpstreamClosed      = errors.New("upstream connection closed")
)
