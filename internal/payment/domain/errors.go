package domain

import "errors"

var (
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrMalformedPayload   = errors.New("malformed_payload")
	ErrEventIgnored       = errors.New("event_ignored")
	ErrUnknownGateway     = errors.New("unknown_gateway")
	ErrInvalidConfig      = errors.New("invalid_gateway_config")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayRejected    = errors.New("gateway_rejected")
)
