package e

import (
	"errors"
	"fmt"
)

var (
	// 400 Bad Request. Все ошибки валидации оборачивают ErrValidation.
	ErrValidation         = errors.New("validation error")
	ErrStatusBadRequest   = fmt.Errorf("%w: bad request", ErrValidation)
	ErrMissingProductID   = fmt.Errorf("%w: product id is required", ErrValidation)
	ErrInvalidProductID   = fmt.Errorf("%w: invalid product id", ErrValidation)
	ErrFieldNotAllowed    = fmt.Errorf("%w: field is not allowed", ErrValidation)
	ErrInvalidActionType  = fmt.Errorf("%w: unsupported action type", ErrValidation)
	ErrMissingFieldValue  = fmt.Errorf("%w: field value is required", ErrValidation)
	ErrInvalidJobMode     = fmt.Errorf("%w: unsupported job mode", ErrValidation)
	ErrMissingQuery       = fmt.Errorf("%w: query is required", ErrValidation)
	ErrInvalidPage        = fmt.Errorf("%w: page must be positive", ErrValidation)
	ErrInvalidSettings    = fmt.Errorf("%w: invalid settings", ErrValidation)
	ErrMalformedBody      = fmt.Errorf("%w: malformed request body", ErrValidation)
	ErrInvalidStatusShift = fmt.Errorf("%w: transition is not allowed from current status", ErrValidation)
	ErrNotRejected        = fmt.Errorf("%w: moderation has not rejected the product", ErrInvalidStatusShift)

	// 404 Not Found
	ErrProductNotFound = errors.New("product not found")
	ErrJobNotFound     = errors.New("job not found")

	// 409 Conflict
	ErrRetryLimitReached = errors.New("moderation retry limit reached")

	// 5xx
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrProviderExhausted   = errors.New("all suggestion providers failed")
	ErrInternalServerError = errors.New("internal server error")

	// Внутренние ошибки конфигурации и протоколов
	ErrIncorrectEnvVariable = errors.New("incorrect environment variable")
	ErrMalformedOutput      = errors.New("malformed subprocess output")
	ErrMalformedCatalog     = errors.New("malformed catalog document")
	ErrMalformedSuggestion  = errors.New("malformed suggestion output")
	ErrCacheMiss            = errors.New("cache miss")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Upstream помечает ошибку внешнего сервиса как ErrUpstreamUnavailable, сохраняя исходную причину.
func Upstream(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, ErrUpstreamUnavailable, err)
}
