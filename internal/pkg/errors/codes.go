package errors

import "net/http"

// Webhook ingestion codes.
const (
	CodeWebhookHeadersMissing    = "WEBHOOK_HEADERS_MISSING"
	CodeWebhookSignatureInvalid  = "WEBHOOK_SIGNATURE_INVALID"
	CodeWebhookProcessingFailed  = "WEBHOOK_PROCESSING_FAILED"
	CodeWebhookTopicNotSupported = "WEBHOOK_TOPIC_NOT_SUPPORTED"
	CodeInvalidPayload           = "INVALID_PAYLOAD"
	CodeEventNotFound            = "EVENT_NOT_FOUND"
)

// Store and subscription codes.
const (
	CodeStoreNotFound     = "STORE_NOT_FOUND"
	CodeAlreadySubscribed = "ALREADY_SUBSCRIBED"
	CodeNotSubscribed     = "NOT_SUBSCRIBED"
)

// Notification codes.
const (
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	CodeUserNotFound         = "USER_NOT_FOUND"
)

// Generic codes.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
)

// ErrStoreNotFound is returned when a store is unknown or inactive.
func ErrStoreNotFound() *AppError {
	return NotFound(CodeStoreNotFound, "store not found")
}

// ErrEventNotFound is returned when a logged event id is unknown.
func ErrEventNotFound() *AppError {
	return NotFound(CodeEventNotFound, "webhook log not found")
}

// ErrPersistence wraps a storage failure that must fail the current request.
func ErrPersistence(err error, message string) *AppError {
	return Wrap(err, CodePersistenceFailed, message, http.StatusInternalServerError)
}

// ErrValidation creates a 400 carrying field errors.
func ErrValidation(message string, fields ...FieldError) *AppError {
	return BadRequest(CodeValidationFailed, message).WithFieldErrors(fields)
}
