package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeMessageQueue       ErrorCode = "COMMON_015"
	ErrCodeStorage            ErrorCode = "COMMON_016"
)

// Aliases used by the factory helpers.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeUnauthorized = ErrCodeUnauthorized
	CodeForbidden    = ErrCodeForbidden
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeRateLimit    = ErrCodeTooManyRequests
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Settlement Module Error Codes
const (
	ErrCodeSettlementValidation ErrorCode = "SETTLE_001"
	ErrCodeResourceConflict     ErrorCode = "SETTLE_002"
	ErrCodeDuplicateBL          ErrorCode = "SETTLE_003"
	ErrCodeInvalidTransition    ErrorCode = "SETTLE_004"
	ErrCodeContractNotFound     ErrorCode = "SETTLE_005"
	ErrCodeMissionNotFound      ErrorCode = "SETTLE_006"
	ErrCodeCautionNotFound      ErrorCode = "SETTLE_007"
	ErrCodePaymentNotFound      ErrorCode = "SETTLE_008"
	ErrCodeLockNotAcquired      ErrorCode = "SETTLE_009"
	ErrCodeExportFailed         ErrorCode = "SETTLE_010"
)

// Auth Module Error Codes
const (
	ErrCodeInvalidCredentials ErrorCode = "AUTH_001"
	ErrCodeLoginThrottled     ErrorCode = "AUTH_002"
	ErrCodeUserNotFound       ErrorCode = "AUTH_003"
	ErrCodeWeakPassword       ErrorCode = "AUTH_004"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusBadRequest,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeMessageQueue:       http.StatusInternalServerError,
	ErrCodeStorage:            http.StatusInternalServerError,

	ErrCodeSettlementValidation: http.StatusUnprocessableEntity,
	ErrCodeResourceConflict:     http.StatusConflict,
	ErrCodeDuplicateBL:          http.StatusConflict,
	ErrCodeInvalidTransition:    http.StatusConflict,
	ErrCodeContractNotFound:     http.StatusNotFound,
	ErrCodeMissionNotFound:      http.StatusNotFound,
	ErrCodeCautionNotFound:      http.StatusNotFound,
	ErrCodePaymentNotFound:      http.StatusNotFound,
	ErrCodeLockNotAcquired:      http.StatusConflict,
	ErrCodeExportFailed:         http.StatusInternalServerError,

	ErrCodeInvalidCredentials: http.StatusUnauthorized,
	ErrCodeLoginThrottled:     http.StatusTooManyRequests,
	ErrCodeUserNotFound:       http.StatusNotFound,
	ErrCodeWeakPassword:       http.StatusUnprocessableEntity,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeMessageQueue:       "message queue error",
	ErrCodeStorage:            "object storage error",

	ErrCodeSettlementValidation: "settlement rule violated",
	ErrCodeResourceConflict:     "truck or driver already on an active mission",
	ErrCodeDuplicateBL:          "BL number already used",
	ErrCodeInvalidTransition:    "transition not allowed from current status",
	ErrCodeContractNotFound:     "contract not found",
	ErrCodeMissionNotFound:      "mission not found",
	ErrCodeCautionNotFound:      "caution not found",
	ErrCodePaymentNotFound:      "payment not found",
	ErrCodeLockNotAcquired:      "resource is locked by another operation",
	ErrCodeExportFailed:         "export failed",

	ErrCodeInvalidCredentials: "invalid email or password",
	ErrCodeLoginThrottled:     "too many login attempts",
	ErrCodeUserNotFound:       "user not found",
	ErrCodeWeakPassword:       "password does not meet requirements",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
