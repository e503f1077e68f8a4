package webhook

// ErrorCode классифицирует отказ обработки вебхука.
type ErrorCode string

const (
	CodeEmptyPayload  ErrorCode = "empty_payload"
	CodeMissingFields ErrorCode = "missing_fields"
	CodeOrderNotFound ErrorCode = "order_not_found"
	CodeUnknownEvent  ErrorCode = "unknown_event"
)

// Error описывает структурированный отказ обработки вебхука.
// Внутренние сбои (БД, таймауты) возвращаются обычными ошибками
// и транспортом транслируются в 5xx.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}
