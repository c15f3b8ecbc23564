package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 20000-20999: System & Common errors
// 21000-21999: Submission intake errors
// 22000-22999: Sandbox & Execution errors
// 23000-23999: External judge delegation errors
// 24000-24999: Result aggregation errors

const (
	// ========== System & Common Errors (20000-20999) ==========

	// Success
	Success ErrorCode = 20000

	// Generic errors (20000-20099)
	InternalServerError ErrorCode = 20001
	InvalidParams       ErrorCode = 20002
	NotFound            ErrorCode = 20003
	Unauthorized        ErrorCode = 20004
	TooManyRequests     ErrorCode = 20005
	ServiceUnavailable  ErrorCode = 20006
	Timeout             ErrorCode = 20007

	// Database errors (20100-20199)
	DatabaseError     ErrorCode = 20100
	RecordNotFound    ErrorCode = 20101
	TransactionFailed ErrorCode = 20102

	// Cache errors (20200-20299)
	CacheError ErrorCode = 20200
	LockFailed ErrorCode = 20201

	// Validation errors (20300-20399)
	ValidationFailed   ErrorCode = 20300
	InvalidFormat      ErrorCode = 20301
	RequiredFieldEmpty ErrorCode = 20302

	// Storage errors (20400-20499)
	StorageError ErrorCode = 20400

	// ========== Submission Intake Errors (21000-21999) ==========

	SubmissionNotFound     ErrorCode = 21000
	SubmissionCreateFailed ErrorCode = 21001
	CodeTooLarge           ErrorCode = 21002
	LanguageNotSupported   ErrorCode = 21003
	TooManyTestCases       ErrorCode = 21004
	NoTestCases            ErrorCode = 21005
	DuplicateSubmission    ErrorCode = 21006

	// ========== Sandbox & Execution Errors (22000-22999) ==========

	SandboxError        ErrorCode = 22000
	HarnessBuildFailed  ErrorCode = 22001
	TimeLimitExceeded   ErrorCode = 22100
	MemoryLimitExceeded ErrorCode = 22101
	OutputLimitExceeded ErrorCode = 22102
	CompileError        ErrorCode = 22103
	RuntimeError        ErrorCode = 22104
	SerializationFailed ErrorCode = 22200

	// ========== External Judge Errors (23000-23999) ==========

	ExternalServiceError ErrorCode = 23000
	MissingJobHandles    ErrorCode = 23001
	CallbackRejected     ErrorCode = 23002
	PollDeadlineExceeded ErrorCode = 23003

	// ========== Aggregation Errors (24000-24999) ==========

	AggregationFailed   ErrorCode = 24000
	ResultCountMismatch ErrorCode = 24001
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",
	LockFailed: "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	// Storage
	StorageError: "Object storage operation failed",

	// Submission intake
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	TooManyTestCases:       "Too many test cases",
	NoTestCases:            "At least one test case is required",
	DuplicateSubmission:    "Duplicate submission",

	// Sandbox & execution
	SandboxError:        "Sandbox execution failed",
	HarnessBuildFailed:  "Failed to assemble execution harness",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",
	OutputLimitExceeded: "Output limit exceeded",
	CompileError:        "Compilation error",
	RuntimeError:        "Runtime error",
	SerializationFailed: "Failed to serialize execution result",

	// External judge
	ExternalServiceError: "External judging service error",
	MissingJobHandles:    "Judging service returned fewer job handles than submitted",
	CallbackRejected:     "Judge callback rejected",
	PollDeadlineExceeded: "Polling deadline exceeded before completion",

	// Aggregation
	AggregationFailed:   "Failed to aggregate execution results",
	ResultCountMismatch: "Result count does not match test case count",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == CallbackRejected:
		return 401
	case c == NotFound, c == SubmissionNotFound, c == RecordNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c >= 20300 && c < 20400: // Validation errors
		return 400
	case c >= 21000 && c < 22000 && c != SubmissionNotFound && c != SubmissionCreateFailed:
		return 400
	case c == InvalidParams:
		return 400
	case c == ExternalServiceError, c == MissingJobHandles:
		return 502
	default:
		return 500
	}
}
