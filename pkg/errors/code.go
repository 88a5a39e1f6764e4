package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13099: Verification request errors
// 13100-13199: Verification run errors
// 13200-13299: Verification platform errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	MethodNotAllowed    ErrorCode = 10004
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// ========== Verification Errors (13000-13999) ==========

	// Request (13000-13099)
	RuntimeNotSupported ErrorCode = 13000
	SolutionRequired    ErrorCode = 13001
	PayloadMissing      ErrorCode = 13002
	PayloadInvalid      ErrorCode = 13003
	VerifierBusy        ErrorCode = 13004

	// Run (13100-13199), reported to the caller as a failed report
	SolutionInvalid      ErrorCode = 13100
	TestsInvalid         ErrorCode = 13101
	HarnessConfigInvalid ErrorCode = 13102
	VerificationTimeout  ErrorCode = 13103
	ResultsMissing       ErrorCode = 13104
	ResultsMalformed     ErrorCode = 13105

	// Platform (13200-13299), surfaced to the caller as errors
	SetupFailed       ErrorCode = 13200
	DriverSpawnFailed ErrorCode = 13201
	ContainerFailed   ErrorCode = 13202
	CleanupFailed     ErrorCode = 13203
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	MethodNotAllowed:    "Method not supported",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Verification request
	RuntimeNotSupported: "Unsupported runtime",
	SolutionRequired:    "A solution is required",
	PayloadMissing:      "The request doesn't have any payload to test",
	PayloadInvalid:      "Could not parse the json request",
	VerifierBusy:        "Too many verifications running, please try again later",

	// Verification run
	SolutionInvalid:      "Failed to run solution",
	TestsInvalid:         "Failed to initiate tests",
	HarnessConfigInvalid: "Test harness is misconfigured",
	VerificationTimeout:  "timeout",
	ResultsMissing:       "Results are missing",
	ResultsMalformed:     "Failed to parse results",

	// Verification platform
	SetupFailed:       "Failed to set up verification workspace",
	DriverSpawnFailed: "Failed to start test driver",
	ContainerFailed:   "Failed to run verifier container",
	CleanupFailed:     "Failed to clean up verification workspace",
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
	case c == NotFound, c == RuntimeNotSupported:
		return 404
	case c == MethodNotAllowed:
		return 405
	case c == ServiceUnavailable, c == VerifierBusy:
		return 503
	case c == Timeout:
		return 504
	case c == InvalidParams:
		return 400
	case c >= 13000 && c < 13100: // Request errors
		return 400
	default:
		return 500
	}
}

// Reportable tells whether a failure with this code belongs in a report
// rather than being surfaced as an error.
func (c ErrorCode) Reportable() bool {
	return c >= 13100 && c < 13200
}
