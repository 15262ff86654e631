/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Messaging and Profile Errors
const (
	// ErrMessageEmpty indicates that a send was requested with no text and no pending quote.
	ErrMessageEmpty = 2201

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2202

	// ErrInvalidLevel indicates a manual level change below level 1.
	ErrInvalidLevel = 2301

	// ErrProfileNotFound indicates that neither a registered user nor a visitor has the given id.
	ErrProfileNotFound = 2302

	// ErrProfileFieldInvalid indicates an attempt to change a profile field that is not editable.
	ErrProfileFieldInvalid = 2303

	// ErrFileTypeNotAllowed indicates an image upload with an unsupported MIME type.
	ErrFileTypeNotAllowed = 2401

	// ErrFileTooLarge indicates an image upload above the size limit.
	ErrFileTooLarge = 2402
)

// 3xxx: Session Errors
const (
	// ErrUnauthorized indicates that the request carries no valid session identity.
	ErrUnauthorized = 3001

	// ErrForbidden indicates that the caller's rank does not allow the operation.
	ErrForbidden = 3002
)

// 4xxx: Store Errors
const (
	// ErrWriteFailure indicates that persisting a message or profile change failed.
	// The state is left as before the write and the operation is safe to retry.
	ErrWriteFailure = 4001

	// ErrReadFailure indicates that a store query failed.
	ErrReadFailure = 4002

	// ErrStreamFailure indicates that a live subscription terminated with an error.
	ErrStreamFailure = 4003

	// ErrStorageUnavailable indicates that object storage is not configured.
	ErrStorageUnavailable = 4004
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
