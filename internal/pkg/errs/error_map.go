/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Messaging and Profile Errors
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Nothing to send."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long (max %d bytes).", Status: http.StatusBadRequest},
	ErrInvalidLevel:          {Code: ErrInvalidLevel, Message: "Level must be greater than or equal to 1.", Status: http.StatusBadRequest},
	ErrProfileNotFound:       {Code: ErrProfileNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrProfileFieldInvalid:   {Code: ErrProfileFieldInvalid, Message: "Field %q cannot be changed.", Status: http.StatusBadRequest},
	ErrFileTypeNotAllowed:    {Code: ErrFileTypeNotAllowed, Message: "Only PNG, JPEG, GIF and WebP images are allowed.", Status: http.StatusBadRequest},
	ErrFileTooLarge:          {Code: ErrFileTooLarge, Message: "Image is too large (max %d MB).", Status: http.StatusBadRequest},

	// 3xxx: Session Errors
	ErrUnauthorized: {Code: ErrUnauthorized, Message: "Please sign in to send messages.", Status: http.StatusUnauthorized},
	ErrForbidden:    {Code: ErrForbidden, Message: "You are not allowed to do this.", Status: http.StatusForbidden},

	// 4xxx: Store Errors
	ErrWriteFailure:       {Code: ErrWriteFailure, Message: "Failed to save. Please try again.", Status: http.StatusBadGateway},
	ErrReadFailure:        {Code: ErrReadFailure, Message: "Failed to load data. Please try again.", Status: http.StatusBadGateway},
	ErrStreamFailure:      {Code: ErrStreamFailure, Message: "Failed to load messages. Please check your connection.", Status: http.StatusBadGateway},
	ErrStorageUnavailable: {Code: ErrStorageUnavailable, Message: "File uploads are not available.", Status: http.StatusServiceUnavailable},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
