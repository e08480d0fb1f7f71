package errors

import "net/http"

var (
	// ErrorGeneric generic error key no status
	ErrorGeneric = Error{Key: "ERROR.UNKNOWN"}

	// ErrorNotAuthorized - returns 401
	ErrorNotAuthorized = Error{Key: "ERROR.NOT_LOGGED_IN", Status: http.StatusUnauthorized}

	ErrorForbidden = Error{Key: "ERROR.FORBIDDEN", Status: http.StatusForbidden}

	ErrorFatal = Error{Key: "ERROR.FATAL"}

	ErrorMissConfigured = Error{Key: "ERROR.MISSCONFIGURED", Status: http.StatusInternalServerError}

	ErrorRecordNotFound = Error{Key: "ERROR.RECORD_NOT_FOUND", Status: http.StatusNotFound}

	ErrorUnprocessable = Error{Key: "ERROR.UNPROCESSABLE", Status: http.StatusUnprocessableEntity}

	ErrorInvalidFields = Error{Key: "ERROR.INVALID_FIELDS", Status: http.StatusNotAcceptable}

	// ErrorInvalidSignature signed url is missing, tampered with or expired
	ErrorInvalidSignature = Error{Key: "ERROR.INVALID_SIGNATURE", Status: http.StatusForbidden}
)
