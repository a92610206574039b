package websocket

// Client requests.
const (
	ActionHealthCheck       = "health.check"
	ActionUserGet           = "user.get"
	ActionPreferencesGet    = "preferences.get"
	ActionPreferencesUpdate = "preferences.update"
)

// Server notifications. They reuse the event bus subject names.
const (
	ActionPreferencesUpdated = "user.preferences.updated"
	ActionProfileUpdated     = "user.profile.updated"
	ActionAccountDeleted     = "user.account.deleted"
)

// Error codes carried in ErrorPayload.Code.
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeUnauthorized  = "UNAUTHORIZED"
	ErrorCodeForbidden     = "FORBIDDEN"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeConflict      = "CONFLICT"
	ErrorCodeUnavailable   = "SERVICE_UNAVAILABLE"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
)
