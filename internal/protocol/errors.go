package protocol

const (
	// Validation.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownAction = "E_UNKNOWN_ACTION"

	// Preconditions.
	ErrNotAuthenticated = "E_NOT_AUTHENTICATED"
	ErrNotInWorld       = "E_NOT_IN_WORLD"
	ErrDead             = "E_DEAD"

	// Business rules.
	ErrRejected     = "E_REJECTED"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrConflict     = "E_CONFLICT"
	ErrRateLimit    = "E_RATE_LIMIT"

	// Failures.
	ErrStorage  = "E_STORAGE"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:       {},
	ErrUnknownAction:    {},
	ErrNotAuthenticated: {},
	ErrNotInWorld:       {},
	ErrDead:             {},
	ErrRejected:         {},
	ErrNoPermission:     {},
	ErrConflict:         {},
	ErrRateLimit:        {},
	ErrStorage:          {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrorPayload is the payload of every failed response.
type ErrorPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Dead  bool   `json:"dead,omitempty"`
}
