package entity

// ErrorLike is an error value carried inside data (a manifest or a merged settings object) instead of being
// returned. It serializes as {"message": "..."}.
type ErrorLike struct {
	Message string `json:"message"`
}

// NewErrorLike converts err into an ErrorLike, or returns nil for a nil error.
func NewErrorLike(err error) *ErrorLike {
	if err == nil {
		return nil
	}
	return &ErrorLike{Message: err.Error()}
}

// Error implements the error interface.
func (e *ErrorLike) Error() string {
	return e.Message
}
