package errors

// ErrorResponse is the JSON body returned for every failed request
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}
