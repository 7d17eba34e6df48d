package types

// Error codes returned in ErrorBody.Code.
const (
	CodeBadRequest      = "REQUEST_400"
	CodeUnauthenticated = "AUTH_401"
	CodeNotFound        = "ARTICLE_404"
	CodeDuplicateAction = "COUNTER_409"
	CodeMissingClientID = "STREAM_400"
	CodeUsernameTaken   = "AUTH_409"
	CodeUnavailable     = "STREAM_503"
	CodeInternal        = "SERVER_500"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
