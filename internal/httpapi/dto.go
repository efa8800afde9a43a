package httpapi

// problemDTO is the wire shape of a Problem within an AssignResponse.
type problemDTO struct {
	X uint64 `json:"x"`
}

// AssignResponse is the body of a successful POST /task/assign.
type AssignResponse struct {
	ID      string     `json:"id"`
	Problem problemDTO `json:"problem"`
}

// SubmitRequest is the body of POST /task/submit.
type SubmitRequest struct {
	TaskID   string `json:"task_id"`
	XSquared uint64 `json:"x_squared"`
}

// HeartbeatRequest is the body of POST /task/heartbeat.
type HeartbeatRequest struct {
	TaskID   string  `json:"task_id"`
	Progress float64 `json:"progress"`
}

// ErrorResponse is the body of every error response except 405 Method
// Not Allowed, which is plain text.
type ErrorResponse struct {
	Kind string `json:"kind"`
}

const (
	kindTaskNotFound      = "TaskNotFound"
	kindInvalidTaskStatus = "InvalidTaskStatus"
	kindInternalError     = "InternalError"
)
