package dispatch

// Outcome classifies a single dispatch attempt. Exactly one of the failure
// fields is meaningful when Success is false: TimedOut for a deadline that
// elapsed, Transport for a call that got no response, StatusCode for a
// non-2xx response.
type Outcome struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	Transport  string `json:"transport_error,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
}

// Reason names the failure class for analytics and notifications.
func (o Outcome) Reason() string {
	switch {
	case o.Success:
		return ""
	case o.TimedOut:
		return "timeout"
	case o.Transport != "":
		return "transport_error"
	default:
		return "http_error"
	}
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
