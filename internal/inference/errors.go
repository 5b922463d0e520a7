package inference

import (
	"fmt"
	"time"
)

const (
	rateLimitErrorTemplateConstant = "inference service rate limited, retry after %s"
	serverErrorTemplateConstant    = "inference service returned status %d"
	parseErrorTemplateConstant     = "inference response failed validation: %s"
)

// RateLimitError signals a rate-limit response carrying the server-advertised
// retry interval.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (failure RateLimitError) Error() string {
	return fmt.Sprintf(rateLimitErrorTemplateConstant, failure.RetryAfter)
}

// ServerError signals a transient server-side failure.
type ServerError struct {
	StatusCode int
}

// Error implements the error interface.
func (failure ServerError) Error() string {
	return fmt.Sprintf(serverErrorTemplateConstant, failure.StatusCode)
}

// ParseError signals structured output that failed schema validation. Parse
// errors are not retryable at the call level; the planner's bisection handles
// them where recovery is possible.
type ParseError struct {
	Reason string
}

// Error implements the error interface.
func (failure ParseError) Error() string {
	return fmt.Sprintf(parseErrorTemplateConstant, failure.Reason)
}
