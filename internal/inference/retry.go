package inference

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/models"
)

const (
	defaultMaxAttemptsConstant     = 4
	defaultRateLimitMarginConstant = 2 * time.Second
	defaultInitialBackoffConstant  = time.Second
	defaultBackoffCeilingConstant  = 30 * time.Second

	retryingMessageConstant         = "retrying inference call"
	retriesExhaustedMessageConstant = "inference retries exhausted"
	logFieldAttemptConstant         = "attempt"
	logFieldWaitConstant            = "wait"
)

// RetryPolicy parameterizes the uniform transient-failure handling for
// inference calls.
type RetryPolicy struct {
	MaxAttempts     int
	RateLimitMargin time.Duration
	InitialBackoff  time.Duration
	BackoffCeiling  time.Duration
}

// DefaultRetryPolicy returns the policy applied when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     defaultMaxAttemptsConstant,
		RateLimitMargin: defaultRateLimitMarginConstant,
		InitialBackoff:  defaultInitialBackoffConstant,
		BackoffCeiling:  defaultBackoffCeilingConstant,
	}
}

func (policy RetryPolicy) sanitized() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.RateLimitMargin <= 0 {
		policy.RateLimitMargin = defaults.RateLimitMargin
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaults.InitialBackoff
	}
	if policy.BackoffCeiling <= 0 {
		policy.BackoffCeiling = defaults.BackoffCeiling
	}
	return policy
}

// SleepFunction waits for the supplied duration or until the context ends.
type SleepFunction func(executionContext context.Context, duration time.Duration) error

func contextAwareSleep(executionContext context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}

// RetryingClient decorates a Client with the retry policy. Rate-limit failures
// wait the server-advertised interval plus a safety margin; server-side
// failures back off exponentially up to a ceiling; validation failures are
// surfaced immediately because repeating an identical call cannot fix them.
type RetryingClient struct {
	inner  Client
	policy RetryPolicy
	logger *zap.Logger
	sleep  SleepFunction
}

var _ Client = &RetryingClient{}

// NewRetryingClient wraps the inner client with the supplied policy.
func NewRetryingClient(inner Client, policy RetryPolicy, logger *zap.Logger) *RetryingClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingClient{inner: inner, policy: policy.sanitized(), logger: logger, sleep: contextAwareSleep}
}

// WithSleepFunction overrides the wait primitive, used by tests.
func (client *RetryingClient) WithSleepFunction(sleep SleepFunction) *RetryingClient {
	client.sleep = sleep
	return client
}

// RankFiles retries the wrapped ranking call.
func (client *RetryingClient) RankFiles(executionContext context.Context, request RankingRequest) ([]models.RankedFile, error) {
	return callWithRetry(executionContext, client, func() ([]models.RankedFile, error) {
		return client.inner.RankFiles(executionContext, request)
	})
}

// CountTokens retries the wrapped counting call.
func (client *RetryingClient) CountTokens(executionContext context.Context, text string) (int, error) {
	return callWithRetry(executionContext, client, func() (int, error) {
		return client.inner.CountTokens(executionContext, text)
	})
}

// AnalyzeBatch retries the wrapped analysis call.
func (client *RetryingClient) AnalyzeBatch(executionContext context.Context, request AnalysisRequest) ([]FindingPayload, error) {
	return callWithRetry(executionContext, client, func() ([]FindingPayload, error) {
		return client.inner.AnalyzeBatch(executionContext, request)
	})
}

// Summarize retries the wrapped summarization call.
func (client *RetryingClient) Summarize(executionContext context.Context, request SummaryRequest) (SummaryResult, error) {
	return callWithRetry(executionContext, client, func() (SummaryResult, error) {
		return client.inner.Summarize(executionContext, request)
	})
}

// Classify retries the wrapped classification call.
func (client *RetryingClient) Classify(executionContext context.Context, request ClassificationRequest) (ClassificationResult, error) {
	return callWithRetry(executionContext, client, func() (ClassificationResult, error) {
		return client.inner.Classify(executionContext, request)
	})
}

func callWithRetry[ResultType any](executionContext context.Context, client *RetryingClient, call func() (ResultType, error)) (ResultType, error) {
	var zeroResult ResultType
	backoff := client.policy.InitialBackoff
	var lastError error

	for attempt := 1; attempt <= client.policy.MaxAttempts; attempt++ {
		result, callError := call()
		if callError == nil {
			return result, nil
		}
		lastError = callError

		waitDuration, retryable := client.waitFor(callError, &backoff)
		if !retryable || attempt == client.policy.MaxAttempts {
			break
		}

		client.logger.Warn(retryingMessageConstant,
			zap.Int(logFieldAttemptConstant, attempt),
			zap.Duration(logFieldWaitConstant, waitDuration),
			zap.Error(callError),
		)
		if sleepError := client.sleep(executionContext, waitDuration); sleepError != nil {
			return zeroResult, sleepError
		}
	}

	client.logger.Error(retriesExhaustedMessageConstant, zap.Error(lastError))
	return zeroResult, lastError
}

// waitFor maps an error to its retry interval. The backoff pointer advances the
// exponential schedule only when a server-side failure consumes it.
func (client *RetryingClient) waitFor(callError error, backoff *time.Duration) (time.Duration, bool) {
	rateLimitFailure := RateLimitError{}
	if errors.As(callError, &rateLimitFailure) {
		return rateLimitFailure.RetryAfter + client.policy.RateLimitMargin, true
	}

	serverFailure := ServerError{}
	if errors.As(callError, &serverFailure) {
		waitDuration := *backoff
		*backoff *= 2
		if *backoff > client.policy.BackoffCeiling {
			*backoff = client.policy.BackoffCeiling
		}
		return waitDuration, true
	}

	return 0, false
}
