package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/models"
)

const (
	rankFilesEndpointConstant   = "/v1/rank-files"
	countTokensEndpointConstant = "/v1/count-tokens"
	analyzeEndpointConstant     = "/v1/analyze"
	summarizeEndpointConstant   = "/v1/summarize"
	classifyEndpointConstant    = "/v1/classify"

	contentTypeHeaderConstant   = "Content-Type"
	jsonContentTypeConstant     = "application/json"
	authorizationHeaderConstant = "Authorization"
	bearerPrefixConstant        = "Bearer "
	retryAfterHeaderConstant    = "Retry-After"

	defaultRetryAfterSecondsConstant = 30
	responseBodyLimitConstant        = 16 << 20

	requestEncodeTemplateConstant = "encoding %s request: %w"
	requestBuildTemplateConstant  = "building %s request: %w"
	requestSendTemplateConstant   = "calling %s: %w"
	responseReadTemplateConstant  = "reading %s response: %w"

	priorityMinimumConstant = 1
	priorityMaximumConstant = 10
)

// HTTPClientConfiguration carries the connection settings for the HTTP client.
type HTTPClientConfiguration struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// HTTPClient implements Client over a JSON HTTP API.
type HTTPClient struct {
	configuration HTTPClientConfiguration
	httpClient    *http.Client
	logger        *zap.Logger
}

var _ Client = &HTTPClient{}

// NewHTTPClient constructs an HTTPClient from the supplied configuration.
func NewHTTPClient(configuration HTTPClientConfiguration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		configuration: configuration,
		httpClient:    &http.Client{Timeout: configuration.RequestTimeout},
		logger:        logger,
	}
}

type rankFilesResponsePayload struct {
	Rankings []struct {
		File     string `json:"file"`
		Priority int    `json:"priority"`
		Reason   string `json:"reason"`
	} `json:"rankings"`
}

// RankFiles requests a security-relevance ordering and validates each entry.
func (client *HTTPClient) RankFiles(executionContext context.Context, request RankingRequest) ([]models.RankedFile, error) {
	var payload rankFilesResponsePayload
	if callError := client.postJSON(executionContext, rankFilesEndpointConstant, request, &payload); callError != nil {
		return nil, callError
	}

	rankedFiles := make([]models.RankedFile, 0, len(payload.Rankings))
	for index, entry := range payload.Rankings {
		if len(strings.TrimSpace(entry.File)) == 0 {
			return nil, ParseError{Reason: fmt.Sprintf("ranking entry %d has an empty file path", index)}
		}
		if entry.Priority < priorityMinimumConstant || entry.Priority > priorityMaximumConstant {
			return nil, ParseError{Reason: fmt.Sprintf("ranking entry %d priority %d outside [1,10]", index, entry.Priority)}
		}
		rankedFiles = append(rankedFiles, models.RankedFile{Path: entry.File, Priority: entry.Priority, Reason: entry.Reason})
	}
	return rankedFiles, nil
}

type countTokensRequestPayload struct {
	Text string `json:"text"`
}

type countTokensResponsePayload struct {
	Tokens int `json:"tokens"`
}

// CountTokens returns the exact token count for the supplied text.
func (client *HTTPClient) CountTokens(executionContext context.Context, text string) (int, error) {
	var payload countTokensResponsePayload
	if callError := client.postJSON(executionContext, countTokensEndpointConstant, countTokensRequestPayload{Text: text}, &payload); callError != nil {
		return 0, callError
	}
	if payload.Tokens < 0 {
		return 0, ParseError{Reason: fmt.Sprintf("negative token count %d", payload.Tokens)}
	}
	return payload.Tokens, nil
}

type analyzeResponsePayload struct {
	Findings []FindingPayload `json:"findings"`
}

// AnalyzeBatch submits a batch for review and validates the returned findings.
func (client *HTTPClient) AnalyzeBatch(executionContext context.Context, request AnalysisRequest) ([]FindingPayload, error) {
	var payload analyzeResponsePayload
	if callError := client.postJSON(executionContext, analyzeEndpointConstant, request, &payload); callError != nil {
		return nil, callError
	}

	for index, finding := range payload.Findings {
		if validationError := validateFindingPayload(finding); validationError != nil {
			return nil, ParseError{Reason: fmt.Sprintf("finding %d: %v", index, validationError)}
		}
	}
	return payload.Findings, nil
}

func validateFindingPayload(finding FindingPayload) error {
	if len(strings.TrimSpace(finding.FilePath)) == 0 {
		return fmt.Errorf("empty file path")
	}
	if len(strings.TrimSpace(finding.Title)) == 0 {
		return fmt.Errorf("empty title")
	}
	if !models.Severity(finding.Severity).IsValid() {
		return fmt.Errorf("unknown severity %q", finding.Severity)
	}
	if finding.LineStart < 0 || finding.LineEnd < finding.LineStart {
		return fmt.Errorf("invalid line range %d-%d", finding.LineStart, finding.LineEnd)
	}
	return nil
}

// Summarize requests the executive summary for a finding set.
func (client *HTTPClient) Summarize(executionContext context.Context, request SummaryRequest) (SummaryResult, error) {
	var payload SummaryResult
	if callError := client.postJSON(executionContext, summarizeEndpointConstant, request, &payload); callError != nil {
		return SummaryResult{}, callError
	}
	if len(strings.TrimSpace(payload.Summary)) == 0 {
		return SummaryResult{}, ParseError{Reason: "empty summary"}
	}
	if len(payload.MaxSeverity) > 0 && !payload.MaxSeverity.IsValid() {
		return SummaryResult{}, ParseError{Reason: fmt.Sprintf("unknown severity %q", payload.MaxSeverity)}
	}
	return payload, nil
}

// Classify requests a project categorization.
func (client *HTTPClient) Classify(executionContext context.Context, request ClassificationRequest) (ClassificationResult, error) {
	var payload ClassificationResult
	if callError := client.postJSON(executionContext, classifyEndpointConstant, request, &payload); callError != nil {
		return ClassificationResult{}, callError
	}
	if len(strings.TrimSpace(payload.Category)) == 0 {
		return ClassificationResult{}, ParseError{Reason: "empty category"}
	}
	return payload, nil
}

func (client *HTTPClient) postJSON(executionContext context.Context, endpoint string, requestBody any, responseTarget any) error {
	encodedBody, encodeError := json.Marshal(requestBody)
	if encodeError != nil {
		return fmt.Errorf(requestEncodeTemplateConstant, endpoint, encodeError)
	}

	httpRequest, buildError := http.NewRequestWithContext(executionContext, http.MethodPost, client.configuration.BaseURL+endpoint, bytes.NewReader(encodedBody))
	if buildError != nil {
		return fmt.Errorf(requestBuildTemplateConstant, endpoint, buildError)
	}
	httpRequest.Header.Set(contentTypeHeaderConstant, jsonContentTypeConstant)
	if len(client.configuration.APIKey) > 0 {
		httpRequest.Header.Set(authorizationHeaderConstant, bearerPrefixConstant+client.configuration.APIKey)
	}

	httpResponse, sendError := client.httpClient.Do(httpRequest)
	if sendError != nil {
		return fmt.Errorf(requestSendTemplateConstant, endpoint, sendError)
	}
	defer httpResponse.Body.Close()

	responseBody, readError := io.ReadAll(io.LimitReader(httpResponse.Body, responseBodyLimitConstant))
	if readError != nil {
		return fmt.Errorf(responseReadTemplateConstant, endpoint, readError)
	}

	switch {
	case httpResponse.StatusCode == http.StatusTooManyRequests:
		return RateLimitError{RetryAfter: parseRetryAfter(httpResponse.Header.Get(retryAfterHeaderConstant))}
	case httpResponse.StatusCode >= http.StatusInternalServerError:
		return ServerError{StatusCode: httpResponse.StatusCode}
	case httpResponse.StatusCode != http.StatusOK:
		return ParseError{Reason: fmt.Sprintf("unexpected status %d from %s", httpResponse.StatusCode, endpoint)}
	}

	if decodeError := json.Unmarshal(responseBody, responseTarget); decodeError != nil {
		return ParseError{Reason: fmt.Sprintf("malformed JSON from %s: %v", endpoint, decodeError)}
	}
	return nil
}

func parseRetryAfter(headerValue string) time.Duration {
	seconds, parseError := strconv.Atoi(strings.TrimSpace(headerValue))
	if parseError != nil || seconds <= 0 {
		return defaultRetryAfterSecondsConstant * time.Second
	}
	return time.Duration(seconds) * time.Second
}
