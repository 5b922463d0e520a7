package inference_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/inference"
)

func newTestHTTPClient(serverURL string) *inference.HTTPClient {
	return inference.NewHTTPClient(inference.HTTPClientConfiguration{
		BaseURL:        serverURL,
		APIKey:         "test-key",
		RequestTimeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestHTTPClientRankFilesValidation(testInstance *testing.T) {
	testCases := []struct {
		name         string
		responseBody string
		statusCode   int
		expectParse  bool
		expectCount  int
	}{
		{
			name:         "valid_rankings",
			responseBody: `{"rankings":[{"file":"auth.go","priority":9,"reason":"token handling"},{"file":"util.go","priority":2,"reason":"helpers"}]}`,
			statusCode:   http.StatusOK,
			expectCount:  2,
		},
		{
			name:         "priority_out_of_range",
			responseBody: `{"rankings":[{"file":"auth.go","priority":11,"reason":"oops"}]}`,
			statusCode:   http.StatusOK,
			expectParse:  true,
		},
		{
			name:         "empty_file_path",
			responseBody: `{"rankings":[{"file":" ","priority":5,"reason":"oops"}]}`,
			statusCode:   http.StatusOK,
			expectParse:  true,
		},
		{
			name:         "malformed_json",
			responseBody: `not json at all`,
			statusCode:   http.StatusOK,
			expectParse:  true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				writer.WriteHeader(testCase.statusCode)
				_, _ = writer.Write([]byte(testCase.responseBody))
			}))
			defer server.Close()

			rankedFiles, rankError := newTestHTTPClient(server.URL).RankFiles(context.Background(), inference.RankingRequest{Context: "ctx", Files: []string{"auth.go"}})

			if testCase.expectParse {
				parseFailure := inference.ParseError{}
				require.ErrorAs(testInstance, rankError, &parseFailure)
				return
			}
			require.NoError(testInstance, rankError)
			require.Len(testInstance, rankedFiles, testCase.expectCount)
		})
	}
}

func TestHTTPClientMapsTransientStatuses(testInstance *testing.T) {
	testInstance.Run("rate_limit_with_retry_after", func(testInstance *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.Header().Set("Retry-After", "11")
			writer.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, callError := newTestHTTPClient(server.URL).CountTokens(context.Background(), "text")

		rateLimitFailure := inference.RateLimitError{}
		require.ErrorAs(testInstance, callError, &rateLimitFailure)
		require.Equal(testInstance, 11*time.Second, rateLimitFailure.RetryAfter)
	})

	testInstance.Run("server_error", func(testInstance *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, callError := newTestHTTPClient(server.URL).CountTokens(context.Background(), "text")

		serverFailure := inference.ServerError{}
		require.ErrorAs(testInstance, callError, &serverFailure)
		require.Equal(testInstance, http.StatusBadGateway, serverFailure.StatusCode)
	})
}

func TestHTTPClientAnalyzeBatchRejectsInvalidFindings(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte(`{"findings":[{"file":"auth.go","title":"weak check","severity":"catastrophic","line_start":1,"line_end":3}]}`))
	}))
	defer server.Close()

	_, callError := newTestHTTPClient(server.URL).AnalyzeBatch(context.Background(), inference.AnalysisRequest{})

	parseFailure := inference.ParseError{}
	require.ErrorAs(testInstance, callError, &parseFailure)
}
