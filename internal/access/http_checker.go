package access

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	membershipPathTemplateConstant    = "%s/orgs/%s/owners/%s"
	membershipRequestTemplateConstant = "building membership request: %w"
	membershipCallTemplateConstant    = "calling membership endpoint: %w"
	membershipStatusTemplateConstant  = "membership endpoint returned status %d"
	authorizationHeaderConstant       = "Authorization"
	bearerPrefixConstant              = "Bearer "
	defaultMembershipTimeoutConstant  = 10 * time.Second

	membershipCheckedMessageConstant = "organization membership checked"
)

// HTTPOwnershipCheckerConfiguration carries the forge connection settings.
type HTTPOwnershipCheckerConfiguration struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
}

// HTTPOwnershipChecker resolves organization ownership against the forge's
// membership endpoint. A 204 means the viewer owns the organization, a 404
// means they do not; anything else is an error and fails closed upstream.
type HTTPOwnershipChecker struct {
	configuration HTTPOwnershipCheckerConfiguration
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewHTTPOwnershipChecker constructs an HTTPOwnershipChecker.
func NewHTTPOwnershipChecker(configuration HTTPOwnershipCheckerConfiguration, logger *zap.Logger) *HTTPOwnershipChecker {
	if configuration.RequestTimeout <= 0 {
		configuration.RequestTimeout = defaultMembershipTimeoutConstant
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPOwnershipChecker{
		configuration: configuration,
		httpClient:    &http.Client{Timeout: configuration.RequestTimeout},
		logger:        logger,
	}
}

var _ OwnershipChecker = &HTTPOwnershipChecker{}

// IsOrganizationOwner queries the membership endpoint for the viewer.
func (checker *HTTPOwnershipChecker) IsOrganizationOwner(executionContext context.Context, viewerID string, organizationID string) (bool, error) {
	membershipURL := fmt.Sprintf(membershipPathTemplateConstant, checker.configuration.BaseURL, organizationID, viewerID)
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, membershipURL, nil)
	if requestError != nil {
		return false, fmt.Errorf(membershipRequestTemplateConstant, requestError)
	}
	if len(checker.configuration.Token) > 0 {
		request.Header.Set(authorizationHeaderConstant, bearerPrefixConstant+checker.configuration.Token)
	}

	response, callError := checker.httpClient.Do(request)
	if callError != nil {
		return false, fmt.Errorf(membershipCallTemplateConstant, callError)
	}
	defer func() { _ = response.Body.Close() }()

	checker.logger.Debug(membershipCheckedMessageConstant,
		zap.String(logFieldViewerIDConstant, viewerID),
		zap.String(logFieldOrganizationIDConstant, organizationID),
		zap.Int("status_code", response.StatusCode))

	switch response.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf(membershipStatusTemplateConstant, response.StatusCode)
	}
}
