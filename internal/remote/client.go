// Package remote implements session.Authority over the authority's HTTP JSON API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/tyemirov/tripauth/internal/credentials"
	"github.com/tyemirov/tripauth/internal/session"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	refreshPath  = "/auth/refresh"
	logoutPath   = "/auth/logout"
	mePath       = "/auth/me"

	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

var (
	// ErrRejected marks a 4xx answer from the authority other than 429.
	ErrRejected = errors.New("remote.rejected")
	// ErrUnavailable marks transport failures, throttling and 5xx answers. It
	// matches session.ErrAuthorityUnavailable so outages never count toward
	// lockout.
	ErrUnavailable = fmt.Errorf("remote.unavailable: %w", session.ErrAuthorityUnavailable)
	// ErrMalformedResponse marks a 2xx answer without the expected fields.
	ErrMalformedResponse = errors.New("remote.malformed_response")

	errInvalidBaseURL = errors.New("remote.invalid_base_url")
)

// StatusError is a non-2xx answer.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Code       string
	Message    string
}

func (err *StatusError) Error() string {
	if err.Message != "" {
		return fmt.Sprintf("remote %s (%d): %s", err.Endpoint, err.StatusCode, err.Message)
	}
	return fmt.Sprintf("remote %s returned status %d", err.Endpoint, err.StatusCode)
}

// Unwrap classifies the status.
func (err *StatusError) Unwrap() error {
	if err.StatusCode >= http.StatusInternalServerError || err.StatusCode == http.StatusTooManyRequests {
		return ErrUnavailable
	}
	return ErrRejected
}

// Client talks to the authority.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

var _ session.Authority = (*Client)(nil)

// NewClient creates a client for baseURL. A nil httpClient gets a client with
// a default timeout.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidBaseURL, baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		logger:     logger,
	}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id,omitempty"`
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	TenantID    string `json:"tenant_id,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Authenticate posts credentials to the login endpoint.
func (client *Client) Authenticate(ctx context.Context, submitted session.Credentials) (session.Grant, error) {
	body, err := client.do(ctx, http.MethodPost, loginPath, "", loginRequest{
		Email:    strings.TrimSpace(submitted.Email),
		Password: submitted.Password,
		TenantID: strings.TrimSpace(submitted.Tenant),
	})
	if err != nil {
		return session.Grant{}, fmt.Errorf("remote.authenticate: %w", err)
	}
	return grantFromBody(loginPath, body, true)
}

// Register posts a registration.
func (client *Client) Register(ctx context.Context, registration session.Registration) (session.Grant, error) {
	body, err := client.do(ctx, http.MethodPost, registerPath, "", registerRequest{
		Email:       strings.TrimSpace(registration.Email),
		Password:    registration.Password,
		TenantID:    strings.TrimSpace(registration.Tenant),
		FirstName:   strings.TrimSpace(registration.FirstName),
		LastName:    strings.TrimSpace(registration.LastName),
		DisplayName: strings.TrimSpace(registration.DisplayName),
	})
	if err != nil {
		return session.Grant{}, fmt.Errorf("remote.register: %w", err)
	}
	return grantFromBody(registerPath, body, true)
}

// Refresh exchanges a refresh credential. The answer may omit the user.
func (client *Client) Refresh(ctx context.Context, refreshToken string) (session.Grant, error) {
	body, err := client.do(ctx, http.MethodPost, refreshPath, "", refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return session.Grant{}, fmt.Errorf("remote.refresh: %w", err)
	}
	return grantFromBody(refreshPath, body, false)
}

// Restore validates the stored access credential against the user endpoint,
// falling back to a refresh when it was rejected. Rejection of both means
// there is nothing to restore.
func (client *Client) Restore(ctx context.Context, pair credentials.TokenPair) (*session.Grant, error) {
	if pair.AccessToken != "" {
		body, err := client.do(ctx, http.MethodGet, mePath, pair.AccessToken, nil)
		if err == nil {
			user, userErr := userFromBody(mePath, body)
			if userErr != nil {
				return nil, fmt.Errorf("remote.restore: %w", userErr)
			}
			return &session.Grant{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: user}, nil
		}
		if !errors.Is(err, ErrRejected) {
			return nil, fmt.Errorf("remote.restore: %w", err)
		}
		client.logger.Debug("stored access token rejected", zap.String("code", "remote.restore.access_rejected"))
	}
	if pair.RefreshToken == "" {
		return nil, nil
	}
	grant, err := client.Refresh(ctx, pair.RefreshToken)
	if errors.Is(err, ErrRejected) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remote.restore: %w", err)
	}
	if len(grant.User) == 0 {
		body, meErr := client.do(ctx, http.MethodGet, mePath, grant.AccessToken, nil)
		if meErr != nil {
			return nil, fmt.Errorf("remote.restore: %w", meErr)
		}
		user, userErr := userFromBody(mePath, body)
		if userErr != nil {
			return nil, fmt.Errorf("remote.restore: %w", userErr)
		}
		grant.User = user
	}
	return &grant, nil
}

// Revoke asks the authority to forget refreshToken.
func (client *Client) Revoke(ctx context.Context, refreshToken string) error {
	if _, err := client.do(ctx, http.MethodPost, logoutPath, "", refreshRequest{RefreshToken: refreshToken}); err != nil {
		return fmt.Errorf("remote.revoke: %w", err)
	}
	return nil
}

// do sends one request and returns the 2xx body.
func (client *Client) do(ctx context.Context, method string, endpoint string, bearer string, payload interface{}) ([]byte, error) {
	var requestBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}
		requestBody = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+endpoint, requestBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: sending request to %s: %v", ErrUnavailable, endpoint, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %v", ErrUnavailable, endpoint, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		statusErr := &StatusError{Endpoint: endpoint, StatusCode: response.StatusCode}
		if gjson.ValidBytes(responseBody) {
			document := gjson.ParseBytes(responseBody)
			statusErr.Code = firstString(document, "code", "error.code")
			statusErr.Message = firstString(document, "error.message", "message", "error")
		}
		client.logger.Debug("authority rejected request",
			zap.String("code", "remote.status"),
			zap.String("endpoint", endpoint),
			zap.Int("status", response.StatusCode))
		return nil, statusErr
	}
	return responseBody, nil
}

func grantFromBody(endpoint string, body []byte, requireUser bool) (session.Grant, error) {
	if !gjson.ValidBytes(body) {
		return session.Grant{}, fmt.Errorf("%w: %s body is not JSON", ErrMalformedResponse, endpoint)
	}
	document := gjson.ParseBytes(body)
	if data := document.Get("data"); data.IsObject() {
		document = data
	}
	grant := session.Grant{
		AccessToken:  firstString(document, "access_token", "accessToken", "token", "tokens.access_token", "tokens.accessToken"),
		RefreshToken: firstString(document, "refresh_token", "refreshToken", "tokens.refresh_token", "tokens.refreshToken"),
	}
	if grant.AccessToken == "" {
		return session.Grant{}, fmt.Errorf("%w: %s missing access token", ErrMalformedResponse, endpoint)
	}
	if user := document.Get("user"); user.IsObject() {
		grant.User = session.UserRecord(user.Raw)
	}
	if requireUser && len(grant.User) == 0 {
		return session.Grant{}, fmt.Errorf("%w: %s missing user", ErrMalformedResponse, endpoint)
	}
	return grant, nil
}

func userFromBody(endpoint string, body []byte) (session.UserRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s body is not JSON", ErrMalformedResponse, endpoint)
	}
	document := gjson.ParseBytes(body)
	if data := document.Get("data"); data.IsObject() {
		document = data
	}
	if user := document.Get("user"); user.IsObject() {
		return session.UserRecord(user.Raw), nil
	}
	if document.IsObject() && (document.Get("id").Exists() || document.Get("email").Exists()) {
		return session.UserRecord(document.Raw), nil
	}
	return nil, fmt.Errorf("%w: %s missing user", ErrMalformedResponse, endpoint)
}

func firstString(document gjson.Result, paths ...string) string {
	for _, path := range paths {
		value := document.Get(path)
		if value.Type == gjson.String {
			if text := strings.TrimSpace(value.String()); text != "" {
				return text
			}
		}
	}
	return ""
}
