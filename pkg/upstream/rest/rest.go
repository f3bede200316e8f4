// Package rest registers the "rest" upstream driver, which talks to a MyMazda-compatible JSON
// gateway over HTTP.
//
// The gateway exposes three endpoints:
//
//	POST /auth/login                   {"email", "password", "region"} -> {"accessToken"}
//	GET  /vehicles                     -> {"vehicles": [...]}
//	POST /vehicles/{vid}/engine/start  -> arbitrary JSON, relayed verbatim
//
// The registered driver reaches a gateway on localhost. Pass [Export] to upstream.NewFactory to use
// another gateway.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vehicle-relay/mazda-relay/internal/log"
	"github.com/vehicle-relay/mazda-relay/pkg/upstream"
)

// DriverName is the name the driver is registered under.
const DriverName = "rest"

const (
	// DefaultBaseURL is used by the registered driver.
	DefaultBaseURL = "http://localhost:8080"
	// MaxResponseLength caps the size of gateway responses.
	MaxResponseLength = 1000000
	libraryName       = "mazda-relay-rest"
)

var (
	// ErrNotAuthenticated indicates a request was attempted before Login succeeded.
	ErrNotAuthenticated = errors.New("not authenticated: call Login first")
	// ErrResponseTooLong indicates the gateway sent more than MaxResponseLength bytes.
	ErrResponseTooLong = errors.New("response exceeds maximum length")
)

// HttpError is returned when the gateway responds with a non-2xx status.
type HttpError struct {
	Code    int
	Message string
}

func (e *HttpError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Code, e.Message)
}

// Options control how clients reach the gateway.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// Export returns the driver's export, with a constructor that builds clients using opts. An empty
// BaseURL is replaced with DefaultBaseURL.
func Export(opts Options) upstream.Namespace {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return upstream.Namespace{
		upstream.PrimaryName: upstream.Constructor(func(email, password, region string) (any, error) {
			return NewWithOptions(email, password, region, opts)
		}),
	}
}

func buildUserAgent() string {
	build, ok := debug.ReadBuildInfo()
	if !ok || build.Main.Version == "" || build.Main.Version == "(devel)" {
		return libraryName
	}
	return fmt.Sprintf("%s/%s", libraryName, build.Main.Version)
}

// Vehicle is a vehicle listed by the gateway.
type Vehicle struct {
	ID       string `json:"id"`
	VIN      string `json:"vin"`
	Nickname string `json:"nickname,omitempty"`
	Model    string `json:"model,omitempty"`
	Year     int    `json:"year,omitempty"`
}

// Client is a gateway session for one account.
type Client struct {
	UserAgent string

	baseURL  string
	client   *http.Client
	email    string
	password string
	region   string

	token   string
	subject string
	expires time.Time
}

// NewWithOptions returns a Client that uses opts.
func NewWithOptions(email, password, region string, opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway URL %q: scheme must be http or https", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = buildUserAgent()
	}
	return &Client{
		UserAgent: userAgent,
		baseURL:   strings.TrimSuffix(base.String(), "/"),
		client:    httpClient,
		email:     email,
		password:  password,
		region:    region,
	}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Region   string `json:"region"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

// Login exchanges the account credentials for an access token.
func (c *Client) Login(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodPost, "auth/login", &loginRequest{
		Email:    c.email,
		Password: c.password,
		Region:   c.region,
	}, false)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	var reply loginResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("login failed: malformed response: %w", err)
	}
	if reply.AccessToken == "" {
		return fmt.Errorf("login failed: gateway did not return an access token")
	}
	c.token = strings.TrimSpace(reply.AccessToken)
	c.inspectToken()
	return nil
}

// inspectToken records the subject and expiry of JWT access tokens. The signature is not checked;
// the gateway is the only party that validates its tokens. Opaque tokens are accepted as-is.
func (c *Client) inspectToken() {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		log.Debug("Access token is not a JWT: %s", err)
		return
	}
	if sub, err := claims.GetSubject(); err == nil {
		c.subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.expires = exp.Time
	}
	log.Debug("Authenticated as %q (token expires %s)", c.subject, c.expires.Format(time.RFC3339))
}

// Subject returns the subject of the access token, if it is a JWT.
func (c *Client) Subject() string {
	return c.subject
}

// Expired returns true if the access token carries an expiry that has passed.
func (c *Client) Expired() bool {
	return !c.expires.IsZero() && time.Now().After(c.expires)
}

// GetVehicles lists the vehicles on the account.
func (c *Client) GetVehicles(ctx context.Context) ([]Vehicle, error) {
	body, err := c.do(ctx, http.MethodGet, "vehicles", nil, true)
	if err != nil {
		return nil, err
	}
	var reply struct {
		Vehicles []Vehicle `json:"vehicles"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("malformed vehicle list: %w", err)
	}
	if reply.Vehicles == nil {
		reply.Vehicles = []Vehicle{}
	}
	return reply.Vehicles, nil
}

// StartEngine requests a remote engine start and returns the gateway's reply unchanged.
func (c *Client) StartEngine(ctx context.Context, vid string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("vehicles/%s/engine/start", url.PathEscape(vid))
	body, err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, true)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("gateway returned invalid JSON")
	}
	return json.RawMessage(body), nil
}

// do sends a request to endpoint, which should contain only the path relative to the gateway's
// base URL. A non-nil payload is sent as JSON.
func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}, authenticated bool) ([]byte, error) {
	if authenticated {
		if c.token == "" {
			return nil, ErrNotAuthenticated
		}
		if c.Expired() {
			log.Warning("Access token for %q expired at %s", c.subject, c.expires.Format(time.RFC3339))
		}
	}
	target := c.baseURL + "/" + endpoint

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("error constructing request to %s: %w", endpoint, err)
	}
	request.Header.Set("User-Agent", c.UserAgent)
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Debug("Requesting %s %s...", method, request.URL.Redacted())
	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", endpoint, err)
	}
	defer response.Body.Close()

	reader := io.LimitedReader{R: response.Body, N: MaxResponseLength + 1}
	body, err := io.ReadAll(&reader)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxResponseLength {
		return nil, ErrResponseTooLong
	}
	log.Debug("Gateway returned %d: %s", response.StatusCode, http.StatusText(response.StatusCode))
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &HttpError{Code: response.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts {"error": "..."} from a gateway error body, falling back to the raw body.
func errorMessage(body []byte) string {
	var reply struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &reply); err == nil && reply.Error != "" {
		return reply.Error
	}
	return strings.TrimSpace(string(body))
}

func init() {
	upstream.Register(DriverName, Export(Options{}))
}
