// Package mgmt submits management requests to the HTTP management endpoint of an application
// server.
package mgmt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-resty/resty/v2"

	"github.com/hal-console/dmr-framework/dmr"
	"github.com/hal-console/dmr-framework/operations"
	"github.com/hal-console/dmr-framework/pkg/logger"
)

// Auth schemes accepted by Config.AuthScheme.
const (
	AuthDigest = "digest"
	AuthBasic  = "basic"
	AuthNone   = "none"
)

const (
	managementPath   = "/management"
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "hal-dmr"
)

var (
	// ErrUnauthorized is returned when the endpoint rejects the credentials.
	ErrUnauthorized = errors.New("management endpoint rejected the credentials")
	// ErrInvalidConfig is returned by NewClient for an unusable Config.
	ErrInvalidConfig = errors.New("invalid management client config")
)

// HTTPError is returned for responses that do not carry a management result.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("management endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Unwrap returns ErrUnauthorized for 401 and 403.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}

	return nil
}

// Config is the connection configuration of a Client.
type Config struct {
	// URL is the base URL of the management interface, e.g. http://localhost:9990.
	URL        string
	Username   string
	Password   string
	AuthScheme string
	// Timeout bounds a single HTTP exchange. Zero means 30s.
	Timeout   time.Duration
	UserAgent string
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("%w: url %q must use http or https", ErrInvalidConfig, c.URL)
	}
	switch c.AuthScheme {
	case "", AuthDigest, AuthBasic, AuthNone:
	default:
		return fmt.Errorf("%w: unknown auth scheme %q", ErrInvalidConfig, c.AuthScheme)
	}

	return nil
}

// Client is an operations.Dispatcher over HTTP. It is safe for concurrent use.
type Client struct {
	rc       *resty.Client
	endpoint string
	lggr     logger.Logger
}

var _ operations.Dispatcher = (*Client)(nil)

type clientOptions struct {
	httpClient *http.Client
	lggr       logger.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient makes the Client send requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithLogger sets the Client logger.
func WithLogger(lggr logger.Logger) Option {
	return func(o *clientOptions) {
		o.lggr = lggr
	}
}

// NewClient creates a Client for cfg. Credentials are sent with digest auth unless the scheme
// says otherwise; an empty username disables authentication.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := clientOptions{lggr: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	rc := resty.New()
	if o.httpClient != nil {
		rc = resty.NewWithClient(o.httpClient)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	rc.SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	if cfg.Username != "" {
		switch cfg.AuthScheme {
		case AuthBasic:
			rc.SetBasicAuth(cfg.Username, cfg.Password)
		case "", AuthDigest:
			rc.SetDigestAuth(cfg.Username, cfg.Password)
		}
	}

	return &Client{
		rc:       rc,
		endpoint: strings.TrimSuffix(cfg.URL, "/") + managementPath,
		lggr:     o.lggr.Named("mgmt"),
	}, nil
}

// Dispatch posts the request tree of req and decodes the reply.
//
// The endpoint answers failed operations with status 500 and a DMR body; those come back as a
// Response with outcome failed and a nil error.
func (c *Client) Dispatch(ctx context.Context, req dmr.Submittable) (*dmr.Response, error) {
	body, err := req.ModelNode().MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Name(), err)
	}

	c.lggr.Debugw("Posting management request", "operation", req.Name(), "address", req.Address().String())
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.endpoint, err)
	}

	httpErr := &HTTPError{StatusCode: resp.StatusCode(), Status: resp.Status(), Body: strings.TrimSpace(resp.String())}
	if errors.Is(httpErr, ErrUnauthorized) {
		return nil, httpErr
	}

	res, derr := dmr.DecodeResponse(resp.Body())
	if derr != nil {
		if resp.IsError() {
			return nil, httpErr
		}

		return nil, fmt.Errorf("decode %s response: %w", req.Name(), derr)
	}
	c.lggr.Debugw("Received management response", "operation", req.Name(), "outcome", res.Outcome,
		"status", resp.StatusCode(), "duration", resp.Time())

	return res, nil
}

// Execute dispatches req and returns the result, or the failure as a *dmr.FailureError.
func (c *Client) Execute(ctx context.Context, req dmr.Submittable) (*dmr.ModelNode, error) {
	res, err := c.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Address(), req.Name(), err)
	}

	return res.Result, nil
}

// ReadResource reads the resource at address, including children when recursive is set.
func (c *Client) ReadResource(ctx context.Context, address dmr.ResourceAddress, recursive bool) (*dmr.ModelNode, error) {
	op, err := dmr.NewOperationBuilder(address, dmr.ReadResourceOperation).
		Param(dmr.Recursive, recursive).
		Build()
	if err != nil {
		return nil, err
	}

	return c.Execute(ctx, op)
}

// ReadAttribute reads attribute name of the resource at address.
func (c *Client) ReadAttribute(ctx context.Context, address dmr.ResourceAddress, name string) (*dmr.ModelNode, error) {
	op, err := dmr.NewOperationBuilder(address, dmr.ReadAttributeOperation).
		Param(dmr.Name, name).
		Build()
	if err != nil {
		return nil, err
	}

	return c.Execute(ctx, op)
}

// ManagementVersion returns the management model version of the server.
func (c *Client) ManagementVersion(ctx context.Context) (*semver.Version, error) {
	root, err := c.ReadResource(ctx, dmr.Root(), false)
	if err != nil {
		return nil, err
	}

	var parts [3]int64
	for i, key := range []string{dmr.ManagementMajorVersion, dmr.ManagementMinorVersion, dmr.ManagementMicroVersion} {
		n, ok := root.Lookup(key)
		if !ok || !n.IsDefined() {
			continue
		}
		if parts[i], err = n.AsLong(); err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
	}

	return semver.NewVersion(fmt.Sprintf("%d.%d.%d", parts[0], parts[1], parts[2]))
}
