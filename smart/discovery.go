package smart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	wellKnownPath       = "/.well-known/smart-configuration"
	metadataPath        = "/metadata"
	maxDiscoveryBody    = 4 << 20
	defaultHTTPTimeout  = 15 * time.Second
	maxDiscoveryRetries = 1
)

// Resolver finds the authorization and token endpoints for an issuer.
type Resolver interface {
	Resolve(ctx context.Context, issuer string) (Endpoints, error)
}

// DiscoveryError is returned when neither discovery source yielded both endpoints.
type DiscoveryError struct {
	Issuer    string
	Transient bool
	Causes    []error
}

func (e *DiscoveryError) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		parts = append(parts, c.Error())
	}
	return fmt.Sprintf("discovery for %s failed: %s", e.Issuer, strings.Join(parts, "; "))
}

func (e *DiscoveryError) Unwrap() []error {
	return append([]error{apperrors.ErrDiscovery}, e.Causes...)
}

// fetchError records whether a single fetch failed in a way worth retrying.
type fetchError struct {
	source    string
	transient bool
	err       error
}

func (e *fetchError) Error() string {
	return e.source + ": " + e.err.Error()
}

func (e *fetchError) Unwrap() error {
	return e.err
}

// DiscoveryResolver tries the SMART well-known document first and falls back to the capability statement.
type DiscoveryResolver struct {
	client  *http.Client
	retries int
}

// NewDiscoveryResolver returns a resolver using client. A nil client gets a 15 second timeout.
// retries is capped at one automatic retry on transient failures.
func NewDiscoveryResolver(client *http.Client, retries int) *DiscoveryResolver {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &DiscoveryResolver{
		client:  client,
		retries: min(max(retries, 0), maxDiscoveryRetries),
	}
}

// Resolve returns the endpoints for issuer or an error wrapping ErrMissingIssuer or ErrDiscovery.
func (r *DiscoveryResolver) Resolve(ctx context.Context, issuer string) (Endpoints, error) {
	issuer = NormalizeIssuer(issuer)
	if issuer == "" {
		return Endpoints{}, apperrors.ErrMissingIssuer
	}
	if u, err := url.Parse(issuer); err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return Endpoints{}, &DiscoveryError{Issuer: issuer, Causes: []error{fmt.Errorf("issuer is not an absolute http(s) URL")}}
	}

	for attempt := 0; ; attempt++ {
		endpoints, err := r.resolveOnce(ctx, issuer)
		if err == nil {
			return endpoints, nil
		}
		if !err.Transient || attempt >= r.retries || ctx.Err() != nil {
			return Endpoints{}, err
		}
		log.Warn().Str("issuer", issuer).Err(err).Msg("discovery failed, retrying once")
	}
}

func (r *DiscoveryResolver) resolveOnce(ctx context.Context, issuer string) (Endpoints, *DiscoveryError) {
	var causes []error

	var doc smartConfiguration
	ferr := r.fetchJSON(ctx, issuer+wellKnownPath, "application/json", SourceWellKnown, &doc)
	if ferr == nil {
		if doc.AuthorizationEndpoint != "" && doc.TokenEndpoint != "" {
			return Endpoints{
				Issuer:                issuer,
				AuthorizationEndpoint: doc.AuthorizationEndpoint,
				TokenEndpoint:         doc.TokenEndpoint,
				JWKSURI:               doc.JWKSURI,
				ScopesSupported:       doc.ScopesSupported,
				Capabilities:          doc.Capabilities,
				Source:                SourceWellKnown,
			}, nil
		}
		ferr = &fetchError{source: SourceWellKnown, err: missingEndpointsError(doc.AuthorizationEndpoint, doc.TokenEndpoint)}
	}
	causes = append(causes, ferr)

	var cs capabilityStatement
	cerr := r.fetchJSON(ctx, issuer+metadataPath, "application/fhir+json", SourceCapabilityStatement, &cs)
	if cerr == nil {
		e := cs.endpoints()
		if e.AuthorizationEndpoint != "" && e.TokenEndpoint != "" {
			e.Issuer = issuer
			e.Source = SourceCapabilityStatement
			return e, nil
		}
		cerr = &fetchError{source: SourceCapabilityStatement, err: missingEndpointsError(e.AuthorizationEndpoint, e.TokenEndpoint)}
	}
	causes = append(causes, cerr)

	return Endpoints{}, &DiscoveryError{
		Issuer:    issuer,
		Transient: ferr.transient || cerr.transient,
		Causes:    causes,
	}
}

func (r *DiscoveryResolver) fetchJSON(ctx context.Context, target, accept, source string, v any) *fetchError {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &fetchError{source: source, err: err}
	}
	req.Header.Set("Accept", accept)

	resp, err := r.client.Do(req)
	if err != nil {
		return &fetchError{source: source, transient: ctx.Err() == nil, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		transient := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		return &fetchError{source: source, transient: transient, err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDiscoveryBody)).Decode(v); err != nil {
		return &fetchError{source: source, err: fmt.Errorf("decoding document: %w", err)}
	}
	return nil
}

func missingEndpointsError(authorize, token string) error {
	var missing []string
	if authorize == "" {
		missing = append(missing, "authorization endpoint")
	}
	if token == "" {
		missing = append(missing, "token endpoint")
	}
	return fmt.Errorf("document missing %s", strings.Join(missing, " and "))
}

// NormalizeIssuer trims whitespace and trailing slashes so equivalent issuers compare equal.
func NormalizeIssuer(issuer string) string {
	return strings.TrimRight(strings.TrimSpace(issuer), "/")
}
