package smart

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/hbr-risk/internal/config"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/jrsteele09/hbr-risk/oauthmodel"
)

// TokenExchanger trades an authorization code for tokens. Implementations never retry.
type TokenExchanger interface {
	Exchange(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error)
}

// TokenError is returned when the token endpoint could not be reached or rejected the code.
type TokenError struct {
	StatusCode  int    // Zero when no response was received
	Code        string // OAuth error code from the response body
	Description string
	Transient   bool
	Err         error
}

func (e *TokenError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("token endpoint returned %d %s: %s", e.StatusCode, e.Code, e.Description)
	case e.StatusCode != 0:
		return fmt.Sprintf("token endpoint returned %d", e.StatusCode)
	case e.Err != nil:
		return "token endpoint unreachable: " + e.Err.Error()
	}
	return "token exchange failed"
}

func (e *TokenError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrTokenExchange}
	}
	return []error{apperrors.ErrTokenExchange, e.Err}
}

// NewTokenExchanger returns the exchanger named by kind ("oauth2" or "form").
func NewTokenExchanger(kind string, client *http.Client) (TokenExchanger, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	switch kind {
	case config.TokenClientOAuth2, "":
		return NewOAuth2Exchanger(client), nil
	case config.TokenClientForm:
		return NewFormExchanger(client), nil
	}
	return nil, fmt.Errorf("[NewTokenExchanger] unknown token client %q: %w", kind, apperrors.ErrInvalidConfiguration)
}

func transientStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}
