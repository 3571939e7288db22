package smart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/hbr-risk/internal/utils"
	"github.com/jrsteele09/hbr-risk/oauthmodel"
)

const maxTokenBody = 1 << 20

// FormExchanger posts the form body directly. It is the baseline for hosts that
// reject the requests golang.org/x/oauth2 builds.
type FormExchanger struct {
	client *http.Client
}

func NewFormExchanger(client *http.Client) *FormExchanger {
	return &FormExchanger{client: client}
}

func (e *FormExchanger) Exchange(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.TokenEndpoint, strings.NewReader(req.Form().Encode()))
	if err != nil {
		return nil, &TokenError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if req.Confidential() {
		httpReq.SetBasicAuth(url.QueryEscape(req.ClientID), url.QueryEscape(req.ClientSecret))
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &TokenError{Transient: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return nil, &TokenError{StatusCode: resp.StatusCode, Transient: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var oauthErr oauthmodel.ErrorResponse
		_ = json.Unmarshal(body, &oauthErr)
		return nil, &TokenError{
			StatusCode:  resp.StatusCode,
			Code:        oauthErr.Error,
			Description: oauthErr.ErrorDescription,
			Transient:   transientStatus(resp.StatusCode),
		}
	}

	var tokenResp oauthmodel.TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, &TokenError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding token response: %w", err)}
	}
	if utils.Value(tokenResp.AccessToken) == "" {
		return nil, &TokenError{StatusCode: resp.StatusCode, Err: fmt.Errorf("token response missing access_token")}
	}
	return &tokenResp, nil
}
