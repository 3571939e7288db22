package smart

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/hbr-risk/internal/utils"
	"github.com/jrsteele09/hbr-risk/oauthmodel"
	"golang.org/x/oauth2"
)

// OAuth2Exchanger performs the exchange with golang.org/x/oauth2.
type OAuth2Exchanger struct {
	client  *http.Client
	nowTime func() time.Time
}

func NewOAuth2Exchanger(client *http.Client) *OAuth2Exchanger {
	return &OAuth2Exchanger{client: client, nowTime: time.Now}
}

func (e *OAuth2Exchanger) Exchange(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	style := oauth2.AuthStyleInParams
	if req.Confidential() {
		style = oauth2.AuthStyleInHeader
	}
	cfg := oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RedirectURL:  req.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  req.TokenEndpoint,
			AuthStyle: style,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	tok, err := cfg.Exchange(ctx, req.Code, oauth2.VerifierOption(req.CodeVerifier))
	if err != nil {
		return nil, retrieveError(err)
	}

	resp := &oauthmodel.TokenResponse{
		AccessToken:       utils.Ptr(tok.AccessToken),
		TokenType:         tok.TokenType,
		Scope:             stringExtra(tok, "scope"),
		Patient:           stringExtra(tok, "patient"),
		Encounter:         stringExtra(tok, "encounter"),
		SmartStyleURL:     stringExtra(tok, "smart_style_url"),
		NeedPatientBanner: boolExtra(tok, "need_patient_banner"),
		ExpiresIn:         e.expiresIn(tok),
	}
	if idToken := stringExtra(tok, "id_token"); idToken != "" {
		resp.IdToken = utils.Ptr(idToken)
	}
	if tok.RefreshToken != "" {
		resp.RefreshToken = utils.Ptr(tok.RefreshToken)
	}
	return resp, nil
}

func (e *OAuth2Exchanger) expiresIn(tok *oauth2.Token) int {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return max(int(tok.Expiry.Sub(e.nowTime()).Round(time.Second).Seconds()), 0)
}

func retrieveError(err error) *TokenError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		te := &TokenError{
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
			Err:         err,
		}
		if re.Response != nil {
			te.StatusCode = re.Response.StatusCode
			te.Transient = transientStatus(re.Response.StatusCode)
		}
		return te
	}
	// Anything that is not a RetrieveError happened before a response was read, or the
	// response was unusable (for example missing access_token).
	var netErr interface{ Timeout() bool }
	return &TokenError{Transient: errors.As(err, &netErr), Err: err}
}

func stringExtra(tok *oauth2.Token, key string) string {
	s, _ := tok.Extra(key).(string)
	return s
}

func boolExtra(tok *oauth2.Token, key string) bool {
	b, _ := tok.Extra(key).(bool)
	return b
}
