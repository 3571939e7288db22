package oauthmodel

import "errors"

var (
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrInvalidCodeChallengeMethod = errors.New("invalid code challenge method")
	ErrInvalidRedirectUri         = errors.New("invalid or no redirect uri")
	ErrInvalidResponseType        = errors.New("unsupported response type")
	ErrMissingClientID            = errors.New("client id is required")
	ErrMissingState               = errors.New("state is required")
	ErrMissingAudience            = errors.New("aud is required")
	ErrInvalidEndpoint            = errors.New("invalid endpoint")
)
