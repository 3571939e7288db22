package oauthmodel

// CallbackParams are the values the host appends to the redirect URI.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Denied reports whether the host returned an error instead of a code.
func (c CallbackParams) Denied() bool {
	return c.Error != ""
}
