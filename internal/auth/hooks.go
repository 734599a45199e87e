package auth

// Hooks carries the session lifecycle callbacks. They are passed explicitly
// to the transport and API client constructors; there is no package-level
// registration.
type Hooks struct {
	// SessionExpired fires after a 401/403 response has cleared the stored
	// credential. The UI uses it to drop back to the login flow.
	SessionExpired func()
	// TokenRefreshed fires after a refreshed credential from a response
	// header has been installed, before any body data is consumed.
	TokenRefreshed func(token string)
}

func (h Hooks) NotifySessionExpired() {
	if h.SessionExpired != nil {
		h.SessionExpired()
	}
}

func (h Hooks) NotifyTokenRefreshed(token string) {
	if h.TokenRefreshed != nil {
		h.TokenRefreshed(token)
	}
}
