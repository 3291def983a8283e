// Package zmapi talks to the ZoneMinder REST API for everything that happens
// before a request can be authenticated: the credential exchange (login), the
// refresh exchange and URL resolution against the configured API base.
//
// It also defines the error taxonomy shared by the session and gateway packages:
//   - *AuthError: the server rejected a login (credential rejection)
//   - ErrTokenExpired: no valid token can be obtained (session expiry)
//   - *RequestError: any other non-success response (transport/generic failure)
//
// Use IsSessionExpired to detect the one error kind that requires the user to
// authenticate again:
//
//	if zmapi.IsSessionExpired(err) {
//		// redirect to login
//	}
package zmapi
