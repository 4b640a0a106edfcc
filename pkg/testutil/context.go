package testutil

import (
	"net/http"

	id "collecta/pkg/domain"
	"collecta/pkg/requestcontext"
)

// WithActor puts actor on the request context the way the auth middleware
// does for an authenticated request.
func WithActor(req *http.Request, actor id.ActorID) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithBearer sets the Authorization header for handlers mounted behind the
// real auth middleware.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithAdminToken sets the operator token header.
func WithAdminToken(req *http.Request, token string) *http.Request {
	req.Header.Set("X-Admin-Token", token)
	return req
}
