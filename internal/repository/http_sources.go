package repository

import (
	"context"
	"errors"
	"fmt"

	"speedliner/internal/domain/models"
	domrepo "speedliner/internal/domain/repository"
	pkghttp "speedliner/pkg/http"
)

var ErrNoIdentityURL = errors.New("identity url not configured")

// HTTPRouteSource downloads the route document.
type HTTPRouteSource struct {
	client *pkghttp.Client
	url    string
}

func NewHTTPRouteSource(client *pkghttp.Client, url string) domrepo.RouteSource {
	return &HTTPRouteSource{client: client, url: url}
}

func (s *HTTPRouteSource) FetchRoutes(ctx context.Context) ([]byte, error) {
	var body []byte
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodGet,
		URL:     s.url,
		Headers: map[string]string{"Accept": "application/json"},
	}, &body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// HTTPIdentitySource asks the identity endpoint who the browser belongs to,
// forwarding the caller's cookie and authorization header.
type HTTPIdentitySource struct {
	client *pkghttp.Client
	url    string
}

func NewHTTPIdentitySource(client *pkghttp.Client, url string) domrepo.IdentitySource {
	return &HTTPIdentitySource{client: client, url: url}
}

func (s *HTTPIdentitySource) Resolve(ctx context.Context, creds models.Credentials) (models.Identity, error) {
	if s.url == "" {
		return models.Identity{}, ErrNoIdentityURL
	}
	var id models.Identity
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodGet,
		URL:     s.url,
		Headers: credentialHeaders(creds),
	}, &id)
	if err != nil {
		return models.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}
	return id, nil
}

// HTTPSubmissionEndpoint posts express requests as JSON.
type HTTPSubmissionEndpoint struct {
	client *pkghttp.Client
	url    string
}

func NewHTTPSubmissionEndpoint(client *pkghttp.Client, url string) domrepo.SubmissionEndpoint {
	return &HTTPSubmissionEndpoint{client: client, url: url}
}

func (e *HTTPSubmissionEndpoint) Submit(ctx context.Context, req *models.ExpressRequest, creds models.Credentials) (int, error) {
	headers := credentialHeaders(creds)
	headers["Content-Type"] = "application/json"
	return e.client.Status(ctx, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodPost,
		URL:     e.url,
		Headers: headers,
		Body:    req,
	})
}

func credentialHeaders(creds models.Credentials) map[string]string {
	return map[string]string{
		"Accept":        "application/json",
		"Cookie":        creds.Cookie,
		"Authorization": creds.Authorization,
	}
}
