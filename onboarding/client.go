// Package onboarding calls the organizations service to create the
// organization and status page a new account starts with. Each call is
// authenticated with a short-lived service assertion.
package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Signer issues the bearer assertion for a call. *jwt.Manager satisfies it.
type Signer interface {
	Sign(subject, scope string) (string, error)
}

const (
	scopeCreateOrganization = "organizations:create"
	scopeCreateStatusPage   = "status-pages:create"
)

// ErrConflict is returned when the organizations service rejects a
// duplicate slug.
var ErrConflict = errors.New("onboarding: conflict")

type Client struct {
	baseURL *url.URL
	signer  Signer
	http    *http.Client
}

func NewClient(baseURL string, signer Signer, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("onboarding: invalid base url %q", baseURL)
	}
	if signer == nil {
		return nil, errors.New("onboarding: signer is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: u, signer: signer, http: httpClient}, nil
}

type createOrganizationRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
}

type createOrganizationResponse struct {
	ID string `json:"id"`
}

type createStatusPageRequest struct {
	Name string `json:"name"`
}

func (c *Client) CreateOrganization(ctx context.Context, ownerID, name, slug string) (string, error) {
	var out createOrganizationResponse
	err := c.post(ctx, "/organizations", "user:"+ownerID, scopeCreateOrganization,
		createOrganizationRequest{OwnerID: ownerID, Name: name, Slug: slug}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("onboarding: organization id missing from response")
	}
	return out.ID, nil
}

func (c *Client) CreateStatusPage(ctx context.Context, organizationID, name string) error {
	return c.post(ctx, "/organizations/"+url.PathEscape(organizationID)+"/status-pages",
		"organization:"+organizationID, scopeCreateStatusPage, createStatusPageRequest{Name: name}, nil)
}

func (c *Client) post(ctx context.Context, path, subject, scope string, in, out any) error {
	token, err := c.signer.Sign(subject, scope)
	if err != nil {
		return fmt.Errorf("onboarding: sign assertion: %w", err)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("onboarding: %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("onboarding: %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(out)
}
