package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the authorization API HTTP client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	verbose    bool
}

// NewClient creates a new API client.
func NewClient(baseURL, token string, verbose bool) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		verbose: verbose,
	}
}

// Do performs an HTTP request and returns the response body.
func (c *Client) Do(method, path string, body any) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(context.Background(), method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.verbose {
		fmt.Printf(">>> %s %s\n", method, url)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if c.verbose {
		fmt.Printf("<<< %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, resp.StatusCode, nil
}

// Get performs a GET request.
func (c *Client) Get(path string) ([]byte, error) {
	data, _, err := c.Do(http.MethodGet, path, nil)
	return data, err
}

// Post performs a POST request.
func (c *Client) Post(path string, body any) ([]byte, error) {
	data, _, err := c.Do(http.MethodPost, path, body)
	return data, err
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) error {
	_, _, err := c.Do(http.MethodDelete, path, nil)
	return err
}

// APIError represents an error envelope returned by the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsConflict reports whether the API answered 409.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var parsed struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		apiErr.RequestID = parsed.RequestID
	}

	if apiErr.Message == "" {
		switch statusCode {
		case 401:
			apiErr.Message = "unauthorized: invalid or missing token"
		case 403:
			apiErr.Message = "forbidden: insufficient permissions"
		case 404:
			apiErr.Message = "resource not found"
		case 409:
			apiErr.Message = "conflict: resource already exists"
		default:
			apiErr.Message = fmt.Sprintf("API error: %d %s", statusCode, http.StatusText(statusCode))
		}
	}

	return apiErr
}

// Response types matching server handler structs.

type ListResponse[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

type PermissionResponse struct {
	ID             string  `json:"id"`
	Scope          string  `json:"scope"`
	OrganizationID *string `json:"organization_id,omitempty"`
	Type           string  `json:"type"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Resource       string  `json:"resource,omitempty"`
	Action         string  `json:"action,omitempty"`
	IsActive       bool    `json:"is_active"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type RoleResponse struct {
	ID             string   `json:"id"`
	Scope          string   `json:"scope"`
	OrganizationID *string  `json:"organization_id,omitempty"`
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	IsActive       bool     `json:"is_active"`
	PermissionIDs  []string `json:"permission_ids"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

type AssigneeResponse struct {
	UserID          string  `json:"user_id"`
	Email           string  `json:"email"`
	Name            string  `json:"name,omitempty"`
	Source          string  `json:"source"`
	CollaborationID *string `json:"collaboration_id,omitempty"`
	AssignedBy      *string `json:"assigned_by,omitempty"`
	AssignedAt      string  `json:"assigned_at"`
	ExpiresAt       *string `json:"expires_at,omitempty"`
}

type RoleDetailsResponse struct {
	RoleResponse `yaml:",inline"`
	Permissions  []PermissionResponse `json:"permissions"`
	Assignees    []AssigneeResponse   `json:"assignees"`
}

type SystemRoleAssignmentResponse struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	RoleID     string  `json:"role_id"`
	AssignedBy *string `json:"assigned_by,omitempty"`
	AssignedAt string  `json:"assigned_at"`
	ExpiresAt  *string `json:"expires_at,omitempty"`
	IsActive   bool    `json:"is_active"`
	RevokedBy  *string `json:"revoked_by,omitempty"`
	RevokedAt  *string `json:"revoked_at,omitempty"`
}

type DirectGrantResponse struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	PermissionID   string  `json:"permission_id"`
	Scope          string  `json:"scope"`
	OrganizationID *string `json:"organization_id,omitempty"`
	GrantedBy      *string `json:"granted_by,omitempty"`
	GrantedAt      string  `json:"granted_at"`
	ExpiresAt      *string `json:"expires_at,omitempty"`
	IsActive       bool    `json:"is_active"`
	RevokedBy      *string `json:"revoked_by,omitempty"`
	RevokedAt      *string `json:"revoked_at,omitempty"`
}

type UserGrantsResponse struct {
	SystemRoles  []SystemRoleAssignmentResponse `json:"system_roles"`
	DirectGrants []DirectGrantResponse          `json:"direct_grants"`
}

type OrganizationResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	OwnerUserID string `json:"owner_user_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type CollaborationResponse struct {
	ID               string  `json:"id"`
	OrganizationID   string  `json:"organization_id"`
	CollaboratorID   string  `json:"collaborator_id"`
	Email            string  `json:"email"`
	CollaboratorName string  `json:"collaborator_name,omitempty"`
	Status           string  `json:"status"`
	IsActive         bool    `json:"is_active"`
	InvitedBy        string  `json:"invited_by"`
	InvitedAt        string  `json:"invited_at"`
	AcceptedAt       *string `json:"accepted_at,omitempty"`
	ExpiresAt        *string `json:"expires_at,omitempty"`
	UpdatedAt        string  `json:"updated_at"`
}

type PermissionSourceResponse struct {
	Source     string `json:"source"`
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name,omitempty"`
}

type EffectivePermissionsResponse struct {
	OrganizationID *string                               `json:"organization_id,omitempty"`
	Permissions    []string                              `json:"permissions"`
	Sources        map[string][]PermissionSourceResponse `json:"sources"`
}

type DecisionResponse struct {
	Allowed        bool    `json:"allowed"`
	Permission     string  `json:"permission"`
	OrganizationID *string `json:"organization_id,omitempty"`
	Source         string  `json:"source,omitempty"`
}
