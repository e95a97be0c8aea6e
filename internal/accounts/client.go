// Package accounts talks to the accounts API: token issue, verification and
// revocation, registration and the current user's profile.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"portal/internal/platform/httpclient"
	dErrors "portal/pkg/domain-errors"
)

const (
	pathToken  = "/contas/api/token/"
	pathVerify = "/contas/api/token/verify/"
	pathLogout = "/contas/api/token/logout/"
	pathUsers  = "/contas/api/users/"
	pathMe     = "/contas/api/me/"
)

// Client is the accounts API client.
type Client struct {
	http *httpclient.Client
}

// New builds a client over a shared HTTP client.
func New(hc *httpclient.Client) (*Client, error) {
	if hc == nil {
		return nil, errors.New("http client is required")
	}
	return &Client{http: hc}, nil
}

// ObtainToken exchanges credentials for a token pair.
func (c *Client) ObtainToken(ctx context.Context, creds Credentials) (TokenResponse, error) {
	if creds.Username == "" || creds.Password == "" {
		return TokenResponse{}, dErrors.New(dErrors.CodeBadRequest, "username and password are required")
	}
	var out TokenResponse
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "accounts.obtain_token",
		Method:    http.MethodPost,
		Path:      pathToken,
		Body:      creds,
		Out:       &out,
	})
	if err != nil {
		return TokenResponse{}, err
	}
	if out.Access == "" {
		return TokenResponse{}, dErrors.New(dErrors.CodeInternal, "token response has no access token")
	}
	return out, nil
}

// VerifyToken succeeds when the API accepts token. Any non-2xx answer is a
// rejection with CodeUnauthorized.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "accounts.verify_token",
		Method:    http.MethodPost,
		Path:      pathVerify,
		Body:      map[string]string{"token": token},
	})
	if err == nil {
		return nil
	}
	if status := httpclient.StatusOf(err); status > 0 && !dErrors.HasCode(err, dErrors.CodeUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "token rejected")
	}
	return err
}

// Logout revokes refresh on the server. 205 Reset Content and every other
// 2xx count as success.
func (c *Client) Logout(ctx context.Context, access, refresh string) error {
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "accounts.logout",
		Method:    http.MethodPost,
		Path:      pathLogout,
		Token:     access,
		Body:      map[string]string{"refresh_token": refresh},
	})
	return err
}

// Register creates an account. The API answers 201 with the new user.
func (c *Client) Register(ctx context.Context, reg Registration) (*User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	var out User
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "accounts.register",
		Method:    http.MethodPost,
		Path:      pathUsers,
		Body:      reg,
		Out:       &out,
		Expect:    []int{http.StatusCreated},
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user the access token belongs to.
func (c *Client) Me(ctx context.Context, access string) (*User, error) {
	var out User
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "accounts.me",
		Method:    http.MethodGet,
		Path:      pathMe,
		Token:     access,
		Out:       &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMe patches the current user and returns the stored result.
func (c *Client) UpdateMe(ctx context.Context, access string, update UserUpdate) (*User, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	var out User
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "accounts.update_me",
		Method:    http.MethodPatch,
		Path:      pathMe,
		Token:     access,
		Body:      update,
		Out:       &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes the account. Only 204 No Content is success.
func (c *Client) DeleteUser(ctx context.Context, access string, userID int64) error {
	if userID <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "user id is required")
	}
	_, err := c.http.Do(ctx, httpclient.Request{
		Operation: "accounts.delete_user",
		Method:    http.MethodDelete,
		Path:      fmt.Sprintf("%s%d/", pathUsers, userID),
		Token:     access,
		Expect:    []int{http.StatusNoContent},
	})
	return err
}
