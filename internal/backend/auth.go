package backend

import (
	"context"
	"errors"
	"net/http"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
}

func (r tokenResponse) value() (string, error) {
	if r.AccessToken != "" {
		return r.AccessToken, nil
	}
	if r.Token != "" {
		return r.Token, nil
	}
	return "", errors.New("auth succeeded but token missing")
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, identifier, password string) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, loginRequest{Email: identifier, Password: password}, &resp); err != nil {
		return "", err
	}
	return resp.value()
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, name, identifier, password string, age int) (string, error) {
	var resp tokenResponse
	req := registerRequest{Name: name, Email: identifier, Password: password, Age: age}
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.value()
}

// ForgotPassword asks the backend to email a reset code.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/forgot-password", nil, map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password using a reset code.
func (c *Client) ResetPassword(ctx context.Context, code, password string) error {
	body := map[string]string{"token": code, "password": password}
	return c.do(ctx, http.MethodPost, "/auth/reset-password", nil, body, nil)
}

// Me returns the identity bound to the current token.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// UpdateProfile patches the current identity.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodPatch, "/users/me", nil, upd, &id); err != nil {
		return nil, err
	}
	return &id, nil
}
