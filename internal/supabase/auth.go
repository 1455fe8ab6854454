package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AuthClient handles Supabase Auth operations.
type AuthClient struct {
	client *Client
}

// SignUp creates a new user. When email confirmation is enabled the returned
// session has no access token.
func (a *AuthClient) SignUp(ctx context.Context, req SignUpRequest) (*AuthSession, error) {
	var out struct {
		AuthSession
		// unconfirmed sign-ups return the user at the top level
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := a.post(ctx, a.client.authURL+"/signup", req, &out); err != nil {
		return nil, err
	}

	s := out.AuthSession
	if s.User == nil && out.ID != "" {
		s.User = &User{ID: out.ID, Email: out.Email}
	}
	return &s, nil
}

// SignInWithPassword authenticates a user with email/password.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	req := map[string]string{
		"email":    email,
		"password": password,
	}

	var s AuthSession
	if err := a.post(ctx, a.client.authURL+"/token?grant_type=password", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RefreshToken exchanges a refresh token for a new session.
func (a *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (*AuthSession, error) {
	req := map[string]string{
		"refresh_token": refreshToken,
	}

	var s AuthSession
	if err := a.post(ctx, a.client.authURL+"/token?grant_type=refresh_token", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignOut revokes the session behind accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	respBody, statusCode, err := a.client.request(ctx, http.MethodPost, a.client.authURL+"/logout", nil, nil, accessToken)
	if err != nil {
		return err
	}
	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}
	return nil
}

func (a *AuthClient) post(ctx context.Context, urlStr string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, statusCode, err := a.client.request(ctx, http.MethodPost, urlStr, body, nil, "")
	if err != nil {
		return err
	}
	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
