package liman

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nhle/liman-notify/internal/model"
)

// Login exchanges email and password for an access token.
// A 409 answer means the account must change its password first; callers
// then use ChangePassword.
func (c *Client) Login(ctx context.Context, email, password string) (model.AccessToken, error) {
	var token model.AccessToken
	err := c.Post(ctx, c.authPrefix+"/login", loginRequest{
		Email:    email,
		Password: password,
	}, &token)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusConflict {
			return model.AccessToken{}, ErrPasswordChangeRequired
		}
		return model.AccessToken{}, fmt.Errorf("logging in as %s: %w", email, err)
	}
	return finishLogin(token, email)
}

// ChangePassword sets a new password and returns the token issued for it.
func (c *Client) ChangePassword(
	ctx context.Context,
	email, password, newPassword string,
) (model.AccessToken, error) {
	var token model.AccessToken
	err := c.Post(ctx, c.authPrefix+"/change_password", changePasswordRequest{
		Email:       email,
		Password:    password,
		NewPassword: newPassword,
	}, &token)
	if err != nil {
		return model.AccessToken{}, fmt.Errorf("changing password for %s: %w", email, err)
	}
	return finishLogin(token, email)
}

func finishLogin(token model.AccessToken, email string) (model.AccessToken, error) {
	if token.AccessToken == "" {
		if token.User.ForceChange {
			return model.AccessToken{}, ErrPasswordChangeRequired
		}
		return model.AccessToken{}, fmt.Errorf("login for %s returned no access token", email)
	}
	token.IssuedAt = time.Now().UTC()
	return token, nil
}

// Logout revokes the current token server-side.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.Post(ctx, c.authPrefix+"/logout", struct{}{}, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
