package api

import (
	"context"
	"net/http"
	"strings"

	appLog "companion/internal/log"
	"companion/internal/model"
)

type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Login signs in and stores the tokens on the session.
func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.User{}, invalid("email")
	}
	if password == "" {
		return model.User{}, invalid("password")
	}
	var out model.AuthTokens
	if err := c.doPublic(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &out); err != nil {
		return model.User{}, err
	}
	return c.adopt(ctx, out)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, r RegisterRequest) (model.User, error) {
	r.Email = strings.TrimSpace(r.Email)
	r.Username = strings.TrimSpace(r.Username)
	switch {
	case r.Email == "":
		return model.User{}, invalid("email")
	case r.Username == "":
		return model.User{}, invalid("username")
	case r.Password == "":
		return model.User{}, invalid("password")
	}
	var out model.AuthTokens
	if err := c.doPublic(ctx, http.MethodPost, "/auth/register", r, &out); err != nil {
		return model.User{}, err
	}
	return c.adopt(ctx, out)
}

func (c *Client) adopt(ctx context.Context, t model.AuthTokens) (model.User, error) {
	if err := c.session.Set(t); err != nil {
		return model.User{}, err
	}
	if t.User != nil {
		appLog.Info("signed in", "user_id", t.User.ID)
		return *t.User, nil
	}
	return c.Me(ctx)
}

// Logout tells the backend and always clears the local session.
func (c *Client) Logout(ctx context.Context) error {
	rt := c.session.RefreshToken()
	var err error
	if c.session.Authenticated() {
		err = c.do(ctx, http.MethodPost, "/auth/logout", nil, map[string]string{"refreshToken": rt}, nil)
	}
	c.session.Clear()
	if err != nil {
		appLog.Error("backend logout failed; local session cleared anyway", err)
	}
	return err
}

// Verify checks the current access token and returns its user.
func (c *Client) Verify(ctx context.Context) (model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/auth/verify", nil, nil, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// Me fetches the profile and caches it on the session.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &u); err != nil {
		return model.User{}, err
	}
	if err := c.session.SetUser(u); err != nil {
		appLog.Error("profile cache failed", err)
	}
	return u, nil
}

func (c *Client) UpdateProfile(ctx context.Context, u model.User) (model.User, error) {
	if strings.TrimSpace(u.Email) == "" {
		return model.User{}, invalid("email")
	}
	var out model.User
	if err := c.do(ctx, http.MethodPut, "/users/me", nil, u, &out); err != nil {
		return model.User{}, err
	}
	if err := c.session.SetUser(out); err != nil {
		appLog.Error("profile cache failed", err)
	}
	return out, nil
}
