package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Profile struct {
	User
	CreatedAt time.Time `json:"createdAt"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new account. It does not log the user in.
func (c *Client) Register(ctx context.Context, name, email, password string) (User, error) {
	payload, err := json.Marshal(registerRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return User{}, err
	}

	envelope, apiErr, err := c.send(ctx, http.MethodPost, "/auth/register", payload, "")
	if err != nil {
		return User{}, err
	}
	if apiErr != nil {
		return User{}, apiErr
	}

	var user User
	if err := decodeData(envelope.Data, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Login authenticates and primes the session: the access token is kept in
// memory, the refresh cookie lands in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return User{}, err
	}

	envelope, apiErr, err := c.send(ctx, http.MethodPost, "/auth/login", payload, "")
	if err != nil {
		return User{}, err
	}
	if apiErr != nil {
		return User{}, apiErr
	}

	var data struct {
		AccessToken string `json:"accessToken"`
		User        User   `json:"user"`
	}
	if err := decodeData(envelope.Data, &data); err != nil {
		return User{}, err
	}

	c.setAccessToken(data.AccessToken)
	return data.User, nil
}

// Logout revokes the refresh credential server-side and clears local state
// regardless of the response.
func (c *Client) Logout(ctx context.Context) error {
	_, apiErr, err := c.send(ctx, http.MethodPost, "/auth/logout", nil, c.AccessToken())

	c.clearSession()

	if err != nil {
		return err
	}
	if apiErr != nil {
		return apiErr
	}
	return nil
}

func (c *Client) GetProfile(ctx context.Context) (Profile, error) {
	var profile Profile
	if err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

func (c *Client) UpdateProfile(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, "/auth/profile", updateProfileRequest{Name: name}, nil)
}

// ListUsers requires the administrator role.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}
