// Package httpapi implements the request channel: the stateless HTTP
// transport of record for durable reads and writes. Transport failures
// and server faults (5xx) are retryable and may end up in the action
// buffer; client faults (4xx) are surfaced and never retried.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/ports"
)

// Client talks to the event-management REST API.
type Client struct {
	base     *url.URL
	http     *http.Client
	validate *validator.Validate
	log      zerolog.Logger

	mu    sync.RWMutex
	token string
}

var _ ports.RequestChannel = (*Client)(nil)

// NewClient builds a request channel rooted at baseURL. A cookie jar is
// kept alongside the bearer token because the production server uses
// cookie sessions.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpapi: parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("httpapi: cookie jar: %w", err)
	}

	return &Client{
		base:     base,
		http:     &http.Client{Timeout: timeout, Jar: jar},
		validate: validator.New(),
		log:      log,
	}, nil
}

// SetSession installs a previously stored session token.
func (c *Client) SetSession(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Session returns the current session token, empty when logged out.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SessionValid reports whether a stored session token exists and has not
// expired. The token is inspected without signature verification; only
// the server can verify it, the client just avoids presenting a token
// that is certainly dead.
func (c *Client) SessionValid(now time.Time) bool {
	token := c.Session()
	if token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(now)
}

/* Auth */

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

func (c *Client) Login(ctx context.Context, user, password string) error {
	var session sessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, loginRequest{User: user, Password: password}, &session); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if session.Token != "" {
		c.SetSession(session.Token)
	}
	return nil
}

type signupRequest struct {
	domain.UserProperties
	Email         string `json:"email"`
	Password      string `json:"password"`
	Username      string `json:"username"`
	PrivacyPolicy bool   `json:"privacyPolicy"`
}

func (c *Client) Signup(ctx context.Context, props domain.UserProperties, email, password, username string) error {
	if err := c.validate.Struct(props); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	req := signupRequest{
		UserProperties: props,
		Email:          email,
		Password:       password,
		Username:       username,
		PrivacyPolicy:  true,
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", nil, req, nil); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	return nil
}

func (c *Client) VerifySignup(ctx context.Context, token string) error {
	body := map[string]string{"token": token}
	if err := c.do(ctx, http.MethodPost, "/api/auth/verify_signup", nil, body, nil); err != nil {
		return fmt.Errorf("verify signup: %w", err)
	}
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
	c.SetSession("")
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/auth/delete", nil, nil, nil); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	c.SetSession("")
	return nil
}

/* Users */

type createUserRequest struct {
	domain.CreateUserPayload
	Verified      bool `json:"verified"`
	PrivacyPolicy bool `json:"privacyPolicy"`
}

func (c *Client) CreateUser(ctx context.Context, p domain.CreateUserPayload) (*domain.Guest, error) {
	if err := c.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	// Door-created walk-ins are implicitly verified.
	req := createUserRequest{CreateUserPayload: p, Verified: true, PrivacyPolicy: true}
	var guest domain.Guest
	if err := c.do(ctx, http.MethodPut, "/api/user", nil, req, &guest); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &guest, nil
}

func (c *Client) ModifyUser(ctx context.Context, p domain.ModifyUserPayload) (*domain.Guest, error) {
	var guest domain.Guest
	if err := c.do(ctx, http.MethodPost, "/api/user", nil, p, &guest); err != nil {
		return nil, fmt.Errorf("modify user: %w", err)
	}
	return &guest, nil
}

func (c *Client) GetUser(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/api/user", nil, nil, &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (c *Client) SearchUsers(ctx context.Context, s ports.UserSearch) ([]domain.User, error) {
	query := url.Values{}
	if s.FirstName != nil {
		query.Set("first_name", *s.FirstName)
	}
	if s.LastName != nil {
		query.Set("last_name", *s.LastName)
	}
	if s.RoomNumber != nil {
		query.Set("room_number", strconv.FormatUint(uint64(*s.RoomNumber), 10))
	}
	if s.Residence != nil {
		query.Set("residence", string(*s.Residence))
	}
	if s.Email != nil {
		query.Set("email", *s.Email)
	}
	if len(query) == 0 {
		return nil, errors.New("search users: at least one filter is required")
	}

	var users []domain.User
	if err := c.do(ctx, http.MethodGet, "/api/user/search", query, nil, &users); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

/* Guests */

func (c *Client) GetGuestList(ctx context.Context) ([]domain.Guest, error) {
	var guests []domain.Guest
	if err := c.do(ctx, http.MethodGet, "/api/guests", nil, nil, &guests); err != nil {
		return nil, fmt.Errorf("get guest list: %w", err)
	}
	return guests, nil
}

func (c *Client) AddToGuestList(ctx context.Context, p domain.AddToGuestListPayload) (*domain.Guest, error) {
	var guest domain.Guest
	if err := c.do(ctx, http.MethodPut, "/api/guests", nil, p, &guest); err != nil {
		return nil, fmt.Errorf("add to guest list: %w", err)
	}
	return &guest, nil
}

func (c *Client) ModifyGuest(ctx context.Context, p domain.ModifyGuestPayload) (*domain.Guest, error) {
	if err := c.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("modify guest: %w", err)
	}

	var guest domain.Guest
	if err := c.do(ctx, http.MethodPost, "/api/guest", nil, p, &guest); err != nil {
		return nil, fmt.Errorf("modify guest: %w", err)
	}
	return &guest, nil
}

func (c *Client) RemoveFromGuestList(ctx context.Context, p domain.RemoveFromGuestListPayload) error {
	if err := c.do(ctx, http.MethodDelete, "/api/guests", nil, p, nil); err != nil {
		return fmt.Errorf("remove from guest list: %w", err)
	}
	return nil
}

type inviteRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
}

func (c *Client) InviteExtern(ctx context.Context, firstName, lastName, email string) error {
	req := inviteRequest{FirstName: firstName, LastName: lastName, Email: email}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("invite extern: %w", err)
	}
	if err := c.do(ctx, http.MethodPut, "/api/guests/invitee", nil, req, nil); err != nil {
		return fmt.Errorf("invite extern: %w", err)
	}
	return nil
}

/* Hosts and tutors */

type memberIDsRequest struct {
	Hosts  []string `json:"hosts,omitempty"`
	Tutors []string `json:"tutors,omitempty"`
}

func (c *Client) GetHosts(ctx context.Context) ([]domain.Member, error) {
	var members []domain.Member
	if err := c.do(ctx, http.MethodGet, "/api/hosts", nil, nil, &members); err != nil {
		return nil, fmt.Errorf("get hosts: %w", err)
	}
	return members, nil
}

func (c *Client) AddHostsByID(ctx context.Context, ids []string) ([]domain.Member, error) {
	var members []domain.Member
	if err := c.do(ctx, http.MethodPut, "/api/hosts", nil, memberIDsRequest{Hosts: ids}, &members); err != nil {
		return nil, fmt.Errorf("add hosts: %w", err)
	}
	return members, nil
}

func (c *Client) RemoveHostsByID(ctx context.Context, ids []string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/hosts", nil, memberIDsRequest{Hosts: ids}, nil); err != nil {
		return fmt.Errorf("remove hosts: %w", err)
	}
	return nil
}

func (c *Client) GetTutors(ctx context.Context) ([]domain.Member, error) {
	var members []domain.Member
	if err := c.do(ctx, http.MethodGet, "/api/tutors", nil, nil, &members); err != nil {
		return nil, fmt.Errorf("get tutors: %w", err)
	}
	return members, nil
}

func (c *Client) AddTutorsByID(ctx context.Context, ids []string) ([]domain.Member, error) {
	var members []domain.Member
	if err := c.do(ctx, http.MethodPut, "/api/tutors", nil, memberIDsRequest{Tutors: ids}, &members); err != nil {
		return nil, fmt.Errorf("add tutors: %w", err)
	}
	return members, nil
}

func (c *Client) RemoveTutorsByID(ctx context.Context, ids []string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/tutors", nil, memberIDsRequest{Tutors: ids}, nil); err != nil {
		return fmt.Errorf("remove tutors: %w", err)
	}
	return nil
}

/* Motto and config */

type mottoRequest struct {
	Motto       *string `json:"motto,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (c *Client) ModifyMotto(ctx context.Context, motto, description *string) error {
	if motto == nil && description == nil {
		return errors.New("modify motto: nothing to change")
	}
	if err := c.do(ctx, http.MethodPost, "/api/motto", nil, mottoRequest{Motto: motto, Description: description}, nil); err != nil {
		return fmt.Errorf("modify motto: %w", err)
	}
	return nil
}

func (c *Client) GetConfig(ctx context.Context) (*domain.Config, error) {
	var cfg domain.Config
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, nil, &cfg); err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return &cfg, nil
}

func (c *Client) ModifyConfig(ctx context.Context, cfg domain.Config) (*domain.Config, error) {
	var updated domain.Config
	if err := c.do(ctx, http.MethodPost, "/api/config", nil, cfg, &updated); err != nil {
		return nil, fmt.Errorf("modify config: %w", err)
	}
	return &updated, nil
}

/* Plumbing */

// errorEnvelope accepts both error body shapes seen in the wild:
// {"error": "..."} and {"message": "..."}.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base.JoinPath(path)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Session(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
		return nil
	}

	serr := &domain.StatusError{Code: res.StatusCode}
	var envelope errorEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err == nil {
		if envelope.Message != "" {
			serr.Message = envelope.Message
		} else {
			serr.Message = envelope.Error
		}
	}

	if res.StatusCode >= 500 {
		c.log.Warn().Int("status", res.StatusCode).Str("method", method).Str("path", path).
			Str("message", serr.Message).Msg("server fault")
	}
	return serr
}
