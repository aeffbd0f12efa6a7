package slotapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"glazestudio/internal/domain"
	"glazestudio/internal/pkg/logger"
)

const IdempotencyHeader = "Idempotency-Key"

type tokenKey struct{}

// WithToken attaches the backend session token to ctx. Requests made with
// the returned context carry it as a bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the backend token attached by WithToken.
func TokenFrom(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey{}).(string)
	return v
}

// Client is a thin wrapper around the backend slot API.
type Client struct {
	origin     string
	httpClient *http.Client
	log        *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = logger.OrNop(l)
	}
}

func New(origin string, opts ...Option) (*Client, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid backend origin %q", origin)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("invalid backend origin %q: need http(s)://host[:port]", origin)
	}

	c := &Client{
		origin:     strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Origin is the backend base URL, without a trailing slash.
func (c *Client) Origin() string {
	return c.origin
}

type createSlotRequest struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	IsBooked bool   `json:"is_booked"`
}

type bookRequest struct {
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Detail  string `json:"detail"`
}

type deleteAllResponse struct {
	OK      bool `json:"ok"`
	Deleted int  `json:"deleted"`
}

// ListAll fetches the full slot collection.
func (c *Client) ListAll(ctx context.Context) ([]domain.Slot, error) {
	var out []domain.Slot
	if err := c.do(ctx, http.MethodGet, "/slots/", nil, nil, &out, classifyRead); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Slot{}
	}
	return out, nil
}

// ListByDate fetches the slots of one calendar date (YYYY-MM-DD).
func (c *Client) ListByDate(ctx context.Context, date string) ([]domain.Slot, error) {
	if date == "" {
		return nil, errors.Mark(errors.New("date is required"), ErrValidation)
	}
	var out []domain.Slot
	if err := c.do(ctx, http.MethodGet, "/slots/"+url.PathEscape(date), nil, nil, &out, classifyRead); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Slot{}
	}
	return out, nil
}

// Create asks the backend for one open slot. A non-empty idempotencyKey is
// forwarded in the Idempotency-Key header.
func (c *Client) Create(ctx context.Context, date, hhmm, idempotencyKey string) (*domain.Slot, error) {
	var hdr http.Header
	if idempotencyKey != "" {
		hdr = http.Header{IdempotencyHeader: []string{idempotencyKey}}
	}

	var out domain.Slot
	req := createSlotRequest{Date: date, Time: hhmm, IsBooked: false}
	if err := c.do(ctx, http.MethodPost, "/slots/", hdr, req, &out, classifyWrite); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteOne(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/slots/"+strconv.FormatInt(id, 10), nil, nil, nil, classifyWrite)
}

// DeleteAll removes every slot and returns how many were deleted.
func (c *Client) DeleteAll(ctx context.Context) (int, error) {
	var out deleteAllResponse
	if err := c.do(ctx, http.MethodDelete, "/slots_all/", nil, nil, &out, classifyWrite); err != nil {
		return 0, err
	}
	if !out.OK {
		return 0, errors.Mark(errors.New("delete all slots: backend did not acknowledge"), ErrProtocol)
	}
	return out.Deleted, nil
}

// Book reserves a slot. The backend is the only judge of conflicts.
func (c *Client) Book(ctx context.Context, id int64, clientName, clientEmail string) error {
	req := bookRequest{ClientName: clientName, ClientEmail: clientEmail}
	return c.do(ctx, http.MethodPost, "/book/"+strconv.FormatInt(id, 10), nil, req, nil, classifyWrite)
}

// Login exchanges credentials for an opaque backend token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out loginResponse
	err := c.do(ctx, http.MethodPost, "/login", nil, loginRequest{Username: username, Password: password}, &out, classifyLogin)
	if err != nil {
		return "", err
	}
	if !out.Success {
		apiErr := &APIError{Method: http.MethodPost, Path: "/login", Status: http.StatusOK, Detail: out.Detail}
		return "", errors.Mark(apiErr, ErrUnauthorized)
	}
	if out.Token == "" {
		return "", errors.Mark(errors.New("login: empty token in response"), ErrProtocol)
	}
	return out.Token, nil
}

func classifyLogin(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusUnprocessableEntity:
		return ErrValidation
	default:
		return ErrNetwork
	}
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	hdr http.Header,
	body any,
	out any,
	classify func(status int) error,
) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "%s %s: encode body", method, path)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.origin+path, reader)
	if err != nil {
		return errors.Wrapf(err, "%s %s: build request", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("backend request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return errors.Mark(errors.Wrapf(err, "%s %s", method, path), ErrNetwork)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s %s: read body", method, path), ErrNetwork)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Detail: parseDetail(raw),
		}
		c.log.Debug("backend rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", apiErr.Detail),
		)
		return errors.Mark(apiErr, classify(resp.StatusCode))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		if out != nil {
			return errors.Mark(errors.Newf("%s %s: empty response body", method, path), ErrProtocol)
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Mark(errors.Wrapf(err, "%s %s: decode response", method, path), ErrProtocol)
	}
	return nil
}
