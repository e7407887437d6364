package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"strikedesk/internal/metrics"
	"strikedesk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// Client talks to the external booking/customer/membership service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// New constructs a client. baseURL may carry a path prefix such as /api.
func New(baseURL, apiKey string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "bookingapi").Logger()
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     &l,
	}
}

// UseRedisCache configures optional Redis caching of the availability feed.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseRateLimit throttles outbound calls. rps <= 0 disables throttling.
func (c *Client) UseRateLimit(rps float64, burst int) {
	if rps <= 0 {
		c.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// GetSlots fetches the availability feed of a center.
func (c *Client) GetSlots(ctx context.Context, centerID int) (*models.SlotFeed, error) {
	cacheKey := slotsCacheKey(centerID)
	var feed models.SlotFeed

	if c.readCache(ctx, cacheKey, &feed) {
		return &feed, nil
	}

	path := "/slots?centerId=" + strconv.Itoa(centerID)
	if err := c.send(ctx, http.MethodGet, path, nil, nil, &feed); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, feed)
	return &feed, nil
}

// InvalidateSlots drops the cached feed of a center after its bookings changed.
func (c *Client) InvalidateSlots(ctx context.Context, centerID int) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, slotsCacheKey(centerID)).Err(); err != nil {
		c.logger.Warn().Err(err).Int("center_id", centerID).Msg("failed to invalidate availability cache")
	}
}

// ListBookings returns every booking known to the service.
func (c *Client) ListBookings(ctx context.Context) ([]models.Booking, error) {
	var out []models.Booking
	if err := c.send(ctx, http.MethodGet, "/bookings", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindBooking re-reads a single booking. The service has no per-id endpoint,
// so this filters the full list.
func (c *Client) FindBooking(ctx context.Context, id string) (*models.Booking, error) {
	list, err := c.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
}

// CreateBookings posts a whole batch in one request.
// The returned slice is the service's echo of the batch when it sends one, nil otherwise.
func (c *Client) CreateBookings(ctx context.Context, batch []models.Booking, idempotencyKey string) ([]models.Booking, error) {
	var raw json.RawMessage
	headers := idempotencyHeader(idempotencyKey)
	if err := c.send(ctx, http.MethodPost, "/bookings", headers, batch, &raw); err != nil {
		return nil, err
	}

	var created []models.Booking
	if len(raw) == 0 || json.Unmarshal(raw, &created) != nil {
		return nil, nil
	}
	return created, nil
}

// UpdateBookingStatus applies a lifecycle action and returns the stored record.
func (c *Client) UpdateBookingStatus(ctx context.Context, update models.StatusUpdate) (*models.Booking, error) {
	var raw json.RawMessage
	if err := c.send(ctx, http.MethodPatch, "/bookings", nil, update, &raw); err != nil {
		return nil, err
	}

	var b models.Booking
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil || b.ID == "" {
		// Some deployments answer with an acknowledgement only.
		return nil, nil
	}
	return &b, nil
}

// CreateCustomer registers a customer. The key lets the service drop duplicate retries.
func (c *Client) CreateCustomer(ctx context.Context, customer models.Customer, idempotencyKey string) error {
	return c.send(ctx, http.MethodPost, "/customers", idempotencyHeader(idempotencyKey), customer, nil)
}

// GetCustomers returns every customer registered under phone (0, 1 or many).
func (c *Client) GetCustomers(ctx context.Context, phone string) ([]models.Customer, error) {
	var out []models.Customer
	if err := c.send(ctx, http.MethodPost, "/get-customers", nil, models.PhoneQuery{Phone: phone}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMemberships returns the memberships of phone, or all memberships when phone is empty.
func (c *Client) GetMemberships(ctx context.Context, phone string) ([]models.Membership, error) {
	var out []models.Membership
	if err := c.send(ctx, http.MethodPost, "/get-memberships", nil, models.PhoneQuery{Phone: phone}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecrementOvers consumes overs from the customer's membership.
func (c *Client) DecrementOvers(ctx context.Context, phone string, overs int) error {
	return c.send(ctx, http.MethodPatch, "/memberships", nil, models.OversDecrement{Phone: phone, Overs: overs}, nil)
}

// HealthCheck checks if the booking service answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *Client) send(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
		}
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	endpoint := endpointLabel(method, path)
	started := time.Now()
	err = c.do(req, out)
	metrics.ObserveServiceRequest(endpoint, outcome(err), time.Since(started).Seconds())
	if err != nil {
		c.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("booking service call failed")
	}
	return err
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{
			Method: req.Method,
			Path:   req.URL.Path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(excerpt)),
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, statusErr)
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return fmt.Errorf("%w: %w", ErrUnavailable, statusErr)
		default:
			return fmt.Errorf("%w: %w", ErrRejected, statusErr)
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		*raw = bytes.TrimSpace(data)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body from %s %s", ErrDecode, req.Method, req.URL.Path)
		}
		return fmt.Errorf("%w: %s %s: %w", ErrDecode, req.Method, req.URL.Path, err)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func slotsCacheKey(centerID int) string {
	return "strikedesk:slots:" + strconv.Itoa(centerID)
}

func idempotencyHeader(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Idempotency-Key": key}
}

func endpointLabel(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return method + " " + path
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDecode):
		return "decode"
	default:
		return "rejected"
	}
}
