package registrar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

// RetryConfig конфигурация для retry логики транспортных сбоев.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Client — HTTP-клиент API регистратора.
//
// Повторяются только транспортные сбои (сетевые ошибки, 5xx): неоднозначные
// бизнес-ответы никогда не ретраятся вслепую — они возвращаются как данные
// и проходят через классификатор и state machine.
type Client struct {
	baseURL    string
	authUserID string
	apiKey     string

	httpClient *http.Client
	retry      RetryConfig
	breaker    *CircuitBreaker
	logger     *log.Entry
}

// Option настраивает Client.
type Option func(*Client)

// WithLogger задаёт логгер клиента.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient подменяет http.Client (таймаут клиента — верхняя граница одного вызова).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuth задаёт учётные данные API регистратора.
func WithAuth(userID, apiKey string) Option {
	return func(c *Client) {
		c.authUserID = userID
		c.apiKey = apiKey
	}
}

// WithRetryConfig задаёт параметры повторов транспортных сбоев.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithCircuitBreaker защищает все вызовы регистратора общим circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// NewClient создаёт клиента API регистратора.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry:  DefaultRetryConfig(),
		logger: log.New().WithField("component", "registrar-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register выполняет запрос регистрации домена и возвращает сырой ответ.
// Любой завершившийся не-5xx обмен — это бизнес-ответ для классификатора,
// даже если HTTP-код неуспешный. Ошибка возвращается только при транспортной
// недоступности после всех retry.
func (c *Client) Register(ctx context.Context, req domain.RegistrationRequest) (domain.RegistrarResponse, error) {
	params := url.Values{}
	params.Set("domain-name", req.DomainName)
	params.Set("years", strconv.Itoa(int(req.RegistrationYears)))
	params.Set("customer-id", req.CustomerID)
	params.Set("reg-contact-id", req.ContactID)
	params.Set("admin-contact-id", req.AdminContactID)
	params.Set("tech-contact-id", req.TechContactID)
	params.Set("billing-contact-id", req.BillingContactID)
	for _, ns := range req.NameServers {
		params.Add("ns", ns)
	}
	params.Set("invoice-option", "NoInvoice")

	var resp domain.RegistrarResponse
	err := c.execute(ctx, "register", func(ctx context.Context) error {
		r, err := c.post(ctx, "/api/domains/register.json", params)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return domain.RegistrarResponse{}, err
	}
	return resp, nil
}

// CheckAvailability запрашивает занятость точной пары (sld, tld). Ответ
// интерпретируется только по ключу «sld.tld»: общий поиск может молча
// подмешать чужие результаты, поэтому любое частичное совпадение — unknown.
func (c *Client) CheckAvailability(ctx context.Context, sld, tld string) (domain.AvailabilityResult, error) {
	params := url.Values{}
	params.Set("domain-name", sld)
	params.Set("tlds", tld)

	var resp domain.RegistrarResponse
	err := c.execute(ctx, "check-availability", func(ctx context.Context) error {
		r, err := c.get(ctx, "/api/domains/available.json", params)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return domain.AvailabilityResult{}, err
	}

	return interpretAvailability(resp, sld+"."+tld), nil
}

// interpretAvailability разбирает ответ availability-запроса для точного имени.
func interpretAvailability(resp domain.RegistrarResponse, fqdn string) domain.AvailabilityResult {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.AvailabilityResult{
			State:  domain.AvailabilityUnknown,
			Detail: fmt.Sprintf("availability check returned status %d", resp.StatusCode),
		}
	}

	var statuses map[string]struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &statuses); err != nil {
		return domain.AvailabilityResult{
			State:  domain.AvailabilityUnknown,
			Detail: "availability response is not parseable",
		}
	}

	entry, ok := statuses[fqdn]
	if !ok {
		// Точного ключа нет — считаем результат неубедительным, а не отрицательным.
		return domain.AvailabilityResult{
			State:  domain.AvailabilityUnknown,
			Detail: "availability response does not contain exact domain",
		}
	}

	switch strings.ToLower(entry.Status) {
	case "regthroughus", "regthroughothers", "registered", "taken":
		return domain.AvailabilityResult{State: domain.AvailabilityTaken, Detail: entry.Status}
	case "available":
		return domain.AvailabilityResult{State: domain.AvailabilityAvailable, Detail: entry.Status}
	default:
		return domain.AvailabilityResult{State: domain.AvailabilityUnknown, Detail: entry.Status}
	}
}

// execute оборачивает один логический вызов регистратора в retry по транспортным
// сбоям и, при наличии, в circuit breaker.
func (c *Client) execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	run := func() error {
		return c.executeWithRetry(ctx, operation, fn)
	}
	if c.breaker != nil {
		return c.breaker.Execute(operation, run)
	}
	return run()
}

func (c *Client) executeWithRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := c.retry.InitialDelay

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				c.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("Registrar call succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if attempt < c.retry.MaxAttempts {
			c.logger.WithFields(log.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay,
				"error":     err,
			}).Warn("Registrar call failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}

			// Экспоненциальная задержка с ограничением
			delay = time.Duration(float64(delay) * c.retry.BackoffFactor)
			if delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}
	}

	c.logger.WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": c.retry.MaxAttempts,
		"error":        lastErr,
	}).Error("Registrar call failed after all retry attempts")

	return fmt.Errorf("%w: %v", domain.ErrRegistrarUnavailable, lastErr)
}

func (c *Client) post(ctx context.Context, path string, params url.Values) (domain.RegistrarResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(c.withAuth(params).Encode()))
	if err != nil {
		return domain.RegistrarResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (domain.RegistrarResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+c.withAuth(params).Encode(), nil)
	if err != nil {
		return domain.RegistrarResponse{}, err
	}
	return c.do(req)
}

func (c *Client) withAuth(params url.Values) url.Values {
	out := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	if c.authUserID != "" {
		out.Set("auth-userid", c.authUserID)
	}
	if c.apiKey != "" {
		out.Set("api-key", c.apiKey)
	}
	return out
}

// do выполняет один HTTP-обмен. 5xx считается транспортным сбоем и уходит
// в retry; любой другой код возвращается как сырой бизнес-ответ.
func (c *Client) do(req *http.Request) (domain.RegistrarResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RegistrarResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.RegistrarResponse{}, err
	}

	if resp.StatusCode >= 500 {
		return domain.RegistrarResponse{}, fmt.Errorf("registrar returned status %d", resp.StatusCode)
	}

	return domain.RegistrarResponse{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}, nil
}

var _ domain.RegistrarClient = (*Client)(nil)
