package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"openprices_sync/internal/core/models"
	"openprices_sync/pkg/logger"
	"openprices_sync/pkg/middleware"
)

var ErrProductNotFound = errors.New("product not found")

// APIClient reads single products from a flavor's public product API.
type APIClient struct {
	BaseURL string
	flavor  Flavor
	client  *http.Client
	limiter *rate.Limiter
	log     logger.Logger
}

func NewAPIClient(flavor Flavor, userAgent string, requestsPerMinute int, log logger.Logger) *APIClient {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	return &APIClient{
		BaseURL: flavor.APIBaseURL(),
		flavor:  flavor,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: middleware.Chain(nil, middleware.UserAgent(userAgent), middleware.PrometheusMiddleware),
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		log:     log,
	}
}

type productResponse struct {
	Status  int       `json:"status"`
	Code    string    `json:"code"`
	Product RawRecord `json:"product"`
}

func (c *APIClient) productURL(code string) string {
	fields := append([]string{"code", "lang", "lc", "images"}, models.FieldNames()...)
	q := url.Values{}
	q.Set("fields", strings.Join(fields, ","))
	return fmt.Sprintf("%s/api/v2/product/%s?%s", strings.TrimRight(c.BaseURL, "/"), url.PathEscape(code), q.Encode())
}

// GetProduct fetches one product and normalizes it through the same field
// set as the dump sync. The freshness rules of a dump do not apply here.
func (c *APIClient) GetProduct(ctx context.Context, code string) (*models.ProductFields, error) {
	if !ValidCode(code) {
		return nil, fmt.Errorf("invalid product code %q", code)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.productURL(code), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("request was cancelled: %w", ctx.Err())
		default:
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrProductNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-OK status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	var payload productResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if payload.Status != 1 || payload.Product == nil {
		return nil, ErrProductNotFound
	}

	fields := &models.ProductFields{}
	if err := ExtractFields(payload.Product, fields, c.log); err != nil {
		return nil, err
	}
	var images Images
	if raw, ok := payload.Product["images"]; ok {
		if err := json.Unmarshal(raw, &images); err != nil {
			c.log.Debug("product %s: ignoring images: %v", code, err)
		}
	}
	if imageURL := MainImageURL(c.flavor, code, readLang(payload.Product), images); imageURL != "" {
		fields.ImageURL = &imageURL
	}
	return fields, nil
}
