package polymarket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// maxErrorBody caps how much of a failed response is echoed into errors.
const maxErrorBody = 512

// httpDoer issues JSON GET requests against one API root and maps failures
// onto domain errors.
type httpDoer struct {
	baseURL    string
	httpClient *http.Client
}

func newHTTPDoer(baseURL string, timeout time.Duration) *httpDoer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpDoer{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *httpDoer) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	target := d.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstreamUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstreamStatus, statusCode, bodyStr)
	}
}
