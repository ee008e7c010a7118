package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// HTTPFetcher calls GET {baseURL}/profiles/{id}. Requests are throttled
// so enrichment bursts stay inside the upstream quota.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPFetcher(baseURL string, perSecond float64, burst int, timeout time.Duration) *HTTPFetcher {
	if burst <= 0 {
		burst = 1
	}
	return &HTTPFetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

type profileResponse struct {
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}

func (f *HTTPFetcher) FetchProfile(ctx context.Context, subjectID string) (Profile, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Profile{}, fmt.Errorf("%w: rate limit: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.baseURL+"/profiles/"+url.PathEscape(subjectID), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Profile{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return Profile{Nickname: body.Nickname, AvatarURL: body.AvatarURL}, nil
}
