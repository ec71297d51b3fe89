package streetview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"streetsight/internal/config"
)

// Client fetches street-level frames for a coordinate and heading.
type Client struct {
	conf    config.GoogleConfig
	httpCli *http.Client
}

func NewClient(conf config.GoogleConfig) *Client {
	return &Client{
		conf: conf,
		httpCli: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch returns the raw JPEG for one coordinate and heading. Any non-200
// response is a fetch failure.
func (c *Client) Fetch(ctx context.Context, lat, lon float64, heading int) ([]byte, error) {
	params := url.Values{}
	params.Set("size", c.conf.Size)
	params.Set("fov", strconv.Itoa(c.conf.FOV))
	params.Set("heading", strconv.Itoa(heading))
	params.Set("pitch", strconv.Itoa(c.conf.Pitch))
	params.Set("key", c.conf.APIKey)
	params.Set("location", fmt.Sprintf("%f,%f", lat, lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.conf.StreetViewURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("street view returned status %d for (%f, %f)", resp.StatusCode, lat, lon)
	}

	return io.ReadAll(resp.Body)
}
