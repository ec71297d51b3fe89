package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streetsight/internal/config"
	"streetsight/pkg/log"
)

// Address is the best-effort resolution of a coordinate. Zero-valued
// fields mean the geocoder had no answer; the pipeline continues either
// way.
type Address struct {
	Formatted string `json:"formatted_address"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zipcode   string `json:"zipcode"`
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress  string `json:"formatted_address"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// Client resolves coordinates to street addresses through the reverse
// geocoding API, with a local cache so a coordinate visited for four
// headings is only resolved once.
type Client struct {
	conf    config.GoogleConfig
	httpCli *http.Client
	cache   *Cache
}

func NewClient(conf config.GoogleConfig, cache *Cache) *Client {
	return &Client{
		conf:  conf,
		cache: cache,
		httpCli: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Resolve returns the address for a coordinate. Failures are soft: the
// zero Address comes back with a nil error unless the transport itself
// failed.
func (c *Client) Resolve(ctx context.Context, lat, lon float64) (Address, error) {
	key := fmt.Sprintf("%.6f,%.6f", lat, lon)
	if c.cache != nil {
		if addr, ok := c.cache.Get(key); ok {
			return addr, nil
		}
	}

	params := url.Values{}
	params.Set("latlng", key)
	params.Set("key", c.conf.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.conf.GeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return Address{}, err
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return Address{}, err
	}
	defer resp.Body.Close()

	logger := log.GetLogger(ctx)
	if resp.StatusCode != http.StatusOK {
		logger.Warnf("failed to retrieve address for coordinate (%f, %f): status %d", lat, lon, resp.StatusCode)
		return Address{}, nil
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.WithError(err).Warnf("failed to parse geocode response for (%f, %f)", lat, lon)
		return Address{}, nil
	}
	if body.Status != "OK" || len(body.Results) == 0 {
		logger.Warnf("failed to retrieve address for coordinate (%f, %f): status %s", lat, lon, body.Status)
		return Address{}, nil
	}

	addr := parseResult(&body)
	if c.cache != nil {
		c.cache.Set(key, addr)
	}
	return addr, nil
}

func parseResult(body *geocodeResponse) Address {
	result := body.Results[0]
	addr := Address{Formatted: result.FormattedAddress}

	var streetNumber, streetName string
	for _, component := range result.AddressComponents {
		for _, t := range component.Types {
			switch t {
			case "street_number":
				streetNumber = component.LongName
			case "route":
				streetName = component.LongName
				addr.Street = strings.TrimSpace(streetNumber + " " + streetName)
			case "locality":
				addr.City = component.LongName
			case "administrative_area_level_1":
				addr.State = component.ShortName
			case "postal_code":
				addr.Zipcode = component.LongName
			}
		}
	}
	return addr
}
