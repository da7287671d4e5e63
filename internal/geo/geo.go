// Package geo resolves a joining client's coarse location. The
// production deployment sits behind an edge proxy that stamps
// geolocation headers; when those are absent an optional one-shot HTTP
// lookup fills in. Failures degrade to an empty location and never
// block or fail a join.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	countryHeader = "CF-IPCountry"
	cityHeader    = "CF-IPCity"

	lookupTimeout = 2 * time.Second
)

// Location is display/geolocation metadata captured at first join.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// Service resolves client locations.
type Service struct {
	lookupURL string // empty disables the network lookup
	client    *http.Client
}

func NewService(lookupURL string) *Service {
	return &Service{
		lookupURL: strings.TrimRight(strings.TrimSpace(lookupURL), "/"),
		client:    &http.Client{Timeout: lookupTimeout},
	}
}

// NewServiceFromEnv reads GEO_LOOKUP_URL; unset means headers-only.
func NewServiceFromEnv() *Service {
	return NewService(os.Getenv("GEO_LOOKUP_URL"))
}

// Resolve prefers edge-stamped headers, then the configured lookup
// endpoint, then gives up quietly.
func (s *Service) Resolve(ctx context.Context, remoteAddr string, header http.Header) Location {
	if country := header.Get(countryHeader); country != "" {
		return Location{Country: country, City: header.Get(cityHeader)}
	}
	if s == nil || s.lookupURL == "" {
		return Location{}
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.lookupURL+"/"+url.PathEscape(host), nil)
	if err != nil {
		return Location{}
	}
	res, err := s.client.Do(req)
	if err != nil {
		log.Printf("[Geo] lookup for %s failed: %v", host, err)
		return Location{}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		log.Printf("[Geo] lookup for %s failed: %v", host, fmt.Errorf("status %d", res.StatusCode))
		return Location{}
	}

	var loc Location
	if err := json.NewDecoder(res.Body).Decode(&loc); err != nil {
		log.Printf("[Geo] lookup for %s returned bad payload: %v", host, err)
		return Location{}
	}
	return loc
}
