package registry

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Query describes one page of a registry search.
type Query struct {
	// Text is the free-text search term.
	Text string

	// Size is the page size (registry maximum is 250).
	Size int

	// From is the zero-based result offset.
	From int

	// Optional relevance weights in [0, 1]. Zero values are omitted from the
	// request so the registry applies its own defaults.
	Quality     float64
	Popularity  float64
	Maintenance float64
}

// Values encodes the query for the /-/v1/search endpoint.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("text", q.Text)
	if q.Size > 0 {
		v.Set("size", strconv.Itoa(q.Size))
	}
	if q.From > 0 {
		v.Set("from", strconv.Itoa(q.From))
	}
	if q.Quality > 0 {
		v.Set("quality", strconv.FormatFloat(q.Quality, 'f', -1, 64))
	}
	if q.Popularity > 0 {
		v.Set("popularity", strconv.FormatFloat(q.Popularity, 'f', -1, 64))
	}
	if q.Maintenance > 0 {
		v.Set("maintenance", strconv.FormatFloat(q.Maintenance, 'f', -1, 64))
	}
	return v
}

// Package is one search match. Name is the identity key: two results with the
// same Name refer to the same package.
type Package struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Date        string   `json:"date"`
	Links       Links    `json:"links"`
	Publisher   Contact  `json:"publisher"`
}

// Links holds the package's external URLs.
type Links struct {
	NPM        string `json:"npm"`
	Homepage   string `json:"homepage"`
	Repository string `json:"repository"`
	Bugs       string `json:"bugs"`
}

// Contact identifies a registry user.
type Contact struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SearchPage is one page of search results.
//
// Total is the upstream's estimate of all matches for this exact query text.
// It is not authoritative: differently-worded queries against the same corpus
// may report inconsistent totals, and the value may shift between pages.
// Treat it as a hint, never as a stable count.
type SearchPage struct {
	Items []Package
	Total int
}

// searchResponse mirrors the wire format of /-/v1/search.
type searchResponse struct {
	Objects []struct {
		Package Package `json:"package"`
	} `json:"objects"`
	Total int `json:"total"`
}

// Packument is the registry's full document for one package. Versions stay
// raw: callers needing version metadata decode the slice they care about.
type Packument struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	DistTags    map[string]string          `json:"dist-tags"`
	License     string                     `json:"license"`
	Versions    map[string]json.RawMessage `json:"versions"`
	Time        map[string]string          `json:"time"`
}

// Latest returns the version tagged "latest", or an error if the tag is absent.
func (p *Packument) Latest() (string, error) {
	v, ok := p.DistTags["latest"]
	if !ok {
		return "", fmt.Errorf("packument %s: no latest dist-tag", p.Name)
	}
	return v, nil
}
