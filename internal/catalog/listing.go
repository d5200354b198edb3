// Package catalog imports candidate product listings from merchant feeds
// (CSV, XLSX, FTP-hosted) and converts them into attribute observations the
// matching core can compare against.
package catalog

import (
	"strconv"
	"strings"
	"time"

	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
)

// Listing is one candidate product from a merchant feed.
type Listing struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	URL        string            `json:"url,omitempty"`
	ImageURL   string            `json:"image_url,omitempty"`
	Price      float64           `json:"price,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ToObservation converts the listing's structured attributes into a
// SourceObservation. Only attributes the schema declares are carried over;
// a feed column the schema does not know about cannot influence matching.
// feedConfidence is the trust placed in merchant-supplied values (0-100).
func (l Listing) ToObservation(cs *schema.CategorySchema, feedConfidence float64, at time.Time) model.SourceObservation {
	obs := model.SourceObservation{
		Source:      model.ListingEvidence(l.URL, at),
		Category:    cs.Name,
		Values:      make(map[string]model.ObservedValue, len(cs.Attributes)),
		ExtractedAt: at.UTC(),
	}

	var confSum float64
	var confN int
	for _, def := range cs.Attributes {
		raw, ok := l.Attributes[def.Name]
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			obs.Values[def.Name] = model.ObservedValue{Observed: false}
			continue
		}
		obs.Values[def.Name] = model.ObservedValue{
			Raw:        raw,
			Observed:   true,
			Confidence: feedConfidence,
		}
		confSum += feedConfidence
		confN++
	}
	if confN > 0 {
		obs.OverallConfidence = confSum / float64(confN)
	}
	return obs
}

// reserved feed columns that map to Listing fields rather than attributes.
const (
	colID       = "id"
	colName     = "name"
	colURL      = "url"
	colImageURL = "image_url"
	colPrice    = "price"
)

// listingFromRecord builds a Listing from one feed row using the header map.
func listingFromRecord(header []string, record []string) Listing {
	l := Listing{Attributes: make(map[string]string)}
	for i, col := range header {
		if i >= len(record) {
			break
		}
		val := strings.TrimSpace(record[i])
		switch col {
		case colID:
			l.ID = val
		case colName:
			l.Name = val
		case colURL:
			l.URL = val
		case colImageURL:
			l.ImageURL = val
		case colPrice:
			if p, err := strconv.ParseFloat(val, 64); err == nil {
				l.Price = p
			}
		default:
			if val != "" {
				l.Attributes[col] = val
			}
		}
	}
	return l
}

// normalizeHeader lowercases and trims column names so feeds with varying
// header casing map consistently.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}
