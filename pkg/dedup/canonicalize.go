/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dedup runs the three-stage deduplication pipeline: URL
// canonicalization, exact content hash, and title-similarity clustering.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// trackingParams are stripped from query strings during canonicalization.
// utm_* is a prefix match (utm_source, utm_medium, ... and any future
// utm_ variant); the rest are exact names.
var trackingParams = map[string]bool{
	"ref": true, "source": true,
	"fbclid": true, "gclid": true, "msclkid": true, "mc_cid": true,
	"mc_eid": true, "affiliate": true, "partner": true, "tracking": true,
	"_ga": true, "ncid": true, "sr_share": true,
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	return trackingParams[k]
}

var punctRE = regexp.MustCompile(`[^\w\s]`)

// CanonicalizeURL lowercases scheme and host, strips tracking query
// params, drops the fragment, and trims a trailing path slash. Returns
// the input unchanged if it fails to parse.
func CanonicalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	filtered := url.Values{}
	for k, vs := range q {
		if !isTrackingParam(k) {
			filtered[k] = vs
		}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = filtered.Encode()
	u.Fragment = ""

	return u.String()
}

// NormalizeTitle applies NFKC normalization, lowercasing, punctuation
// stripping, and whitespace collapsing — the same transform used for
// both content hashing and title-similarity comparison.
func NormalizeTitle(title string) string {
	if title == "" {
		return ""
	}
	t := norm.NFKC.String(title)
	t = strings.ToLower(t)
	t = punctRE.ReplaceAllString(t, " ")
	fields := strings.Fields(t)
	return strings.Join(fields, " ")
}

// ContentHash computes sha256(title_normalized|published_date|source),
// the stage-2 exact-match key.
func ContentHash(title string, publishedAt time.Time, source string) string {
	titleNorm := NormalizeTitle(title)
	var dateStr string
	if !publishedAt.IsZero() {
		dateStr = publishedAt.UTC().Format("2006-01-02")
	}
	content := titleNorm + "|" + dateStr + "|" + source
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// titleTokens returns the normalized title's word set for Jaccard use.
func titleTokens(title string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(NormalizeTitle(title)) {
		out[tok] = struct{}{}
	}
	return out
}
