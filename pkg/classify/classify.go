// Package classify decides whether a fetched product page looks purchasable.
//
// Detection is lexical on purpose: markup-based selectors break on every shop
// redesign, while keyword matching degrades gracefully. Note the asymmetry:
// a page that never says "out of stock" only needs one purchasability marker
// to classify as in stock, so unrelated "buy now" text elsewhere on the page
// can yield a false positive.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

var unavailabilityMarkers = []string{
	"out of stock",
	"currently unavailable",
	"sold out",
}

var purchasabilityMarkers = []string{
	"add to cart",
	"purchase",
	"buy now",
}

// InStock reports whether the page content appears to offer the item for
// sale: no unavailability marker present and at least one purchasability
// marker present. Empty content is never in stock.
func InStock(content string) bool {
	c := strings.ToLower(content)
	for _, m := range unavailabilityMarkers {
		if strings.Contains(c, m) {
			return false
		}
	}
	for _, m := range purchasabilityMarkers {
		if strings.Contains(c, m) {
			return true
		}
	}
	return false
}

// Fingerprint returns a short stable digest of the exact page bytes, used in
// notification bodies so an operator can correlate an alert with a page
// snapshot. It never influences the verdict.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}
