// Package fetcher provides field-values fetchers.
//
// The http subpackage talks to the values API. Caching wraps any fetcher
// with a ValuesCache keyed by a hash of the request.
package fetcher
