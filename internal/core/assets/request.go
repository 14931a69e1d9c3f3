// Package assets is the in-memory asset provider: a catalog of bundles, per
// category decoders, and a reference counted cache.
package assets

import "strings"

// BundleRequest identifies one asset inside a bundle.
type BundleRequest struct {
	Category string
	Bundle   string
	Asset    string
}

// Request builds the conventional request for a named asset: bundle and
// asset share the name, lower-cased.
func Request(category, name string) BundleRequest {
	n := strings.ToLower(name)
	return BundleRequest{Category: strings.ToLower(category), Bundle: n, Asset: n}
}

// Normalize lower-cases every part of the request.
func (r BundleRequest) Normalize() BundleRequest {
	return BundleRequest{
		Category: strings.ToLower(r.Category),
		Bundle:   strings.ToLower(r.Bundle),
		Asset:    strings.ToLower(r.Asset),
	}
}

// Key is the cache key of the asset, also used by Release.
func (r BundleRequest) Key() string {
	n := r.Normalize()
	return n.Category + "/" + n.Bundle + "/" + n.Asset
}

func (r BundleRequest) String() string { return r.Key() }
