package uploadpipeline

import (
	"fmt"
	"strings"
)

// StoreRoute identifies one credentialed storage handle.
type StoreRoute struct {
	Provider string
	Class    BucketClass
}

// RoutedStore is a resolved handle: the client plus the bucket it is bound to.
type RoutedStore struct {
	Store  BlobStore
	Bucket string
}

// Router maps (provider, bucketClass) to concrete storage handles. Routes are
// registered once at startup and resolved by simple lookup; there is no
// runtime type dispatch. Permanent routes may additionally be overridden per
// top-level media type ("image", "video") so renditions land in the bucket
// appropriate to their mime type.
type Router struct {
	routes          map[StoreRoute]RoutedStore
	permanentByType map[string]RoutedStore
}

// NewRouter creates an empty routing table.
func NewRouter() *Router {
	return &Router{
		routes:          make(map[StoreRoute]RoutedStore),
		permanentByType: make(map[string]RoutedStore),
	}
}

// Register binds a storage handle to a route.
func (r *Router) Register(route StoreRoute, bucket string, store BlobStore) {
	r.routes[route] = RoutedStore{Store: store, Bucket: bucket}
}

// RegisterPermanentFor overrides the permanent handle for a top-level media
// type ("image", "video").
func (r *Router) RegisterPermanentFor(mediaType string, rs RoutedStore) {
	r.permanentByType[mediaType] = rs
}

// Resolve returns the handle for (provider, class).
func (r *Router) Resolve(provider string, class BucketClass) (RoutedStore, error) {
	rs, ok := r.routes[StoreRoute{Provider: provider, Class: class}]
	if !ok {
		return RoutedStore{}, fmt.Errorf("%w: provider=%s class=%s", ErrStoreNotFound, provider, class)
	}
	return rs, nil
}

// ResolvePermanent returns the permanent handle appropriate to a mime type,
// honoring per-media-type overrides.
func (r *Router) ResolvePermanent(provider, mimeType string) (RoutedStore, error) {
	mediaType := mimeType
	if i := strings.Index(mimeType, "/"); i > 0 {
		mediaType = mimeType[:i]
	}
	if rs, ok := r.permanentByType[mediaType]; ok {
		return rs, nil
	}
	return r.Resolve(provider, BucketClassPermanent)
}
