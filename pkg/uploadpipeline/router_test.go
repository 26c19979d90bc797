package uploadpipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
	memorystorage "github.com/tendant/upload-pipeline/pkg/uploadpipeline/storage/memory"
)

func TestRouterResolve(t *testing.T) {
	router := uploadpipeline.NewRouter()
	staging := memorystorage.New("s3-staging")
	permanent := memorystorage.New("s3-permanent")

	router.Register(uploadpipeline.StoreRoute{Provider: "s3", Class: uploadpipeline.BucketClassStaging},
		"s3-staging", staging)
	router.Register(uploadpipeline.StoreRoute{Provider: "s3", Class: uploadpipeline.BucketClassPermanent},
		"s3-permanent", permanent)

	t.Run("resolves registered routes", func(t *testing.T) {
		rs, err := router.Resolve("s3", uploadpipeline.BucketClassStaging)
		require.NoError(t, err)
		assert.Equal(t, "s3-staging", rs.Bucket)

		rs, err = router.Resolve("s3", uploadpipeline.BucketClassPermanent)
		require.NoError(t, err)
		assert.Equal(t, "s3-permanent", rs.Bucket)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := router.Resolve("gcs", uploadpipeline.BucketClassStaging)
		assert.ErrorIs(t, err, uploadpipeline.ErrStoreNotFound)
	})

	t.Run("unknown class", func(t *testing.T) {
		_, err := router.Resolve("s3", uploadpipeline.BucketClass("archive"))
		assert.ErrorIs(t, err, uploadpipeline.ErrStoreNotFound)
	})
}

func TestRouterResolvePermanent(t *testing.T) {
	router := uploadpipeline.NewRouter()
	permanent := memorystorage.New("s3-permanent")
	video := memorystorage.New("s3-video")

	router.Register(uploadpipeline.StoreRoute{Provider: "s3", Class: uploadpipeline.BucketClassPermanent},
		"s3-permanent", permanent)
	router.RegisterPermanentFor("video", uploadpipeline.RoutedStore{Store: video, Bucket: "s3-video"})

	t.Run("media type override", func(t *testing.T) {
		rs, err := router.ResolvePermanent("s3", "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, "s3-video", rs.Bucket)
	})

	t.Run("falls back to the permanent route", func(t *testing.T) {
		rs, err := router.ResolvePermanent("s3", "image/jpeg")
		require.NoError(t, err)
		assert.Equal(t, "s3-permanent", rs.Bucket)

		rs, err = router.ResolvePermanent("s3", "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, "s3-permanent", rs.Bucket)
	})

	t.Run("unknown provider without override", func(t *testing.T) {
		_, err := router.ResolvePermanent("gcs", "image/jpeg")
		assert.ErrorIs(t, err, uploadpipeline.ErrStoreNotFound)
	})
}
