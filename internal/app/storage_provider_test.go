package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
	"github.com/yungbote/hypermind-backend/internal/platform/objectstore"
)

func stubObjectStoreEnv(t *testing.T, cfg objectstore.Config, cfgErr error, modeSet bool) {
	t.Helper()
	prevEnv, prevMode := objectStoreFromEnv, objectStoreModeIsSet
	objectStoreFromEnv = func() (objectstore.Config, error) { return cfg, cfgErr }
	objectStoreModeIsSet = func() bool { return modeSet }
	t.Cleanup(func() { objectStoreFromEnv, objectStoreModeIsSet = prevEnv, prevMode })
}

func TestClassifyStorageProviderBootstrapError(t *testing.T) {
	cases := []struct {
		src  error
		want StorageProviderBootstrapErrorCode
	}{
		{&objectstore.ConfigError{Code: objectstore.ErrInvalidMode}, StorageProviderBootstrapErrorInvalidMode},
		{&objectstore.ConfigError{Code: objectstore.ErrMissingEmulatorHost}, StorageProviderBootstrapErrorMissingEmulatorHost},
		{&objectstore.ConfigError{Code: objectstore.ErrInvalidEmulatorHost}, StorageProviderBootstrapErrorInvalidEmulatorHost},
		{&objectstore.ConfigError{Code: objectstore.ErrMissingMinIO}, StorageProviderBootstrapErrorInvalidConfig},
		{errors.New("dial tcp: refused"), StorageProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		err := classifyStorageProviderBootstrapError(objectstore.Config{Mode: objectstore.ModeGCSEmulator}, tc.src)
		if got := storageProviderBootstrapErrorCode(err); got != tc.want {
			t.Fatalf("%v: want=%q got=%q", tc.src, tc.want, got)
		}
		if !errors.Is(err, tc.src) {
			t.Fatalf("cause lost for %v", tc.src)
		}
	}
}

func TestResolveObjectStoreMemoryFlag(t *testing.T) {
	store, err := resolveObjectStore(context.Background(), logger.NewNop(), true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := store.(*objectstore.Memory); !ok {
		t.Fatalf("store: want=*objectstore.Memory got=%T", store)
	}
}

func TestResolveObjectStoreUnconfiguredIsNil(t *testing.T) {
	stubObjectStoreEnv(t, objectstore.Config{Mode: objectstore.ModeGCS},
		&objectstore.ConfigError{Code: objectstore.ErrMissingBucket, Mode: "gcs"}, false)
	store, err := resolveObjectStore(context.Background(), logger.NewNop(), false)
	if err != nil || store != nil {
		t.Fatalf("want nil store and nil error, got=%v err=%v", store, err)
	}
}

func TestResolveObjectStoreExplicitModeMissingBucketFails(t *testing.T) {
	stubObjectStoreEnv(t, objectstore.Config{Mode: objectstore.ModeMinIO},
		&objectstore.ConfigError{Code: objectstore.ErrMissingBucket, Mode: "minio"}, true)
	_, err := resolveObjectStore(context.Background(), logger.NewNop(), false)
	if code := storageProviderBootstrapErrorCode(err); code != StorageProviderBootstrapErrorInvalidConfig {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorInvalidConfig, code)
	}
}

func TestResolveObjectStoreConnectFailure(t *testing.T) {
	stubObjectStoreEnv(t, objectstore.Config{Mode: objectstore.ModeGCS, Bucket: "media"}, nil, true)
	prev := newObjectStore
	newObjectStore = func(context.Context, *logger.Logger, objectstore.Config) (adapters.ObjectStore, error) {
		return nil, errors.New("storage: credentials not found")
	}
	t.Cleanup(func() { newObjectStore = prev })

	_, err := resolveObjectStore(context.Background(), logger.NewNop(), false)
	var be *StorageProviderBootstrapError
	if !errors.As(err, &be) || be.Code != StorageProviderBootstrapErrorConnectFailed || be.Mode != "gcs" {
		t.Fatalf("bootstrap error: %+v", err)
	}
}
