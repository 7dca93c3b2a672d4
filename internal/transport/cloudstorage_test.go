package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	err  error
	name string
}

func (f *fakeBucket) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.name = aws.ToString(params.Bucket)
	return &s3.HeadBucketOutput{}, f.err
}

type fakeUploader struct {
	err         error
	key         string
	contentType string
	body        []byte
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = aws.ToString(input.Key)
	f.contentType = aws.ToString(input.ContentType)
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &manager.UploadOutput{Key: input.Key}, nil
}

func storageConfig() config.CloudStorageDestinationConfig {
	return config.CloudStorageDestinationConfig{
		Bucket:          "captures",
		Region:          "us-east-1",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
		RemoteFolder:    "motion-relay/",
	}
}

func openStorage(t *testing.T, cfg config.CloudStorageDestinationConfig, bucket *fakeBucket, up *fakeUploader) *CloudStorage {
	t.Helper()

	c, err := NewCloudStorage(cfg, testLogger(), WithS3ClientFactory(func(ctx context.Context, cfg config.CloudStorageDestinationConfig) (BucketChecker, Uploader, error) {
		return bucket, up, nil
	}))
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))
	return c
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		remote, subfolder, name string
		want                    string
	}{
		{"motion-relay", "rs-1/2026-01-18-12-00-00", "rs-1.jpg", "motion-relay/rs-1/2026-01-18-12-00-00/rs-1.jpg"},
		{"/motion-relay/", "//rs-1//", "rs-1.jpg", "motion-relay/rs-1/rs-1.jpg"},
		{"", "", "a.jpg", "a.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(tt.remote, tt.subfolder, tt.name))
		})
	}
}

func TestNewCloudStorage_Validation(t *testing.T) {
	t.Run("missing keys", func(t *testing.T) {
		cfg := storageConfig()
		cfg.SecretAccessKey = ""
		_, err := NewCloudStorage(cfg, testLogger())
		assert.ErrorIs(t, err, ErrMissingCredentials)
	})

	t.Run("bad recipient", func(t *testing.T) {
		cfg := storageConfig()
		cfg.AgeRecipients = []string{"not-a-key"}
		_, err := NewCloudStorage(cfg, testLogger())
		assert.Error(t, err)
	})
}

func TestCloudStorage_Handshake(t *testing.T) {
	t.Run("bucket exists", func(t *testing.T) {
		bucket := &fakeBucket{}
		c := openStorage(t, storageConfig(), bucket, &fakeUploader{})

		assert.NoError(t, c.Handshake(context.Background()))
		assert.Equal(t, "captures", bucket.name)
	})

	t.Run("bucket missing", func(t *testing.T) {
		c := openStorage(t, storageConfig(), &fakeBucket{err: errors.New("NotFound")}, &fakeUploader{})
		assert.Error(t, c.Handshake(context.Background()))
	})

	t.Run("factory error", func(t *testing.T) {
		c, err := NewCloudStorage(storageConfig(), testLogger(), WithS3ClientFactory(func(ctx context.Context, cfg config.CloudStorageDestinationConfig) (BucketChecker, Uploader, error) {
			return nil, nil, errors.New("no region")
		}))
		require.NoError(t, err)
		assert.Error(t, c.Open(context.Background()))
		assert.Error(t, c.Handshake(context.Background()))
	})
}

func TestCloudStorage_SendFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rs-1.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0644))
	asset := model.NewCapturedAsset(path, "rs-1/2026-01-18-12-00-00", "")

	t.Run("plain upload", func(t *testing.T) {
		up := &fakeUploader{}
		c := openStorage(t, storageConfig(), &fakeBucket{}, up)

		require.NoError(t, c.SendFile(context.Background(), asset))
		assert.Equal(t, "motion-relay/rs-1/2026-01-18-12-00-00/rs-1.jpg", up.key)
		assert.Equal(t, "image/jpeg", up.contentType)
		assert.Equal(t, []byte("jpeg-bytes"), up.body)
	})

	t.Run("encrypted upload", func(t *testing.T) {
		identity, err := age.GenerateX25519Identity()
		require.NoError(t, err)

		cfg := storageConfig()
		cfg.AgeRecipients = []string{identity.Recipient().String()}

		up := &fakeUploader{}
		c := openStorage(t, cfg, &fakeBucket{}, up)

		require.NoError(t, c.SendFile(context.Background(), asset))
		assert.Equal(t, "motion-relay/rs-1/2026-01-18-12-00-00/rs-1.jpg.age", up.key)

		r, err := age.Decrypt(bytes.NewReader(up.body), identity)
		require.NoError(t, err)
		plain, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg-bytes"), plain)
	})

	t.Run("upload error", func(t *testing.T) {
		c := openStorage(t, storageConfig(), &fakeBucket{}, &fakeUploader{err: errors.New("503 slow down")})
		assert.Error(t, c.SendFile(context.Background(), asset))
	})

	t.Run("closed client", func(t *testing.T) {
		c := openStorage(t, storageConfig(), &fakeBucket{}, &fakeUploader{})
		require.NoError(t, c.Close())
		assert.Error(t, c.SendFile(context.Background(), asset))
	})
}

func TestCloudStorage_WipeBlocksReopen(t *testing.T) {
	c := openStorage(t, storageConfig(), &fakeBucket{}, &fakeUploader{})

	c.Wipe()
	assert.ErrorIs(t, c.Open(context.Background()), ErrMissingCredentials)
}
