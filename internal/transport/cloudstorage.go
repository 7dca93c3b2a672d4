package transport

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader is the subset of *manager.Uploader used for object uploads.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// BucketChecker is the subset of *s3.Client used for the handshake.
type BucketChecker interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

var (
	_ Uploader      = (*manager.Uploader)(nil)
	_ BucketChecker = (*s3.Client)(nil)
)

// S3ClientFactory builds the bucket checker and uploader for a configuration.
type S3ClientFactory func(ctx context.Context, cfg config.CloudStorageDestinationConfig) (BucketChecker, Uploader, error)

// CloudStorageOption configures a CloudStorage transport.
type CloudStorageOption func(*CloudStorage)

// WithS3ClientFactory sets a custom S3 client factory for testing.
func WithS3ClientFactory(f S3ClientFactory) CloudStorageOption {
	return func(c *CloudStorage) {
		c.factory = f
	}
}

// CloudStorage uploads captured files to an S3 compatible bucket, optionally
// encrypting them to age recipients first.
type CloudStorage struct {
	cfg        config.CloudStorageDestinationConfig
	recipients []age.Recipient
	factory    S3ClientFactory
	bucket     BucketChecker
	uploader   Uploader
	log        logger.ILogger
	mu         sync.RWMutex
}

// NewCloudStorage creates a CloudStorage transport. Bucket and access keys
// are required; age recipients must parse.
func NewCloudStorage(cfg config.CloudStorageDestinationConfig, log logger.ILogger, opts ...CloudStorageOption) (*CloudStorage, error) {
	if cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("cloudstorage: bucket and access keys are required: %w", ErrMissingCredentials)
	}

	recipients := make([]age.Recipient, 0, len(cfg.AgeRecipients))
	for _, r := range cfg.AgeRecipients {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("cloudstorage: parsing age recipient: %w", err)
		}
		recipients = append(recipients, recipient)
	}

	c := &CloudStorage{
		cfg:        cfg,
		recipients: recipients,
		factory:    newS3Clients,
		log:        log.SubLogger("CloudStorage"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the transport identifier.
func (c *CloudStorage) Name() string {
	return "CloudStorage"
}

// Open builds the S3 client.
func (c *CloudStorage) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.SecretAccessKey == "" {
		return fmt.Errorf("cloudstorage: %w", ErrMissingCredentials)
	}

	bucket, uploader, err := c.factory(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("creating s3 client: %w", err)
	}
	c.bucket = bucket
	c.uploader = uploader
	return nil
}

// Handshake confirms the bucket exists and is accessible.
func (c *CloudStorage) Handshake(ctx context.Context) error {
	c.mu.RLock()
	bucket, name := c.bucket, c.cfg.Bucket
	c.mu.RUnlock()

	if bucket == nil {
		return fmt.Errorf("cloudstorage: client not open")
	}
	if _, err := bucket.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", name, err)
	}

	c.log.Infof("bucket reachable: bucket=%s, encrypted=%t", name, len(c.recipients) > 0)
	return nil
}

// SendText is unsupported; storage never carries messages.
func (c *CloudStorage) SendText(ctx context.Context, body, subject string) error {
	return fmt.Errorf("cloudstorage: messages are not supported")
}

// SendFile uploads the asset to remotefolder/subfolder/name.
func (c *CloudStorage) SendFile(ctx context.Context, asset model.CapturedAsset) error {
	c.mu.RLock()
	uploader, bucket, remote := c.uploader, c.cfg.Bucket, c.cfg.RemoteFolder
	c.mu.RUnlock()

	if uploader == nil {
		return fmt.Errorf("cloudstorage: client not open")
	}

	f, err := os.Open(asset.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := ObjectKey(remote, asset.Subfolder, asset.Name)
	contentType := mime.TypeByExtension(filepath.Ext(asset.Name))

	var body io.Reader = f
	if len(c.recipients) > 0 {
		pr, pw := io.Pipe()
		defer pr.Close()
		go c.encrypt(pw, f)

		body = pr
		key += ".age"
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}

	c.log.Debugf("uploaded: key=%s", key)
	return nil
}

func (c *CloudStorage) encrypt(pw *io.PipeWriter, r io.Reader) {
	w, err := age.Encrypt(pw, c.recipients...)
	if err != nil {
		pw.CloseWithError(fmt.Errorf("creating encrypted writer: %w", err))
		return
	}
	if _, err := io.Copy(w, r); err != nil {
		pw.CloseWithError(fmt.Errorf("encrypting data: %w", err))
		return
	}
	pw.CloseWithError(w.Close())
}

// Close drops the client.
func (c *CloudStorage) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucket = nil
	c.uploader = nil
	return nil
}

// Wipe clears the access keys.
func (c *CloudStorage) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.AccessKeyID = ""
	c.cfg.SecretAccessKey = ""
	c.bucket = nil
	c.uploader = nil
}

// ObjectKey joins the remote folder, subfolder and name into an object key
// without duplicate or leading slashes.
func ObjectKey(remote, subfolder, name string) string {
	return strings.TrimPrefix(path.Join("/", remote, subfolder, name), "/")
}

func newS3Clients(ctx context.Context, cfg config.CloudStorageDestinationConfig) (BucketChecker, Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return client, manager.NewUploader(client), nil
}
