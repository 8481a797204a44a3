// Package s3lync keeps local paths and S3 locations consistent through
// hash-aware synchronization.
//
// A Client holds the AWS connection; an S3Object binds one s3:// URI to
// one local path and exposes download/upload operations that diff the two
// sides, move only what differs, and optionally mirror deletions.
package s3lync

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	"github.com/bestend/s3lync/errors"
	"github.com/bestend/s3lync/internal/s3api"
	"github.com/bestend/s3lync/s3types"
)

// Client holds the S3 connection and the defaults shared by every
// S3Object built from it. It is safe for concurrent use.
type Client struct {
	// s3Client is the underlying AWS SDK S3 client
	s3Client s3api.S3API

	// config holds the AWS configuration
	config aws.Config

	// logger receives structured operation logs; disabled by default
	logger *slog.Logger

	// mu protects concurrent access to client configuration
	mu sync.RWMutex

	// fs is the filesystem abstraction for local file operations
	fs fs.Filesystem
}

// New creates a Client using the default AWS credential chain and the
// provided options.
//
// Example:
//
//	client, err := s3lync.New(
//	    s3lync.WithRegion("us-west-2"),
//	)
func New(opts ...s3types.Option) (*Client, error) {
	clientCfg := &s3types.ClientConfig{}
	for _, opt := range opts {
		opt(clientCfg)
	}

	// Start with default AWS configuration or use custom config
	var cfg aws.Config
	var err error

	if clientCfg.CustomAWSConfig != nil {
		cfg = *clientCfg.CustomAWSConfig
	} else {
		cfg, err = config.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, errors.NewError("client initialization", err)
		}
	}

	// Region precedence: option, then environment, then whatever the
	// credential chain resolved
	if clientCfg.Region != "" {
		cfg.Region = clientCfg.Region
	} else if env := os.Getenv("S3LYNC_REGION"); env != "" {
		cfg.Region = env
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1" // AWS default region
	}

	var s3Opts []func(*s3.Options)
	if clientCfg.Endpoint != "" {
		endpoint := clientCfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if clientCfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if clientCfg.CustomHTTPClient != nil {
		httpClient := clientCfg.CustomHTTPClient
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	s3Client := s3.NewFromConfig(cfg, s3Opts...)

	// Use the provided filesystem or default to the OS filesystem
	filesystem := clientCfg.Filesystem
	if filesystem == nil {
		filesystem = billy.NewOSFS("/")
	}

	logger := clientCfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		s3Client: s3Client,
		config:   cfg,
		logger:   logger,
		fs:       filesystem,
	}, nil
}

// NewWithClient creates a Client around a custom S3API implementation.
// This is primarily used for testing with mocked clients.
func NewWithClient(s3Client s3api.S3API) *Client {
	return &Client{
		s3Client: s3Client,
		config:   aws.Config{},
		logger:   slog.New(slog.DiscardHandler),
		fs:       billy.NewOSFS("/"),
	}
}

// SetFilesystem sets the filesystem implementation for the client.
// This is useful for testing or when the filesystem needs to be changed after creation.
func (c *Client) SetFilesystem(filesystem fs.Filesystem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fs = filesystem
}

// SetLogger sets the structured logger for the client and the objects
// built from it afterwards.
func (c *Client) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c.logger = logger
}

func (c *Client) filesystem() fs.Filesystem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fs
}

func (c *Client) log() *slog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// Close releases any resources held by the client.
// Currently a no-op but included for future extensibility.
func (c *Client) Close() error {
	return nil
}
