package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry = 15 * time.Minute
	maxUploadExpiry     = time.Hour
	lengthRangeHeader   = "x-goog-content-length-range"
)

var (
	// ErrInvalidUpload wraps every rejection caused by caller-supplied upload options.
	ErrInvalidUpload = errors.New("storage: invalid upload")

	errNoSigner = errors.New("storage: signer is required")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidUpload}, args...)...)
}

// Client signs V4 PUT URLs so browsers upload media straight to the bucket.
type Client struct {
	signer Signer
	now    func() time.Time
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithClock overrides the time source used for URL expiry.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient returns a Client signing with signer's service account.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	c := &Client{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// UploadOptions constrain what the signed URL accepts.
type UploadOptions struct {
	ContentType         string
	ContentMD5          string
	AllowedContentTypes []string
	Size                int64
	MaxSize             int64
	ExpiresIn           time.Duration
}

// SignedUpload is a PUT URL plus the headers the uploader must send verbatim.
type SignedUpload struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// SignUpload signs a single-object PUT for bucket/object. Option problems are reported as
// ErrInvalidUpload.
func (c *Client) SignUpload(ctx context.Context, bucket, object string, opts UploadOptions) (SignedUpload, error) {
	if c == nil {
		return SignedUpload{}, errNoSigner
	}
	bucket, object = strings.TrimSpace(bucket), strings.TrimSpace(object)
	if bucket == "" {
		return SignedUpload{}, errors.New("storage: bucket name is required")
	}
	if object == "" {
		return SignedUpload{}, invalid("object name is required")
	}

	contentType, err := acceptedContentType(opts.ContentType, opts.AllowedContentTypes)
	if err != nil {
		return SignedUpload{}, err
	}
	md5 := strings.TrimSpace(opts.ContentMD5)
	if md5 != "" {
		if raw, err := base64.StdEncoding.DecodeString(md5); err != nil || len(raw) != 16 {
			return SignedUpload{}, invalid("content MD5 must be a base64 encoded 16-byte digest")
		}
	}
	if opts.MaxSize > 0 && opts.Size > opts.MaxSize {
		return SignedUpload{}, invalid("declared size %d exceeds %d bytes", opts.Size, opts.MaxSize)
	}
	expiry := opts.ExpiresIn
	switch {
	case expiry <= 0:
		expiry = defaultUploadExpiry
	case expiry > maxUploadExpiry:
		return SignedUpload{}, invalid("expiry %s exceeds %s", expiry, maxUploadExpiry)
	}

	headers := map[string]string{"Content-Type": contentType}
	var signedHeaders []string
	if md5 != "" {
		headers["Content-MD5"] = md5
	}
	if opts.MaxSize > 0 {
		headers[lengthRangeHeader] = fmt.Sprintf("0,%d", opts.MaxSize)
		signedHeaders = append(signedHeaders, lengthRangeHeader+":"+headers[lengthRangeHeader])
	}

	expiresAt := c.now().Add(expiry)
	url, err := gcs.SignedURL(bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         "PUT",
		ContentType:    contentType,
		MD5:            md5,
		Headers:        signedHeaders,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedUpload{URL: url, Method: "PUT", ExpiresAt: expiresAt, Headers: headers}, nil
}

// acceptedContentType normalises raw and matches it against allowed entries, which may be exact
// types, "type/*" or "*". An empty allow list accepts any well-formed type.
func acceptedContentType(raw string, allowed []string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", invalid("content type is required")
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", invalid("content type %q is malformed", raw)
	}
	if len(allowed) == 0 {
		return mediaType, nil
	}
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "*" || candidate == mediaType {
			return mediaType, nil
		}
		if prefix, ok := strings.CutSuffix(candidate, "*"); ok && strings.HasSuffix(prefix, "/") && strings.HasPrefix(mediaType, prefix) {
			return mediaType, nil
		}
	}
	return "", invalid("content type %s not allowed", mediaType)
}

// Objects reads metadata of uploaded objects.
type Objects struct {
	client *gcs.Client
}

// NewObjects wraps a Cloud Storage client.
func NewObjects(client *gcs.Client) (*Objects, error) {
	if client == nil {
		return nil, errors.New("storage objects: client is required")
	}
	return &Objects{client: client}, nil
}

// Exists reports whether bucket/object has been uploaded.
func (o *Objects) Exists(ctx context.Context, bucket, object string) (bool, error) {
	if o == nil || o.client == nil {
		return false, errors.New("storage objects: client is not initialised")
	}
	_, err := o.client.Bucket(strings.TrimSpace(bucket)).Object(strings.TrimSpace(object)).Attrs(ctx)
	switch {
	case errors.Is(err, gcs.ErrObjectNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("storage objects: read attrs of %s: %w", object, err)
	}
	return true, nil
}
