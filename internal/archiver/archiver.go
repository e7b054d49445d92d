// Package archiver re-hosts article images on object storage behind a CDN.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/newsroom/news-collector/internal/objectstore"
)

const (
	// DefaultMaxBytes caps a single image download.
	DefaultMaxBytes = 10 << 20
	// CacheControl is attached to every uploaded image.
	CacheControl = "max-age=31536000"
)

var (
	ErrNotImage  = errors.New("response is not an image")
	ErrTooLarge  = errors.New("image exceeds size limit")
	ErrEmptyBody = errors.New("image body is empty")
)

// Fetcher performs the image GET.
type Fetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error)
}

// Uploader stores one object.
type Uploader interface {
	Put(ctx context.Context, obj objectstore.Object) error
}

// Archiver downloads images and uploads them under date-partitioned keys.
type Archiver struct {
	client   Fetcher
	uploader Uploader
	cdnBase  string
	maxBytes int64
	now      func() time.Time
	log      *slog.Logger
}

// Option customizes an Archiver.
type Option func(*Archiver)

// WithClock replaces time.Now when computing the key's date partition.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) Option {
	return func(a *Archiver) { a.maxBytes = n }
}

// New creates an Archiver publishing under cdnBase.
func New(client Fetcher, uploader Uploader, cdnBase string, logger *slog.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Archiver{
		client:   client,
		uploader: uploader,
		cdnBase:  strings.TrimRight(cdnBase, "/"),
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
		log:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive copies imageURL into object storage and returns its CDN URL.
// Failures at any step are logged and reported as not archived.
func (a *Archiver) Archive(ctx context.Context, imageURL, itemID string) (string, bool) {
	data, contentType, mediaType, err := a.download(ctx, imageURL)
	if err != nil {
		a.log.Debug("download image failed", slog.String("image_url", imageURL), slog.Any("err", err))
		return "", false
	}

	key := ObjectKey(a.now(), itemID, ExtensionFor(mediaType))
	err = a.uploader.Put(ctx, objectstore.Object{
		Key:          key,
		Body:         data,
		ContentType:  contentType,
		CacheControl: CacheControl,
		Metadata: map[string]string{
			"original_url": imageURL,
			"news_id":      itemID,
		},
	})
	if err != nil {
		a.log.Warn("upload image failed", slog.String("key", key), slog.Any("err", err))
		return "", false
	}

	return CDNURL(a.cdnBase, key), true
}

func (a *Archiver) download(ctx context.Context, imageURL string) ([]byte, string, string, error) {
	res, err := a.client.Get(ctx, imageURL, map[string]string{"Accept": "image/*"})
	if err != nil {
		return nil, "", "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, "", "", fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	contentType := res.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, "", "", fmt.Errorf("%w: %q", ErrNotImage, contentType)
	}

	if res.ContentLength > a.maxBytes {
		return nil, "", "", ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, a.maxBytes+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, "", "", ErrTooLarge
	}
	if len(data) == 0 {
		return nil, "", "", ErrEmptyBody
	}

	return data, contentType, mediaType, nil
}

// ExtensionFor maps an image media type to a file extension, defaulting to .jpg.
func ExtensionFor(mediaType string) string {
	mediaType = strings.ToLower(mediaType)
	switch {
	case strings.Contains(mediaType, "jpeg"), strings.Contains(mediaType, "jpg"):
		return ".jpg"
	case strings.Contains(mediaType, "png"):
		return ".png"
	case strings.Contains(mediaType, "gif"):
		return ".gif"
	case strings.Contains(mediaType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}

// ObjectKey builds images/news/<yyyy>/<mm>/<dd>/<itemID><ext> from the UTC date of at.
func ObjectKey(at time.Time, itemID, ext string) string {
	at = at.UTC()
	return fmt.Sprintf("images/news/%04d/%02d/%02d/%s%s", at.Year(), int(at.Month()), at.Day(), itemID, ext)
}

// CDNURL joins the CDN base and an object key.
func CDNURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
