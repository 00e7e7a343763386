package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Default loader limits.
const (
	DefaultMaxSourceBytes = 32 << 20
	DefaultMaxPixels      = 40_000_000
	DefaultFetchTimeout   = 30 * time.Second

	// DefaultMaxCachedImages bounds the decoded sources kept for reuse.
	DefaultMaxCachedImages = 8
)

// SourceInfo describes a decoded source image.
type SourceInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the decoder that recognized the data: "png", "jpeg", "gif" or "webp".
	Format string `json:"format"`

	// SizeBytes is the size of the encoded source.
	SizeBytes int `json:"size_bytes"`
}

// LoaderOptions configures a Loader. Zero fields fall back to the defaults.
type LoaderOptions struct {
	Client         *http.Client
	MaxSourceBytes int64
	MaxPixels      int

	// MaxCachedImages is the number of decoded remote and file sources kept.
	// The least recently used one is dropped first.
	MaxCachedImages int
}

// Loader fetches and decodes product photos into surfaces.
//
// A source is one of:
//   - an http:// or https:// URL
//   - a data URL ("data:image/png;base64,...")
//   - a path to a local file
//   - a bare base64 payload
//
// Decoded remote and file images are cached by their source string so that
// reopening the same photo does not fetch it again. At most MaxCachedImages
// are kept, least recently used first out. Data URLs and base64 payloads are
// never cached. Loader is safe for concurrent use.
type Loader struct {
	client    *http.Client
	maxBytes  int64
	maxPixels int
	maxCached int

	mu     sync.Mutex
	images map[string]cachedImage
	order  []string // least recently used first
}

type cachedImage struct {
	img  image.Image
	info SourceInfo
}

// NewLoader creates a loader with an empty cache.
func NewLoader(opts LoaderOptions) *Loader {
	l := &Loader{
		client:    opts.Client,
		maxBytes:  opts.MaxSourceBytes,
		maxPixels: opts.MaxPixels,
		images:    make(map[string]cachedImage),
	}
	if l.client == nil {
		l.client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if l.maxBytes <= 0 {
		l.maxBytes = DefaultMaxSourceBytes
	}
	if l.maxPixels <= 0 {
		l.maxPixels = DefaultMaxPixels
	}
	l.maxCached = opts.MaxCachedImages
	if l.maxCached <= 0 {
		l.maxCached = DefaultMaxCachedImages
	}
	return l
}

// Load resolves source and returns a fresh surface the caller owns, plus
// metadata about the source.
//
// # Errors
//
//   - the source cannot be fetched or read (network error, non-2xx status,
//     missing file)
//   - the payload exceeds the configured byte limit
//   - the data is not a supported image, or its dimensions exceed the pixel limit
func (l *Loader) Load(ctx context.Context, source string) (*image.NRGBA, *SourceInfo, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil, errors.New("empty image source")
	}

	l.mu.Lock()
	cached, ok := l.images[source]
	if ok {
		l.touch(source)
	}
	l.mu.Unlock()
	if ok {
		info := cached.info
		return ToSurface(cached.img), &info, nil
	}

	data, cacheable, err := l.read(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	img, info, err := l.decode(data)
	if err != nil {
		return nil, nil, err
	}

	if cacheable {
		l.mu.Lock()
		l.images[source] = cachedImage{img: img, info: *info}
		l.touch(source)
		for len(l.order) > l.maxCached {
			delete(l.images, l.order[0])
			l.order = l.order[1:]
		}
		l.mu.Unlock()
	}
	return ToSurface(img), info, nil
}

// Evict removes a cached source. Unknown sources are ignored.
func (l *Loader) Evict(source string) {
	source = strings.TrimSpace(source)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.images[source]; !ok {
		return
	}
	delete(l.images, source)
	l.removeOrder(source)
}

// Len returns the number of cached sources.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.images)
}

// touch marks source as most recently used. l.mu must be held.
func (l *Loader) touch(source string) {
	l.removeOrder(source)
	l.order = append(l.order, source)
}

func (l *Loader) removeOrder(source string) {
	for i, s := range l.order {
		if s == source {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// read returns the encoded bytes for source and whether they may be cached.
func (l *Loader) read(ctx context.Context, source string) ([]byte, bool, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		data, err := l.fetch(ctx, source)
		return data, true, err
	case strings.HasPrefix(source, "data:"):
		payload, err := dataURLPayload(source)
		if err != nil {
			return nil, false, err
		}
		data, err := l.decodeBase64(payload)
		if err != nil {
			return nil, false, fmt.Errorf("failed to decode data URL: %w", err)
		}
		return data, false, nil
	}

	if st, err := os.Stat(source); err == nil && st.Mode().IsRegular() {
		if st.Size() > l.maxBytes {
			return nil, false, fmt.Errorf("image file is %d bytes, limit is %d", st.Size(), l.maxBytes)
		}
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read image: %w", err)
		}
		return data, true, nil
	}

	data, err := l.decodeBase64(source)
	if errors.Is(err, errTooLarge) {
		return nil, false, err
	}
	if err != nil {
		return nil, false, errors.New("source is not a URL, data URL, readable file or base64 payload")
	}
	return data, false, nil
}

var errTooLarge = errors.New("image payload exceeds the size limit")

// decodeBase64 decodes an inline payload, refusing it before decoding when
// it would exceed the byte limit.
func (l *Loader) decodeBase64(payload string) ([]byte, error) {
	if n := int64(base64.StdEncoding.DecodedLen(len(payload))); n > l.maxBytes+2 {
		return nil, fmt.Errorf("%w: about %d bytes, limit is %d", errTooLarge, n, l.maxBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", errTooLarge, len(data), l.maxBytes)
	}
	return data, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch image: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("image body exceeds %d bytes", l.maxBytes)
	}
	return data, nil
}

// dataURLPayload extracts the base64 payload of a data URL.
func dataURLPayload(source string) (string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(source, "data:"), ",")
	if !ok {
		return "", errors.New("malformed data URL")
	}
	if !strings.HasSuffix(header, ";base64") {
		return "", errors.New("data URL must be base64 encoded")
	}
	return payload, nil
}

// decode checks the header dimensions against the pixel limit before
// decoding the full image, then applies EXIF orientation.
func (l *Loader) decode(data []byte) (image.Image, *SourceInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, nil, fmt.Errorf("image has invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > l.maxPixels {
		return nil, nil, fmt.Errorf("image is %dx%d, limit is %d pixels", cfg.Width, cfg.Height, l.maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	return img, &SourceInfo{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    format,
		SizeBytes: len(data),
	}, nil
}
