package ebookbot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/patrickmn/go-cache"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

// ImageCache resolves image requests to files under dir, named by cache key.
// Entries are never evicted. It is safe for concurrent use, including by
// several processes sharing dir.
type ImageCache struct {
	dir    string
	client ImageClient
	params ImageParams
	index  *cache.Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewImageCache returns a cache backed by dir. client may be nil, in which
// case only cached images can be resolved.
func NewImageCache(dir string, client ImageClient, cfg ImageConfig, logger *slog.Logger) *ImageCache {
	return &ImageCache{
		dir:    dir,
		client: client,
		params: paramsFromConfig(cfg),
		index:  cache.New(cache.NoExpiration, 0),
		logger: loggerOr(logger).With("component", "imagecache"),
	}
}

func (c *ImageCache) Dir() string { return c.dir }

// Path is where the image for key is stored.
func (c *ImageCache) Path(key string) string {
	return filepath.Join(c.dir, key+".png")
}

// Lookup returns the cached asset for req without calling the backend.
func (c *ImageCache) Lookup(req ImageRequest) (ImageAsset, bool, error) {
	key := CacheKey(req.Prompt)
	if v, ok := c.index.Get(key); ok {
		asset := v.(ImageAsset)
		if _, err := os.Stat(asset.Path); err == nil {
			return withRequest(asset, req, true), true, nil
		}
		c.logger.Warn("cached image removed from disk", "path", asset.Path)
		c.index.Delete(key)
	}

	path := c.Path(key)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ImageAsset{}, false, nil
	}
	if err != nil {
		return ImageAsset{}, false, fmt.Errorf("opening cached image: %w", err)
	}
	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	if err != nil {
		c.logger.Warn("ignoring unreadable cached image", "path", path, "err", err)
		return ImageAsset{}, false, nil
	}
	asset := ImageAsset{Path: path, Width: cfg.Width, Height: cfg.Height, CacheKey: key}
	c.index.Set(key, asset, cache.NoExpiration)
	return withRequest(asset, req, true), true, nil
}

// Resolve returns the asset for req, generating and storing it on a miss.
// A hit makes no backend call and writes nothing.
func (c *ImageCache) Resolve(ctx context.Context, req ImageRequest) (ImageAsset, error) {
	asset, ok, err := c.Lookup(req)
	if err != nil {
		return ImageAsset{}, err
	}
	if ok {
		imageCacheLookups.WithLabelValues("hit").Inc()
		c.logger.Debug("cache hit", "key", asset.CacheKey, "chapter_id", req.ChapterID)
		return asset, nil
	}
	imageCacheLookups.WithLabelValues("miss").Inc()

	key := CacheKey(req.Prompt)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.generate(ctx, key, req.Prompt)
	})
	if err != nil {
		return ImageAsset{}, err
	}
	return withRequest(v.(ImageAsset), req, false), nil
}

func (c *ImageCache) generate(ctx context.Context, key, prompt string) (ImageAsset, error) {
	if c.client == nil {
		return ImageAsset{}, fmt.Errorf("no image backend configured for uncached prompt %s", key)
	}
	c.logger.Info("generating image", "key", key)
	data, err := c.client.ImageGenerate(ctx, prompt, c.params)
	if err != nil {
		imageGenerations.WithLabelValues("error").Inc()
		return ImageAsset{}, fmt.Errorf("generating image %s: %w", key, err)
	}
	imageGenerations.WithLabelValues("ok").Inc()

	asset, err := c.store(key, data)
	if err != nil {
		return ImageAsset{}, err
	}
	c.index.Set(key, asset, cache.NoExpiration)
	return asset, nil
}

// store re-encodes data as PNG and moves it into place atomically.
func (c *ImageCache) store(key string, data []byte) (ImageAsset, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ImageAsset{}, fmt.Errorf("decoding generated image: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return ImageAsset{}, fmt.Errorf("creating image cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, key+"-*.tmp")
	if err != nil {
		return ImageAsset{}, fmt.Errorf("creating temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return ImageAsset{}, fmt.Errorf("encoding image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return ImageAsset{}, fmt.Errorf("writing image: %w", err)
	}
	path := c.Path(key)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return ImageAsset{}, fmt.Errorf("saving image: %w", err)
	}

	b := img.Bounds()
	return ImageAsset{Path: path, Width: b.Dx(), Height: b.Dy(), CacheKey: key}, nil
}

func withRequest(a ImageAsset, req ImageRequest, cached bool) ImageAsset {
	a.ChapterID = req.ChapterID
	a.Caption = req.Caption
	a.Cached = cached
	return a
}
