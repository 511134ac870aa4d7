package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
)

// Inline media data URIs, one pattern per kind. The payload after the first
// comma is standard base64.
var (
	inlineImageRE = regexp.MustCompile(`^data:image/(png|jpg|jpeg|gif|bmp);base64,(.+)$`)
	inlineVideoRE = regexp.MustCompile(`^data:video/(mp4|mkv|avi|mov);base64,(.+)$`)
	inlineAudioRE = regexp.MustCompile(`^data:audio/(mpeg|mp3|wav|ogg);base64,(.+)$`)
)

type locatorClass int

const (
	locatorInline locatorClass = iota
	locatorLocalFile
	locatorRemoteURL
)

// classifyLocator decides how a media locator is fetched: inline data URI,
// existing regular file, or remote URL. The order is fixed and the three
// classes are exhaustive.
func classifyLocator(locator string, kind models.MediaKind) locatorClass {
	if inlinePattern(kind).MatchString(locator) {
		return locatorInline
	}
	if info, err := os.Stat(locator); err == nil && info.Mode().IsRegular() {
		return locatorLocalFile
	}
	return locatorRemoteURL
}

func inlinePattern(kind models.MediaKind) *regexp.Regexp {
	switch kind {
	case models.MediaVideo:
		return inlineVideoRE
	case models.MediaAudio:
		return inlineAudioRE
	default:
		return inlineImageRE
	}
}

// MediaResolver turns media locators into resolved media handles, applying
// the guard checks appropriate to each locator class.
type MediaResolver struct {
	guard     *MediaGuard
	client    *http.Client
	logger    zerolog.Logger
	onResolve func(kind, source string)
}

// NewMediaResolver creates a resolver backed by the given guard. onResolve,
// when non-nil, is invoked once per successfully resolved media input.
// Redirect targets of remote fetches go through the guard again.
func NewMediaResolver(guard *MediaGuard, logger zerolog.Logger, onResolve func(kind, source string)) *MediaResolver {
	return &MediaResolver{
		guard: guard,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: guard.policy.FetchTimeout,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return guard.CheckURL(req.Context(), req.URL.String())
			},
		},
		logger:    logger,
		onResolve: onResolve,
	}
}

// Resolve turns one locator into a ResolvedMedia, enforcing the security
// policy for its class. Images are decoded eagerly; video and audio stay as
// paths or byte streams for the engine to consume.
func (r *MediaResolver) Resolve(ctx context.Context, locator string, kind models.MediaKind) (*models.ResolvedMedia, error) {
	var media *models.ResolvedMedia
	var err error

	switch classifyLocator(locator, kind) {
	case locatorInline:
		media, err = r.resolveInline(locator, kind)
	case locatorLocalFile:
		media, err = r.resolveLocalFile(locator, kind)
	default:
		media, err = r.resolveRemote(ctx, locator, kind)
	}
	if err != nil {
		return nil, err
	}

	if r.onResolve != nil {
		r.onResolve(string(media.Kind), string(media.Source))
	}
	return media, nil
}

func (r *MediaResolver) resolveInline(locator string, kind models.MediaKind) (*models.ResolvedMedia, error) {
	_, payload, _ := strings.Cut(locator, ",")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, models.BadRequest("Invalid base64 media data.")
	}

	if kind == models.MediaImage {
		img, err := decodeRGB(bytes.NewReader(data))
		if err != nil {
			return nil, models.BadRequest("Invalid image data: %v", err)
		}
		return &models.ResolvedMedia{Kind: kind, Source: models.SourceInline, Image: img}, nil
	}

	return &models.ResolvedMedia{
		Kind:   kind,
		Source: models.SourceInline,
		Body:   io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func (r *MediaResolver) resolveLocalFile(path string, kind models.MediaKind) (*models.ResolvedMedia, error) {
	if err := r.guard.CheckLocalPath(path); err != nil {
		return nil, err
	}

	if kind == models.MediaImage {
		f, err := os.Open(path)
		if err != nil {
			return nil, models.BadRequest("Invalid or inaccessible file path.")
		}
		defer f.Close()

		img, err := decodeRGB(f)
		if err != nil {
			return nil, models.BadRequest("Invalid image data: %v", err)
		}
		return &models.ResolvedMedia{Kind: kind, Source: models.SourceLocal, Image: img}, nil
	}

	// Video and audio pass through as paths; the engine reads them itself.
	return &models.ResolvedMedia{Kind: kind, Source: models.SourceLocal, Path: path}, nil
}

func (r *MediaResolver) resolveRemote(ctx context.Context, rawURL string, kind models.MediaKind) (*models.ResolvedMedia, error) {
	if err := r.guard.CheckURL(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, models.BadRequest("Invalid URL: %v", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, models.BadRequest("Failed to fetch media URL: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, models.BadRequest("Failed to fetch media URL: status %d", resp.StatusCode)
	}

	if kind == models.MediaImage {
		defer resp.Body.Close()
		img, err := decodeRGB(resp.Body)
		if err != nil {
			return nil, models.BadRequest("Invalid image data: %v", err)
		}
		return &models.ResolvedMedia{Kind: kind, Source: models.SourceRemote, Image: img}, nil
	}

	return &models.ResolvedMedia{Kind: kind, Source: models.SourceRemote, Body: resp.Body}, nil
}

// decodeRGB decodes any supported image format into 8-bit RGBA pixels.
func decodeRGB(r io.Reader) (image.Image, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	rgba := image.NewRGBA(src.Bounds())
	draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)
	return rgba, nil
}
