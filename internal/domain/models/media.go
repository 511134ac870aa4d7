package models

import (
	"image"
	"io"
)

// MediaKind tags the media family of a content part.
type MediaKind string

// Media kinds matching the multimodal content part types.
const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Placeholder returns the marker appended to message text where media of
// this kind appears.
func (k MediaKind) Placeholder() string {
	return "<" + string(k) + ">"
}

// MediaSource classifies where a media locator pointed.
type MediaSource string

// Locator classes, evaluated in this order during resolution.
const (
	SourceInline MediaSource = "inline"
	SourceLocal  MediaSource = "local"
	SourceRemote MediaSource = "remote"
)

// ResolvedMedia is one media input after security checks. Exactly one of
// Image, Path or Body is set: images are decoded eagerly, local video and
// audio pass through as paths, and inline or remote video and audio stay
// open byte streams until the engine consumes them.
type ResolvedMedia struct {
	Kind   MediaKind
	Source MediaSource
	Image  image.Image
	Path   string
	Body   io.ReadCloser
}

// Close releases the underlying byte stream, if any. Safe to call on nil and
// more than once.
func (m *ResolvedMedia) Close() error {
	if m == nil || m.Body == nil {
		return nil
	}
	body := m.Body
	m.Body = nil
	return body.Close()
}
