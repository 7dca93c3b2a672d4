// Package model defines the core data structures shared by the relay components.
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultVideoSuffix is the file extension the camera uses for recorded clips.
const DefaultVideoSuffix = ".mp4"

// SessionLayout formats capture and sync session timestamps.
const SessionLayout = "2006-01-02-15-04-05"

// AssetKind classifies a captured file.
type AssetKind int

const (
	KindImage AssetKind = iota
	KindVideo
)

func (k AssetKind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "image"
}

// KindFromName infers the asset kind from a file name. Only videoSuffix
// (compared case-insensitively) marks a video; everything else is an image.
func KindFromName(name, videoSuffix string) AssetKind {
	if videoSuffix == "" {
		videoSuffix = DefaultVideoSuffix
	}
	if strings.HasSuffix(strings.ToLower(name), strings.ToLower(videoSuffix)) {
		return KindVideo
	}
	return KindImage
}

// CapturedAsset is one media file produced by a capture session.
type CapturedAsset struct {
	// Path is the full local path of the file.
	Path string

	// Subfolder is the logical remote folder, built from the folder below the
	// sync root and the sync session timestamp.
	Subfolder string

	// Name is the file's base name.
	Name string

	Kind AssetKind
}

// NewCapturedAsset builds an asset for path, deriving name and kind.
func NewCapturedAsset(path, subfolder, videoSuffix string) CapturedAsset {
	name := filepath.Base(path)
	return CapturedAsset{
		Path:      path,
		Subfolder: subfolder,
		Name:      name,
		Kind:      KindFromName(name, videoSuffix),
	}
}

// SessionName formats t as a session folder timestamp.
func SessionName(t time.Time) string {
	return t.Format(SessionLayout)
}
