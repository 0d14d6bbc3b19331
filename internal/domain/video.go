package domain

import (
	"strings"
)

// VideoID is the platform's identifier for a video. It is opaque; existence is
// decided by the extraction tool.
type VideoID string

// String returns the string representation of the VideoID.
func (id VideoID) String() string {
	return string(id)
}

// Validate checks that the identifier is not blank.
func (id VideoID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrInvalidInput
	}
	return nil
}

// WatchURL returns the canonical watch URL handed to extraction tools.
func (id VideoID) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

// VideoMetadata contains the descriptive fields exported as flat files.
type VideoMetadata struct {
	ID           VideoID  `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	Channel      string   `json:"channel,omitempty" yaml:"channel,omitempty"`
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Categories   []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	ViewCount    *int64   `json:"viewCount,omitempty" yaml:"view_count,omitempty"`
	LikeCount    *int64   `json:"likeCount,omitempty" yaml:"like_count,omitempty"`
	CommentCount *int64   `json:"commentCount,omitempty" yaml:"comment_count,omitempty"`
	Duration     int64    `json:"durationSeconds" yaml:"duration_seconds"`
	UploadDate   string   `json:"uploadDate,omitempty" yaml:"upload_date,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty" yaml:"thumbnail_url,omitempty"`
}
