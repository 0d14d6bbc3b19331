package domain

import "strings"

// FormatID names one encoding/quality variant as reported by the extraction tool.
// Its scheme belongs to whichever extractor produced it.
type FormatID string

// String returns the string representation of the FormatID.
func (id FormatID) String() string {
	return string(id)
}

// Validate checks that the identifier is not blank.
func (id FormatID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrInvalidInput
	}
	return nil
}

// FormatKind tells whether a format carries video with audio or audio alone.
type FormatKind string

const (
	KindVideoAudio FormatKind = "video_audio"
	KindAudioOnly  FormatKind = "audio_only"
)

// UnknownQuality is the label used when the tool reports no quality metadata.
const UnknownQuality = "Unknown Quality"

// FormatDescriptor is one downloadable format offered to the caller.
type FormatDescriptor struct {
	FormatID FormatID   `json:"formatId"`
	Kind     FormatKind `json:"kind"`
	Label    string     `json:"label"`
	Ext      string     `json:"ext,omitempty"`
	Filesize int64      `json:"filesize,omitempty"`
}

// CatalogEntry is a raw format as reported by an extractor, before partitioning.
type CatalogEntry struct {
	FormatID FormatID
	Ext      string
	HasVideo bool
	HasAudio bool
	Label    string
	Filesize int64
}

// Kind classifies the entry. The second result is false for entries that carry
// no audio, which are never offered.
func (e CatalogEntry) Kind() (FormatKind, bool) {
	switch {
	case e.HasVideo && e.HasAudio:
		return KindVideoAudio, true
	case !e.HasVideo && e.HasAudio:
		return KindAudioOnly, true
	default:
		return "", false
	}
}

// Descriptor maps the entry to a FormatDescriptor of the given kind.
func (e CatalogEntry) Descriptor(kind FormatKind) FormatDescriptor {
	label := strings.TrimSpace(e.Label)
	if label == "" {
		label = UnknownQuality
	}
	return FormatDescriptor{
		FormatID: e.FormatID,
		Kind:     kind,
		Label:    label,
		Ext:      e.Ext,
		Filesize: e.Filesize,
	}
}

// FormatSet is the partitioned result of a format resolution.
type FormatSet struct {
	VideoFormats []FormatDescriptor `json:"videoFormats"`
	AudioFormats []FormatDescriptor `json:"audioFormats"`
}

// PartitionCatalog splits entries into video+audio and audio-only formats,
// preserving catalog order. Entries without audio are dropped.
func PartitionCatalog(entries []CatalogEntry) FormatSet {
	set := FormatSet{
		VideoFormats: make([]FormatDescriptor, 0),
		AudioFormats: make([]FormatDescriptor, 0),
	}
	for _, e := range entries {
		kind, ok := e.Kind()
		if !ok {
			continue
		}
		switch kind {
		case KindVideoAudio:
			set.VideoFormats = append(set.VideoFormats, e.Descriptor(kind))
		case KindAudioOnly:
			set.AudioFormats = append(set.AudioFormats, e.Descriptor(kind))
		}
	}
	return set
}

// OutputKind is the container family the caller asked for.
type OutputKind string

const (
	OutputVideo OutputKind = "video"
	OutputAudio OutputKind = "audio"
)

// ParseOutputKind parses the "type" request parameter. Empty means video.
func ParseOutputKind(s string) (OutputKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OutputVideo):
		return OutputVideo, nil
	case string(OutputAudio):
		return OutputAudio, nil
	default:
		return "", ErrInvalidInput
	}
}
