package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

// =============================================================================
// Identifier Tests
// =============================================================================

func TestVideoID_Validate(t *testing.T) {
	tests := []struct {
		name    string
		id      VideoID
		wantErr bool
	}{
		{"simple ID", VideoID("abc123"), false},
		{"empty ID", VideoID(""), true},
		{"blank ID", VideoID("   "), true},
		{"dash and underscore", VideoID("a-b_c"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestVideoID_WatchURL(t *testing.T) {
	got := VideoID("abc123").WatchURL()
	want := "https://www.youtube.com/watch?v=abc123"
	if got != want {
		t.Errorf("WatchURL() = %q, want %q", got, want)
	}
}

func TestFormatID_Validate(t *testing.T) {
	if err := FormatID("22").Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := FormatID("").Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Validate() = %v, want ErrInvalidInput", err)
	}
}

// =============================================================================
// Format Tests
// =============================================================================

func TestCatalogEntry_Kind(t *testing.T) {
	tests := []struct {
		name   string
		entry  CatalogEntry
		want   FormatKind
		wantOK bool
	}{
		{"video and audio", CatalogEntry{HasVideo: true, HasAudio: true}, KindVideoAudio, true},
		{"audio only", CatalogEntry{HasAudio: true}, KindAudioOnly, true},
		{"video only", CatalogEntry{HasVideo: true}, "", false},
		{"neither", CatalogEntry{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.entry.Kind()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Kind() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCatalogEntry_Descriptor_UnknownQuality(t *testing.T) {
	d := CatalogEntry{FormatID: "251", HasAudio: true}.Descriptor(KindAudioOnly)
	if d.Label != UnknownQuality {
		t.Errorf("Label = %q, want %q", d.Label, UnknownQuality)
	}

	d = CatalogEntry{FormatID: "22", Label: "  720p ", HasVideo: true, HasAudio: true}.Descriptor(KindVideoAudio)
	if d.Label != "720p" {
		t.Errorf("Label = %q, want %q", d.Label, "720p")
	}
}

func TestPartitionCatalog(t *testing.T) {
	entries := []CatalogEntry{
		{FormatID: "22", Ext: "mp4", HasVideo: true, HasAudio: true, Label: "720p"},
		{FormatID: "140", Ext: "m4a", HasAudio: true, Label: "128kbps"},
		{FormatID: "137", Ext: "mp4", HasVideo: true, Label: "1080p"},
		{FormatID: "sb0", Ext: "mhtml"},
	}

	set := PartitionCatalog(entries)

	if len(set.VideoFormats) != 1 {
		t.Fatalf("VideoFormats len = %d, want 1", len(set.VideoFormats))
	}
	if set.VideoFormats[0].FormatID != "22" || set.VideoFormats[0].Label != "720p" {
		t.Errorf("VideoFormats[0] = %+v, want 22/720p", set.VideoFormats[0])
	}
	if set.VideoFormats[0].Kind != KindVideoAudio {
		t.Errorf("VideoFormats[0].Kind = %q, want %q", set.VideoFormats[0].Kind, KindVideoAudio)
	}

	if len(set.AudioFormats) != 1 {
		t.Fatalf("AudioFormats len = %d, want 1", len(set.AudioFormats))
	}
	if set.AudioFormats[0].FormatID != "140" || set.AudioFormats[0].Label != "128kbps" {
		t.Errorf("AudioFormats[0] = %+v, want 140/128kbps", set.AudioFormats[0])
	}

	for _, d := range append(set.VideoFormats, set.AudioFormats...) {
		if d.FormatID == "137" || d.FormatID == "sb0" {
			t.Errorf("format %s should have been dropped", d.FormatID)
		}
	}
}

func TestPartitionCatalog_PreservesOrder(t *testing.T) {
	entries := []CatalogEntry{
		{FormatID: "18", HasVideo: true, HasAudio: true},
		{FormatID: "249", HasAudio: true},
		{FormatID: "22", HasVideo: true, HasAudio: true},
		{FormatID: "251", HasAudio: true},
	}

	set := PartitionCatalog(entries)

	gotVideo := []FormatID{set.VideoFormats[0].FormatID, set.VideoFormats[1].FormatID}
	if gotVideo[0] != "18" || gotVideo[1] != "22" {
		t.Errorf("video order = %v, want [18 22]", gotVideo)
	}
	gotAudio := []FormatID{set.AudioFormats[0].FormatID, set.AudioFormats[1].FormatID}
	if gotAudio[0] != "249" || gotAudio[1] != "251" {
		t.Errorf("audio order = %v, want [249 251]", gotAudio)
	}
}

func TestPartitionCatalog_EmptyEncodesAsArrays(t *testing.T) {
	set := PartitionCatalog(nil)

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"videoFormats":[],"audioFormats":[]}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestParseOutputKind(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputKind
		wantErr bool
	}{
		{"", OutputVideo, false},
		{"video", OutputVideo, false},
		{"audio", OutputAudio, false},
		{"AUDIO", OutputAudio, false},
		{"gif", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutputKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOutputKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Job Tests
// =============================================================================

func TestNewJob(t *testing.T) {
	job := NewJob("job-1", "abc123", "22", OutputVideo)

	if job.Status != JobStatusProcessing {
		t.Errorf("Status = %q, want %q", job.Status, JobStatusProcessing)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
	if job.Finished() {
		t.Error("new job should not be finished")
	}
}

func TestJob_Transitions(t *testing.T) {
	job := NewJob("job-1", "abc123", "22", OutputVideo)

	job.MarkStreaming()
	if job.Status != JobStatusStreaming || job.Finished() {
		t.Errorf("after MarkStreaming: status = %q, finished = %v", job.Status, job.Finished())
	}

	job.MarkCompleted(1024)
	if job.Status != JobStatusCompleted || job.BytesSent != 1024 || !job.Finished() {
		t.Errorf("after MarkCompleted: %+v", job)
	}

	failed := NewJob("job-2", "abc123", "22", OutputVideo)
	failed.MarkFailed("boom")
	if failed.Status != JobStatusFailed || failed.LastError != "boom" || !failed.Finished() {
		t.Errorf("after MarkFailed: %+v", failed)
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestBrokerError(t *testing.T) {
	cause := errors.New("exit status 1")
	err := NewBrokerError("abc123", "fetch", ErrExtractionFailed, cause)

	if !errors.Is(err, ErrExtractionFailed) {
		t.Error("should match ErrExtractionFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("should match the cause")
	}
	if errors.Is(err, ErrTranscodeFailed) {
		t.Error("should not match ErrTranscodeFailed")
	}

	want := "fetch [abc123]: extraction failed: exit status 1"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestBrokerError_KeepsExistingKind(t *testing.T) {
	inner := fmt.Errorf("yt-dlp: %w", ErrInvalidFormat)
	err := NewBrokerError("abc123", "fetch", ErrExtractionFailed, inner)

	if err.Kind != ErrInvalidFormat {
		t.Errorf("Kind = %v, want ErrInvalidFormat", err.Kind)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("invalid format should also match ErrNotFound")
	}
	if errors.Is(err, ErrExtractionFailed) {
		t.Error("should not match ErrExtractionFailed")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"unclassified", errors.New("x"), nil},
		{"wrapped transcode", fmt.Errorf("ffmpeg: %w", ErrTranscodeFailed), ErrTranscodeFailed},
		{"invalid format", ErrInvalidFormat, ErrInvalidFormat},
		{"plain not found", ErrNotFound, ErrNotFound},
		{"io", NewBrokerError("", "open", ErrIOFailed, nil), ErrIOFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
