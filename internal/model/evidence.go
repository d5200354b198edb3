package model

import (
	"time"

	"github.com/google/uuid"
)

// EvidenceKind discriminates where an observation came from.
type EvidenceKind string

const (
	EvidenceVideoFrame   EvidenceKind = "video_frame"
	EvidenceTranscript   EvidenceKind = "transcript"
	EvidenceOnScreenText EvidenceKind = "onscreen_text"
	EvidenceListing      EvidenceKind = "listing"
	EvidenceHuman        EvidenceKind = "human"
	EvidenceDerived      EvidenceKind = "derived"
)

// Box is a normalized bounding region within a frame (all values 0-1).
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Evidence records where an observation came from. Evidence is immutable:
// it is created once per extraction pass and never changes afterwards.
type Evidence struct {
	ID         string       `json:"id"`
	Kind       EvidenceKind `json:"kind"`
	FrameIndex *int         `json:"frame_index,omitempty"`
	TimeStart  *float64     `json:"time_start,omitempty"` // seconds into the video
	TimeEnd    *float64     `json:"time_end,omitempty"`
	Region     *Box         `json:"region,omitempty"`
	SourceURL  string       `json:"source_url,omitempty"`
	CapturedAt time.Time    `json:"captured_at"`
}

// FrameEvidence creates evidence for a sampled video frame.
func FrameEvidence(frameIndex int, timestamp float64, capturedAt time.Time) Evidence {
	return Evidence{
		ID:         uuid.New().String(),
		Kind:       EvidenceVideoFrame,
		FrameIndex: &frameIndex,
		TimeStart:  &timestamp,
		CapturedAt: capturedAt.UTC(),
	}
}

// TranscriptEvidence creates evidence for a spoken-transcript span.
func TranscriptEvidence(start, end float64, capturedAt time.Time) Evidence {
	return Evidence{
		ID:         uuid.New().String(),
		Kind:       EvidenceTranscript,
		TimeStart:  &start,
		TimeEnd:    &end,
		CapturedAt: capturedAt.UTC(),
	}
}

// OnScreenTextEvidence creates evidence for text rendered in the video itself.
func OnScreenTextEvidence(frameIndex int, region *Box, capturedAt time.Time) Evidence {
	return Evidence{
		ID:         uuid.New().String(),
		Kind:       EvidenceOnScreenText,
		FrameIndex: &frameIndex,
		Region:     region,
		CapturedAt: capturedAt.UTC(),
	}
}

// ListingEvidence creates evidence for an external shopping listing.
func ListingEvidence(sourceURL string, capturedAt time.Time) Evidence {
	return Evidence{
		ID:         uuid.New().String(),
		Kind:       EvidenceListing,
		SourceURL:  sourceURL,
		CapturedAt: capturedAt.UTC(),
	}
}

// HumanEvidence creates evidence for a value a person typed in directly.
func HumanEvidence(capturedAt time.Time) Evidence {
	return Evidence{
		ID:         uuid.New().String(),
		Kind:       EvidenceHuman,
		CapturedAt: capturedAt.UTC(),
	}
}

// DerivedEvidence creates evidence for a value computed from other claims.
func DerivedEvidence(capturedAt time.Time) Evidence {
	return Evidence{
		ID:         uuid.New().String(),
		Kind:       EvidenceDerived,
		CapturedAt: capturedAt.UTC(),
	}
}
