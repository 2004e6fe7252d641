package domain

import (
	"fmt"
	"strings"
)

// OutputSize represents the requested infographic resolution tier.
type OutputSize string

const (
	SizeSmall  OutputSize = "SMALL"
	SizeMedium OutputSize = "MEDIUM"
	SizeLarge  OutputSize = "LARGE"
)

func (s OutputSize) String() string { return string(s) }

func (s OutputSize) IsValid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge:
		return true
	}
	return false
}

func ParseOutputSizeFromString(s string) (OutputSize, error) {
	size := OutputSize(strings.ToUpper(strings.TrimSpace(s)))
	if !size.IsValid() {
		return "", fmt.Errorf("%w: invalid output size %q", ErrValidation, s)
	}
	return size, nil
}

// AspectRatio represents the requested canvas proportions.
type AspectRatio string

const (
	RatioSquare    AspectRatio = "1:1"
	RatioLandscape AspectRatio = "16:9"
	RatioPortrait  AspectRatio = "9:16"
	RatioClassic   AspectRatio = "4:3"
	RatioTall      AspectRatio = "3:4"
)

func (r AspectRatio) String() string { return string(r) }

func (r AspectRatio) IsValid() bool {
	switch r {
	case RatioSquare, RatioLandscape, RatioPortrait, RatioClassic, RatioTall:
		return true
	}
	return false
}

func ParseAspectRatioFromString(s string) (AspectRatio, error) {
	ratio := AspectRatio(strings.TrimSpace(s))
	if !ratio.IsValid() {
		return "", fmt.Errorf("%w: invalid aspect ratio %q", ErrValidation, s)
	}
	return ratio, nil
}

const MaxTopicLength = 500

// GenerationRequest is the immutable snapshot captured when a job is created.
type GenerationRequest struct {
	Topic       string
	Size        OutputSize
	AspectRatio AspectRatio
	Style       string
	Palette     []string
	Filters     map[string]string
	FileContent []byte
}

// Normalize fills defaults for optional fields. Called once before validation.
func (r *GenerationRequest) Normalize() {
	r.Topic = strings.TrimSpace(r.Topic)
	r.Style = strings.TrimSpace(r.Style)
	if r.Size == "" {
		r.Size = SizeMedium
	}
	if r.AspectRatio == "" {
		r.AspectRatio = RatioSquare
	}
}

func (r *GenerationRequest) Validate() error {
	if r.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrValidation)
	}
	if len([]rune(r.Topic)) > MaxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d characters", ErrValidation, MaxTopicLength)
	}
	if !r.Size.IsValid() {
		return fmt.Errorf("%w: invalid output size %q", ErrValidation, r.Size)
	}
	if !r.AspectRatio.IsValid() {
		return fmt.Errorf("%w: invalid aspect ratio %q", ErrValidation, r.AspectRatio)
	}
	return nil
}
