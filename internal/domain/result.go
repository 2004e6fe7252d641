package domain

// AnalysisSection is one content block of the planned infographic.
type AnalysisSection struct {
	Heading string   `json:"heading"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon,omitempty"`
	Points  []string `json:"points,omitempty"`
}

// AnalysisResult is the visual plan produced by the analysis phase.
type AnalysisResult struct {
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle,omitempty"`
	Sections []AnalysisSection `json:"sections"`
	Layout   string            `json:"layout"`
	Palette  []string          `json:"palette,omitempty"`
}

// ImageHandle points at the rendered infographic produced by the
// generation phase.
type ImageHandle struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// GenerationResult is the completed outcome of a job: the analysis plan
// plus the rendered image.
type GenerationResult struct {
	Analysis AnalysisResult `json:"analysis"`
	Image    ImageHandle    `json:"image"`
}
