package models

// FlatMessage is one engine-side conversation turn after normalization.
type FlatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are the sampling controls forwarded to the engine. Nil
// pointers keep the engine defaults.
type GenerationParams struct {
	DoSample           *bool
	Temperature        *float64
	TopP               *float64
	MaxNewTokens       *int
	NumReturnSequences int
	RepetitionPenalty  *float64
	Stop               []string
}

// EngineRequest is a fully validated, security-checked generation request.
// Media slices are nil when the request carries none of that kind. The owner
// of an EngineRequest must call Close once the engine call has returned.
type EngineRequest struct {
	Messages []FlatMessage
	System   string
	Tools    string
	Images   []*ResolvedMedia
	Videos   []*ResolvedMedia
	Audios   []*ResolvedMedia
	Params   GenerationParams
}

// Media returns all resolved media handles across kinds.
func (r *EngineRequest) Media() []*ResolvedMedia {
	out := make([]*ResolvedMedia, 0, len(r.Images)+len(r.Videos)+len(r.Audios))
	out = append(out, r.Images...)
	out = append(out, r.Videos...)
	out = append(out, r.Audios...)
	return out
}

// Close releases every resolved media handle. The first error wins.
func (r *EngineRequest) Close() error {
	var first error
	for _, m := range r.Media() {
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// EngineResult is one generated sequence with its token accounting.
type EngineResult struct {
	Text           string
	FinishReason   string
	PromptLength   int
	ResponseLength int
}
