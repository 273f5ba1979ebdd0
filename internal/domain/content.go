package domain

import "errors"

// ContentTypePodcast is the only content kind the protocol accepts today.
const ContentTypePodcast = "podcast"

var (
	ErrContentKindUnsupported = errors.New("unsupported content kind")
	ErrAudioURLEmpty          = errors.New("audioUrl is required")
)

// ContentData describes the audio source a room plays. Immutable after the
// room is created.
type ContentData struct {
	InfoType    string `json:"infoType"`
	AudioURL    string `json:"audioUrl"`
	SourceType  string `json:"sourceType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	LinkURL     string `json:"linkUrl,omitempty"`
}

// Validate checks the descriptor the way the operate endpoint requires it.
func (c *ContentData) Validate() error {
	if c.InfoType != ContentTypePodcast {
		return ErrContentKindUnsupported
	}
	if c.AudioURL == "" {
		return ErrAudioURLEmpty
	}
	return nil
}
