package engine

import "github.com/nestscout/nestscout/internal/media"

// Message represents a chat message. Images are only sent to vision models.
type Message struct {
	Role    string
	Content string
	Images  []media.Image
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
