package domain

import "context"

// Role tags one turn in a conversation window using the backend's two-party
// vocabulary. Callers speak in user/assistant; the session store converts
// on append.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one exchange unit in a conversation window. Immutable once appended.
type Turn struct {
	Role Role
	Text string
}

// TextRequest asks the backend for a reply to Prompt given the ordered prior
// History (oldest first). History never includes the prompt itself.
type TextRequest struct {
	Prompt  string
	History []Turn
}

// VisionRequest asks the backend to describe or answer about an image.
type VisionRequest struct {
	Prompt   string
	Image    []byte
	MimeType string
}

// Generator is the generative-AI backend. Both calls block until the backend
// answers or fails; credential selection is internal to the implementation.
type Generator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
	GenerateVision(ctx context.Context, req VisionRequest) (string, error)
	Name() string
	Healthy(ctx context.Context) error
}
