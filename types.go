package metagen

import (
	"context"
	"encoding/json"
	"errors"
)

// Canonical metadata field names. These six are the only keys the system
// recognizes structurally; everything else in a rule template is treated as
// instruction text.
const (
	FieldTitle       = "Title"
	FieldMake        = "Make"
	FieldModel       = "Model"
	FieldDescription = "Description"
	FieldKeywords    = "Keywords"
	FieldArtist      = "Artist"
)

// CanonicalFields lists the canonical field names in their fixed order.
var CanonicalFields = []string{
	FieldTitle,
	FieldMake,
	FieldModel,
	FieldDescription,
	FieldKeywords,
	FieldArtist,
}

// IsCanonicalField reports whether name is one of the six canonical keys.
func IsCanonicalField(name string) bool {
	for _, f := range CanonicalFields {
		if f == name {
			return true
		}
	}
	return false
}

var (
	// ErrValidation rejects a run before it starts (empty rules or image list).
	ErrValidation = errors.New("validation failed")
	// ErrRunActive rejects a second Start while a run is in flight.
	ErrRunActive = errors.New("a run is already active")
	// ErrModelUnavailable covers network errors, timeouts and non-success
	// responses from the inference endpoint.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrParseEmpty signals that no metadata field could be extracted from a
	// model reply.
	ErrParseEmpty = errors.New("no fields extracted from response")
	// ErrPersistence covers encode and write failures in the metadata codec.
	ErrPersistence = errors.New("metadata persistence failed")
	// ErrToolNotFound signals that the external metadata tool could not be
	// discovered on this host.
	ErrToolNotFound = errors.New("external metadata tool not found")
	// ErrUnsupportedFormat signals a file extension outside the codec registry.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// MetadataRecord maps canonical field names to values. Absence of a key means
// "do not write this tag"; values are never empty strings.
type MetadataRecord map[string]string

// IsEmpty reports whether no field carries a value.
func (r MetadataRecord) IsEmpty() bool { return len(r) == 0 }

// Role identifies a conversation participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one text entry in a run transcript. Image parts never enter the
// transcript; they are attached per call.
type Message struct {
	Role    Role
	Content string
}

// ToolDef declares a callable function for tool-augmented requests.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is a tool invocation requested by the model. Arguments preserve the
// raw JSON the model produced.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolReply is the outcome of a tool-augmented request: either plain content,
// or one or more tool calls for the caller to execute locally.
type ToolReply struct {
	Content string
	Calls   []ToolCall
}

// Invoker is the seam between the orchestrator and the remote inference
// service. Client is the production implementation; tests substitute their own.
type Invoker interface {
	// Text performs a text-only completion.
	Text(ctx context.Context, system string, history []Message, prompt string) (string, error)
	// Vision performs a completion with an attached image part.
	Vision(ctx context.Context, system string, history []Message, prompt string, image *Part) (string, error)
	// Tools performs a tool-augmented completion with the declared functions.
	Tools(ctx context.Context, system string, history []Message, question string, tools []ToolDef) (*ToolReply, error)
}

// Status classifies the outcome of one image.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// GenerationResult records the outcome for a single image.
type GenerationResult struct {
	Path    string
	Status  Status
	Record  MetadataRecord
	Message string
}

// Event is one progress notification emitted while a run advances. Index is
// 1-based.
type Event struct {
	Index    int
	Total    int
	Filename string
	Message  string
}

// Summary aggregates a completed run. Succeeded+Failed+Skipped == Total.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
	Total     int
}
