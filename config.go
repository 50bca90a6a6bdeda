package metagen

import (
	"log/slog"
	"net/http"
	"time"
)

// Options carries the full configuration for one run. Everything mutable lives
// here and is fixed once Start is called; there is no ambient state shared
// across runs.
type Options struct {
	BaseURL     string
	APIKey      string
	TextModel   string
	VisionModel string
	ToolModel   string

	// Vision round trips are bounded by a longer timeout than text and tool
	// calls; a timeout fails only the image in flight.
	TextTimeout   time.Duration
	VisionTimeout time.Duration
	ToolTimeout   time.Duration

	MaxTokens   int
	Temperature float64

	// ArtistFallback is written verbatim when no Artist value can be extracted
	// from a model reply.
	ArtistFallback string

	Logger     *slog.Logger
	HTTPClient *http.Client
	Runner     Runner

	// ToolCandidates is the ordered probe list for the external metadata tool.
	ToolCandidates []string

	// EventBuffer sizes the progress queue; zero derives it from the image
	// count at Start.
	EventBuffer int

	// Invoker overrides the HTTP client, for tests and alternate transports.
	Invoker Invoker
	// PersistFunc overrides the metadata codec, for tests.
	PersistFunc func(path string, rec MetadataRecord) error
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		BaseURL:        "http://localhost:1234",
		TextModel:      "qwen2.5-7b-instruct",
		VisionModel:    "qwen2-vl-7b-instruct",
		ToolModel:      "qwen2.5-7b-instruct",
		TextTimeout:    45 * time.Second,
		VisionTimeout:  120 * time.Second,
		ToolTimeout:    45 * time.Second,
		MaxTokens:      1000,
		Temperature:    0.7,
		ArtistFallback: "[Your Company Name]",
	}
}

// WithBaseURL sets the inference endpoint root, e.g. http://localhost:1234.
func WithBaseURL(u string) Option {
	return func(o *Options) { o.BaseURL = u }
}

// WithAPIKey sets the bearer token sent with every request. Local endpoints
// usually need none.
func WithAPIKey(key string) Option {
	return func(o *Options) { o.APIKey = key }
}

// WithTextModel sets the model used for text-only completions.
func WithTextModel(name string) Option {
	return func(o *Options) { o.TextModel = name }
}

// WithVisionModel sets the model used for image-carrying completions.
func WithVisionModel(name string) Option {
	return func(o *Options) { o.VisionModel = name }
}

// WithToolModel sets the model used for tool-augmented completions.
func WithToolModel(name string) Option {
	return func(o *Options) { o.ToolModel = name }
}

// WithTimeouts sets the per-mode round-trip bounds.
func WithTimeouts(text, vision, tool time.Duration) Option {
	return func(o *Options) {
		o.TextTimeout = text
		o.VisionTimeout = vision
		o.ToolTimeout = tool
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = t }
}

// WithArtistFallback sets the literal written when no Artist can be extracted.
func WithArtistFallback(s string) Option {
	return func(o *Options) { o.ArtistFallback = s }
}

// WithLogger lets the caller supply their own logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Options) { o.Logger = log }
}

// WithHTTPClient substitutes the HTTP client used for inference calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) { o.HTTPClient = hc }
}

// WithRunner lets the orchestrator schedule its worker on a caller-owned
// runner.
func WithRunner(r Runner) Option {
	return func(o *Options) { o.Runner = r }
}

// WithToolCandidates replaces the probe list for the external metadata tool.
func WithToolCandidates(paths ...string) Option {
	return func(o *Options) { o.ToolCandidates = paths }
}

// WithEventBuffer sizes the progress event queue.
func WithEventBuffer(n int) Option {
	return func(o *Options) { o.EventBuffer = n }
}

// WithInvoker overrides the model client.
func WithInvoker(inv Invoker) Option {
	return func(o *Options) { o.Invoker = inv }
}

// WithPersistFunc overrides metadata persistence.
func WithPersistFunc(fn func(path string, rec MetadataRecord) error) Option {
	return func(o *Options) { o.PersistFunc = fn }
}
