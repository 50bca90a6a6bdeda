package metagen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// RunState tracks the orchestrator state machine for one run.
type RunState int32

const (
	StateIdle RunState = iota
	StateFolderAnalysis
	StatePerImageLoop
	StateCompleted
	StateAborted
)

func (s RunState) String() string {
	switch s {
	case StateFolderAnalysis:
		return "folder-analysis"
	case StatePerImageLoop:
		return "per-image-loop"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "idle"
	}
}

// Run is one in-flight or completed batch. Progress events cross from the
// worker to the caller through a buffered queue drained on the caller's own
// poll cycle; the worker never blocks on a slow consumer.
type Run struct {
	total  int
	events chan Event
	done   chan struct{}
	cancel atomic.Bool
	state  atomic.Int32

	mu      sync.Mutex
	results []GenerationResult
	summary Summary
}

func newRun(total, buffer int) *Run {
	if buffer <= 0 {
		buffer = 2*total + 8
	}
	return &Run{
		total:  total,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events returns the progress stream. It is closed when the run finishes.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed when the run finishes.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel requests cooperative cancellation. The flag is polled once per loop
// iteration, never mid-call: an in-flight model call always finishes or times
// out first.
func (r *Run) Cancel() { r.cancel.Store(true) }

// Cancelled reports whether cancellation was requested.
func (r *Run) Cancelled() bool { return r.cancel.Load() }

// State returns the current state-machine position.
func (r *Run) State() RunState { return RunState(r.state.Load()) }

// Summary returns the aggregate counts. Valid once Done is closed.
func (r *Run) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Results returns the per-image outcomes in input order. Valid once Done is
// closed.
func (r *Run) Results() []GenerationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]GenerationResult, len(r.results))
	copy(out, r.results)
	return out
}

func (r *Run) setState(s RunState) { r.state.Store(int32(s)) }

func (r *Run) record(res GenerationResult) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

// emit never blocks; when the queue is full the event is dropped rather than
// stalling the worker.
func (r *Run) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
	}
}

func (r *Run) finish(aborted bool) {
	r.mu.Lock()
	var sum Summary
	sum.Total = r.total
	for _, res := range r.results {
		switch res.Status {
		case StatusSuccess:
			sum.Succeeded++
		case StatusSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	r.summary = sum
	r.mu.Unlock()

	if aborted {
		r.setState(StateAborted)
	} else {
		r.setState(StateCompleted)
	}
	close(r.events)
	close(r.done)
}

// Orchestrator composes context derivation, rule rendering, model invocation,
// response parsing and metadata persistence into a two-phase, sequential,
// best-effort batch pipeline. Exactly one run executes at a time.
type Orchestrator struct {
	opts    Options
	invoker Invoker
	codec   *Codec
	prompts *promptSet
	persist func(ctx context.Context, path string, rec MetadataRecord) error
	log     *slog.Logger

	mu     sync.Mutex
	active bool
}

// New builds an orchestrator from run options.
func New(optFns ...Option) *Orchestrator {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	o := &Orchestrator{
		opts:    opts,
		codec:   NewCodec(opts.ToolCandidates, log),
		prompts: newPromptSet(),
		log:     log,
	}

	o.invoker = opts.Invoker
	if o.invoker == nil {
		o.invoker = NewClient(opts)
	}
	if opts.PersistFunc != nil {
		o.persist = func(_ context.Context, path string, rec MetadataRecord) error {
			return opts.PersistFunc(path, rec)
		}
	} else {
		o.persist = o.codec.Persist
	}
	return o
}

// Codec exposes the metadata codec for the verification path.
func (o *Orchestrator) Codec() *Codec { return o.codec }

// Start validates the inputs and launches the batch worker. Empty rules or an
// empty image list are rejected synchronously with ErrValidation; a second
// Start while a run is active is rejected with ErrRunActive.
func (o *Orchestrator) Start(ctx context.Context, ruleText string, imagePaths []string) (*Run, error) {
	if strings.TrimSpace(ruleText) == "" {
		return nil, fmt.Errorf("%w: empty rule template", ErrValidation)
	}
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("%w: no images to process", ErrValidation)
	}

	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return nil, ErrRunActive
	}
	o.active = true
	o.mu.Unlock()

	spec := ParseRuleSpec(ruleText)
	paths := append([]string(nil), imagePaths...)
	run := newRun(len(paths), o.opts.EventBuffer)

	runner := o.opts.Runner
	if runner == nil {
		runner = DefaultRunner(ctx)
	}
	runner.Go(func() error {
		aborted := o.execute(ctx, spec, paths, run)

		// Release the run slot before Done closes, so a caller observing Done
		// can immediately start the next batch.
		o.mu.Lock()
		o.active = false
		o.mu.Unlock()

		run.finish(aborted)
		sum := run.Summary()
		o.log.Info("batch complete", "succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)
		return nil
	})
	return run, nil
}

// execute is the worker body: folder analysis, then the per-image loop. It
// reports whether the run was aborted by cancellation.
func (o *Orchestrator) execute(ctx context.Context, spec RuleSpec, paths []string, run *Run) bool {
	run.setState(StateFolderAnalysis)
	transcript := o.folderAnalysis(ctx, run, paths)

	run.setState(StatePerImageLoop)
	total := len(paths)
	aborted := false

	for i, path := range paths {
		if run.Cancelled() {
			aborted = true
			for _, rest := range paths[i:] {
				run.record(GenerationResult{Path: rest, Status: StatusSkipped, Message: "cancelled"})
			}
			o.log.Info("batch cancelled", "processed", i, "total", total)
			break
		}

		filename := filepath.Base(path)
		res := o.processImage(ctx, spec, transcript, path, paths)
		run.record(res)

		msg := "saved"
		if res.Status != StatusSuccess {
			msg = "failed: " + res.Message
		}
		run.emit(Event{Index: i + 1, Total: total, Filename: filename, Message: msg})
		o.log.Info("image processed", "index", i+1, "total", total, "file", filename, "status", res.Status)
	}

	return aborted
}

// folderAnalysis performs the phase-one tool-augmented structural analysis.
// The result only primes the conversation transcript; it is never merged into
// per-image context, and unavailability never blocks the run.
func (o *Orchestrator) folderAnalysis(ctx context.Context, run *Run, paths []string) []Message {
	folder := filepath.Dir(paths[0])
	question, err := o.prompts.FolderAnalysis(folder)
	if err != nil {
		return nil
	}

	reply, err := o.invoker.Tools(ctx, o.prompts.System(), nil, question, []ToolDef{analyzeFolderDef})
	if err != nil {
		o.log.Warn("folder analysis unavailable", "error", err)
		return nil
	}

	transcript := []Message{{Role: RoleUser, Content: question}}
	answer := reply.Content

	if len(reply.Calls) > 0 {
		call := reply.Calls[0]
		if call.Name == analyzeFolderDef.Name {
			target := folder
			var args struct {
				Folder string `json:"folder"`
			}
			if err := json.Unmarshal(call.Arguments, &args); err == nil && args.Folder != "" {
				target = args.Folder
			}
			stats := AnalyzeFolder(target, paths)
			// The structured result is replayed with assistant role: a bare
			// tool message without a tool_call_id exchange is rejected by
			// strict endpoints.
			if result, err := json.Marshal(stats); err == nil {
				transcript = append(transcript, Message{Role: RoleAssistant, Content: string(result)})
			}
			// The tool result is answered locally instead of a second model
			// round trip, which proved unreliable for this endpoint.
			answer = AnswerFromTool(question, stats)
		}
	}

	if answer == "" {
		return nil
	}
	transcript = append(transcript, Message{Role: RoleAssistant, Content: answer})
	run.emit(Event{Index: 0, Total: len(paths), Message: "folder analysis complete"})
	return transcript
}

// processImage runs the full per-image pipeline. Every failure is local to
// this image.
func (o *Orchestrator) processImage(ctx context.Context, spec RuleSpec, transcript []Message, path string, all []string) GenerationResult {
	ictx := DeriveContext(path, all)

	reply, err := o.generate(ctx, spec, transcript, ictx)
	if err != nil {
		return GenerationResult{Path: path, Status: StatusError, Message: err.Error()}
	}

	record := parser{artistFallback: o.opts.ArtistFallback}.parse(reply, ictx)
	if record.IsEmpty() {
		return GenerationResult{Path: path, Status: StatusError, Message: ErrParseEmpty.Error()}
	}

	if err := o.persist(ctx, path, record); err != nil {
		return GenerationResult{Path: path, Status: StatusError, Message: err.Error()}
	}
	return GenerationResult{Path: path, Status: StatusSuccess, Record: record}
}

// generate calls the model in vision mode and degrades to text-only with a
// reduced prompt before giving up on the image.
func (o *Orchestrator) generate(ctx context.Context, spec RuleSpec, transcript []Message, ictx ImageContext) (string, error) {
	system := o.prompts.System()

	data, readErr := os.ReadFile(ictx.Path)
	if readErr == nil {
		prompt, err := o.prompts.Generation(spec, ictx, false)
		if err != nil {
			return "", err
		}
		reply, err := o.invoker.Vision(ctx, system, transcript, prompt, NewImagePart(data, ""))
		if err == nil {
			return reply, nil
		}
		o.log.Warn("vision call failed, degrading to text", "file", ictx.Stem, "error", err)
	} else {
		o.log.Warn("image unreadable, degrading to text", "file", ictx.Stem, "error", readErr)
	}

	reduced, err := o.prompts.Generation(spec, ictx, true)
	if err != nil {
		return "", err
	}
	return o.invoker.Text(ctx, system, transcript, reduced)
}
