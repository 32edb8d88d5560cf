// Package upload sequences one upload through decode, classification, user
// confirmation, analysis and storage.
//
// A Controller owns the current file and schema selection of one user. It
// handles a single upload at a time: while a file is being decoded, waiting
// for confirmation or being analyzed, a new SubmitFile is rejected rather
// than queued. Every failure returns the controller to Idle with the file
// cleared, and nothing is appended to the store unless analysis succeeded.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/loglens/internal/analysis"
	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/events"
	"github.com/JonMunkholm/loglens/internal/metrics"
	"github.com/JonMunkholm/loglens/internal/store"
)

// State is a step of the upload state machine.
type State int

const (
	StateIdle State = iota
	StateDecoding
	StateClassifying
	StateAwaitingConfirmation
	StateSubmitting
	StateStored
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StateDecoding:             "decoding",
	StateClassifying:          "classifying",
	StateAwaitingConfirmation: "awaiting_confirmation",
	StateSubmitting:           "submitting",
	StateStored:               "stored",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Decoder turns raw bytes into a table.
type Decoder interface {
	Decode(ctx context.Context, upload core.RawUpload) (*core.Table, error)
}

// Classifier picks the schema label of a table.
type Classifier interface {
	Classify(t *core.Table) core.SchemaLabel
}

// Deps are the collaborators shared by every controller. Decoder,
// Classifier, Analyzer and Store are required.
type Deps struct {
	Decoder    Decoder
	Classifier Classifier
	Analyzer   analysis.Analyzer
	Store      store.ResultStore
	Publisher  events.Publisher
	Limiter    *Limiter
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// OnTransition, when set, is called with every state change while the
	// controller lock is held. It must not call back into the controller.
	OnTransition func(from, to State)
}

func (d Deps) validate() error {
	var missing []string
	if d.Decoder == nil {
		missing = append(missing, "decoder")
	}
	if d.Classifier == nil {
		missing = append(missing, "classifier")
	}
	if d.Analyzer == nil {
		missing = append(missing, "analyzer")
	}
	if d.Store == nil {
		missing = append(missing, "store")
	}
	if len(missing) > 0 {
		return fmt.Errorf("upload controller: missing %v", missing)
	}
	return nil
}

// Detection is what the user confirms: the detected label and the current
// selection, which starts as the detected label unless a concrete label
// was requested with the file.
type Detection struct {
	FileName string           `json:"file_name"`
	Detected core.SchemaLabel `json:"detected"`
	Selected core.SchemaLabel `json:"selected"`
	Header   []string         `json:"header"`
	Rows     int              `json:"rows"`
}

type pendingFile struct {
	upload   core.RawUpload
	table    *core.Table
	detected core.SchemaLabel
	selected core.SchemaLabel
}

// Controller is the state machine of one user's uploads.
type Controller struct {
	deps Deps

	mu      sync.Mutex
	state   State
	gen     uint64
	pending *pendingFile
}

// New returns an Idle controller.
func New(deps Deps) (*Controller, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Controller{deps: deps}, nil
}

// State reports the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the detection awaiting confirmation, if any.
func (c *Controller) Pending() (Detection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingConfirmation || c.pending == nil {
		return Detection{}, false
	}
	return c.pending.detection(), true
}

// SubmitFile decodes and classifies upload. requested may be empty or
// auto-detect to take the detected label, or a concrete label to keep as
// the selection. On success the controller waits for Confirm.
func (c *Controller) SubmitFile(ctx context.Context, upload *core.RawUpload, requested core.SchemaLabel) (Detection, error) {
	const op = "submit file"

	if upload == nil || upload.FileName == "" {
		c.deps.Metrics.ObserveUpload(metrics.OutcomeRejected)
		return Detection{}, core.NewValidationError(op, "no file selected")
	}
	if requested == "" {
		requested = core.LabelAuto
	}
	if !knownLabel(requested) {
		c.deps.Metrics.ObserveUpload(metrics.OutcomeRejected)
		return Detection{}, core.NewValidationError(op, fmt.Sprintf("unknown log type %q", requested))
	}

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		c.deps.Metrics.ObserveUpload(metrics.OutcomeRejected)
		return Detection{}, core.NewValidationError(op, "busy: an upload is already "+state.String())
	}
	c.transition(StateDecoding)
	gen := c.gen
	c.mu.Unlock()

	logger := c.deps.Logger.With("file", upload.FileName, "size", len(upload.Data))
	raw := *upload

	table, err := c.deps.Decoder.Decode(ctx, raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.state != StateDecoding {
		return Detection{}, core.NewValidationError(op, "upload was canceled")
	}
	if err != nil {
		c.reset()
		c.deps.Metrics.ObserveUpload(metrics.OutcomeFailed)
		logger.Warn("decode failed", "error", err)
		return Detection{}, err
	}
	c.deps.Metrics.ObserveUpload(metrics.OutcomeOK)

	c.transition(StateClassifying)
	detected := c.deps.Classifier.Classify(table)
	c.deps.Metrics.ObserveDetection(string(detected))

	selected := detected
	if requested.Resolved() {
		selected = requested
	}

	c.pending = &pendingFile{upload: raw, table: table, detected: detected, selected: selected}
	c.transition(StateAwaitingConfirmation)

	logger.Info("upload classified", "rows", table.Len(), "detected", detected, "selected", selected)
	return c.pending.detection(), nil
}

// Override changes the selected label before confirmation. auto-detect
// goes back to the detected label.
func (c *Controller) Override(label core.SchemaLabel) (Detection, error) {
	const op = "override schema"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingConfirmation {
		return Detection{}, core.NewValidationError(op, "not awaiting confirmation (state "+c.state.String()+")")
	}
	if err := c.pending.choose(op, label); err != nil {
		return Detection{}, err
	}
	return c.pending.detection(), nil
}

// Confirm submits the pending file for analysis with label, or with the
// current selection when label is empty, and appends the result to the
// store. The file is cleared whether or not the submission succeeds.
func (c *Controller) Confirm(ctx context.Context, label core.SchemaLabel) (core.NormalizedResult, error) {
	const op = "confirm upload"

	c.mu.Lock()
	if c.state != StateAwaitingConfirmation {
		state := c.state
		c.mu.Unlock()
		return core.NormalizedResult{}, core.NewValidationError(op, "not awaiting confirmation (state "+state.String()+")")
	}
	if label != "" {
		if err := c.pending.choose(op, label); err != nil {
			c.mu.Unlock()
			return core.NormalizedResult{}, err
		}
	}
	pending := c.pending
	c.pending = nil
	c.transition(StateSubmitting)
	c.mu.Unlock()

	res, err := c.submit(ctx, pending)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.reset()
		return core.NormalizedResult{}, err
	}
	c.transition(StateStored)
	c.reset()
	return res, nil
}

// Run is the one-shot path: decode, classify, then confirm with requested
// (auto-detect takes the detected label).
func (c *Controller) Run(ctx context.Context, upload *core.RawUpload, requested core.SchemaLabel) (core.NormalizedResult, error) {
	if _, err := c.SubmitFile(ctx, upload, requested); err != nil {
		return core.NormalizedResult{}, err
	}
	return c.Confirm(ctx, "")
}

// Cancel drops a file that is decoding or awaiting confirmation. A
// submission already sent for analysis cannot be canceled.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateSubmitting, StateStored:
		return core.NewValidationError("cancel upload", "busy: analysis already submitted")
	case StateIdle:
		return nil
	}
	c.reset()
	return nil
}

// submit runs without the controller lock held.
func (c *Controller) submit(ctx context.Context, p *pendingFile) (core.NormalizedResult, error) {
	label := p.selected
	logger := c.deps.Logger.With("file", p.upload.FileName, "label", label)

	if c.deps.Limiter != nil {
		if err := c.deps.Limiter.Acquire(ctx); err != nil {
			logger.Warn("no submission slot", "error", err)
			return core.NormalizedResult{}, err
		}
		defer c.deps.Limiter.Release()
	}

	req, err := analysis.NewRequest(label, p.upload, p.table)
	if err != nil {
		return core.NormalizedResult{}, err
	}

	start := time.Now()
	res, err := c.deps.Analyzer.Analyze(ctx, req)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	c.deps.Metrics.ObserveSubmission(string(label), outcome, time.Since(start))
	if err != nil {
		logger.Warn("analysis failed", "error", err)
		return core.NormalizedResult{}, err
	}

	if err := c.deps.Store.Append(ctx, res); err != nil {
		logger.Error("failed to store result", "id", res.ID, "error", err)
		return core.NormalizedResult{}, fmt.Errorf("store result: %w", err)
	}

	if err := c.deps.Publisher.Publish(ctx, events.ResultStored(res)); err != nil {
		logger.Warn("result stored but event not published", "id", res.ID, "error", err)
	}

	logger.Info("result stored",
		"id", res.ID,
		"status", res.Status,
		"probability", res.Probability,
		"origin", res.Origin,
	)
	return res, nil
}

// transition must be called with c.mu held.
func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	if c.deps.OnTransition != nil && from != to {
		c.deps.OnTransition(from, to)
	}
}

// reset must be called with c.mu held.
func (c *Controller) reset() {
	c.pending = nil
	c.gen++
	c.transition(StateIdle)
}

func (p *pendingFile) choose(op string, label core.SchemaLabel) error {
	switch {
	case label == core.LabelAuto:
		p.selected = p.detected
	case label.Resolved():
		p.selected = label
	default:
		return core.NewValidationError(op, fmt.Sprintf("unknown log type %q", label))
	}
	return nil
}

func (p *pendingFile) detection() Detection {
	return Detection{
		FileName: p.upload.FileName,
		Detected: p.detected,
		Selected: p.selected,
		Header:   append([]string(nil), p.table.Header...),
		Rows:     p.table.Len(),
	}
}

func knownLabel(l core.SchemaLabel) bool {
	return l == core.LabelAuto || l.Resolved()
}
