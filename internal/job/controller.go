// Package job submits bulk creation jobs and follows their progress.
package job

import (
	"context"
	"sync"
	"time"

	"github.com/bhtools/podbulk/internal/api"
	"github.com/bhtools/podbulk/internal/constants"
	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/logging"
	"github.com/bhtools/podbulk/internal/models"
)

// Service is the part of the service client that runs jobs.
type Service interface {
	CreateProducts(ctx context.Context, req *models.JobRequest) (*models.Ack, error)
	GetProgress(ctx context.Context) (*models.JobProgress, error)
	Cancel(ctx context.Context) (*models.Ack, error)
}

// State is the polling loop state.
type State string

const (
	StateIdle       State = "idle"
	StatePolling    State = "polling"
	StateTerminated State = "terminated"
)

// ConfirmFunc asks the user to confirm a submission.
type ConfirmFunc func(prompt string) bool

// Options configures a Controller.
type Options struct {
	// Interval between progress queries. Zero means constants.PollInterval.
	Interval time.Duration
	// FailurePolicy decides what a failed progress query does:
	// constants.PollFailureContinue or constants.PollFailureTerminate.
	FailurePolicy string
}

// Controller owns the single active job of a session.
type Controller struct {
	svc      Service
	eventBus *events.EventBus
	log      *logging.Logger
	interval time.Duration
	policy   string

	mu         sync.Mutex
	state      State
	epoch      uint64
	snapshot   models.JobProgress
	cancelled  bool
	submitting bool // a Submit or Watch holds the controller
	stop       context.CancelFunc
	done       chan struct{}
}

// NewController creates an idle controller.
func NewController(svc Service, eventBus *events.EventBus, logger *logging.Logger, opts Options) *Controller {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = constants.PollInterval
	}
	policy := opts.FailurePolicy
	if policy != constants.PollFailureTerminate {
		policy = constants.PollFailureContinue
	}
	return &Controller{
		svc:      svc,
		eventBus: eventBus,
		log:      logger.Component("job"),
		interval: interval,
		policy:   policy,
		state:    StateIdle,
		snapshot: models.JobProgress{Status: models.JobIdle},
	}
}

// Submit checks the preconditions, asks confirm with the product count,
// sends the job and starts polling its progress. Nothing is sent when a
// precondition fails or the user declines.
//
// Any answer from the service starts polling. When the answer carried an
// error, Submit returns it together with an Ack holding its text; only a
// transport failure returns a nil Ack and leaves the controller idle.
func (c *Controller) Submit(ctx context.Context, in Inputs, confirm ConfirmFunc) (*models.Ack, error) {
	if err := Check(in); err != nil {
		return nil, err
	}
	if !c.claim() {
		return nil, ErrJobActive
	}
	defer c.release()

	if confirm == nil || !confirm(ConfirmPrompt(len(in.Assets))) {
		return nil, ErrNotConfirmed
	}

	req, err := BuildRequest(in)
	if err != nil {
		return nil, err
	}

	ack, err := c.svc.CreateProducts(ctx, req)
	switch {
	case err != nil && !api.IsRemote(err):
		c.log.Error().Err(err).Msg("job submission failed")
		return nil, err
	case err != nil:
		// The service may have started the job anyway; progress tells.
		c.log.Warn().Err(err).Msg("job submission flagged by service, polling anyway")
		ack = &models.Ack{Message: api.Message(err)}
	default:
		c.log.Info().Int("images", len(req.Images)).Str("store", req.StoreID).Str("product", req.ProductID).Msg(ack.Message)
	}

	c.startPolling(ctx, "submitted")
	return ack, err
}

// Watch starts polling the service's current job without submitting one.
func (c *Controller) Watch(ctx context.Context) error {
	if !c.claim() {
		return ErrJobActive
	}
	defer c.release()
	c.startPolling(ctx, "watching")
	return nil
}

// claim reserves the controller for one Submit or Watch. It fails while a
// job is polling or another claim is held.
func (c *Controller) claim() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePolling || c.submitting {
		return false
	}
	c.submitting = true
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	c.submitting = false
	c.mu.Unlock()
}

func (c *Controller) startPolling(ctx context.Context, reason string) {
	// The loop outlives the request context; Cancel and Stop end it.
	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	old := c.state
	c.state = StatePolling
	c.cancelled = false
	c.snapshot = models.JobProgress{Status: models.JobPending}
	c.stop = stop
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	c.transition(epoch, old, StatePolling, reason)
	go c.pollLoop(loopCtx, epoch, done)
}

func (c *Controller) pollLoop(ctx context.Context, epoch uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.poll(ctx, epoch) {
				return
			}
		}
	}
}

// poll runs one progress query and reports whether polling goes on.
func (c *Controller) poll(ctx context.Context, epoch uint64) bool {
	p, err := c.svc.GetProgress(ctx)
	if ctx.Err() != nil {
		return false
	}

	c.mu.Lock()
	if c.epoch != epoch || c.state != StatePolling {
		c.mu.Unlock()
		c.log.Debug().Uint64("epoch", epoch).Msg("stale progress response dropped")
		return false
	}

	if err != nil {
		if c.policy == constants.PollFailureContinue {
			c.mu.Unlock()
			c.log.Warn().Err(err).Uint64("epoch", epoch).Msg("progress query failed, will retry on next tick")
			return true
		}
		c.snapshot = models.JobProgress{
			Status:  models.JobError,
			Current: c.snapshot.Current,
			Total:   c.snapshot.Total,
			Message: api.Message(err),
		}
		snap := c.snapshot
		c.state = StateTerminated
		c.mu.Unlock()

		c.log.Error().Err(err).Uint64("epoch", epoch).Msg("progress query failed, polling stopped")
		c.publishProgress(epoch, snap, true)
		c.transition(epoch, StatePolling, StateTerminated, "poll failed")
		return false
	}

	c.snapshot = *p
	terminal := p.Status.IsTerminal()
	if terminal {
		c.state = StateTerminated
	}
	c.mu.Unlock()

	c.log.Debug().Uint64("epoch", epoch).Str("status", string(p.Status)).Int("current", p.Current).Int("total", p.Total).Msg("progress")
	c.publishProgress(epoch, *p, false)
	if terminal {
		c.transition(epoch, StatePolling, StateTerminated, string(p.Status))
		return false
	}
	return true
}

// Cancel asks the service to stop the job. On acknowledgment polling stops
// and the job is marked cancelled locally, whatever a poll that was in
// flight reported meanwhile. Once the job reached a terminal status Cancel
// is refused without a remote call.
func (c *Controller) Cancel(ctx context.Context) (*models.Ack, error) {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return nil, ErrCancelUnavailable
	}
	target := c.epoch
	wasPolling := c.state == StatePolling
	c.mu.Unlock()

	ack, err := c.svc.Cancel(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("cancel request failed")
		return nil, err
	}

	c.mu.Lock()
	if c.state == StateTerminated && (!wasPolling || c.epoch != target) {
		// a job this request was not aimed at ended meanwhile
		c.mu.Unlock()
		return ack, nil
	}
	c.epoch++
	epoch := c.epoch
	old := c.state
	c.state = StateTerminated
	c.cancelled = true
	c.snapshot = models.JobProgress{
		Status:  models.JobCancelled,
		Current: c.snapshot.Current,
		Total:   c.snapshot.Total,
		Message: ack.Message,
	}
	snap := c.snapshot
	stop := c.stop
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.log.Info().Uint64("epoch", epoch).Msg("job cancelled")
	c.publishProgress(epoch, snap, true)
	c.transition(epoch, old, StateTerminated, "cancelled")
	return ack, nil
}

// Wait blocks until polling of the current job ends and returns the last
// snapshot.
func (c *Controller) Wait(ctx context.Context) (models.JobProgress, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return models.JobProgress{}, ErrNotStarted
	}

	select {
	case <-done:
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
	return c.Snapshot(), nil
}

// Stop ends polling without contacting the service. The job keeps running
// on the service and the controller returns to idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != StatePolling {
		c.mu.Unlock()
		return
	}
	c.epoch++
	epoch := c.epoch
	c.state = StateIdle
	stop := c.stop
	c.mu.Unlock()

	stop()
	c.transition(epoch, StatePolling, StateIdle, "stopped")
}

// State returns the polling state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the most recent progress.
func (c *Controller) Snapshot() models.JobProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Epoch returns the current job epoch.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// CancelAvailable reports whether Cancel would contact the service.
func (c *Controller) CancelAvailable() bool {
	return c.State() != StateTerminated
}

// Cancelled reports whether the current job was cancelled by this client.
func (c *Controller) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Controller) transition(epoch uint64, old, next State, reason string) {
	c.log.Debug().Uint64("epoch", epoch).Str("from", string(old)).Str("to", string(next)).Str("reason", reason).Msg("job state")
	if c.eventBus != nil {
		c.eventBus.PublishJobState(epoch, string(old), string(next), reason)
	}
}

func (c *Controller) publishProgress(epoch uint64, p models.JobProgress, local bool) {
	if c.eventBus != nil {
		c.eventBus.PublishProgress(epoch, p, local)
	}
}
