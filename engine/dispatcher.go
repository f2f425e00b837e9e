package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/StudioSol/set"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/jpillora/backoff"

	"copytrader/exchange"
	"copytrader/model"
	"copytrader/reference"
	"copytrader/storage"
	"copytrader/utils"
)

type DispatcherOption func(*Dispatcher)

func WithClock(clock clockwork.Clock) DispatcherOption {
	return func(d *Dispatcher) {
		d.clock = clock
	}
}

func WithNotifier(notifier reference.Notifier) DispatcherOption {
	return func(d *Dispatcher) {
		d.notifier = notifier
	}
}

// Dispatcher subscribes to master trade events and fans each one out to the
// follower lanes: claim, size, validate, submit with retry, confirm. One
// dispatcher instance serves all masters.
type Dispatcher struct {
	gateway  reference.Gateway
	configs  reference.ConfigSource
	store    storage.Storage
	notifier reference.Notifier
	clock    clockwork.Clock
	settings Settings

	sizer    *Sizer
	guard    *Guard
	breaker  *CircuitBreaker
	status   *StatusRegistry
	validate *validator.Validate

	mu             sync.Mutex
	state          model.EngineState
	seen           *set.LinkedHashSetString
	inflight       map[string]struct{}
	lanes          map[int64]*lane
	leverageSynced map[string]bool

	runCancel context.CancelFunc
	jobCancel context.CancelFunc
	jobCtx    context.Context
	consumeWg sync.WaitGroup
	laneWg    sync.WaitGroup
	jobsWg    sync.WaitGroup
}

func NewDispatcher(
	gateway reference.Gateway,
	configs reference.ConfigSource,
	store storage.Storage,
	settings Settings,
	options ...DispatcherOption,
) *Dispatcher {
	settings.ensureDefaults()

	dispatcher := &Dispatcher{
		gateway:        gateway,
		configs:        configs,
		store:          store,
		clock:          clockwork.NewRealClock(),
		settings:       settings,
		validate:       validator.New(),
		state:          model.EngineStateStopped,
		seen:           set.NewLinkedHashSetString(),
		inflight:       map[string]struct{}{},
		lanes:          map[int64]*lane{},
		leverageSynced: map[string]bool{},
	}
	for _, option := range options {
		option(dispatcher)
	}

	dispatcher.sizer = NewSizer(gateway, settings.MaxLeverage)
	dispatcher.guard = NewGuard(gateway, settings.MaxLeverage, settings.MaxNotionalFraction, settings.Symbols)
	dispatcher.breaker = NewCircuitBreaker(dispatcher.clock, settings.BreakerThreshold, settings.BreakerCooldown)
	dispatcher.status = NewStatusRegistry(dispatcher.clock)
	return dispatcher
}

// SetNotifier registers the notifier for terminal job callbacks. Must be
// called before Start.
func (d *Dispatcher) SetNotifier(notifier reference.Notifier) {
	d.notifier = notifier
}

// Start subscribes to every active master that has at least one enabled
// copy config. Without one it fails with ErrNotReady and stays stopped.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state != model.EngineStateStopped {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.state = model.EngineStateInitializing
	d.mu.Unlock()
	d.status.SetState(model.EngineStateInitializing)

	masters, err := d.eligibleMasters()
	if err != nil || len(masters) == 0 {
		d.mu.Lock()
		d.state = model.EngineStateStopped
		d.mu.Unlock()
		d.status.SetState(model.EngineStateStopped)
		if err != nil {
			return fmt.Errorf("loading masters: %w", err)
		}
		return ErrNotReady
	}

	runCtx, runCancel := context.WithCancel(ctx)
	jobCtx, jobCancel := context.WithCancel(context.Background())

	d.mu.Lock()
	d.runCancel = runCancel
	d.jobCtx = jobCtx
	d.jobCancel = jobCancel
	d.state = model.EngineStateRunning
	d.mu.Unlock()

	for _, master := range masters {
		events, errs := d.gateway.MasterEventsSubscription(runCtx, master.ID)
		d.consumeWg.Add(1)
		go d.consume(runCtx, master, events, errs)
		utils.Log.Infof("[DISPATCH] following master %s (%d)", master.Name, master.ID)
	}

	d.status.SetState(model.EngineStateRunning)
	return nil
}

func (d *Dispatcher) eligibleMasters() ([]model.Account, error) {
	masters, err := d.configs.MasterAccounts()
	if err != nil {
		return nil, err
	}
	eligible := make([]model.Account, 0, len(masters))
	for _, master := range masters {
		configs, err := d.configs.ActiveConfigs(master.ID)
		if err != nil {
			return nil, err
		}
		if len(configs) > 0 {
			eligible = append(eligible, master)
		}
	}
	return eligible, nil
}

func (d *Dispatcher) consume(
	ctx context.Context,
	master model.Account,
	events chan model.MasterTradeEvent,
	errs chan error,
) {
	defer d.consumeWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil // closed channel would spin, nil blocks forever
				continue
			}
			if err != nil {
				d.status.MarkFailure(master.ID, err, exchange.IsConnectivity(err))
				utils.Log.Errorf("[DISPATCH] master %d stream: %v", master.ID, err)
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			d.status.MarkOK(master.ID)
			d.handleEvent(event)
		}
	}
}

// handleEvent claims one job per enabled follower config and enqueues it.
// Claims are atomic under a single mutex: a key in the dedup window or
// in-flight map is dropped silently.
func (d *Dispatcher) handleEvent(event model.MasterTradeEvent) {
	configs, err := d.configs.ActiveConfigs(event.MasterAccountID)
	if err != nil {
		utils.Log.Errorf("[DISPATCH] configs for master %d: %v", event.MasterAccountID, err)
		return
	}
	utils.Log.Infof("%s -> %d follower(s)", event, len(configs))

	for _, config := range configs {
		if err := d.validate.Struct(config); err != nil {
			utils.Log.Warnf("[DISPATCH] skipping invalid config %d: %v", config.ID, err)
			continue
		}
		follower, err := d.configs.Account(config.FollowerAccountID)
		if err != nil {
			utils.Log.Errorf("[DISPATCH] follower %d: %v", config.FollowerAccountID, err)
			continue
		}
		if !follower.Active {
			continue
		}
		if err := d.dispatchOne(event, follower, config); err != nil {
			if err != ErrDuplicateJob {
				utils.Log.Errorf("[DISPATCH] %s follower %d: %v", event.OrderID, follower.ID, err)
			}
		}
	}
}

func (d *Dispatcher) dispatchOne(event model.MasterTradeEvent, follower model.Account, config model.CopyTradingConfig) error {
	// order ids are only unique per master, so the claim key carries all three
	key := fmt.Sprintf("%s:%d", event.Key(), follower.ID)

	d.mu.Lock()
	if d.state != model.EngineStateRunning {
		d.mu.Unlock()
		return ErrNotRunning
	}
	if _, active := d.inflight[key]; active || d.seen.InArray(key) {
		d.mu.Unlock()
		utils.Log.Debugf("[DISPATCH] duplicate %s ignored", key)
		return ErrDuplicateJob
	}
	d.inflight[key] = struct{}{}
	d.seen.Add(key)
	if over := d.seen.Length() - d.settings.DedupWindow; over > 0 {
		stale := make([]string, 0, over)
		for k := range d.seen.Iter() {
			if len(stale) < over {
				stale = append(stale, k)
			}
		}
		d.seen.Remove(stale...)
	}
	ln := d.laneLocked(follower.ID)
	d.mu.Unlock()

	job := &model.CopyJob{
		MasterAccountID:   event.MasterAccountID,
		MasterOrderID:     event.OrderID,
		FollowerAccountID: follower.ID,
		Symbol:            event.Symbol,
		Side:              event.Side,
		Type:              event.Type,
		MasterQuantity:    event.Quantity,
		Price:             event.Price,
		Status:            model.JobStatusPending,
		CreatedAt:         d.clock.Now(),
	}
	if err := d.store.CreateJob(job); err != nil {
		d.mu.Lock()
		delete(d.inflight, key)
		d.seen.Remove(key)
		d.mu.Unlock()
		return fmt.Errorf("persisting job %s: %w", key, err)
	}

	d.status.AddDispatched()
	d.jobsWg.Add(1)
	ln.tasks <- task{job: job, event: event, follower: follower, config: config}
	return nil
}

func (d *Dispatcher) laneLocked(followerID int64) *lane {
	ln, ok := d.lanes[followerID]
	if !ok {
		ln = newLane(followerID, d.settings.LaneBuffer)
		d.lanes[followerID] = ln
		for i := 0; i < d.settings.LaneConcurrency; i++ {
			d.laneWg.Add(1)
			go d.worker(ln)
		}
	}
	return ln
}

func (d *Dispatcher) worker(ln *lane) {
	defer d.laneWg.Done()
	for t := range ln.tasks {
		d.process(d.currentJobCtx(), t)
	}
}

func (d *Dispatcher) currentJobCtx() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jobCtx
}

// process runs one job through its full lifecycle. All terminal outcomes go
// through confirmJob/failJob so counters, storage and notifier stay in sync.
func (d *Dispatcher) process(ctx context.Context, t task) {
	key := t.job.Key()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, key)
		d.mu.Unlock()
		d.jobsWg.Done()
	}()

	if ctx.Err() != nil {
		d.status.AddForcedFailure()
		d.failJob(t, "cancelled", ctx.Err(), true)
		return
	}

	if !d.breaker.Allow(t.follower.ID) {
		d.failJob(t, ErrCircuitOpen.Error(), ErrCircuitOpen, false)
		return
	}

	// sizing
	d.setStatus(t.job, model.JobStatusSizing)
	callCtx, cancel := context.WithTimeout(ctx, d.settings.CallTimeout)
	sizing, err := d.sizer.Size(callCtx, t.event, t.follower, t.config)
	cancel()
	if err != nil {
		d.breaker.Release(t.follower.ID)
		d.failJob(t, err.Error(), err, false)
		return
	}
	t.job.Quantity = sizing.Quantity
	t.job.Leverage = sizing.Leverage
	t.job.Price = sizing.Price

	// risk validation
	d.setStatus(t.job, model.JobStatusValidating)
	if err := d.guard.Check(sizing, t.event, t.config); err != nil {
		d.breaker.Release(t.follower.ID)
		d.failJob(t, err.Error(), err, false)
		return
	}

	// submission
	d.setStatus(t.job, model.JobStatusSubmitting)
	d.syncLeverage(ctx, t.follower.ID, t.event.Symbol, sizing.Leverage)

	orderID, err := d.submitWithRetry(ctx, t, sizing)
	if err != nil {
		forced := ctx.Err() != nil
		if forced {
			// cancellation can strike before the first attempt delivers a verdict
			d.status.AddForcedFailure()
			d.breaker.Release(t.follower.ID)
		}
		d.failJob(t, err.Error(), err, forced)
		return
	}
	t.job.ExchangeOrderID = orderID
	d.setStatus(t.job, model.JobStatusSubmitted)

	// confirmation
	d.confirm(ctx, t)
}

// syncLeverage is best effort, once per (account, symbol). Many subaccounts
// cannot change leverage; that must not block the copy.
func (d *Dispatcher) syncLeverage(ctx context.Context, accountID int64, symbol string, leverage int) {
	key := fmt.Sprintf("%d:%s", accountID, symbol)
	d.mu.Lock()
	if d.leverageSynced[key] {
		d.mu.Unlock()
		return
	}
	d.leverageSynced[key] = true
	d.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, d.settings.CallTimeout)
	defer cancel()
	if err := d.gateway.SetLeverage(callCtx, accountID, symbol, leverage); err != nil {
		utils.Log.Warnf("[DISPATCH] leverage sync %s: %v", key, err)
	}
}

func (d *Dispatcher) submitWithRetry(ctx context.Context, t task, sizing Sizing) (string, error) {
	request := model.OrderRequest{
		Symbol:   t.event.Symbol,
		Side:     t.event.Side,
		Type:     t.event.Type,
		Quantity: sizing.Quantity,
		Price:    t.event.Price,
		Leverage: sizing.Leverage,
	}
	retry := &backoff.Backoff{
		Min:    d.settings.BackoffBase,
		Max:    d.settings.BackoffCap,
		Factor: 2,
	}

	var lastErr error
	for attempt := 0; attempt < d.settings.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", fmt.Errorf("cancelled: %w", ctx.Err())
		}
		t.job.AttemptCount = attempt + 1

		callCtx, cancel := context.WithTimeout(ctx, d.settings.CallTimeout)
		orderID, err := d.gateway.SubmitOrder(callCtx, t.follower.ID, request)
		cancel()
		if err == nil {
			d.breaker.Success(t.follower.ID)
			d.status.MarkOK(t.follower.ID)
			return orderID, nil
		}

		classified := exchange.Classify(err)
		lastErr = classified
		d.status.MarkFailure(t.follower.ID, classified, classified.Kind == exchange.KindConnectivity)
		if openUntil := d.breaker.Failure(t.follower.ID); !openUntil.IsZero() {
			d.status.SetCircuitOpen(t.follower.ID, openUntil)
			return "", fmt.Errorf("%w until %s: %v", ErrCircuitOpen, openUntil.Format("15:04:05"), classified)
		}
		if !classified.Transient() {
			return "", classified
		}

		utils.Log.Warnf("[DISPATCH] %s attempt %d/%d: %v",
			t.job.Key(), attempt+1, d.settings.MaxAttempts, classified)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("cancelled: %w", ctx.Err())
		case <-d.clock.After(retry.ForAttempt(float64(attempt))):
		}
	}
	return "", fmt.Errorf("gave up after %d attempts: %w", d.settings.MaxAttempts, lastErr)
}

// confirm polls the exchange order status until it is accepted or dead.
func (d *Dispatcher) confirm(ctx context.Context, t task) {
	deadline := d.clock.Now().Add(d.settings.ConfirmTimeout)
	for {
		callCtx, cancel := context.WithTimeout(ctx, d.settings.CallTimeout)
		status, err := d.gateway.OrderStatus(callCtx, t.follower.ID, t.event.Symbol, t.job.ExchangeOrderID)
		cancel()
		if err == nil {
			t.job.ExchangeStatus = status
			switch status {
			case model.OrderStatusTypeNew, model.OrderStatusTypePartiallyFilled, model.OrderStatusTypeFilled:
				d.confirmJob(t)
				return
			case model.OrderStatusTypeCanceled, model.OrderStatusTypeRejected, model.OrderStatusTypeExpired:
				d.failJob(t, fmt.Sprintf("order %s on exchange", status), nil, false)
				return
			}
		} else {
			utils.Log.Warnf("[DISPATCH] confirm %s: %v", t.job.Key(), err)
		}

		if d.clock.Now().After(deadline) {
			d.failJob(t, "confirmation timed out", err, false)
			return
		}
		select {
		case <-ctx.Done():
			d.status.AddForcedFailure()
			d.failJob(t, "cancelled", ctx.Err(), true)
			return
		case <-d.clock.After(d.settings.ConfirmPoll):
		}
	}
}

func (d *Dispatcher) setStatus(job *model.CopyJob, next model.JobStatus) {
	if !job.CanTransitionTo(next) {
		utils.Log.Errorf("[DISPATCH] illegal transition %s -> %s for %s", job.Status, next, job.Key())
		return
	}
	job.Status = next
	job.UpdatedAt = d.clock.Now()
	if err := d.store.UpdateJob(job); err != nil {
		utils.Log.Errorf("[DISPATCH] persisting %s: %v", job.Key(), err)
	}
}

func (d *Dispatcher) confirmJob(t task) {
	t.job.TerminalAt = d.clock.Now()
	d.setStatus(t.job, model.JobStatusConfirmed)
	d.status.AddConfirmed()
	d.appendLog("info", t.follower.ID, fmt.Sprintf("confirmed %s", t.job))
	if d.notifier != nil {
		d.notifier.OnJobDone(*t.job)
	}
	utils.Log.Infof("[DISPATCH] confirmed %s", t.job)
}

func (d *Dispatcher) failJob(t task, reason string, cause error, counted bool) {
	t.job.LastError = reason
	t.job.TerminalAt = d.clock.Now()
	d.setStatus(t.job, model.JobStatusFailed)
	if !counted {
		d.status.AddFailed()
	}
	d.appendLog("error", t.follower.ID, fmt.Sprintf("failed %s: %s", t.job.Key(), reason))
	if d.notifier != nil {
		d.notifier.OnJobDone(*t.job)
		if cause != nil {
			d.notifier.OnError(cause)
		}
	}
	utils.Log.Warnf("[DISPATCH] failed %s: %s", t.job.Key(), reason)
}

func (d *Dispatcher) appendLog(level string, accountID int64, message string) {
	if err := d.store.AppendLog(level, accountID, message); err != nil {
		utils.Log.Errorf("[DISPATCH] system log: %v", err)
	}
}

// Stop closes intake, drains the lanes and waits up to DrainTimeout. Jobs
// still running after the grace period are cancelled and finish as FAILED
// with reason "cancelled"; the count is reported in the final snapshot.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.state != model.EngineStateRunning {
		d.mu.Unlock()
		return ErrNotRunning
	}
	d.state = model.EngineStateStopped
	runCancel := d.runCancel
	jobCancel := d.jobCancel
	d.mu.Unlock()

	runCancel()
	d.consumeWg.Wait()

	d.mu.Lock()
	for _, ln := range d.lanes {
		close(ln.tasks)
	}
	d.lanes = map[int64]*lane{}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.jobsWg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		jobCancel()
		<-drained
	case <-d.clock.After(d.settings.DrainTimeout):
		utils.Log.Warnf("[DISPATCH] drain timeout after %s, cancelling in-flight jobs", d.settings.DrainTimeout)
		jobCancel()
		<-drained
	}
	d.laneWg.Wait()
	jobCancel()

	if forced := d.status.Snapshot().ForcedFailures; forced > 0 {
		utils.Log.Warnf("[DISPATCH] %d job(s) force-failed during shutdown", forced)
	}
	d.status.SetState(model.EngineStateStopped)
	return nil
}

// Status returns a self-contained snapshot safe to hold across restarts.
func (d *Dispatcher) Status() model.SystemStatus {
	return d.status.Snapshot()
}

// Summary renders the current status as a table.
func (d *Dispatcher) Summary() string {
	return d.status.Summary()
}

// ListCopyJobs exposes the job history with optional filters.
func (d *Dispatcher) ListCopyJobs(filters ...storage.JobFilter) ([]*model.CopyJob, error) {
	return d.store.Jobs(filters...)
}
