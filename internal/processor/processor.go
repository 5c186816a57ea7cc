// Package processor implements the Notification Processor: it pulls
// batches off the upstream queue, decodes each message, persists login
// records, and fans out derived events to per-relying-party topics.
// Every dependency (consumer, publisher, store, caches, logger, clock)
// is injected at construction so the whole thing runs against in-memory
// doubles in tests.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rp-notify/broker/internal/cache"
	"github.com/rp-notify/broker/internal/codec"
	"github.com/rp-notify/broker/internal/database"
	"github.com/rp-notify/broker/internal/logging"
	"github.com/rp-notify/broker/internal/messaging"
	"github.com/rp-notify/broker/internal/metrics"
	"github.com/rp-notify/broker/internal/store"
)

// state is the processor's lifecycle: Idle -> Running -> Stopping ->
// Stopped. Guarded by an atomic.Int32, the same primitive a stats
// object would use for a running counter, except here the value is a
// lifecycle stage instead of a total.
type state int32

const (
	stateIdle state = iota
	stateRunning
	stateStopping
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning is returned by Start when the processor is not Idle.
var ErrAlreadyRunning = errors.New("processor: start called outside Idle state")

// Config holds the processor's consumer and fan-out tunables.
type Config struct {
	BatchSize      int
	TopicPrefix    string
	PublishTimeout time.Duration
}

// Processor is the Notification Processor.
type Processor struct {
	consumer     messaging.Consumer
	publisher    messaging.Publisher
	store        store.Store
	capabilities *cache.CapabilityCache
	webhooks     *cache.WebhookCache
	cfg          Config
	logger       *logging.Logger
	now          func() time.Time

	state    atomic.Int32
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New constructs a Processor. capabilities and webhooks may be nil in
// tests that don't exercise subscription fan-out or webhook delivery;
// a nil capabilities cache makes subscription fan-out match nothing.
func New(consumer messaging.Consumer, publisher messaging.Publisher, st store.Store, capabilities *cache.CapabilityCache, webhooks *cache.WebhookCache, cfg Config, logger *logging.Logger) *Processor {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	return &Processor{
		consumer:     consumer,
		publisher:    publisher,
		store:        st,
		capabilities: capabilities,
		webhooks:     webhooks,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Start starts the consumer loop, the capability cache, and the webhook
// cache. If either cache's initial fetch fails, start returns an error
// and nothing is left running — the broker is unsafe to run without
// routing data.
func (p *Processor) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(stateIdle), int32(stateRunning)) {
		return ErrAlreadyRunning
	}

	if p.capabilities != nil {
		if err := p.capabilities.Start(ctx); err != nil {
			p.state.Store(int32(stateIdle))
			return fmt.Errorf("start capability cache: %w", err)
		}
	}
	if p.webhooks != nil {
		if err := p.webhooks.Start(ctx); err != nil {
			if p.capabilities != nil {
				p.capabilities.Stop()
			}
			p.state.Store(int32(stateIdle))
			return fmt.Errorf("start webhook cache: %w", err)
		}
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.loopDone = make(chan struct{})
	go p.consumeLoop(ctx, fetchCtx)

	return nil
}

// Stop signals the consumer to drain its current batch then halt, and
// stops both caches. It is a no-op when not Running. Cancelling the
// fetch-level context (rather than the one handlers run against) is
// what lets a blocked FetchBatch return promptly while in-flight
// handlers still run to completion on their own timeouts.
func (p *Processor) Stop() {
	if !p.state.CompareAndSwap(int32(stateRunning), int32(stateStopping)) {
		return
	}

	p.cancel()
	<-p.loopDone

	if p.capabilities != nil {
		p.capabilities.Stop()
	}
	if p.webhooks != nil {
		p.webhooks.Stop()
	}

	p.state.Store(int32(stateStopped))
}

// State reports the processor's current lifecycle stage.
func (p *Processor) State() string {
	return state(p.state.Load()).String()
}

func (p *Processor) consumeLoop(ctx, fetchCtx context.Context) {
	defer close(p.loopDone)

	for {
		select {
		case <-fetchCtx.Done():
			return
		default:
		}

		batch, err := p.consumer.FetchBatch(fetchCtx, p.cfg.BatchSize)
		if err != nil {
			if fetchCtx.Err() != nil {
				return
			}
			p.logger.ErrorContext(ctx, "fetch batch failed", logging.Error(err))
			select {
			case <-fetchCtx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var wg sync.WaitGroup
		for _, msg := range batch {
			wg.Add(1)
			go func(msg messaging.InboundMessage) {
				defer wg.Done()
				p.handleMessage(ctx, msg)
			}(msg)
		}
		wg.Wait()
	}
}

// handleMessage decodes and dispatches one message, recovering from the
// "unhandled variant reached the dispatch default branch" hard failure
// so one bad message never takes down the batch it arrived in, let
// alone the consumer loop.
func (p *Processor) handleMessage(ctx context.Context, msg messaging.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanicsTotal.Inc()
			p.logger.ErrorContext(ctx, "recovered handler panic, message will be redelivered",
				logging.Error(fmt.Errorf("%v", r)))
			_ = msg.Nak()
		}
	}()

	notification, err := codec.Decode(msg.Data())
	if err != nil {
		metrics.CodecDroppedTotal.WithLabelValues(dropReason(err)).Inc()
		p.logger.DebugContext(ctx, "dropped message", logging.Error(err))
		_ = msg.Ack()
		return
	}

	now := p.now()
	nowMS := now.UnixMilli()
	metrics.QueueDelaySeconds.Observe(millisToSeconds(nowMS - notification.Timestamp()))

	eventType := eventTypeLabel(notification.Kind())
	metrics.MessagesTotal.WithLabelValues(eventType).Inc()

	start := p.now()
	err = p.dispatch(ctx, notification, eventType, nowMS)
	metrics.ProcessingDurationSeconds.WithLabelValues(eventType).Observe(p.now().Sub(start).Seconds())

	if sub, ok := notification.(codec.SubscriptionUpdateNotification); ok {
		metrics.SubscriptionEventDelaySeconds.Observe(millisToSeconds(nowMS - sub.Timestamp()))
	}

	if err != nil {
		metrics.HandlerErrorsTotal.WithLabelValues(errorStage(err)).Inc()
		p.logger.ErrorContext(ctx, "handler failed, message will be redelivered",
			logging.Event(string(notification.Kind())), logging.Error(err))
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
}

// dropReason keeps the codec_dropped_total label cardinality bounded:
// the detailed reason still reaches the debug log, but the metric only
// distinguishes the two failure shapes the processor can act on.
func dropReason(err error) string {
	if errors.Is(err, codec.ErrUnwanted) {
		return "unwanted"
	}
	return "unknown"
}

// dispatch branches on event kind. The default branch is unreachable
// so long as codec.Decode only ever returns the five variants it
// implements — reaching it anyway indicates a codec/dispatch
// desynchronization bug, raised as a hard failure rather than silently
// ignored.
func (p *Processor) dispatch(ctx context.Context, n codec.Notification, eventType string, nowMS int64) error {
	switch v := n.(type) {
	case codec.LoginNotification:
		return p.handleLogin(ctx, v)
	case codec.SubscriptionUpdateNotification:
		return p.handleSubscription(ctx, v, eventType, nowMS)
	case codec.DeleteNotification:
		return p.handleGeneric(ctx, v.UID, v.Event, v.ChangeTimeMS, eventType, nowMS)
	case codec.ProfileChangeNotification:
		return p.handleGeneric(ctx, v.UID, v.Event, v.ChangeTimeMS, eventType, nowMS)
	case codec.PasswordChangeNotification:
		return p.handleGeneric(ctx, v.UID, v.Event, v.ChangeTimeMS, eventType, nowMS)
	default:
		panic(fmt.Sprintf("processor: unhandled notification kind %T reached dispatch default branch", n))
	}
}

func (p *Processor) handleLogin(ctx context.Context, n codec.LoginNotification) error {
	if n.ClientID == "" {
		p.logger.DebugContext(ctx, "login without clientId dropped", logging.UserID(n.UID))
		return nil
	}

	wctx, cancel := database.WriteContext(ctx)
	defer cancel()

	if err := p.store.StoreLogin(wctx, n.UID, n.ClientID); err != nil {
		return &stageError{stage: "store", err: err}
	}
	return nil
}

// fanoutTarget is one client_id this message will be published to,
// along with the capability list it matched against (subscription fan-out
// only; empty for the generic fan-out).
type fanoutTarget struct {
	clientID     string
	capabilities []string
}

// handleSubscription fans a subscription-update notification out to
// every logged-in client of the affected user whose catalog
// capabilities intersect the event's changed capability list.
func (p *Processor) handleSubscription(ctx context.Context, n codec.SubscriptionUpdateNotification, eventType string, nowMS int64) error {
	qctx, cancel := database.QueryContext(ctx)
	defer cancel()

	userClients, err := p.store.FetchClientIDs(qctx, n.UID)
	if err != nil {
		return &stageError{stage: "store", err: err}
	}
	userSet := make(map[string]struct{}, len(userClients))
	for _, cid := range userClients {
		userSet[cid] = struct{}{}
	}

	var snapshot cache.CapabilityMap
	if p.capabilities != nil {
		snapshot = p.capabilities.ServiceData()
	}

	// Build client_id -> matched capabilities, outer loop over
	// productCapabilities so each client's list preserves first-occurrence
	// order within the input, not map iteration order.
	notifyMap := make(map[string][]string)
	for _, capability := range n.ProductCapabilities {
		for cid, caps := range snapshot {
			if containsString(caps, capability) {
				notifyMap[cid] = append(notifyMap[cid], capability)
			}
		}
	}

	var targets []fanoutTarget
	for cid, caps := range notifyMap {
		if _, ok := userSet[cid]; !ok {
			continue
		}
		targets = append(targets, fanoutTarget{clientID: cid, capabilities: caps})
	}

	return p.publishAll(ctx, targets, func(t fanoutTarget) ([]byte, error) {
		return json.Marshal(subscriptionBody{
			Event:        n.Event,
			UID:          n.UID,
			IsActive:     n.IsActive,
			ChangeTime:   n.ChangeTimeMS,
			Capabilities: t.capabilities,
			Timestamp:    nowMS,
		})
	}, eventType)
}

// handleGeneric fans a delete/profile/password notification out to
// every client the affected user is currently logged into.
func (p *Processor) handleGeneric(ctx context.Context, uid, event string, changeTimeMS int64, eventType string, nowMS int64) error {
	qctx, cancel := database.QueryContext(ctx)
	defer cancel()

	clientIDs, err := p.store.FetchClientIDs(qctx, uid)
	if err != nil {
		return &stageError{stage: "store", err: err}
	}

	targets := make([]fanoutTarget, len(clientIDs))
	for i, cid := range clientIDs {
		targets[i] = fanoutTarget{clientID: cid}
	}

	return p.publishAll(ctx, targets, func(fanoutTarget) ([]byte, error) {
		return json.Marshal(genericBody{
			Event:      event,
			UID:        uid,
			ChangeTime: changeTimeMS,
			Timestamp:  nowMS,
		})
	}, eventType)
}

// publishAll fans out concurrently to every target and joins on
// completion, all-or-fail: a single publish failure fails the whole
// handler.
func (p *Processor) publishAll(ctx context.Context, targets []fanoutTarget, body func(fanoutTarget) ([]byte, error), eventType string) error {
	if len(targets) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(targets))

	for _, t := range targets {
		wg.Add(1)
		go func(t fanoutTarget) {
			defer wg.Done()

			b, err := body(t)
			if err != nil {
				errCh <- fmt.Errorf("marshal outbound body: %w", err)
				return
			}

			pctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
			defer cancel()

			topic := p.cfg.TopicPrefix + t.clientID
			if _, err := p.publisher.Publish(pctx, topic, b); err != nil {
				errCh <- fmt.Errorf("publish to %s: %w", topic, err)
				return
			}
			metrics.PublishedTotal.WithLabelValues(eventType).Inc()
		}(t)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return &stageError{stage: "publish", err: err}
		}
	}
	return nil
}

func millisToSeconds(ms int64) float64 { return float64(ms) / 1000 }

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// subscriptionBody is the outbound body for subscription fan-out.
type subscriptionBody struct {
	Event        string   `json:"event"`
	UID          string   `json:"uid"`
	IsActive     bool     `json:"isActive"`
	ChangeTime   int64    `json:"changeTime"`
	Capabilities []string `json:"capabilities"`
	Timestamp    int64    `json:"timestamp"`
}

// genericBody is the outbound body for delete/profile/password fan-out.
type genericBody struct {
	Event      string `json:"event"`
	UID        string `json:"uid"`
	ChangeTime int64  `json:"changeTime"`
	Timestamp  int64  `json:"timestamp"`
}

// stageError tags a handler failure with the stage it occurred in
// ("store" or "publish") so handleMessage can label
// notify_handler_errors_total without string-matching the error text.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func errorStage(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}

func eventTypeLabel(k codec.Kind) string {
	switch k {
	case codec.KindLogin:
		return "login"
	case codec.KindSubscriptionUpdate:
		return "subscription"
	case codec.KindDelete:
		return "delete"
	case codec.KindProfileChange:
		return "profile"
	case codec.KindPasswordChange:
		return "password"
	default:
		return "unknown"
	}
}
