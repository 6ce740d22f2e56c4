// Package follow implements the follow session: it turns position samples
// into ETA updates and alerts recipients as thresholds are crossed.
package follow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/pkg/events"

	"github.com/google/uuid"
)

const moduleName = "FOLLOW"

var (
	ErrNoRecipients       = errors.New("follow: no recipients")
	ErrInvalidDestination = errors.New("follow: invalid destination")
)

type RouteService interface {
	Route(ctx context.Context, origin, dest model.Coordinate) (model.Route, error)
}

// Sink delivers a message to a chat. Delivery is best effort.
type Sink interface {
	Send(ctx context.Context, chatID, text string)
}

type Poller interface {
	Start()
	Stop()
}

type OwnerResolver interface {
	Owner() string
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Destination struct {
	Label      string           `json:"label"`
	OwnerName  string           `json:"owner_name,omitempty"`
	Coordinate model.Coordinate `json:"coordinate"`
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	SessionID   string                `json:"session_id,omitempty"`
	Active      bool                  `json:"active"`
	Destination *Destination          `json:"destination,omitempty"`
	Recipients  []string              `json:"recipients"`
	Thresholds  []int                 `json:"thresholds"`
	Alerts      []bool                `json:"alerts"`
	LastRoute   *model.Route          `json:"last_route,omitempty"`
	LastSample  *model.PositionSample `json:"last_sample,omitempty"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
}

type Option func(*Session)

func WithPublisher(p EventPublisher) Option {
	return func(s *Session) { s.publisher = p }
}

// WithObserver registers fn to receive a snapshot after every state change.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

func WithRouteTimeout(d time.Duration) Option {
	return func(s *Session) { s.routeTimeout = d }
}

type outgoing struct {
	chatID string
	text   string
}

// Session is the single live follow session of the process.
type Session struct {
	ladder       Ladder
	routes       RouteService
	sink         Sink
	poller       Poller
	owner        OwnerResolver
	logger       logger.ILogger
	publisher    EventPublisher
	observers    []func(Snapshot)
	routeTimeout time.Duration

	mu          sync.Mutex
	generation  uint64
	id          string
	active      bool
	destination *Destination
	recipients  []string
	state       AlertState
	lastRoute   *model.Route
	lastSample  *model.PositionSample
	startedAt   time.Time
}

func NewSession(ladder Ladder, routes RouteService, sink Sink, poller Poller, owner OwnerResolver, log logger.ILogger, opts ...Option) *Session {
	s := &Session{
		ladder:       ladder,
		routes:       routes,
		sink:         sink,
		poller:       poller,
		owner:        owner,
		logger:       log,
		routeTimeout: 20 * time.Second,
		state:        ladder.NewState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start replaces any running session with a new one towards dest.
func (s *Session) Start(dest Destination, recipients []string) error {
	recipients = dedupe(recipients)
	if len(recipients) == 0 {
		s.logger.Warn(moduleName, "Refusing to follow without recipients", map[string]interface{}{"destination": dest.Label})
		return ErrNoRecipients
	}
	if err := dest.Coordinate.Validate(); err != nil {
		s.logger.Warn(moduleName, "Refusing to follow invalid destination", map[string]interface{}{
			"destination": dest.Label,
			"error":       err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}

	s.mu.Lock()
	s.poller.Stop()
	s.generation++
	s.id = uuid.NewString()
	s.active = true
	d := dest
	s.destination = &d
	s.recipients = recipients
	s.state = s.ladder.NewState()
	s.lastRoute = nil
	s.lastSample = nil
	s.startedAt = time.Now().UTC()
	s.poller.Start()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info(moduleName, "New following process initiated", map[string]interface{}{
		"session_id":  snap.SessionID,
		"destination": dest.Label,
		"recipients":  recipients,
	})
	s.emit(events.FollowStarted, snap, nil)
	s.notifyObservers(snap)
	return nil
}

// Stop ends the session. It reports whether a session was active.
func (s *Session) Stop() bool {
	s.mu.Lock()
	wasActive := s.active
	s.poller.Stop()
	s.generation++
	s.active = false
	s.destination = nil
	s.recipients = nil
	s.state = s.ladder.NewState()
	s.lastRoute = nil
	s.lastSample = nil
	prevID := s.id
	s.id = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if wasActive {
		s.logger.Info(moduleName, "Quitting following process", map[string]interface{}{"session_id": prevID})
		s.emit(events.FollowStopped, snap, map[string]interface{}{"session_id": prevID, "reason": "quit"})
		s.notifyObservers(snap)
	}
	return wasActive
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// OnPositionSample evaluates one accepted sample. It is called from the
// poller goroutine.
func (s *Session) OnPositionSample(sample model.PositionSample) {
	s.mu.Lock()
	if !s.active {
		s.poller.Stop()
		s.mu.Unlock()
		return
	}
	gen := s.generation
	dest := *s.destination
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.routeTimeout)
	route, err := s.routes.Route(ctx, sample.Coordinate, dest.Coordinate)
	cancel()
	if err != nil {
		s.logger.Warn(moduleName, "Route calculation failed, skipping sample", map[string]interface{}{
			"error":       err.Error(),
			"observed_at": sample.ObservedAt,
		})
		return
	}

	s.mu.Lock()
	if gen != s.generation || !s.active {
		s.mu.Unlock()
		return
	}
	sm := sample
	rt := route
	s.lastSample = &sm
	s.lastRoute = &rt

	next, outcome := s.ladder.Evaluate(s.state, route.EtaMinutes)
	s.state = next

	var msgs []outgoing
	owner := s.owner.Owner()
	switch outcome {
	case OutcomeAlreadyArrived:
		if owner != "" {
			msgs = append(msgs, outgoing{owner, alreadyArrivedText(dest, route)})
		}
	case OutcomeStarted:
		msgs = fanOut(owner, s.recipients, startedText(dest, route))
	case OutcomeProgress:
		msgs = fanOut(owner, s.recipients, progressText(dest, route))
	case OutcomeArrived:
		msgs = fanOut(owner, s.recipients, arrivedText(dest))
	}
	if outcome == OutcomeAlreadyArrived || outcome == OutcomeArrived {
		s.active = false
		s.poller.Stop()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug(moduleName, "Sample evaluated", map[string]interface{}{
		"session_id":  snap.SessionID,
		"eta_minutes": route.EtaMinutes,
		"distance_km": route.DistanceKm,
		"outcome":     outcome.String(),
		"fired":       s.ladder.Fired(next),
	})

	for _, m := range msgs {
		s.sink.Send(context.Background(), m.chatID, m.text)
	}
	switch outcome {
	case OutcomeStarted, OutcomeProgress:
		s.emit(events.FollowProgress, snap, map[string]interface{}{"outcome": outcome.String()})
	case OutcomeArrived, OutcomeAlreadyArrived:
		s.emit(events.FollowArrived, snap, map[string]interface{}{"outcome": outcome.String()})
		s.logger.Info(moduleName, "Destination reached, following finished", map[string]interface{}{
			"session_id": snap.SessionID,
		})
	}
	s.notifyObservers(snap)
}

// OnSourceLost ends the session after the poller gave up and tells the owner.
func (s *Session) OnSourceLost() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.generation++
	label := s.destination.Label
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn(moduleName, "Position source lost, session deactivated", map[string]interface{}{
		"session_id": snap.SessionID,
	})
	if owner := s.owner.Owner(); owner != "" {
		s.sink.Send(context.Background(), owner,
			fmt.Sprintf("Lost the position source after repeated failures. Stopped following to %s.", label))
	}
	s.emit(events.SourceLost, snap, nil)
	s.notifyObservers(snap)
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:  s.id,
		Active:     s.active,
		Recipients: append([]string(nil), s.recipients...),
		Thresholds: append([]int(nil), s.ladder...),
		Alerts:     s.state.Clone(),
	}
	if s.destination != nil {
		d := *s.destination
		snap.Destination = &d
	}
	if s.lastRoute != nil {
		r := *s.lastRoute
		snap.LastRoute = &r
	}
	if s.lastSample != nil {
		p := *s.lastSample
		snap.LastSample = &p
	}
	if !s.startedAt.IsZero() && s.id != "" {
		t := s.startedAt
		snap.StartedAt = &t
	}
	return snap
}

func (s *Session) emit(eventType string, snap Snapshot, extra map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	data := map[string]interface{}{
		"session_id": snap.SessionID,
		"active":     snap.Active,
		"recipients": snap.Recipients,
		"alerts":     snap.Alerts,
	}
	if snap.Destination != nil {
		data["destination"] = snap.Destination.Label
	}
	if snap.LastRoute != nil {
		data["distance_km"] = snap.LastRoute.DistanceKm
		data["eta_minutes"] = snap.LastRoute.EtaMinutes
	}
	for k, v := range extra {
		data[k] = v
	}
	event := events.New(eventType, data)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn(moduleName, "Failed to publish follow event", map[string]interface{}{
				"type":  eventType,
				"error": err.Error(),
			})
		}
	}()
}

func (s *Session) notifyObservers(snap Snapshot) {
	for _, fn := range s.observers {
		fn(snap)
	}
}

func fanOut(owner string, recipients []string, text string) []outgoing {
	ids := recipients
	if owner != "" {
		ids = dedupe(append([]string{owner}, recipients...))
	}
	out := make([]outgoing, 0, len(ids))
	for _, id := range ids {
		out = append(out, outgoing{id, text})
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func startedText(dest Destination, r model.Route) string {
	return fmt.Sprintf("On the way to %s! Currently %s away, arriving in about %s.",
		dest.Label, FormatDistance(r.DistanceKm), FormatDuration(r.EtaMinutes))
}

func progressText(dest Destination, r model.Route) string {
	return fmt.Sprintf("Update: %s left to %s, about %s to go.",
		FormatDistance(r.DistanceKm), dest.Label, FormatDuration(r.EtaMinutes))
}

func arrivedText(dest Destination) string {
	return fmt.Sprintf("Arriving at %s now!", dest.Label)
}

func alreadyArrivedText(dest Destination, r model.Route) string {
	return fmt.Sprintf("Already at %s (%s away), there is nothing to follow.",
		dest.Label, FormatDistance(r.DistanceKm))
}
