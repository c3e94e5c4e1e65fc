// Package sensor owns the "Oura Ring Sleep" entity: its score, its attribute
// set, and the refresh cycle that recomputes both from the Oura API.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ouraring/internal/clock"
	"ouraring/internal/metrics"
	"ouraring/internal/oura"
	"ouraring/internal/sleep"

	"go.uber.org/zap"
)

// Fixed entity presentation
const (
	Name = "Oura Ring Sleep"
	Icon = "mdi:sleep"
	Unit = ""
)

// Outcome describes what a refresh did to the sensor
type Outcome int

const (
	// Unchanged means the score and attributes kept their previous values.
	Unchanged Outcome = iota
	// Updated means a new score was committed and reported.
	Updated
)

func (o Outcome) String() string {
	if o == Updated {
		return "updated"
	}
	return "unchanged"
}

// State is the externally visible sensor value
type State struct {
	Score       int
	Attributes  sleep.Attributes
	LastRefresh time.Time
	// AttributesUpdated is false when the last refresh found no long sleep,
	// or could not read the sessions, and the attributes were carried over.
	AttributesUpdated bool
}

// Host receives every committed state change
type Host interface {
	ReportState(ctx context.Context, state State) error
}

// Sensor runs refresh cycles. Refresh is not safe to call concurrently;
// Snapshot may be called at any time.
type Sensor struct {
	fetcher    oura.Fetcher
	host       Host
	normalizer sleep.Normalizer
	token      string
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu    sync.RWMutex
	state State
}

// NewSensor creates a new sensor with score 0 and no attributes.
// If clk is nil it defaults to the real clock; m may be nil.
func NewSensor(fetcher oura.Fetcher, host Host, token string, policy sleep.FieldPolicy, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) *Sensor {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Sensor{
		fetcher:    fetcher,
		host:       host,
		normalizer: sleep.Normalizer{Policy: policy},
		token:      token,
		clock:      clk,
		metrics:    m,
		logger:     logger.Named("sensor"),
	}
}

// Snapshot returns a copy of the current state
func (s *Sensor) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.state
	snap.Attributes = s.state.Attributes.Clone()
	return snap
}

// Refresh performs one refresh cycle. The score from the daily summary is
// committed as soon as it is read. The attribute set is replaced only when the
// sessions fetch and normalization succeed; otherwise the previous attributes
// are kept, the new score is still reported, and the sessions error is
// returned with Updated.
func (s *Sensor) Refresh(ctx context.Context) (outcome Outcome, err error) {
	defer func() {
		s.metrics.ObserveRefresh(outcome.String(), err)
	}()

	daily, err := s.fetch(ctx, oura.DailySleep)
	if err != nil {
		return Unchanged, err
	}

	if !daily.HasData() {
		s.logger.Info("Daily sleep response has no data, keeping previous score",
			zap.Int("score", s.Snapshot().Score))
		return Unchanged, nil
	}

	first, err := daily.First()
	if err != nil {
		return Unchanged, err
	}
	rawScore, err := first.Number("score")
	if err != nil {
		return Unchanged, err
	}
	s.commitScore(int(rawScore))

	result, sessionsErr := s.sessionAttributes(ctx)
	if sessionsErr != nil {
		s.logger.Warn("Keeping previous sleep attributes", zap.Error(sessionsErr))
		result = nil
	}

	state := s.commitAttributes(result)

	s.logger.Info("Score updated",
		zap.Int("score", state.Score),
		zap.Bool("attributes_updated", state.AttributesUpdated))

	if err := s.host.ReportState(ctx, state); err != nil {
		return Updated, errors.Join(sessionsErr, fmt.Errorf("report state: %w", err))
	}

	return Updated, sessionsErr
}

// sessionAttributes fetches the session list and normalizes the long sleep.
// A nil result without error means no long sleep was found.
func (s *Sensor) sessionAttributes(ctx context.Context) (*sleep.Result, error) {
	sessions, err := s.fetch(ctx, oura.Sleep)
	if err != nil {
		return nil, err
	}
	if !sessions.HasData() {
		return nil, &oura.MissingFieldError{Path: "data"}
	}

	result, err := s.normalizer.Normalize(sessions.Records())
	if err != nil {
		return nil, fmt.Errorf("normalize sleep session: %w", err)
	}

	if result != nil && len(result.Omitted) > 0 {
		s.logger.Warn("Omitted sleep attributes with missing or malformed fields",
			zap.Strings("fields", result.OmittedPaths()))
	}
	return result, nil
}

func (s *Sensor) commitScore(score int) {
	now := s.clock.Now()

	s.mu.Lock()
	s.state.Score = score
	s.state.LastRefresh = now
	s.mu.Unlock()

	s.metrics.SetScore(score, now)
}

// commitAttributes replaces the attribute set wholesale when a long sleep
// was found and returns a copy of the resulting state.
func (s *Sensor) commitAttributes(result *sleep.Result) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.AttributesUpdated = result != nil
	if result != nil {
		s.state.Attributes = result.Attributes.Clone()
	}
	snap := s.state
	snap.Attributes = s.state.Attributes.Clone()
	return snap
}

func (s *Sensor) fetch(ctx context.Context, resource oura.Resource) (*oura.Document, error) {
	start := s.clock.Now()
	doc, err := s.fetcher.Fetch(ctx, resource, s.token)
	s.metrics.ObserveFetch(resource, s.clock.Since(start), err)

	if err != nil {
		s.logger.Error("Failed to fetch resource",
			zap.String("resource", string(resource)),
			zap.String("kind", oura.ErrorKind(err)),
			zap.Error(err))
		return nil, err
	}
	return doc, nil
}
