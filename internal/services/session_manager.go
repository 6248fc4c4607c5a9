package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/irfndi/optionscope/internal/config"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/orchestrator"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// ErrSessionNotFound is returned for unknown or evicted sessions.
var ErrSessionNotFound = errors.New("session not found")

// persistTimeout bounds the store and journal writes made by observers.
const persistTimeout = 3 * time.Second

// Session is one presentation session with its own orchestrator.
type Session struct {
	ID           string
	Orchestrator *orchestrator.Orchestrator
	CreatedAt    time.Time

	lastActive atomic.Int64
	lookups    atomic.Int64

	// Observers may run out of order; saves never go back to an older version.
	persistMu    sync.Mutex
	savedVersion uint64
}

// LastActive returns when the session last served a request.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Lookups returns the number of heatmaps loaded in this session.
func (s *Session) Lookups() int {
	return int(s.lookups.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

// Summary describes the session as the store persists it.
func (s *Session) Summary() models.SessionSummary {
	return summarize(s, s.Orchestrator.Snapshot())
}

func summarize(s *Session, snap orchestrator.Snapshot) models.SessionSummary {
	summary := models.SessionSummary{
		ID:           s.ID,
		Ticker:       snap.Ticker,
		LoadedTicker: snap.LoadedTicker(),
		State:        snap.State.String(),
		Model:        snap.Model(),
		Lookups:      s.Lookups(),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.LastActive(),
	}
	if idx, ok := snap.Selection.Index(); ok {
		summary.ContractIndex = &idx
	}
	return summary
}

// SessionManagerOption customizes a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithSessionClock overrides the clock used for activity tracking.
func WithSessionClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) { m.now = now }
}

// WithSessionIDGenerator overrides uuid based session ids.
func WithSessionIDGenerator(newID func() string) SessionManagerOption {
	return func(m *SessionManager) { m.newID = newID }
}

// WithLookupJournal records every loaded heatmap in journal.
func WithLookupJournal(journal interfaces.LookupJournal) SessionManagerOption {
	return func(m *SessionManager) { m.journal = journal }
}

// SessionManager creates, tracks and evicts sessions.
type SessionManager struct {
	pricing interfaces.PricingService
	store   interfaces.SessionStore
	journal interfaces.LookupJournal
	config  config.SessionConfig
	logger  *logrus.Logger
	now     func() time.Time
	newID   func() string

	mu       sync.RWMutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionManager creates a session manager. store must not be nil; use
// cache.NewInMemorySessionStore when Redis is disabled.
func NewSessionManager(pricing interfaces.PricingService, store interfaces.SessionStore, cfg config.SessionConfig, logger *logrus.Logger, opts ...SessionManagerOption) *SessionManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &SessionManager{
		pricing:  pricing,
		store:    store,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new idle session.
func (m *SessionManager) Create(ctx context.Context) (*Session, error) {
	now := m.now()
	session := &Session{
		ID:        m.newID(),
		CreatedAt: now,
	}
	session.touch(now)
	session.Orchestrator = orchestrator.New(m.pricing,
		orchestrator.WithLogger(m.logger),
		orchestrator.WithClock(m.now),
		orchestrator.WithObserver(m.observer(session)),
	)

	m.mu.Lock()
	if _, exists := m.sessions[session.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session id collision: %s", session.ID)
	}
	m.sessions[session.ID] = session
	m.mu.Unlock()

	if err := m.persist(ctx, session, session.Orchestrator.Snapshot()); err != nil {
		m.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to persist new session summary")
	}

	m.logger.WithField("session_id", session.ID).Info("Session created")
	return session, nil
}

// Get returns a live session and marks it active.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch(m.now())
	return session, nil
}

// Delete ends a session, closing its subscribers and dropping its summary.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	session.Orchestrator.Close()
	if err := m.store.DeleteSummary(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session summary: %w", err)
	}
	m.logger.WithField("session_id", id).Info("Session deleted")
	return nil
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RecentTickers lists the tickers whose chains were loaded most recently.
func (m *SessionManager) RecentTickers(ctx context.Context, limit int) ([]string, error) {
	return m.store.RecentTickers(ctx, limit)
}

// RecentLookups lists journaled heatmap lookups. Without a journal the list is empty.
func (m *SessionManager) RecentLookups(ctx context.Context, ticker string, limit int) ([]models.HeatmapLookup, error) {
	if m.journal == nil {
		return []models.HeatmapLookup{}, nil
	}
	return m.journal.RecentLookups(ctx, ticker, limit)
}

// Sweep evicts sessions idle for longer than the configured timeout and
// returns how many were removed. Their summaries stay in the store until
// they expire.
func (m *SessionManager) Sweep() int {
	if m.config.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.config.IdleTimeout)

	var evicted []*Session
	m.mu.Lock()
	for id, session := range m.sessions {
		if session.LastActive().Before(cutoff) {
			evicted = append(evicted, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range evicted {
		session.Orchestrator.Close()
	}
	if len(evicted) > 0 {
		m.logger.WithFields(logrus.Fields{
			"evicted":   len(evicted),
			"remaining": m.Count(),
		}).Info("Evicted idle sessions")
	}
	return len(evicted)
}

// Start runs the idle sweep every SweepInterval until Stop.
func (m *SessionManager) Start() {
	interval := m.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	m.logger.WithFields(logrus.Fields{
		"idle_timeout":   m.config.IdleTimeout,
		"sweep_interval": interval,
	}).Info("Starting session sweeper")

	ticker := time.NewTicker(interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Stop halts the sweeper and closes every session.
func (m *SessionManager) Stop() {
	m.logger.Info("Stopping session manager")
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, session := range sessions {
		session.Orchestrator.Close()
	}
}

// observer persists session progress after each transition.
func (m *SessionManager) observer(session *Session) orchestrator.Observer {
	return func(ev orchestrator.Event) {
		session.touch(m.now())

		ctx, cancel := context.WithTimeout(m.ctx, persistTimeout)
		defer cancel()

		switch ev.Action {
		case orchestrator.ActionLoadContracts, orchestrator.ActionLoadHeatmap:
			return
		case orchestrator.ActionContractsLoaded:
			if ev.Snapshot.State == orchestrator.ContractsReady {
				if err := m.store.PushRecentTicker(ctx, ev.Snapshot.LoadedTicker()); err != nil {
					m.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to record recent ticker")
				}
			}
		case orchestrator.ActionHeatmapLoaded:
			if ev.Snapshot.State == orchestrator.HeatmapReady {
				session.lookups.Add(1)
				m.recordLookup(ctx, session, ev.Snapshot)
			}
		}

		if err := m.persist(ctx, session, ev.Snapshot); err != nil {
			m.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to persist session summary")
		}
	}
}

// persist saves the summary of snap unless a newer snapshot was saved first.
func (m *SessionManager) persist(ctx context.Context, session *Session, snap orchestrator.Snapshot) error {
	session.persistMu.Lock()
	defer session.persistMu.Unlock()

	if snap.Version < session.savedVersion {
		return nil
	}
	if err := m.store.SaveSummary(ctx, summarize(session, snap)); err != nil {
		return err
	}
	session.savedVersion = snap.Version
	return nil
}

func (m *SessionManager) recordLookup(ctx context.Context, session *Session, snap orchestrator.Snapshot) {
	if m.journal == nil {
		return
	}
	contract, ok := snap.SelectedContract()
	if !ok {
		return
	}
	lookup := models.NewHeatmapLookup(session.ID, snap.LoadedTicker(), contract, snap.Model(), snap.Heatmap)
	if _, err := m.journal.RecordLookup(ctx, lookup); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": session.ID,
			"ticker":     lookup.Ticker,
		}).Warn("Failed to journal heatmap lookup")
	}
}
