package agenda

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViewMode is the agenda presentation currently shown.
type ViewMode string

const (
	ViewDay  ViewMode = "dia"
	ViewWeek ViewMode = "semana"
)

func (v ViewMode) Valid() bool {
	return v == ViewDay || v == ViewWeek
}

// Session is the state of one open agenda view: the selected date and
// view, the configuration resolved for it, the in-flight markers and the
// last loaded day and week. Every controller call takes it explicitly.
//
// The day cache is replaced wholesale on a successful load and is never
// modified in place, so readers may keep the slice they were given. An
// accepted mutation marks both cached views stale; a stale view is
// refetched on its next read.
type Session struct {
	ID       uuid.UUID
	Config   *ConfigResolver
	InFlight *InFlight

	mu         sync.RWMutex
	date       string
	view       ViewMode
	dayDate    string
	dayCache   []Appointment
	daySummary DaySummary
	dayLoaded  bool
	dayStale   bool
	weekRef    string
	week       *WeekSchedule
	weekStale  bool
	lastSeen   time.Time
}

// NewSession opens a day view on date.
func NewSession(id uuid.UUID, date string, resolver *ConfigResolver) *Session {
	return &Session{
		ID:       id,
		Config:   resolver,
		InFlight: NewInFlight(),
		date:     date,
		view:     ViewDay,
		lastSeen: time.Now(),
	}
}

func (s *Session) Date() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.date
}

func (s *Session) View() ViewMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

func (s *Session) SetDate(date string) error {
	if !ValidDate(date) {
		return ErrInvalidDate
	}
	s.mu.Lock()
	s.date = date
	s.mu.Unlock()
	return nil
}

func (s *Session) SetView(v ViewMode) error {
	if !v.Valid() {
		return ErrInvalidView
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	return nil
}

// DayCache returns the unfiltered appointments of the last loaded day. ok
// is false when nothing was loaded or the day went stale.
func (s *Session) DayCache() (date string, appts []Appointment, summary DaySummary, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dayDate, s.dayCache, s.daySummary, s.dayLoaded && !s.dayStale
}

func (s *Session) replaceDay(date string, appts []Appointment, summary DaySummary) {
	s.mu.Lock()
	s.dayDate = date
	s.dayCache = appts
	s.daySummary = summary
	s.dayLoaded = true
	s.dayStale = false
	s.mu.Unlock()
}

// Week returns the last loaded week and its reference date, or a nil week
// when none is loaded or it went stale.
func (s *Session) Week() (ref string, week *WeekSchedule) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.weekStale {
		return s.weekRef, nil
	}
	return s.weekRef, s.week
}

func (s *Session) replaceWeek(ref string, week WeekSchedule) {
	s.mu.Lock()
	s.weekRef = ref
	s.week = &week
	s.weekStale = false
	s.mu.Unlock()
}

func (s *Session) invalidate() {
	s.mu.Lock()
	s.dayStale = true
	s.weekStale = true
	s.mu.Unlock()
}

// cachedAppointment looks up the last known status and date of an
// appointment in either view, stale or not.
func (s *Session) cachedAppointment(id string) (status Status, date string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.dayCache {
		if a.ID == id {
			if a.Date != "" {
				return a.Status, a.Date, true
			}
			return a.Status, s.dayDate, true
		}
	}
	if s.week != nil {
		for _, row := range s.week.Cells {
			for col, cell := range row {
				for _, it := range cell {
					if it.ID != id {
						continue
					}
					if col < len(s.week.Days) {
						return it.Status, s.week.Days[col].Date, true
					}
					return it.Status, it.Date, true
				}
			}
		}
	}
	return "", "", false
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// SessionStore keeps the open view sessions in memory.
type SessionStore struct {
	mu          sync.Mutex
	sessions    map[uuid.UUID]*Session
	newResolver func() *ConfigResolver
	idleTTL     time.Duration
	now         func() time.Time
}

// NewSessionStore creates a store. newResolver builds the per-session
// configuration resolver; idleTTL <= 0 disables eviction.
func NewSessionStore(newResolver func() *ConfigResolver, idleTTL time.Duration) *SessionStore {
	return &SessionStore{
		sessions:    make(map[uuid.UUID]*Session),
		newResolver: newResolver,
		idleTTL:     idleTTL,
		now:         time.Now,
	}
}

// Create opens a new session on today's date.
func (st *SessionStore) Create() *Session {
	now := st.now()
	s := NewSession(uuid.New(), now.Format(dateLayout), st.newResolver())
	s.lastSeen = now

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns a session and marks it as used.
func (st *SessionStore) Get(id uuid.UUID) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(st.now())
	return s, nil
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Evict drops sessions idle for longer than the TTL and returns how many
// were removed.
func (st *SessionStore) Evict() int {
	if st.idleTTL <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.idleTTL)

	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (st *SessionStore) Run(ctx context.Context, interval time.Duration) {
	if st.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Evict()
		}
	}
}
