package agenda

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransitionTable decides which status changes the view may request.
type TransitionTable struct {
	name    string
	allowed map[Status]map[Status]bool
}

// AllowAllTransitions lets any status move to any other, which is how the
// clinic works today.
func AllowAllTransitions() TransitionTable {
	return TransitionTable{name: "all-to-all"}
}

// LockTerminalTransitions keeps Faltou, Cancelado and Concluído final.
func LockTerminalTransitions() TransitionTable {
	allowed := make(map[Status]map[Status]bool, len(Statuses))
	for _, from := range Statuses {
		allowed[from] = make(map[Status]bool, len(Statuses))
		for _, to := range Statuses {
			allowed[from][to] = !from.Terminal() || from == to
		}
	}
	return TransitionTable{name: "lock-terminal", allowed: allowed}
}

func (t TransitionTable) Name() string {
	if t.name == "" {
		return "all-to-all"
	}
	return t.name
}

// Allows reports whether from may move to to. An unknown current status
// cannot be judged and is allowed.
func (t TransitionTable) Allows(from, to Status) bool {
	if t.allowed == nil || !from.Valid() {
		return true
	}
	return t.allowed[from][to]
}

// Token marks one in-flight request against an appointment.
type Token struct {
	ID            uuid.UUID `json:"token"`
	AppointmentID string    `json:"ID_Agenda"`
	Action        string    `json:"action"`
	StartedAt     time.Time `json:"started_at"`
}

// Settlement is the result of settling a token.
type Settlement struct {
	Token     Token
	Err       error
	SettledAt time.Time
}

func (s Settlement) OK() bool { return s.Err == nil }

// InFlight tracks the "updating" markers of a view. Begin hands out a token
// the caller shows as in flight; Settle clears it whatever the outcome.
// Several tokens may exist for the same appointment at once.
type InFlight struct {
	mu      sync.Mutex
	pending map[uuid.UUID]Token
	now     func() time.Time
}

func NewInFlight() *InFlight {
	return &InFlight{pending: make(map[uuid.UUID]Token), now: time.Now}
}

func (f *InFlight) Begin(appointmentID, action string) Token {
	tok := Token{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Action:        action,
		StartedAt:     f.now(),
	}
	f.mu.Lock()
	f.pending[tok.ID] = tok
	f.mu.Unlock()
	return tok
}

func (f *InFlight) Settle(tok Token, err error) Settlement {
	f.mu.Lock()
	delete(f.pending, tok.ID)
	f.mu.Unlock()
	return Settlement{Token: tok, Err: err, SettledAt: f.now()}
}

// IsPending reports whether any request for appointmentID is in flight.
func (f *InFlight) IsPending(appointmentID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range f.pending {
		if tok.AppointmentID == appointmentID {
			return true
		}
	}
	return false
}

// Pending returns the in-flight tokens, oldest first.
func (f *InFlight) Pending() []Token {
	f.mu.Lock()
	out := make([]Token, 0, len(f.pending))
	for _, tok := range f.pending {
		out = append(out, tok)
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
