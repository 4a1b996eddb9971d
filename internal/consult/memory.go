package consult

import "sync"

// Turn is one question and its answer.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Memory keeps the last few turns of each session.
type Memory struct {
	mu       sync.Mutex
	window   int
	sessions map[string][]Turn
}

func NewMemory(window int) *Memory {
	if window < 0 {
		window = 0
	}
	return &Memory{window: window, sessions: make(map[string][]Turn)}
}

// Append records a turn, dropping the oldest beyond the window.
func (m *Memory) Append(session string, t Turn) {
	if session == "" || m.window == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := append(m.sessions[session], t)
	if len(turns) > m.window {
		turns = append([]Turn(nil), turns[len(turns)-m.window:]...)
	}
	m.sessions[session] = turns
}

// History returns a copy of the session's turns, oldest first.
func (m *Memory) History(session string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.sessions[session]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

func (m *Memory) Clear(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, session)
}
