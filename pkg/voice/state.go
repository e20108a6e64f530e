package voice

import (
	"strings"
	"sync"
	"time"
)

// State представляет состояние жизненного цикла голосовой сессии
type State string

func (s State) String() string {
	return string(s)
}

const (
	// StateDisconnected — исходное состояние, подключение не начато
	StateDisconnected State = "Disconnected"
	// StateIdentifying — управляющий канал подключается, отправлена идентификация
	StateIdentifying State = "Identifying"
	// StateAwaitingSessionDescription — получены параметры UDP, ожидается
	// описание сессии с сеансовым ключом
	StateAwaitingSessionDescription State = "AwaitingSessionDescription"
	// StateReady — ключ получен, клиент может отправлять аудио
	StateReady State = "Ready"
	// StateTerminating — сессия завершается, терминальное состояние
	StateTerminating State = "Terminating"
)

// stateTransitions описывает допустимые переходы жизненного цикла.
// Прямой путь: Disconnected → Identifying → AwaitingSessionDescription → Ready.
// В Terminating можно попасть из любого нетерминального состояния.
var stateTransitions = map[State][]State{
	StateDisconnected:               {StateIdentifying, StateTerminating},
	StateIdentifying:                {StateAwaitingSessionDescription, StateTerminating},
	StateAwaitingSessionDescription: {StateReady, StateTerminating},
	StateReady:                      {StateAwaitingSessionDescription, StateTerminating},
	StateTerminating:                {},
}

// StateTransition запись о выполненном переходе состояния
type StateTransition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// stateTracker хранит текущее состояние и историю переходов для отладки.
// Сами переходы выполняет конечный автомат клиента; трекер обновляется
// из его коллбека after_event.
type stateTracker struct {
	mu        sync.RWMutex
	current   State
	enteredAt time.Time
	history   []StateTransition
}

const stateHistoryLimit = 20

func newStateTracker(initial State) *stateTracker {
	return &stateTracker{
		current:   initial,
		enteredAt: time.Now(),
		history:   make([]StateTransition, 0, 10),
	}
}

// Current возвращает текущее состояние (thread-safe)
func (t *stateTracker) Current() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// TimeInState возвращает длительность нахождения в текущем состоянии
func (t *stateTracker) TimeInState() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.enteredAt)
}

// Record фиксирует выполненный переход и обновляет текущее состояние
func (t *stateTracker) Record(from, to State, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = to
	t.enteredAt = time.Now()
	t.history = append(t.history, StateTransition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: t.enteredAt,
	})

	// Ограничиваем размер истории
	if len(t.history) > stateHistoryLimit {
		t.history = t.history[1:]
	}
}

// History возвращает копию истории переходов
func (t *stateTracker) History() []StateTransition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	history := make([]StateTransition, len(t.history))
	copy(history, t.history)
	return history
}

// canTransition проверяет допустимость перехода по матрице переходов
func canTransition(from, to State) bool {
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// formEventName формирует имя события конечного автомата для перехода
func formEventName(src, dst State) string {
	builder := strings.Builder{}
	builder.WriteString(string(src))
	builder.WriteString("_to_")
	builder.WriteString(string(dst))
	return builder.String()
}
