package voice

import (
	"context"
	"time"

	"github.com/looplab/fsm"
)

/*
FSM (Конечный автомат) голосовой сессии:

Состояния и переходы:

1. Disconnected (Начальное состояние)
   - Описание: подключение не начато
   - Возможные переходы:
     * Disconnected → Identifying (Start: подключение управляющего канала)
     * Disconnected → Terminating (Stop до запуска)

2. Identifying
   - Описание: управляющий канал подключен, отправлена идентификация
   - Возможные переходы:
     * Identifying → AwaitingSessionDescription (получен Ready с параметрами UDP)
     * Identifying → Terminating (ошибка рукопожатия)

3. AwaitingSessionDescription
   - Описание: выполнено обнаружение адреса, ожидается сеансовый ключ
   - Возможные переходы:
     * AwaitingSessionDescription → Ready (получено описание сессии)
     * AwaitingSessionDescription → Terminating (ошибка рукопожатия)

4. Ready
   - Описание: ключ установлен, аудио может отправляться
   - Возможные переходы:
     * Ready → AwaitingSessionDescription (пересогласование после реконнекта)
     * Ready → Terminating (завершение сессии)

5. Terminating
   - Описание: терминальное состояние, выходящих переходов нет

Конвенция именования событий:
События формируются через formEventName(src, dst), создавая строки
формата "SRC_to_DST" (например, "Identifying_to_AwaitingSessionDescription").

Коллбеки:
   - after_event:       фиксирует переход в истории и уведомляет подписчика
   - enter_Ready:       отмечает готовность к передаче аудио
   - enter_Terminating: инициирует остановку рабочего цикла
*/

func (c *Client) initFSM() {
	events := make(fsm.Events, 0, 8)
	for from, targets := range stateTransitions {
		for _, to := range targets {
			events = append(events, fsm.EventDesc{
				Name: formEventName(from, to),
				Src:  []string{string(from)},
				Dst:  string(to),
			})
		}
	}

	c.fsm = fsm.NewFSM(
		string(StateDisconnected),
		events,
		fsm.Callbacks{
			"after_event":                        c.afterStateChange,
			"enter_" + StateReady.String():       c.enterReady,
			"enter_" + StateTerminating.String(): c.enterTerminating,
		})
}

// setState переводит конечный автомат в новое состояние. Причина перехода
// передается первым аргументом события и попадает в историю.
func (c *Client) setState(next State, reason string) error {
	current := State(c.fsm.Current())
	if current == next {
		return nil
	}
	if err := c.fsm.Event(context.TODO(), formEventName(current, next), reason); err != nil {
		return WrapVoiceError(ErrorCodeInvalidTransition, c.config.SessionID,
			"недопустимый переход "+current.String()+" -> "+next.String(), err)
	}
	return nil
}

// State возвращает текущее состояние сессии
func (c *Client) State() State {
	return State(c.fsm.Current())
}

//callBacks for FSM

func (c *Client) afterStateChange(ctx context.Context, e *fsm.Event) {
	from := State(e.Src)
	to := State(e.Dst)

	reason := ""
	if len(e.Args) > 0 {
		if r, ok := e.Args[0].(string); ok {
			reason = r
		}
	}

	c.tracker.Record(from, to, reason)
	c.metrics.recordStateTransition(from, to)
	c.logger.Debug("переход состояния",
		"from", from.String(),
		"to", to.String(),
		"reason", reason)

	c.callbacksMutex.RLock()
	handler := c.onStateChange
	c.callbacksMutex.RUnlock()

	if handler != nil {
		handler(from, to)
	}
}

func (c *Client) enterReady(ctx context.Context, e *fsm.Event) {
	c.readySince.Store(time.Now().UnixNano())

	c.callbacksMutex.RLock()
	handler := c.onReady
	c.callbacksMutex.RUnlock()

	if handler != nil {
		handler()
	}
}

func (c *Client) enterTerminating(ctx context.Context, e *fsm.Event) {
	c.terminating.Store(true)
}
