package voice

import "sync"

// messageQueue — исходящая очередь сообщений управляющего канала.
// Защищена собственным мьютексом, независимым от блокировки аудио буфера:
// постановка сообщения никогда не конкурирует с отправкой аудио пакетов.
//
// Срочные сообщения (пульс, уведомление о речи) вставляются в начало
// очереди и уходят раньше накопленных обычных сообщений.
type messageQueue struct {
	mutex sync.Mutex
	items [][]byte
}

func newMessageQueue() *messageQueue {
	return &messageQueue{}
}

// push добавляет сообщение в очередь. При toFront сообщение встает в начало.
func (q *messageQueue) push(msg []byte, toFront bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if toFront {
		q.items = append([][]byte{msg}, q.items...)
		return
	}
	q.items = append(q.items, msg)
}

// pop извлекает первое сообщение очереди
func (q *messageQueue) pop() ([]byte, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// requeueFront возвращает неотправленное сообщение в начало очереди
func (q *messageQueue) requeueFront(msg []byte) {
	q.push(msg, true)
}

// clear атомарно удаляет все сообщения
func (q *messageQueue) clear() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.items = nil
}

// size возвращает количество сообщений в очереди
func (q *messageQueue) size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}
