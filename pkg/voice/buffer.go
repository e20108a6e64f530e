package voice

import "sync"

// bufferEntry — один элемент исходящего аудио буфера: либо готовый к
// отправке зашифрованный пакет, либо маркер границы дорожки. Маркер не
// является пакетом и в эфир не уходит.
type bufferEntry struct {
	packet []byte
	marker bool
}

// outputBuffer — исходящий аудио буфер. Хранит упорядоченную
// последовательность уже зашифрованных пакетов и маркеров дорожек.
// Защищен собственным мьютексом, независимым от очереди сообщений
// управляющего канала.
//
// Метаданные маркеров живут в отдельном списке: пропуск дорожки через
// skipToNextMarker удаляет позиционный маркер, но метаданные снимаются
// только когда маркер естественно проходит через тракт отправки.
type outputBuffer struct {
	mutex     sync.Mutex
	entries   []bufferEntry
	trackMeta []string
	// markers — количество маркеров, находящихся в буфере
	markers uint32
	paused  bool
}

func newOutputBuffer() *outputBuffer {
	return &outputBuffer{}
}

// pushPacket добавляет зашифрованный пакет в конец буфера
func (b *outputBuffer) pushPacket(packet []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.entries = append(b.entries, bufferEntry{packet: packet})
}

// requeueFront возвращает пакет в начало буфера после неудачной отправки.
// Пакет уже зашифрован и неизменяем, повторная отправка безопасна.
func (b *outputBuffer) requeueFront(packet []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.entries = append([]bufferEntry{{packet: packet}}, b.entries...)
}

// insertMarker добавляет маркер границы дорожки с метаданными
func (b *outputBuffer) insertMarker(metadata string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.entries = append(b.entries, bufferEntry{marker: true})
	b.trackMeta = append(b.trackMeta, metadata)
	b.markers++
}

// popForSend извлекает следующий пакет для отправки. Маркеры в голове
// буфера снимаются вместе с головными метаданными; их метаданные
// возвращаются для уведомления подписчика. На паузе ничего не извлекается.
func (b *outputBuffer) popForSend() (packet []byte, consumed []string, ok bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.paused {
		return nil, nil, false
	}

	for len(b.entries) > 0 && b.entries[0].marker {
		b.entries = b.entries[1:]
		if b.markers > 0 {
			b.markers--
		}
		if len(b.trackMeta) > 0 {
			consumed = append(consumed, b.trackMeta[0])
			b.trackMeta = b.trackMeta[1:]
		} else {
			consumed = append(consumed, "")
		}
	}

	if len(b.entries) == 0 {
		return nil, consumed, false
	}

	packet = b.entries[0].packet
	b.entries = b.entries[1:]
	return packet, consumed, true
}

// skipToNextMarker отбрасывает пакеты от головы буфера до ближайшего
// маркера включительно. Метаданные пропущенного маркера сохраняются до
// естественного прохождения следующего маркера через тракт отправки.
func (b *outputBuffer) skipToNextMarker() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for len(b.entries) > 0 {
		isMarker := b.entries[0].marker
		b.entries = b.entries[1:]
		if isMarker {
			break
		}
	}
	if b.markers > 0 {
		b.markers--
	}
}

// clear атомарно удаляет все пакеты, маркеры и метаданные
func (b *outputBuffer) clear() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.entries = nil
	b.trackMeta = nil
	b.markers = 0
}

// setPaused приостанавливает или возобновляет извлечение пакетов.
// Содержимое буфера не затрагивается.
func (b *outputBuffer) setPaused(paused bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.paused = paused
}

// isPaused возвращает признак паузы
func (b *outputBuffer) isPaused() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.paused
}

// isPlaying возвращает true, если буфер непуст и не на паузе
func (b *outputBuffer) isPlaying() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.entries) > 0 && !b.paused
}

// packetCount возвращает количество пакетов в буфере (маркеры не считаются)
func (b *outputBuffer) packetCount() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	count := 0
	for _, e := range b.entries {
		if !e.marker {
			count++
		}
	}
	return count
}

// tracksRemaining возвращает количество оставшихся дорожек: число маркеров
// плюс одна текущая дорожка, либо ноль для пустого буфера.
func (b *outputBuffer) tracksRemaining() uint32 {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if len(b.entries) == 0 {
		return 0
	}
	return b.markers + 1
}

// markerMetadata возвращает копию метаданных маркеров, еще не прошедших
// через тракт отправки
func (b *outputBuffer) markerMetadata() []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	meta := make([]string, len(b.trackMeta))
	copy(meta, b.trackMeta)
	return meta
}
