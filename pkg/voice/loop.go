package voice

import (
	"errors"
	"time"

	"github.com/arzzra/voice_client/pkg/audio"
)

// silenceTailFrames — число кадров тишины после опустошения аудио буфера.
// Хвост тишины позволяет удаленным декодерам сбросить состояние
// интерполяции перед снятием уведомления о речи.
const silenceTailFrames = 5

const housekeepingInterval = time.Second

// worker — единственный рабочий цикл клиента. Каждые 20 мс (такт готовности
// сокета к записи) сливает очередь управляющего канала и отправляет не
// больше одного голосового пакета; раз в секунду выполняет обслуживание:
// пульс, контроль рукопожатия, экспорт метрик.
//
// Цикл не блокируется на сетевых операциях кроме самих вызовов записи.
func (c *Client) worker() {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("паника рабочего цикла", "panic", r)
		}
	}()

	pacing := time.NewTicker(audio.FrameDuration)
	defer pacing.Stop()

	housekeeping := time.NewTicker(housekeepingInterval)
	defer housekeeping.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-pacing.C:
			c.drainSignaling()
			c.writeReady()

		case <-c.queueKick:
			c.drainSignaling()

		case <-housekeeping.C:
			c.everySecond()
		}
	}
}

// writeReady обрабатывает один такт готовности к записи: снимает с буфера
// маркеры до первого пакета и сам пакет. Маркеры уведомляют подписчика, но
// пакетами не являются и такт не занимают. Если пакетов нет, допосылается
// хвост тишины.
func (c *Client) writeReady() {
	packet, consumed, ok := c.buffer.popForSend()

	for _, metadata := range consumed {
		c.metrics.recordMarkerConsumed()
		c.callbacksMutex.RLock()
		handler := c.onTrackMarker
		c.callbacksMutex.RUnlock()
		if handler != nil {
			handler(metadata)
		}
	}

	if ok {
		c.sendPacket(packet)
		c.silenceRemaining = silenceTailFrames
		return
	}

	if c.silenceRemaining > 0 {
		c.sendSilenceFrame()
		c.silenceRemaining--
		if c.silenceRemaining == 0 && c.speaking.CompareAndSwap(true, false) {
			c.queueSpeaking(false)
		}
	}
}

// sendPacket отправляет готовый пакет через голосовой сокет. Временные
// сетевые сбои не фатальны: пакет возвращается в голову буфера и уйдет на
// следующем такте. Невосстановимые ошибки отправки роняют пакет с записью
// в журнал, сессия продолжается.
func (c *Client) sendPacket(packet []byte) {
	c.transportMutex.RLock()
	transport := c.transport
	c.transportMutex.RUnlock()

	if transport == nil {
		c.buffer.requeueFront(packet)
		return
	}

	if err := transport.Send(packet); err != nil {
		c.metrics.recordError(ErrorClassTransport)

		var classified *ClassifiedError
		if errors.As(err, &classified) && classified.Retryable {
			c.logger.Debug("временная ошибка отправки, пакет возвращен в буфер",
				"error", err)
			c.buffer.requeueFront(packet)
			return
		}

		c.logger.Warn("пакет отброшен после ошибки отправки", "error", err)
		return
	}

	c.metrics.recordPacketSent(len(packet))
}

// sendSilenceFrame шифрует и отправляет один кадр тишины. Кадр занимает
// обычное место в нумерации пакетов и продвигает временную метку на 20 мс.
func (c *Client) sendSilenceFrame() {
	cipher := c.cipher.Load()
	if cipher == nil {
		c.silenceRemaining = 0
		return
	}

	header, err := c.nextHeader(audio.FrameSamples)
	if err != nil {
		c.logger.Warn("не удалось собрать заголовок кадра тишины", "error", err)
		return
	}

	c.sendPacket(cipher.seal(header, audio.SilenceFrame))
}

// drainSignaling сливает очередь управляющего канала целиком. Ошибка
// отправки прерывает слив: сообщение возвращается в голову очереди и
// попытка повторится на следующем такте.
func (c *Client) drainSignaling() {
	for {
		msg, ok := c.queue.pop()
		if !ok {
			return
		}

		if err := c.channel.Send(msg); err != nil {
			c.metrics.recordError(ErrorClassTransport)
			c.logger.Warn("ошибка отправки в управляющий канал, сообщение возвращено в очередь",
				"error", err)
			c.queue.requeueFront(msg)
			return
		}
	}
}

// everySecond выполняет секундное обслуживание: пульс управляющего канала,
// контроль зависшего рукопожатия и экспорт глубин очередей.
func (c *Client) everySecond() {
	interval := c.heartbeatInterval.Load()
	if interval > 0 {
		last := c.lastHeartbeat.Load()
		if last == 0 || time.Now().UnixNano()-last >= interval {
			c.sendHeartbeat()
		}
	}

	state := c.State()
	if state == StateIdentifying || state == StateAwaitingSessionDescription {
		if c.tracker.TimeInState() > c.config.HandshakeTimeout {
			c.sessionError(NewVoiceError(ErrorCodeHandshakeTimeout, c.config.SessionID,
				"рукопожатие не завершилось вовремя").
				WithContext("state", state.String()).
				WithContext("timeout", c.config.HandshakeTimeout.String()))
		}
	}

	c.metrics.setQueueDepth(c.queue.size())
	c.metrics.setBufferPackets(c.buffer.packetCount())
}

// sendHeartbeat ставит пульс в начало очереди. Нонс — текущее время в
// миллисекундах, подтверждение сервера сверяется с ним для измерения
// задержки канала.
func (c *Client) sendHeartbeat() {
	nonce := time.Now().UnixMilli()

	msg, err := marshalMessage(OpcodeHeartbeat, nonce)
	if err != nil {
		c.logger.Warn("не удалось собрать пульс", "error", err)
		return
	}

	c.lastNonce.Store(nonce)
	c.lastHeartbeat.Store(time.Now().UnixNano())

	c.queue.push(msg, true)
	c.kick()
	c.metrics.recordHeartbeat()
}
