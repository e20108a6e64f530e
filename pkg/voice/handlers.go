package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// HandleFrame обрабатывает один входящий кадр управляющего канала.
// Возвращает false когда кадр не удалось разобрать или применить; ошибки
// протокольного класса логируются и не прерывают сессию.
//
// Метод вызывается из горутины чтения канала, поэтому обработчики не должны
// блокироваться дольше одного сетевого круга (исключение — обнаружение
// внешнего адреса в handleReady, ограниченное таймаутом).
func (c *Client) HandleFrame(data []byte) bool {
	op, raw, err := parseEnvelope(data)
	if err != nil {
		c.protocolError("не удалось разобрать кадр управляющего канала", err)
		return false
	}

	c.logger.Debug("кадр управляющего канала", "opcode", op.String())

	switch op {
	case OpcodeHello:
		return c.handleHello(raw)
	case OpcodeReady:
		return c.handleReady(raw)
	case OpcodeSessionDescription:
		return c.handleSessionDescription(raw)
	case OpcodeHeartbeatAck:
		return c.handleHeartbeatAck(raw)
	case OpcodeSpeaking:
		return c.handleSpeaking(raw)
	case OpcodeResumed:
		c.logger.Info("сессия возобновлена сервером")
		return true
	default:
		// Неизвестные opcode не считаются ошибкой: сервер вправе слать
		// сообщения новее клиента
		c.logger.Debug("кадр с необрабатываемым opcode проигнорирован",
			"opcode", op.String())
		return true
	}
}

// protocolError регистрирует ошибку протокольного класса: журнал и счетчик,
// без влияния на состояние сессии
func (c *Client) protocolError(message string, err error) {
	c.logger.Warn(message, "error", err)
	c.metrics.recordError(ErrorClassProtocol)
}

// handleHello запоминает интервал пульса. Первый пульс уйдет на ближайшем
// секундном такте обслуживания.
func (c *Client) handleHello(raw []byte) bool {
	var payload helloPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.protocolError("не удалось разобрать hello", err)
		return false
	}
	if payload.HeartbeatInterval <= 0 {
		c.protocolError("hello без интервала пульса",
			fmt.Errorf("heartbeat_interval = %v", payload.HeartbeatInterval))
		return false
	}

	interval := time.Duration(payload.HeartbeatInterval * float64(time.Millisecond))
	c.heartbeatInterval.Store(int64(interval))

	c.logger.Debug("получен интервал пульса", "interval", interval)
	return true
}

// handleReady применяет параметры UDP: создает голосовой сокет, выполняет
// обнаружение внешнего адреса и ставит выбор протокола в очередь.
//
// Обнаружение — единственная блокирующая операция рукопожатия: один
// сетевой круг, ограниченный таймаутом конфигурации.
func (c *Client) handleReady(raw []byte) bool {
	var payload readyPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.protocolError("не удалось разобрать ready", err)
		return false
	}
	if payload.IP == "" || payload.Port == 0 {
		c.protocolError("ready без адреса голосового сокета",
			fmt.Errorf("ip=%q port=%d", payload.IP, payload.Port))
		return false
	}

	mode := ""
	for _, m := range payload.Modes {
		if m == EncryptionModeXSalsa20 {
			mode = m
			break
		}
	}
	if mode == "" {
		c.sessionError(NewVoiceError(ErrorCodeModeUnsupported, c.config.SessionID,
			"сервер не предлагает поддерживаемый режим шифрования").
			WithContext("modes", payload.Modes))
		return false
	}

	c.sessionMutex.Lock()
	c.ssrc = payload.SSRC
	c.endpointIP = payload.IP
	c.endpointPort = payload.Port
	c.modes = payload.Modes
	c.mode = mode
	c.sessionMutex.Unlock()

	if err := c.setState(StateAwaitingSessionDescription, "получены параметры UDP"); err != nil {
		c.protocolError("ready в недопустимом состоянии", err)
		return false
	}

	transportConfig := c.config.Transport
	transportConfig.RemoteAddr = net.JoinHostPort(payload.IP,
		strconv.Itoa(int(payload.Port)))

	transport, err := NewUDPTransport(transportConfig)
	if err != nil {
		c.fatalError(WrapVoiceError(ErrorCodeSocketCreateFailed, c.config.SessionID,
			"не удалось создать голосовой сокет", err))
		return false
	}

	c.transportMutex.Lock()
	old := c.transport
	c.transport = transport
	c.transportMutex.Unlock()
	if old != nil {
		_ = old.Close()
	}
	if c.terminating.Load() {
		_ = transport.Close()
		return false
	}

	externalIP, externalPort, err := transport.Discover(c.ctx, payload.SSRC,
		c.config.DiscoveryTimeout)
	if err != nil {
		c.sessionError(WrapVoiceError(ErrorCodeDiscoveryFailed, c.config.SessionID,
			"обнаружение внешнего адреса не удалось", err))
		return false
	}

	c.sessionMutex.Lock()
	c.externalIP = externalIP
	c.externalPort = externalPort
	c.sessionMutex.Unlock()

	c.logger.Info("внешний адрес определен",
		"external_ip", externalIP,
		"external_port", externalPort,
		"ssrc", payload.SSRC)

	selectProtocol, err := marshalMessage(OpcodeSelectProtocol, selectProtocolPayload{
		Protocol: "udp",
		Data: selectProtocolData{
			Address: externalIP,
			Port:    externalPort,
			Mode:    mode,
		},
	})
	if err != nil {
		c.protocolError("не удалось собрать выбор протокола", err)
		return false
	}
	c.queue.push(selectProtocol, false)
	c.kick()

	if !c.terminating.Load() {
		c.wg.Add(1)
		go c.receiveLoop(transport)
	}
	return true
}

// handleSessionDescription принимает сеансовый ключ и переводит сессию
// в готовность
func (c *Client) handleSessionDescription(raw []byte) bool {
	var payload sessionDescriptionPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.protocolError("не удалось разобрать описание сессии", err)
		return false
	}

	if payload.Mode != "" && payload.Mode != EncryptionModeXSalsa20 {
		c.sessionError(NewVoiceError(ErrorCodeModeUnsupported, c.config.SessionID,
			"сервер подтвердил неподдерживаемый режим шифрования").
			WithContext("mode", payload.Mode))
		return false
	}

	cipher, err := newPacketCipher(payload.SecretKey)
	if err != nil {
		c.protocolError("описание сессии с непригодным ключом", err)
		return false
	}
	c.cipher.Store(cipher)

	if err := c.setState(StateReady, "получен сеансовый ключ"); err != nil {
		c.protocolError("описание сессии в недопустимом состоянии", err)
		return false
	}

	c.logger.Info("сессия готова к передаче аудио")
	return true
}

// handleHeartbeatAck сверяет nonce подтверждения и записывает круговую
// задержку управляющего канала
func (c *Client) handleHeartbeatAck(raw []byte) bool {
	nonce, err := decodeNonce(raw)
	if err != nil {
		c.protocolError("не удалось разобрать подтверждение пульса", err)
		return false
	}

	if nonce != c.lastNonce.Load() {
		c.logger.Debug("подтверждение пульса с чужим nonce проигнорировано",
			"nonce", nonce)
		return true
	}

	latency := time.Since(time.Unix(0, c.lastHeartbeat.Load()))
	c.metrics.recordHeartbeatLatency(latency)
	c.logger.Debug("пульс подтвержден", "latency", latency)
	return true
}

// handleSpeaking уведомляет подписчика о начале или окончании речи
// удаленного источника
func (c *Client) handleSpeaking(raw []byte) bool {
	var payload speakingPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.protocolError("не удалось разобрать уведомление о речи", err)
		return false
	}

	c.callbacksMutex.RLock()
	handler := c.onSpeaking
	c.callbacksMutex.RUnlock()
	if handler != nil {
		handler(payload.SSRC, payload.Speaking)
	}
	return true
}

// receiveLoop читает входящие датаграммы голосового сокета до закрытия
// сокета или остановки клиента. Структурно неверные датаграммы
// отбрасываются молча, ошибки расшифровки логируются.
func (c *Client) receiveLoop(transport *UDPTransport) {
	defer c.wg.Done()

	c.logger.Debug("цикл приема запущен", "local_addr", transport.LocalAddr())

	for {
		packet, err := transport.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if HasErrorCode(err, ErrorCodeTransportClosed) {
				return
			}
			// структурно неверная датаграмма, молчаливый отброс
			if HasErrorCode(err, ErrorCodePacketTooShort) {
				continue
			}

			var classified *ClassifiedError
			if errors.As(err, &classified) {
				switch classified.Type {
				case ErrorTypeTimeout, ErrorTypeTemporary:
					continue
				case ErrorTypePermanent:
					c.logger.Debug("цикл приема завершен", "error", err)
					return
				}
			}

			c.logger.Debug("ошибка приема поглощена", "error", err)
			c.metrics.recordError(ErrorClassTransport)
			continue
		}

		c.handleIncomingPacket(packet)
	}
}

// handleIncomingPacket расшифровывает входящий голосовой пакет и передает
// кадр подписчикам в порядке прихода
func (c *Client) handleIncomingPacket(packet []byte) {
	if len(packet) < packetHeaderSize+cipherOverhead {
		return
	}

	header, err := parsePacketHeader(packet)
	if err != nil {
		return
	}
	if header.PayloadType != voicePayloadType {
		// служебные датаграммы сервера на том же сокете
		return
	}

	cipher := c.cipher.Load()
	if cipher == nil {
		return
	}

	opus, err := cipher.open(packet)
	if err != nil {
		c.protocolError("входящий пакет не расшифрован", err)
		return
	}

	// Расширение заголовка зашифровано вместе с полезной нагрузкой
	if header.Extension {
		opus = stripHeaderExtension(opus)
	}
	if len(opus) == 0 {
		return
	}

	c.metrics.recordPacketReceived(len(packet))

	c.callbacksMutex.RLock()
	opusHandler := c.onOpusReceived
	pcmHandler := c.onPCMReceived
	c.callbacksMutex.RUnlock()

	if opusHandler != nil {
		opusHandler(header.SSRC, opus)
	}

	if pcmHandler != nil && c.decoder != nil {
		pcm, err := c.decoder.Decode(opus)
		if err != nil {
			c.protocolError("входящий пакет не декодирован", err)
			return
		}
		pcmHandler(header.SSRC, pcm)
	}
}

// stripHeaderExtension отрезает расширение заголовка от расшифрованной
// полезной нагрузки: 4 байта профиля и длины плюс длина в 32-битных словах.
// Непригодное расширение оставляет нагрузку как есть.
func stripHeaderExtension(payload []byte) []byte {
	if len(payload) < 4 {
		return payload
	}
	words := int(binary.BigEndian.Uint16(payload[2:4]))
	end := 4 + words*4
	if end > len(payload) {
		return payload
	}
	return payload[end:]
}
