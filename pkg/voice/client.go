package voice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"log/slog"

	"github.com/arzzra/voice_client/pkg/audio"
	"github.com/arzzra/voice_client/pkg/gateway"
)

// Client — клиент голосового транспорта реального времени.
//
// Клиент ведет одну голосовую сессию: проходит рукопожатие через
// управляющий WebSocket канал, обнаруживает внешний адрес через UDP,
// получает сеансовый ключ и передает кодированное в opus зашифрованное
// аудио медиа серверу с шагом 20 мс.
//
// Потокобезопасность: все экспортированные методы можно вызывать из любых
// горутин. Очередь сообщений управляющего канала и аудио буфер защищены
// независимыми блокировками: постановка сообщения не конкурирует с
// отправкой аудио.
type Client struct {
	config     Config
	instanceID string
	logger     *slog.Logger
	metrics    *metricsCollector

	fsm     *fsm.FSM
	tracker *stateTracker

	channel gateway.Channel

	transport      *UDPTransport
	transportMutex sync.RWMutex

	queue     *messageQueue
	buffer    *outputBuffer
	queueKick chan struct{}

	encoder *audio.Encoder
	// decoder используется только циклом приема
	decoder *audio.Decoder

	// cipher появляется ровно один раз за рукопожатие; готовность клиента
	// определяется его наличием
	cipher atomic.Pointer[packetCipher]

	// Параметры сессии из рукопожатия
	sessionMutex sync.RWMutex
	ssrc         uint32
	endpointIP   string
	endpointPort uint16
	modes        []string
	mode         string
	externalIP   string
	externalPort uint16

	// Счетчики тракта отправки. Номер пакета живет в младших 16 битах и
	// переполняется естественно; временная метка растет на число сэмплов
	// пакета и переполняется по модулю 2^32.
	sequence  atomic.Uint32
	timestamp atomic.Uint32

	// Пульс управляющего канала
	heartbeatInterval atomic.Int64 // наносекунды
	lastHeartbeat     atomic.Int64 // unix nano
	lastNonce         atomic.Int64

	// speaking отражает отправленное уведомление о речи
	speaking atomic.Bool
	// silenceRemaining — кадры тишины до снятия уведомления о речи;
	// поле читает и пишет только рабочий цикл
	silenceRemaining int

	connectedAt atomic.Int64
	readySince  atomic.Int64
	terminating atomic.Bool
	started     atomic.Bool

	callbacksMutex sync.RWMutex
	onStateChange  func(from, to State)
	onReady        func()
	onError        func(err error)
	onTrackMarker  func(metadata string)
	onOpusReceived func(ssrc uint32, opus []byte)
	onPCMReceived  func(ssrc uint32, pcm []byte)
	onSpeaking     func(ssrc uint32, speaking bool)

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewClient создает голосовой клиент. Подключение не начинается до Start.
func NewClient(config Config) (*Client, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, WrapVoiceError(ErrorCodeInvalidConfig, config.SessionID,
			"неверная конфигурация клиента", err)
	}

	encoder, err := audio.NewEncoder(config.Encoder)
	if err != nil {
		return nil, WrapVoiceError(ErrorCodeCodecInitFailed, config.SessionID,
			"не удалось создать кодировщик", err)
	}

	var decoder *audio.Decoder
	if config.EnableDecoding {
		decoder, err = audio.NewDecoder(audio.DefaultDecoderConfig())
		if err != nil {
			encoder.Close()
			return nil, WrapVoiceError(ErrorCodeCodecInitFailed, config.SessionID,
				"не удалось создать декодер", err)
		}
	}

	logger := buildLogger(&config)

	channel := config.Channel
	if channel == nil {
		channel, err = gateway.NewWebSocketChannel(gateway.Config{
			URL:    config.channelURL(),
			Logger: logger,
		})
		if err != nil {
			encoder.Close()
			if decoder != nil {
				decoder.Close()
			}
			return nil, WrapVoiceError(ErrorCodeInvalidConfig, config.SessionID,
				"не удалось создать управляющий канал", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:     config,
		instanceID: uuid.NewString(),
		logger:     logger,
		metrics:    newMetricsCollector(config.SessionID, config.MetricsEnabled),
		tracker:    newStateTracker(StateDisconnected),
		channel:    channel,
		queue:      newMessageQueue(),
		buffer:     newOutputBuffer(),
		queueKick:  make(chan struct{}, 1),
		encoder:    encoder,
		decoder:    decoder,
		ctx:        ctx,
		cancel:     cancel,

		onStateChange:  config.OnStateChange,
		onReady:        config.OnReady,
		onError:        config.OnError,
		onTrackMarker:  config.OnTrackMarker,
		onOpusReceived: config.OnOpusReceived,
		onPCMReceived:  config.OnPCMReceived,
		onSpeaking:     config.OnSpeaking,
	}

	c.initFSM()

	channel.SetFrameHandler(func(data []byte) {
		c.HandleFrame(data)
	})
	channel.SetCloseHandler(func(code int, text string) {
		c.logger.Warn("управляющий канал закрыт удаленной стороной",
			"code", code, "reason", text)
		c.Error(uint32(code))
	})

	return c, nil
}

// Start подключает управляющий канал, ставит идентификацию в очередь и
// запускает рабочий цикл. Метод возвращается сразу после подключения;
// рукопожатие продолжается асинхронно, готовность отслеживается через
// IsReady или OnReady.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return NewVoiceError(ErrorCodeSessionClosed, c.config.SessionID,
			"клиент уже запускался")
	}

	if err := c.setState(StateIdentifying, "подключение управляющего канала"); err != nil {
		return err
	}

	if err := c.channel.Connect(ctx); err != nil {
		_ = c.setState(StateTerminating, "ошибка подключения управляющего канала")
		return WrapVoiceError(ErrorCodeChannelConnectFailed, c.config.SessionID,
			"не удалось подключить управляющий канал", err)
	}
	c.connectedAt.Store(time.Now().UnixNano())

	identify, err := marshalMessage(OpcodeIdentify, identifyPayload{
		ServerID:  c.config.ServerID,
		UserID:    c.config.UserID,
		SessionID: c.config.SessionID,
		Token:     c.config.Token,
	})
	if err != nil {
		_ = c.setState(StateTerminating, "ошибка сборки идентификации")
		return WrapVoiceError(ErrorCodeInvalidConfig, c.config.SessionID,
			"не удалось собрать идентификацию", err)
	}
	c.queue.push(identify, true)

	c.wg.Add(1)
	go c.worker()

	c.logger.Info("клиент запущен",
		"instance_id", c.instanceID,
		"endpoint", c.config.Endpoint)
	return nil
}

// Stop завершает сессию: переводит состояние в Terminating, останавливает
// рабочий цикл, закрывает управляющий канал и голосовой сокет. Повторные
// вызовы безопасны.
func (c *Client) Stop() error {
	var closeErr error
	c.stopOnce.Do(func() {
		c.terminating.Store(true)
		_ = c.setState(StateTerminating, "остановка клиента")

		c.cancel()

		if err := c.channel.Close(); err != nil {
			closeErr = err
		}

		c.transportMutex.Lock()
		if c.transport != nil {
			_ = c.transport.Close()
		}
		c.transportMutex.Unlock()

		c.wg.Wait()

		c.cipher.Store(nil)
		c.buffer.clear()
		c.queue.clear()
		c.encoder.Close()
		if c.decoder != nil {
			c.decoder.Close()
		}

		c.logger.Info("клиент остановлен", "instance_id", c.instanceID)
	})
	return closeErr
}

// SendAudio кодирует аудио буфер и ставит зашифрованный пакет в аудио буфер.
//
// При useOpus=true ожидается 48 кГц 16-битный стерео PCM: длина кратна 4
// и не больше 11520 байт (полный кадр). Кратные 20 мс буферы кодируются
// по кадрам и сливаются в один пакет. При useOpus=false кодек обходится:
// буфер трактуется как готовый Opus пакет, корректность его сборки лежит
// на вызывающем.
//
// До получения сеансового ключа вызов отклоняется с ErrorCodeNoSecretKey.
// Ошибки валидации возвращаются сентинелами пакета audio.
func (c *Client) SendAudio(data []byte, useOpus bool) error {
	if c.terminating.Load() {
		return NewVoiceError(ErrorCodeSessionClosed, c.config.SessionID,
			"сессия завершается")
	}

	cipher := c.cipher.Load()
	if cipher == nil {
		return NewVoiceError(ErrorCodeNoSecretKey, c.config.SessionID,
			"сеансовый ключ еще не получен")
	}

	var opusData []byte
	var samples uint32

	if useOpus {
		encoded, err := c.encoder.Encode(data)
		if err != nil {
			return err
		}
		opusData = encoded
		samples = uint32(audio.SamplesPerChannel(len(data)))
	} else {
		n, err := audio.PacketSamples(data)
		if err != nil {
			return err
		}
		opusData = data
		samples = uint32(n)
	}

	header, err := c.nextHeader(samples)
	if err != nil {
		return err
	}
	packet := cipher.seal(header, opusData)

	// Первый пакет после тишины поднимает уведомление о речи;
	// оно уходит раньше пакета
	if c.speaking.CompareAndSwap(false, true) {
		c.queueSpeaking(true)
	}

	c.buffer.pushPacket(packet)
	return nil
}

// PauseAudio приостанавливает (true) или возобновляет (false) отправку
// аудио. Содержимое буфера не затрагивается.
func (c *Client) PauseAudio(pause bool) {
	c.buffer.setPaused(pause)
}

// StopAudio атомарно очищает аудио буфер: пакеты, маркеры и их метаданные
func (c *Client) StopAudio() {
	c.buffer.clear()
}

// InsertMarker добавляет маркер границы дорожки с метаданными в конец буфера
func (c *Client) InsertMarker(metadata string) {
	c.buffer.insertMarker(metadata)
}

// SkipToNextMarker отбрасывает пакеты от головы буфера до ближайшего
// маркера включительно
func (c *Client) SkipToNextMarker() {
	c.buffer.skipToNextMarker()
}

// GetMarkerMetadata возвращает метаданные маркеров, еще не прошедших через
// тракт отправки
func (c *Client) GetMarkerMetadata() []string {
	return c.buffer.markerMetadata()
}

// IsPlaying возвращает true когда аудио буфер непуст и не на паузе
func (c *Client) IsPlaying() bool {
	return c.buffer.isPlaying()
}

// IsPaused возвращает true когда отправка аудио приостановлена
func (c *Client) IsPaused() bool {
	return c.buffer.isPaused()
}

// IsReady возвращает true когда сеансовый ключ получен и аудио может
// отправляться. До получения описания сессии всегда false независимо от
// состояния подключения.
func (c *Client) IsReady() bool {
	return c.cipher.Load() != nil
}

// IsConnected возвращает true при активном управляющем канале
func (c *Client) IsConnected() bool {
	return c.channel.IsConnected()
}

// GetUptime возвращает длительность подключения управляющего канала
func (c *Client) GetUptime() time.Duration {
	ns := c.connectedAt.Load()
	if ns == 0 {
		return 0
	}
	return time.Since(time.Unix(0, ns))
}

// GetTracksRemaining возвращает число оставшихся дорожек: маркеры в буфере
// плюс текущая дорожка, ноль для пустого буфера
func (c *Client) GetTracksRemaining() uint32 {
	return c.buffer.tracksRemaining()
}

// GetSecsRemaining возвращает длительность буферизованного аудио в секундах:
// каждый пакет учитывается как 20 мс
func (c *Client) GetSecsRemaining() float64 {
	return float64(c.buffer.packetCount()) * audio.FrameDuration.Seconds()
}

// GetRemaining возвращает длительность буферизованного аудио
func (c *Client) GetRemaining() time.Duration {
	return time.Duration(c.buffer.packetCount()) * audio.FrameDuration
}

// DiscoverIP выполняет обнаружение внешнего адреса через голосовой сокет.
// Блокируется на один сетевой круг. Доступно после получения параметров UDP.
func (c *Client) DiscoverIP(ctx context.Context) (string, uint16, error) {
	c.transportMutex.RLock()
	transport := c.transport
	c.transportMutex.RUnlock()

	if transport == nil {
		return "", 0, NewVoiceError(ErrorCodeDiscoveryFailed, c.config.SessionID,
			"голосовой сокет еще не создан")
	}

	c.sessionMutex.RLock()
	ssrc := c.ssrc
	c.sessionMutex.RUnlock()

	return transport.Discover(ctx, ssrc, c.config.DiscoveryTimeout)
}

// QueueMessage ставит готовый кадр в очередь управляющего канала.
// При toFront кадр уходит раньше накопленных сообщений.
func (c *Client) QueueMessage(data []byte, toFront bool) {
	c.queue.push(data, toFront)
	c.kick()
}

// ClearQueue атомарно удаляет все неотправленные сообщения очереди
func (c *Client) ClearQueue() {
	c.queue.clear()
}

// GetQueueSize возвращает количество сообщений в очереди
func (c *Client) GetQueueSize() int {
	return c.queue.size()
}

// GetStatistics возвращает снимок счетчиков активности клиента
func (c *Client) GetStatistics() Statistics {
	return c.metrics.snapshot()
}

// StateHistory возвращает историю переходов состояния для диагностики
func (c *Client) StateHistory() []StateTransition {
	return c.tracker.History()
}

// SSRC возвращает идентификатор источника, выданный сервером
func (c *Client) SSRC() uint32 {
	c.sessionMutex.RLock()
	defer c.sessionMutex.RUnlock()
	return c.ssrc
}

// ExternalAddress возвращает внешний адрес, определенный обнаружением
func (c *Client) ExternalAddress() (string, uint16) {
	c.sessionMutex.RLock()
	defer c.sessionMutex.RUnlock()
	return c.externalIP, c.externalPort
}

// EndpointAddress возвращает адрес медиа сервера из параметров рукопожатия
func (c *Client) EndpointAddress() (string, uint16) {
	c.sessionMutex.RLock()
	defer c.sessionMutex.RUnlock()
	return c.endpointIP, c.endpointPort
}

// Error регистрирует завершение сессии с кодом от удаленной стороны:
// логирует, помечает сессию завершающейся и уведомляет подписчика.
// Переподключение не выполняется.
func (c *Client) Error(code uint32) {
	err := NewVoiceError(ErrorCodeRemoteTerminated, c.config.SessionID,
		fmt.Sprintf("сессия завершена с кодом %d", code)).
		WithContext("code", code)
	c.sessionError(err)
}

// sessionError обрабатывает ошибку сессионного класса: логирует, переводит
// состояние в Terminating и уведомляет подписчика. Колбек вызывается из
// отдельной горутины, из него безопасно вызывать Stop.
func (c *Client) sessionError(err error) {
	c.logger.Error("ошибка сессии", "error", err)
	c.metrics.recordError(ErrorClassSession)

	_ = c.setState(StateTerminating, err.Error())

	c.notifyError(err)
}

// fatalError обрабатывает ошибку ресурсного класса: восстановление не
// выполняется, сессия завершается
func (c *Client) fatalError(err error) {
	c.logger.Error("фатальная ошибка", "error", err)
	c.metrics.recordError(ErrorClassResource)

	_ = c.setState(StateTerminating, err.Error())

	c.notifyError(err)
}

func (c *Client) notifyError(err error) {
	c.callbacksMutex.RLock()
	handler := c.onError
	c.callbacksMutex.RUnlock()

	if handler != nil {
		go handler(err)
	}
}

// queueSpeaking ставит уведомление о речи в начало очереди управляющего
// канала: оно должно уйти раньше обычных сообщений
func (c *Client) queueSpeaking(speaking bool) {
	c.sessionMutex.RLock()
	ssrc := c.ssrc
	c.sessionMutex.RUnlock()

	msg, err := marshalMessage(OpcodeSpeaking, speakingPayload{
		Speaking: speaking,
		Delay:    0,
		SSRC:     ssrc,
	})
	if err != nil {
		c.logger.Warn("не удалось собрать уведомление о речи", "error", err)
		return
	}

	c.queue.push(msg, true)
	c.kick()
}

// nextHeader выделяет следующий номер пакета, продвигает временную метку
// на samples сэмплов и собирает заголовок пакета
func (c *Client) nextHeader(samples uint32) ([]byte, error) {
	sequence := uint16(c.sequence.Add(1))
	timestamp := c.timestamp.Add(samples)

	c.sessionMutex.RLock()
	ssrc := c.ssrc
	c.sessionMutex.RUnlock()

	return buildPacketHeader(sequence, timestamp, ssrc)
}

// kick будит рабочий цикл для внеочередного слива очереди сообщений
func (c *Client) kick() {
	select {
	case c.queueKick <- struct{}{}:
	default:
	}
}
