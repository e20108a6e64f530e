package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebSocketChannel — реализация управляющего канала поверх gorilla/websocket.
// Чтение выполняется в отдельной горутине, записи сериализуются мьютексом:
// несколько горутин могут безопасно вызывать Send.
type WebSocketChannel struct {
	config Config
	logger *slog.Logger

	conn       *websocket.Conn
	writeMutex sync.Mutex

	connected  bool
	stateMutex sync.RWMutex

	frameHandler  func(data []byte)
	closeHandler  func(code int, text string)
	handlersMutex sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Channel = (*WebSocketChannel)(nil)

// NewWebSocketChannel создает управляющий канал с заданной конфигурацией
func NewWebSocketChannel(config Config) (*WebSocketChannel, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "неверная конфигурация канала")
	}

	return &WebSocketChannel{
		config: config,
		logger: config.Logger.With("component", "gateway"),
	}, nil
}

// SetFrameHandler устанавливает обработчик входящих кадров
func (c *WebSocketChannel) SetFrameHandler(handler func(data []byte)) {
	c.handlersMutex.Lock()
	defer c.handlersMutex.Unlock()
	c.frameHandler = handler
}

// SetCloseHandler устанавливает обработчик закрытия канала
func (c *WebSocketChannel) SetCloseHandler(handler func(code int, text string)) {
	c.handlersMutex.Lock()
	defer c.handlersMutex.Unlock()
	c.closeHandler = handler
}

// Connect устанавливает WebSocket соединение и запускает цикл чтения
func (c *WebSocketChannel) Connect(ctx context.Context) error {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.connected {
		return errors.New("канал уже подключен")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return errors.Wrapf(err, "не удалось подключиться к %s", c.config.URL)
	}
	conn.SetReadLimit(c.config.ReadLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.connected = true

	c.wg.Add(1)
	go c.readLoop(readCtx, conn)

	c.logger.Debug("управляющий канал подключен", "url", c.config.URL)
	return nil
}

// readLoop читает кадры до закрытия соединения и передает их обработчику.
// Сокет приходит параметром: поле conn обнуляется в Close конкурентно с
// циклом чтения, из цикла оно не читается.
func (c *WebSocketChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.stateMutex.Lock()
			c.connected = false
			c.stateMutex.Unlock()

			// Остановка по Close не считается закрытием удаленной стороной
			if ctx.Err() != nil {
				return
			}

			code, text := closeDetails(err)
			c.logger.Debug("управляющий канал закрыт", "code", code, "reason", text)

			c.handlersMutex.RLock()
			handler := c.closeHandler
			c.handlersMutex.RUnlock()
			if handler != nil {
				handler(code, text)
			}
			return
		}

		c.handlersMutex.RLock()
		handler := c.frameHandler
		c.handlersMutex.RUnlock()
		if handler != nil {
			handler(data)
		}
	}
}

// closeDetails извлекает код и причину закрытия из ошибки чтения
func closeDetails(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// Send отправляет один текстовый кадр
func (c *WebSocketChannel) Send(data []byte) error {
	c.stateMutex.RLock()
	connected := c.connected
	conn := c.conn
	c.stateMutex.RUnlock()

	if !connected || conn == nil {
		return errors.New("канал не подключен")
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return errors.Wrap(err, "не удалось установить таймаут записи")
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "ошибка записи кадра")
	}
	return nil
}

// IsConnected возвращает true при активном соединении
func (c *WebSocketChannel) IsConnected() bool {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.connected
}

// Close закрывает канал. Перед закрытием сокета удаленной стороне
// отправляется нормальный код закрытия.
func (c *WebSocketChannel) Close() error {
	c.stateMutex.Lock()
	if !c.connected && c.conn == nil {
		c.stateMutex.Unlock()
		return nil
	}
	conn := c.conn
	cancel := c.cancel
	c.connected = false
	c.conn = nil
	c.cancel = nil
	c.stateMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if conn != nil {
		c.writeMutex.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMutex.Unlock()

		err = conn.Close()
	}

	c.wg.Wait()
	return err
}
