package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Channel — управляющий канал голосовой сессии. Реализация обязана быть
// безопасной для конкурентного использования: Send вызывается из рабочего
// цикла клиента, Close — из любой горутины.
type Channel interface {
	// Connect устанавливает соединение и запускает доставку входящих кадров
	Connect(ctx context.Context) error
	// Send отправляет один текстовый кадр
	Send(data []byte) error
	// Close закрывает канал и останавливает доставку кадров
	Close() error
	// IsConnected возвращает true при активном соединении
	IsConnected() bool
	// SetFrameHandler устанавливает обработчик входящих кадров.
	// Должен быть установлен до Connect.
	SetFrameHandler(handler func(data []byte))
	// SetCloseHandler устанавливает обработчик закрытия канала удаленной
	// стороной. Код закрытия передается обработчику.
	SetCloseHandler(handler func(code int, text string))
}

const (
	// DefaultHandshakeTimeout — таймаут установки WebSocket соединения
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultWriteTimeout — таймаут записи одного кадра
	DefaultWriteTimeout = 5 * time.Second
	// DefaultReadLimit — максимальный размер входящего кадра
	DefaultReadLimit = 1 << 20
)

// Config — конфигурация управляющего канала
type Config struct {
	// URL адрес канала (wss://host/?v=N)
	URL string
	// HandshakeTimeout — таймаут установки соединения
	HandshakeTimeout time.Duration
	// WriteTimeout — таймаут записи одного кадра
	WriteTimeout time.Duration
	// ReadLimit — максимальный размер входящего кадра в байтах
	ReadLimit int64
	// Logger для событий канала; nil означает slog.Default()
	Logger *slog.Logger
}

// DefaultConfig возвращает конфигурацию канала по умолчанию
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		ReadLimit:        DefaultReadLimit,
	}
}

// ApplyDefaults заполняет нулевые поля значениями по умолчанию
func (c *Config) ApplyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate проверяет корректность конфигурации канала
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("адрес канала обязателен")
	}
	if c.HandshakeTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("таймауты не могут быть отрицательными")
	}
	return nil
}
