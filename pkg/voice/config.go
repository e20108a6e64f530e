package voice

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arzzra/voice_client/pkg/audio"
	"github.com/arzzra/voice_client/pkg/gateway"
)

const (
	// DefaultGatewayVersion — версия протокола управляющего канала
	DefaultGatewayVersion = 4
	// DefaultHandshakeTimeout — максимальное время прохождения рукопожатия
	// от идентификации до получения сеансового ключа
	DefaultHandshakeTimeout = 20 * time.Second
)

// Config — конфигурация голосового клиента.
//
// Обязательные поля: ServerID, UserID, SessionID, Token и Endpoint.
// Идентификатор сессии и токен выдает основной шлюз при согласовании
// голосового состояния; Endpoint указывает на управляющий канал
// голосового сервера.
type Config struct {
	// ServerID — идентификатор сервера, к которому относится сессия
	ServerID string
	// ChannelID — идентификатор голосового канала (для логов)
	ChannelID string
	// UserID — идентификатор пользователя
	UserID string
	// SessionID — идентификатор сессии основного шлюза
	SessionID string
	// Token — токен голосовой сессии
	Token string
	// Endpoint — адрес управляющего канала (host[:port])
	Endpoint string

	// GatewayVersion — версия протокола управляющего канала
	GatewayVersion int

	// Channel — управляющий канал. Если nil, создается WebSocket канал
	// до Endpoint. Подмена используется в тестах.
	Channel gateway.Channel

	// Transport — параметры голосового UDP сокета. Удаленный адрес
	// заполняется из рукопожатия и в конфигурации игнорируется.
	Transport TransportConfig

	// DiscoveryTimeout — таймаут обнаружения внешнего адреса
	DiscoveryTimeout time.Duration
	// HandshakeTimeout — максимальное время прохождения рукопожатия
	HandshakeTimeout time.Duration

	// Encoder — параметры кодирования исходящего аудио
	Encoder audio.EncoderConfig
	// EnableDecoding включает декодирование входящего аудио в PCM
	// (требуется для OnPCMReceived)
	EnableDecoding bool

	// Logger для событий клиента; nil означает slog.Default()
	Logger *slog.Logger
	// OnLog получает копию каждой записи лога клиента
	OnLog func(level slog.Level, message string)
	// MetricsEnabled включает Prometheus метрики
	MetricsEnabled bool

	// OnStateChange вызывается после каждого перехода состояния
	OnStateChange func(from, to State)
	// OnReady вызывается при получении сеансового ключа
	OnReady func()
	// OnError вызывается при ошибках сессии
	OnError func(err error)
	// OnTrackMarker вызывается когда маркер дорожки проходит через
	// тракт отправки; получает метаданные маркера
	OnTrackMarker func(metadata string)
	// OnOpusReceived получает расшифрованные opus пакеты входящего аудио
	OnOpusReceived func(ssrc uint32, opus []byte)
	// OnPCMReceived получает декодированное входящее аудио
	// (требует EnableDecoding)
	OnPCMReceived func(ssrc uint32, pcm []byte)
	// OnSpeaking вызывается при уведомлениях о речи других участников
	OnSpeaking func(ssrc uint32, speaking bool)
}

// DefaultConfig возвращает конфигурацию клиента с заполненными таймаутами
// и параметрами кодека по умолчанию
func DefaultConfig() Config {
	return Config{
		GatewayVersion:   DefaultGatewayVersion,
		DiscoveryTimeout: DefaultDiscoveryTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Encoder:          audio.DefaultEncoderConfig(),
		MetricsEnabled:   true,
	}
}

// ApplyDefaults заполняет нулевые поля значениями по умолчанию
func (c *Config) ApplyDefaults() {
	if c.GatewayVersion == 0 {
		c.GatewayVersion = DefaultGatewayVersion
	}
	if c.DiscoveryTimeout == 0 {
		c.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Encoder.SampleRate == 0 {
		c.Encoder = audio.DefaultEncoderConfig()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate проверяет корректность конфигурации клиента
func (c *Config) Validate() error {
	if c.ServerID == "" {
		return fmt.Errorf("идентификатор сервера обязателен")
	}
	if c.UserID == "" {
		return fmt.Errorf("идентификатор пользователя обязателен")
	}
	if c.SessionID == "" {
		return fmt.Errorf("идентификатор сессии обязателен")
	}
	if c.Token == "" {
		return fmt.Errorf("токен сессии обязателен")
	}
	if c.Endpoint == "" && c.Channel == nil {
		return fmt.Errorf("адрес управляющего канала обязателен")
	}
	if c.OnPCMReceived != nil && !c.EnableDecoding {
		return fmt.Errorf("OnPCMReceived требует EnableDecoding")
	}
	return nil
}

// channelURL строит адрес WebSocket канала из Endpoint
func (c *Config) channelURL() string {
	endpoint := c.Endpoint
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return fmt.Sprintf("wss://%s/?v=%d", endpoint, c.GatewayVersion)
}
