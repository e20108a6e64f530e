package voice

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// UDPTransport передает зашифрованные голосовые пакеты по подключенному
// UDP сокету. Пакеты непрозрачны для транспорта: шифрование и сборка
// заголовков выполняются выше, транспорт отвечает за доставку,
// классификацию сетевых ошибок и учет трафика.
type UDPTransport struct {
	conn   *net.UDPConn
	config TransportConfig

	active bool
	mutex  sync.RWMutex

	// Счетчики трафика (atomic, читаются из Statistics)
	packetsSent     uint64
	packetsReceived uint64
	bytesSent       uint64
	bytesReceived   uint64
	connectedAt     time.Time
}

// NewUDPTransport создает подключенный голосовой транспорт до медиа сервера
func NewUDPTransport(config TransportConfig) (*UDPTransport, error) {
	config.ApplyDefaults()

	conn, err := dialVoiceConn(config)
	if err != nil {
		return nil, WrapVoiceError(ErrorCodeSocketCreateFailed, "",
			"не удалось создать голосовой сокет", err)
	}

	return &UDPTransport{
		conn:        conn,
		config:      config,
		active:      true,
		connectedAt: time.Now(),
	}, nil
}

// Send отправляет готовый голосовой пакет медиа серверу
func (t *UDPTransport) Send(packet []byte) error {
	t.mutex.RLock()
	active := t.active
	conn := t.conn
	t.mutex.RUnlock()

	if !active {
		return NewVoiceError(ErrorCodeTransportClosed, "", "транспорт не активен")
	}

	if len(packet) < MinPacketSize {
		return NewVoiceError(ErrorCodePacketTooShort, "",
			fmt.Sprintf("пакет слишком мал: %d байт (минимум %d)", len(packet), MinPacketSize))
	}
	if len(packet) > MaxPacketSize {
		return NewVoiceError(ErrorCodePacketTooLarge, "",
			fmt.Sprintf("пакет слишком велик: %d байт (максимум %d)", len(packet), MaxPacketSize))
	}

	n, err := conn.Write(packet)
	if err != nil {
		return classifyNetworkError("UDP write", err)
	}

	atomic.AddUint64(&t.packetsSent, 1)
	atomic.AddUint64(&t.bytesSent, uint64(n))
	return nil
}

// Receive читает один пакет из сокета. Таймаут чтения ограничен, чтобы
// вызывающий цикл регулярно проверял контекст; истечение таймаута
// возвращается как классифицированная временная ошибка.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mutex.RLock()
	active := t.active
	conn := t.conn
	timeout := t.config.ReceiveTimeout
	t.mutex.RUnlock()

	if !active {
		return nil, NewVoiceError(ErrorCodeTransportClosed, "", "транспорт не активен")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	buffer := make([]byte, MaxPacketSize)
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	n, err := conn.Read(buffer)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return nil, classifyNetworkError("UDP read", err)
	}

	// Пакеты короче заголовка отбрасываются без логирования
	if n < MinPacketSize {
		return nil, NewVoiceError(ErrorCodePacketTooShort, "",
			fmt.Sprintf("пакет слишком мал: %d байт", n))
	}

	atomic.AddUint64(&t.packetsReceived, 1)
	atomic.AddUint64(&t.bytesReceived, uint64(n))
	return buffer[:n], nil
}

// LocalAddr возвращает локальный адрес сокета
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// RemoteAddr возвращает адрес медиа сервера
func (t *UDPTransport) RemoteAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.RemoteAddr()
}

// Close закрывает транспорт
func (t *UDPTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.active {
		return nil
	}
	t.active = false

	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// IsActive проверяет активность транспорта
func (t *UDPTransport) IsActive() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.active
}

// Statistics возвращает снимок счетчиков трафика
func (t *UDPTransport) Statistics() TransportStatistics {
	return TransportStatistics{
		PacketsSent:     atomic.LoadUint64(&t.packetsSent),
		PacketsReceived: atomic.LoadUint64(&t.packetsReceived),
		BytesSent:       atomic.LoadUint64(&t.bytesSent),
		BytesReceived:   atomic.LoadUint64(&t.bytesReceived),
		ConnectedAt:     t.connectedAt,
	}
}

// TransportStatistics — счетчики трафика голосового транспорта
type TransportStatistics struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	ConnectedAt     time.Time
}

// GetUptime возвращает время работы транспорта
func (ts *TransportStatistics) GetUptime() time.Duration {
	if ts.ConnectedAt.IsZero() {
		return 0
	}
	return time.Since(ts.ConnectedAt)
}

// GetSendRate возвращает скорость отправки в пакетах/сек
func (ts *TransportStatistics) GetSendRate() float64 {
	uptime := ts.GetUptime()
	if uptime == 0 {
		return 0
	}
	return float64(ts.PacketsSent) / uptime.Seconds()
}

// NetworkErrorType определяет типы сетевых ошибок для выбора реакции
type NetworkErrorType int

const (
	ErrorTypeTemporary  NetworkErrorType = iota // временная, повтор возможен
	ErrorTypePermanent                          // постоянная, повтор бессмыслен
	ErrorTypeTimeout                            // таймаут, нормальное поведение
	ErrorTypeConnection                         // проблемы соединения
	ErrorTypeUnknown                            // неклассифицированная
)

// ClassifiedError — сетевая ошибка с типом и признаком повторяемости.
// Тракт отправки по признаку Retryable решает, вернуть ли пакет в начало
// буфера или отбросить.
type ClassifiedError struct {
	Type      NetworkErrorType
	Operation string
	Err       error
	Retryable bool
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s (type: %s, retryable: %t)",
		e.Operation, e.Err.Error(), e.typeString(), e.Retryable)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

func (e *ClassifiedError) typeString() string {
	switch e.Type {
	case ErrorTypeTemporary:
		return "temporary"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// classifyNetworkError анализирует сетевую ошибку и возвращает классифицированную версию
func classifyNetworkError(operation string, err error) error {
	if err == nil {
		return nil
	}

	classified := &ClassifiedError{
		Operation: operation,
		Err:       err,
		Type:      ErrorTypeUnknown,
		Retryable: false,
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		classified.Type = ErrorTypeTimeout
		classified.Retryable = true
		return classified
	}

	if isTemporaryError(err) {
		classified.Type = ErrorTypeTemporary
		classified.Retryable = true
		return classified
	}

	switch {
	case isConnectionError(err):
		classified.Type = ErrorTypeConnection
		classified.Retryable = true
	case isPermanentError(err):
		classified.Type = ErrorTypePermanent
		classified.Retryable = false
	}

	return classified
}

// isConnectionError проверяет является ли ошибка связанной с соединением
func isConnectionError(err error) bool {
	return containsAny(err.Error(), []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"host is unreachable",
		"no route to host",
	})
}

// isPermanentError проверяет является ли ошибка постоянной
func isPermanentError(err error) bool {
	return containsAny(err.Error(), []string{
		"invalid argument",
		"address family not supported",
		"permission denied",
		"operation not supported",
		"use of closed network connection",
	})
}

// containsAny проверяет содержит ли строка любую из подстрок
func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
