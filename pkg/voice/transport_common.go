// Настройка UDP сокета для передачи голосовых пакетов.
//
// Медиа транспорт работает поверх единственного подключенного UDP сокета:
// удаленный адрес известен из рукопожатия, локальный порт эфемерный.
// Сокет оптимизируется для минимальной задержки: увеличенные буферы,
// DSCP маркировка трафика и платформенные опции из transport_socket_*.go.
package voice

import (
	"fmt"
	"net"
	"syscall"
	"time"
)

const (
	// DefaultSocketBuffer — размер системных буферов сокета.
	// 256KB вмещает несколько секунд слитых opus кадров высокого битрейта.
	DefaultSocketBuffer = 262144

	// DefaultReceiveTimeout — таймаут одного чтения из сокета.
	// 100ms балансирует отзывчивость остановки и нагрузку на CPU.
	DefaultReceiveTimeout = 100 * time.Millisecond

	// DSCP значения для QoS классификации трафика согласно RFC 4594
	DSCPExpeditedForwarding = 46 // EF для интерактивного аудио
	DSCPBestEffort          = 0  // трафик без гарантий качества
)

// TransportConfig — конфигурация голосового UDP транспорта
type TransportConfig struct {
	// RemoteAddr — адрес медиа сервера (host:port), обязателен
	RemoteAddr string
	// LocalAddr — локальный адрес; пустой означает эфемерный порт
	LocalAddr string
	// BufferSize — размер системных буферов сокета
	BufferSize int
	// DSCP — маркировка трафика для QoS (0 = без маркировки)
	DSCP int
	// ReusePort разрешает нескольким сокетам делить порт
	ReusePort bool
	// BindToDevice привязывает сокет к сетевому интерфейсу (только Linux)
	BindToDevice string
	// ReceiveTimeout — таймаут одного чтения из сокета
	ReceiveTimeout time.Duration
}

// DefaultTransportConfig возвращает конфигурацию транспорта с DSCP
// маркировкой интерактивного аудио
func DefaultTransportConfig(remoteAddr string) TransportConfig {
	return TransportConfig{
		RemoteAddr:     remoteAddr,
		BufferSize:     DefaultSocketBuffer,
		DSCP:           DSCPExpeditedForwarding,
		ReceiveTimeout: DefaultReceiveTimeout,
	}
}

// ApplyDefaults заполняет нулевые поля значениями по умолчанию
func (tc *TransportConfig) ApplyDefaults() {
	if tc.BufferSize == 0 {
		tc.BufferSize = DefaultSocketBuffer
	}
	if tc.ReceiveTimeout == 0 {
		tc.ReceiveTimeout = DefaultReceiveTimeout
	}
}

// Validate проверяет корректность конфигурации транспорта
func (tc *TransportConfig) Validate() error {
	if tc.RemoteAddr == "" {
		return fmt.Errorf("удаленный адрес обязателен")
	}
	if tc.BufferSize < 0 {
		return fmt.Errorf("размер буфера не может быть отрицательным")
	}
	if tc.DSCP < 0 || tc.DSCP > 63 {
		return fmt.Errorf("DSCP должен быть в диапазоне 0-63")
	}
	return nil
}

// dialVoiceConn создает подключенный UDP сокет до медиа сервера и
// применяет голосовые оптимизации
func dialVoiceConn(config TransportConfig) (*net.UDPConn, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("неверная конфигурация: %w", err)
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", config.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения удаленного адреса '%s': %w", config.RemoteAddr, err)
	}

	var localAddr *net.UDPAddr
	if config.LocalAddr != "" {
		localAddr, err = net.ResolveUDPAddr("udp", config.LocalAddr)
		if err != nil {
			return nil, fmt.Errorf("ошибка разрешения локального адреса '%s': %w", config.LocalAddr, err)
		}
	}

	conn, err := net.DialUDP("udp", localAddr, remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания UDP соединения: %w", err)
	}

	if err := setSockOptForVoice(conn, config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ошибка настройки сокета: %w", err)
	}

	return conn, nil
}

// setSockOptForVoice применяет низкоуровневые настройки сокета для голоса
func setSockOptForVoice(conn *net.UDPConn, config TransportConfig) error {
	if conn == nil {
		return fmt.Errorf("соединение не может быть nil")
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("не удалось получить системный сокет: %w", err)
	}

	var sockOptErr error
	err = rawConn.Control(func(fd uintptr) {
		sockOptErr = applySockOptForVoice(int(fd), config)
	})
	if err != nil {
		return fmt.Errorf("ошибка управления сокетом: %w", err)
	}

	return sockOptErr
}

// applySockOptForVoice применяет системные настройки сокета для голоса
func applySockOptForVoice(fd int, config TransportConfig) error {
	if err := setSockOptBuffers(fd, config.BufferSize); err != nil {
		return fmt.Errorf("ошибка установки буферов: %w", err)
	}

	if config.DSCP > 0 {
		if err := setSockOptDSCP(fd, config.DSCP); err != nil {
			return fmt.Errorf("ошибка установки DSCP: %w", err)
		}
	}

	if config.ReusePort {
		if err := setSockOptReusePort(fd); err != nil {
			return fmt.Errorf("ошибка установки SO_REUSEPORT: %w", err)
		}
	}

	if config.BindToDevice != "" {
		if err := setSockOptBindToDevice(fd, config.BindToDevice); err != nil {
			return fmt.Errorf("ошибка привязки к устройству %s: %w", config.BindToDevice, err)
		}
	}

	if err := setSockOptVoiceOptimizations(fd); err != nil {
		return fmt.Errorf("ошибка голосовых оптимизаций: %w", err)
	}

	return nil
}

// setSockOptBuffers устанавливает размеры системных буферов сокета
func setSockOptBuffers(fd, bufferSize int) error {
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, bufferSize); err != nil {
		return fmt.Errorf("SO_RCVBUF (%d): %w", bufferSize, err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_SNDBUF, bufferSize); err != nil {
		return fmt.Errorf("SO_SNDBUF (%d): %w", bufferSize, err)
	}
	return nil
}

// isTemporaryError проверяет является ли ошибка временной (операцию можно повторить)
func isTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	if opErr, ok := err.(*net.OpError); ok {
		if syscallErr, ok := opErr.Err.(*syscall.Errno); ok {
			switch *syscallErr {
			case syscall.EAGAIN, syscall.EINTR:
				return true
			}
		}
	}

	return false
}
