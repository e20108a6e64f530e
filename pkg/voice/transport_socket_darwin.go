//go:build darwin

package voice

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setSockOptReusePort включает переиспользование адреса для macOS.
// SO_REUSEADDR стабилен везде, SO_REUSEPORT включается дополнительно
// (доступен с macOS 10.10).
func setSockOptReusePort(fd int) error {
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		return err
	}
	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	return nil
}

// setSockOptBindToDevice заглушка для macOS: SO_BINDTODEVICE не поддерживается,
// привязка к интерфейсу выполняется через выбор локального IP адреса.
func setSockOptBindToDevice(fd int, device string) error {
	return nil
}

// setSockOptVoiceOptimizations применяет macOS-специфичные оптимизации для голоса
func setSockOptVoiceOptimizations(fd int) error {
	// SO_NOSIGPIPE предотвращает SIGPIPE при записи в закрытый сокет
	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
	return nil
}

// setSockOptDSCP устанавливает DSCP маркировку для QoS (macOS реализация)
func setSockOptDSCP(fd, dscp int) error {
	tos := dscp << 2

	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_IP, syscall.IP_TOS, tos); err != nil {
		// Некоторые значения TOS требуют повышенных привилегий
		return nil
	}
	_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)

	// macOS дополнительно классифицирует трафик через SO_TRAFFIC_CLASS
	const soTrafficClass = 0x1001
	const trafficClassVoice = 3
	if dscp == DSCPExpeditedForwarding {
		_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, soTrafficClass, trafficClassVoice)
	}

	return nil
}
