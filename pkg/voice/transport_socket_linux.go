//go:build linux

package voice

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setSockOptReusePort включает SO_REUSEPORT (Linux).
// Позволяет нескольким сокетам делить порт с распределением нагрузки ядром.
func setSockOptReusePort(fd int) error {
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// setSockOptBindToDevice привязывает сокет к сетевому интерфейсу (только Linux).
// Используется на многодомных хостах для контроля маршрута медиа трафика.
func setSockOptBindToDevice(fd int, device string) error {
	return syscall.SetsockoptString(fd, syscall.SOL_SOCKET, unix.SO_BINDTODEVICE, device)
}

// setSockOptVoiceOptimizations применяет Linux-специфичные оптимизации для голоса
func setSockOptVoiceOptimizations(fd int) error {
	// Высокий приоритет сокета для интерактивного аудио.
	// В контейнерах опция может быть недоступна, это не критично.
	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_PRIORITY, 6)

	// SO_BUSY_POLL снижает задержку доставки за счет активного ожидания
	// (требует ядро 3.11+, без поддержки игнорируется)
	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_BUSY_POLL, 50)

	return nil
}

// setSockOptDSCP устанавливает DSCP маркировку для QoS (Linux реализация)
func setSockOptDSCP(fd, dscp int) error {
	// DSCP занимает старшие 6 бит поля TOS
	tos := dscp << 2

	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_IP, syscall.IP_TOS, tos); err != nil {
		// В некоторых контейнерах маркировка запрещена, работаем без нее
		return nil
	}

	// Для IPv6 аналогичная маркировка через IPV6_TCLASS
	_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)

	return nil
}
