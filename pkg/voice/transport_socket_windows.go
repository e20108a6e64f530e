//go:build windows

package voice

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// setSockOptReusePort включает переиспользование адреса для Windows.
// SO_REUSEPORT отсутствует, семантику частично покрывает SO_REUSEADDR.
func setSockOptReusePort(fd int) error {
	return syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}

// setSockOptBindToDevice заглушка для Windows: привязка к интерфейсу
// выполняется через выбор локального IP адреса, а не имя устройства.
func setSockOptBindToDevice(fd int, device string) error {
	return nil
}

// setSockOptVoiceOptimizations применяет Windows-специфичные оптимизации для голоса
func setSockOptVoiceOptimizations(fd int) error {
	// SO_EXCLUSIVEADDRUSE предотвращает перехват порта другими процессами.
	// Может конфликтовать с SO_REUSEADDR, поэтому ошибка не критична.
	_ = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_EXCLUSIVEADDRUSE, 1)
	return nil
}

// setSockOptDSCP устанавливает DSCP маркировку для QoS (Windows реализация)
func setSockOptDSCP(fd, dscp int) error {
	tos := dscp << 2

	// Windows требует административных прав для многих значений TOS,
	// при отказе продолжаем без маркировки
	if err := syscall.SetsockoptInt(syscall.Handle(fd), syscall.IPPROTO_IP, syscall.IP_TOS, tos); err != nil {
		return nil
	}
	_ = syscall.SetsockoptInt(syscall.Handle(fd), syscall.IPPROTO_IPV6, windows.IPV6_TCLASS, tos)

	return nil
}
