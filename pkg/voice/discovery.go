package voice

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

const (
	// discoveryPacketSize — размер пакета обнаружения адреса
	discoveryPacketSize = 70
	// DefaultDiscoveryTimeout — таймаут ожидания ответа обнаружения
	DefaultDiscoveryTimeout = 5 * time.Second
)

// Discover выполняет обнаружение внешнего адреса: отправляет медиа серверу
// 70-байтовый пакет с SSRC в первых четырех байтах и блокируется до ответа.
// Ответ содержит внешний IP в виде C-строки со смещения 4 и порт в последних
// двух байтах (младший байт первым).
//
// Операция блокирующая и выполняется один раз во время рукопожатия.
func (t *UDPTransport) Discover(ctx context.Context, ssrc uint32, timeout time.Duration) (string, uint16, error) {
	t.mutex.RLock()
	active := t.active
	conn := t.conn
	t.mutex.RUnlock()

	if !active {
		return "", 0, NewVoiceError(ErrorCodeTransportClosed, "", "транспорт не активен")
	}
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	request := make([]byte, discoveryPacketSize)
	binary.BigEndian.PutUint32(request, ssrc)

	if _, err := conn.Write(request); err != nil {
		return "", 0, WrapVoiceError(ErrorCodeDiscoveryFailed, "",
			"ошибка отправки пакета обнаружения", err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	reply := make([]byte, MaxPacketSize)
	n, err := conn.Read(reply)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, WrapVoiceError(ErrorCodeDiscoveryFailed, "",
			"нет ответа на пакет обнаружения", err)
	}
	if n < discoveryPacketSize {
		return "", 0, NewVoiceError(ErrorCodeDiscoveryFailed, "",
			fmt.Sprintf("ответ обнаружения слишком мал: %d байт", n))
	}

	return parseDiscoveryReply(reply[:n])
}

// parseDiscoveryReply извлекает внешний IP и порт из ответа обнаружения
func parseDiscoveryReply(reply []byte) (string, uint16, error) {
	body := reply[4:]

	// IP - строка с нулевым терминатором
	end := bytes.IndexByte(body, 0)
	if end < 0 {
		return "", 0, NewVoiceError(ErrorCodeDiscoveryFailed, "",
			"ответ обнаружения не содержит адреса")
	}
	ipStr := string(body[:end])
	if net.ParseIP(ipStr) == nil {
		return "", 0, NewVoiceError(ErrorCodeDiscoveryFailed, "",
			fmt.Sprintf("некорректный адрес в ответе обнаружения: %q", ipStr))
	}

	// Порт - последние два байта, младший байт первым
	port := binary.LittleEndian.Uint16(body[len(body)-2:])
	if port == 0 {
		return "", 0, NewVoiceError(ErrorCodeDiscoveryFailed, "",
			"нулевой порт в ответе обнаружения")
	}

	return ipStr, port, nil
}
