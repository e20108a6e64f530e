package voice

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// === ТЕСТЫ ГОЛОСОВОГО UDP ТРАНСПОРТА ===

// startEchoServer поднимает локальный UDP сервер, возвращающий каждую
// датаграмму отправителю
func startEchoServer(t *testing.T) string {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("не удалось поднять эхо-сервер: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, MaxPacketSize)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_, _ = conn.WriteToUDP(buf[:n], addr)
		}
	}()

	return conn.LocalAddr().String()
}

// TestTransportSendReceive проверяет круг отправки и приема пакета
func TestTransportSendReceive(t *testing.T) {
	transport, err := NewUDPTransport(DefaultTransportConfig(startEchoServer(t)))
	if err != nil {
		t.Fatalf("не удалось создать транспорт: %v", err)
	}
	defer transport.Close()

	packet := make([]byte, 64)
	for i := range packet {
		packet[i] = byte(i)
	}

	if err := transport.Send(packet); err != nil {
		t.Fatalf("отправка не удалась: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var received []byte
	for {
		received, err = transport.Receive(ctx)
		if err == nil {
			break
		}
		var classified *ClassifiedError
		if errors.As(err, &classified) && classified.Type == ErrorTypeTimeout {
			continue
		}
		t.Fatalf("прием не удался: %v", err)
	}

	if !bytes.Equal(received, packet) {
		t.Errorf("пакет искажен: %x", received)
	}

	stats := transport.Statistics()
	if stats.PacketsSent != 1 || stats.PacketsReceived != 1 {
		t.Errorf("счетчики: отправлено %d, принято %d",
			stats.PacketsSent, stats.PacketsReceived)
	}
	if stats.BytesSent != uint64(len(packet)) {
		t.Errorf("байты: %d", stats.BytesSent)
	}
}

// TestTransportSendSizeLimits проверяет границы размера пакета
func TestTransportSendSizeLimits(t *testing.T) {
	transport, err := NewUDPTransport(DefaultTransportConfig(startEchoServer(t)))
	if err != nil {
		t.Fatalf("не удалось создать транспорт: %v", err)
	}
	defer transport.Close()

	if err := transport.Send(make([]byte, MinPacketSize-1)); !HasErrorCode(err, ErrorCodePacketTooShort) {
		t.Errorf("короткий пакет не отклонен: %v", err)
	}
	if err := transport.Send(make([]byte, MaxPacketSize+1)); !HasErrorCode(err, ErrorCodePacketTooLarge) {
		t.Errorf("огромный пакет не отклонен: %v", err)
	}
}

// TestTransportClosed проверяет отказ операций на закрытом транспорте
func TestTransportClosed(t *testing.T) {
	transport, err := NewUDPTransport(DefaultTransportConfig(startEchoServer(t)))
	if err != nil {
		t.Fatalf("не удалось создать транспорт: %v", err)
	}

	if !transport.IsActive() {
		t.Error("новый транспорт не активен")
	}

	if err := transport.Close(); err != nil {
		t.Fatalf("закрытие не удалось: %v", err)
	}
	if transport.IsActive() {
		t.Error("закрытый транспорт активен")
	}
	// Повторное закрытие безопасно
	if err := transport.Close(); err != nil {
		t.Errorf("повторное закрытие вернуло ошибку: %v", err)
	}

	if err := transport.Send(make([]byte, 64)); !HasErrorCode(err, ErrorCodeTransportClosed) {
		t.Errorf("отправка в закрытый транспорт: %v", err)
	}
	if _, err := transport.Receive(context.Background()); !HasErrorCode(err, ErrorCodeTransportClosed) {
		t.Errorf("прием из закрытого транспорта: %v", err)
	}
}

// TestTransportReceiveTimeout проверяет классификацию истечения таймаута
// чтения как временной ошибки
func TestTransportReceiveTimeout(t *testing.T) {
	config := DefaultTransportConfig(startEchoServer(t))
	config.ReceiveTimeout = 30 * time.Millisecond

	transport, err := NewUDPTransport(config)
	if err != nil {
		t.Fatalf("не удалось создать транспорт: %v", err)
	}
	defer transport.Close()

	_, err = transport.Receive(context.Background())
	if err == nil {
		t.Fatal("прием из пустого сокета завершился без ошибки")
	}

	var classified *ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatalf("ошибка не классифицирована: %v", err)
	}
	if classified.Type != ErrorTypeTimeout {
		t.Errorf("тип: ожидался timeout, получен %v", classified.Type)
	}
	if !classified.Retryable {
		t.Error("таймаут не помечен повторяемым")
	}
}

// TestTransportReceiveContextCancel проверяет прерывание приема контекстом
func TestTransportReceiveContextCancel(t *testing.T) {
	transport, err := NewUDPTransport(DefaultTransportConfig(startEchoServer(t)))
	if err != nil {
		t.Fatalf("не удалось создать транспорт: %v", err)
	}
	defer transport.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := transport.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("отмененный контекст: %v", err)
	}
}

// TestTransportConfigValidation проверяет валидацию конфигурации
func TestTransportConfigValidation(t *testing.T) {
	config := TransportConfig{}
	if err := config.Validate(); err == nil {
		t.Error("пустой удаленный адрес прошел валидацию")
	}

	config = DefaultTransportConfig("203.0.113.1:4000")
	if err := config.Validate(); err != nil {
		t.Errorf("конфигурация по умолчанию не прошла валидацию: %v", err)
	}
	if config.BufferSize != DefaultSocketBuffer {
		t.Errorf("размер буфера по умолчанию: %d", config.BufferSize)
	}
	if config.DSCP != DSCPExpeditedForwarding {
		t.Errorf("DSCP по умолчанию: %d", config.DSCP)
	}
}

// TestClassifyNetworkError проверяет классификацию сетевых ошибок
func TestClassifyNetworkError(t *testing.T) {
	if classifyNetworkError("op", nil) != nil {
		t.Error("nil ошибка классифицирована")
	}

	closed := errors.New("use of closed network connection")
	classified := classifyNetworkError("UDP write", closed)

	var ce *ClassifiedError
	if !errors.As(classified, &ce) {
		t.Fatalf("ошибка не классифицирована: %v", classified)
	}
	if ce.Type != ErrorTypePermanent {
		t.Errorf("закрытое соединение: тип %v", ce.Type)
	}
	if ce.Retryable {
		t.Error("постоянная ошибка помечена повторяемой")
	}
	if !errors.Is(classified, closed) {
		t.Error("причина потеряна при классификации")
	}

	refused := errors.New("connection refused")
	classified = classifyNetworkError("UDP write", refused)
	if errors.As(classified, &ce) && !ce.Retryable {
		t.Error("отказ соединения не помечен повторяемым")
	}
}
