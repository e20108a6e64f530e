package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/voice_client/pkg/gateway"
)

// startEchoServer поднимает WebSocket сервер, возвращающий каждый кадр обратно
func startEchoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// startClosingServer поднимает сервер, закрывающий соединение с данным кодом
func startClosingServer(t *testing.T, code int, reason string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason))
		// Дочитываем ответное закрытие, чтобы рукопожатие завершилось
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// startFloodServer поднимает сервер, непрерывно шлющий кадры до разрыва
func startFloodServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		payload := []byte(`{"op":6,"d":1693241870123}`)
		for {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketChannelSendReceive(t *testing.T) {
	url := startEchoServer(t)

	channel, err := gateway.NewWebSocketChannel(gateway.Config{URL: url})
	require.NoError(t, err)

	frames := make(chan []byte, 8)
	channel.SetFrameHandler(func(data []byte) {
		frame := make([]byte, len(data))
		copy(frame, data)
		frames <- frame
	})

	require.NoError(t, channel.Connect(context.Background()))
	t.Cleanup(func() { _ = channel.Close() })
	require.True(t, channel.IsConnected())

	payload := []byte(`{"op":3,"d":1693241870123}`)
	require.NoError(t, channel.Send(payload))

	select {
	case frame := <-frames:
		assert.Equal(t, payload, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("эхо кадр не получен")
	}
}

func TestWebSocketChannelRemoteClose(t *testing.T) {
	url := startClosingServer(t, 4006, "сессия недействительна")

	channel, err := gateway.NewWebSocketChannel(gateway.Config{URL: url})
	require.NoError(t, err)

	closes := make(chan int, 1)
	channel.SetCloseHandler(func(code int, text string) {
		closes <- code
	})

	require.NoError(t, channel.Connect(context.Background()))
	t.Cleanup(func() { _ = channel.Close() })

	select {
	case code := <-closes:
		assert.Equal(t, 4006, code)
	case <-time.After(2 * time.Second):
		t.Fatal("обработчик закрытия не вызван")
	}
	assert.False(t, channel.IsConnected())
}

func TestWebSocketChannelConnectErrors(t *testing.T) {
	channel, err := gateway.NewWebSocketChannel(gateway.Config{
		URL:              "ws://127.0.0.1:1/",
		HandshakeTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	err = channel.Connect(context.Background())
	require.Error(t, err, "подключение к закрытому порту должно падать")

	// Отмененный контекст прерывает подключение
	url := startEchoServer(t)
	channel, err = gateway.NewWebSocketChannel(gateway.Config{URL: url})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = channel.Connect(ctx)
	require.Error(t, err)
}

func TestWebSocketChannelDoubleConnect(t *testing.T) {
	url := startEchoServer(t)

	channel, err := gateway.NewWebSocketChannel(gateway.Config{URL: url})
	require.NoError(t, err)

	require.NoError(t, channel.Connect(context.Background()))
	t.Cleanup(func() { _ = channel.Close() })

	err = channel.Connect(context.Background())
	require.Error(t, err, "повторное подключение должно отвергаться")
}

func TestWebSocketChannelSendWhenClosed(t *testing.T) {
	url := startEchoServer(t)

	channel, err := gateway.NewWebSocketChannel(gateway.Config{URL: url})
	require.NoError(t, err)

	require.Error(t, channel.Send([]byte("{}")), "отправка до подключения")

	require.NoError(t, channel.Connect(context.Background()))
	require.NoError(t, channel.Close())
	require.NoError(t, channel.Close(), "повторное закрытие безопасно")

	require.Error(t, channel.Send([]byte("{}")), "отправка после закрытия")
	assert.False(t, channel.IsConnected())
}

func TestWebSocketChannelCloseDuringDelivery(t *testing.T) {
	url := startFloodServer(t)

	// Закрытие посреди непрерывного потока кадров: повторяем, чтобы
	// поймать пересечение Close с циклом чтения
	for i := 0; i < 50; i++ {
		channel, err := gateway.NewWebSocketChannel(gateway.Config{URL: url})
		require.NoError(t, err)

		received := make(chan struct{}, 1)
		channel.SetFrameHandler(func(data []byte) {
			select {
			case received <- struct{}{}:
			default:
			}
		})

		require.NoError(t, channel.Connect(context.Background()))

		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("кадры от сервера не поступают")
		}

		require.NoError(t, channel.Close())
		assert.False(t, channel.IsConnected())
	}
}

func TestChannelConfig(t *testing.T) {
	config := gateway.Config{}
	require.Error(t, config.Validate(), "пустой адрес недопустим")

	config = gateway.DefaultConfig("wss://voice.example.com/?v=4")
	require.NoError(t, config.Validate())
	assert.Equal(t, gateway.DefaultHandshakeTimeout, config.HandshakeTimeout)
	assert.Equal(t, gateway.DefaultWriteTimeout, config.WriteTimeout)
	assert.Equal(t, int64(gateway.DefaultReadLimit), config.ReadLimit)

	config = gateway.Config{URL: "wss://voice.example.com/?v=4"}
	config.ApplyDefaults()
	assert.Equal(t, gateway.DefaultHandshakeTimeout, config.HandshakeTimeout)
	assert.NotNil(t, config.Logger)
}
