package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/arzzra/voice_client/pkg/audio"
	"github.com/arzzra/voice_client/pkg/voice"
)

func main() {
	var (
		endpoint  = flag.String("endpoint", "", "Адрес управляющего канала (host[:port])")
		serverID  = flag.String("server", "", "Идентификатор сервера")
		userID    = flag.String("user", "", "Идентификатор пользователя")
		sessionID = flag.String("session", "", "Идентификатор сессии основного шлюза")
		token     = flag.String("token", "", "Токен голосовой сессии")
		channelID = flag.String("channel", "", "Идентификатор голосового канала (для журнала)")
		mode      = flag.String("mode", "connect", "Режим: connect, tone, listen")
		duration  = flag.Duration("duration", 30*time.Second, "Длительность работы")
		frequency = flag.Float64("freq", 440, "Частота тона в герцах (режим tone)")
		debug     = flag.Bool("debug", false, "Подробный журнал")
	)
	flag.Parse()

	if *endpoint == "" || *serverID == "" || *userID == "" || *sessionID == "" || *token == "" {
		fmt.Println("Обязательные флаги: -endpoint, -server, -user, -session, -token")
		fmt.Println("Параметры сессии выдает основной шлюз при согласовании голосового состояния")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	config := voice.DefaultConfig()
	config.ServerID = *serverID
	config.ChannelID = *channelID
	config.UserID = *userID
	config.SessionID = *sessionID
	config.Token = *token
	config.Endpoint = *endpoint
	config.Logger = logger

	switch *mode {
	case "connect":
		runConnect(config, *duration)
	case "tone":
		runTone(config, *duration, *frequency)
	case "listen":
		runListen(config, *duration)
	default:
		fmt.Printf("Неизвестный режим: %s\n", *mode)
		fmt.Println("Доступные режимы: connect, tone, listen")
		os.Exit(1)
	}
}

// startClient создает и запускает клиента с журналированием событий сессии.
// Возвращает клиента и канал, закрываемый при готовности к передаче.
func startClient(config voice.Config) (*voice.Client, <-chan struct{}) {
	ready := make(chan struct{})

	config.OnStateChange = func(from, to voice.State) {
		log.Printf("Состояние сессии: %s -> %s", from, to)
	}
	config.OnReady = func() {
		log.Printf("Сеансовый ключ получен, аудио тракт готов")
		close(ready)
	}
	config.OnError = func(err error) {
		log.Printf("Ошибка сессии: %v", err)
	}
	config.OnTrackMarker = func(metadata string) {
		log.Printf("Маркер дорожки прошел тракт отправки: %q", metadata)
	}
	config.OnSpeaking = func(ssrc uint32, speaking bool) {
		log.Printf("Участник ssrc=%d speaking=%v", ssrc, speaking)
	}

	client, err := voice.NewClient(config)
	if err != nil {
		log.Fatalf("Ошибка создания клиента: %v", err)
	}

	if err := client.Start(context.Background()); err != nil {
		log.Fatalf("Ошибка запуска клиента: %v", err)
	}
	return client, ready
}

// waitReady ждет готовности аудио тракта или сигнала завершения
func waitReady(client *voice.Client, ready <-chan struct{}) bool {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case <-ready:
		ip, port := client.ExternalAddress()
		log.Printf("Внешний адрес по обнаружению: %s:%d, ssrc=%d", ip, port, client.SSRC())
		return true
	case <-interrupt:
		log.Printf("Прервано до готовности")
		return false
	case <-time.After(readyTimeout):
		log.Printf("Рукопожатие не завершилось за отведенное время")
		return false
	}
}

// readyTimeout — предел ожидания готовности аудио тракта
const readyTimeout = 30 * time.Second

// printStatistics выводит счетчики активности клиента
func printStatistics(client *voice.Client) {
	stats := client.GetStatistics()
	log.Printf("=== СТАТИСТИКА СЕССИИ ===")
	log.Printf("Пакетов отправлено: %d (%d байт)", stats.PacketsSent, stats.BytesSent)
	log.Printf("Пакетов получено: %d (%d байт)", stats.PacketsReceived, stats.BytesReceived)
	log.Printf("Пульсов отправлено: %d, последняя задержка: %v",
		stats.HeartbeatsSent, stats.LastHeartbeatLatency)
	log.Printf("Маркеров обработано: %d, ошибок: %d", stats.MarkersConsumed, stats.ErrorsTotal)
	log.Printf("Время подключения: %v", client.GetUptime())

	log.Printf("История переходов состояния:")
	for _, transition := range client.StateHistory() {
		log.Printf("  %s -> %s (%s)", transition.From, transition.To, transition.Reason)
	}
}

// runConnect проходит рукопожатие и держит сессию без отправки аудио
func runConnect(config voice.Config, duration time.Duration) {
	log.Printf("Подключение к %s", config.Endpoint)

	client, ready := startClient(config)
	defer client.Stop()

	if !waitReady(client, ready) {
		return
	}

	log.Printf("Держим сессию %v (пульс идет автоматически)...", duration)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-time.After(duration):
	case <-interrupt:
		log.Printf("Прервано")
	}

	printStatistics(client)
}

// runTone кодирует и отправляет синусоидальный тон кадрами по 20 мс
func runTone(config voice.Config, duration time.Duration, frequency float64) {
	log.Printf("Подключение к %s, тон %.0f Гц", config.Endpoint, frequency)

	client, ready := startClient(config)
	defer client.Stop()

	if !waitReady(client, ready) {
		return
	}

	client.InsertMarker(fmt.Sprintf("тон %.0f Гц", frequency))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Кадр 20 мс: 960 сэмплов на канал, 16 бит, стерео
	pcm := make([]byte, audio.FrameSamples*4)
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	deadline := time.After(duration)
	var phase float64
	step := 2 * math.Pi * frequency / float64(audio.SampleRate)

	for {
		select {
		case <-ticker.C:
			for i := 0; i < audio.FrameSamples; i++ {
				sample := int16(8000 * math.Sin(phase))
				phase += step
				pcm[i*4] = byte(sample)
				pcm[i*4+1] = byte(sample >> 8)
				pcm[i*4+2] = byte(sample)
				pcm[i*4+3] = byte(sample >> 8)
			}
			if err := client.SendAudio(pcm, true); err != nil {
				log.Printf("Ошибка отправки аудио: %v", err)
				printStatistics(client)
				return
			}
		case <-deadline:
			log.Printf("Тон завершен, в буфере осталось %.2f с", client.GetSecsRemaining())
			printStatistics(client)
			return
		case <-interrupt:
			log.Printf("Прервано")
			printStatistics(client)
			return
		}
	}
}

// runListen декодирует входящее аудио и журналирует активность участников
func runListen(config voice.Config, duration time.Duration) {
	log.Printf("Подключение к %s в режиме прослушивания", config.Endpoint)

	// Счетчики читаются из главной горутины, пишутся из цикла приема
	var opusPackets, pcmFrames atomic.Int64
	config.EnableDecoding = true
	config.OnOpusReceived = func(ssrc uint32, opus []byte) {
		if n := opusPackets.Add(1); n%250 == 0 {
			log.Printf("Получено %d opus пакетов (последний от ssrc=%d, %d байт)",
				n, ssrc, len(opus))
		}
	}
	config.OnPCMReceived = func(ssrc uint32, pcm []byte) {
		if n := pcmFrames.Add(1); n%250 == 0 {
			log.Printf("Декодировано %d кадров PCM (последний от ssrc=%d, %d байт)",
				n, ssrc, len(pcm))
		}
	}

	client, ready := startClient(config)
	defer client.Stop()

	if !waitReady(client, ready) {
		return
	}

	log.Printf("Слушаем %v...", duration)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-time.After(duration):
	case <-interrupt:
		log.Printf("Прервано")
	}

	log.Printf("Итого: %d opus пакетов, %d кадров PCM", opusPackets.Load(), pcmFrames.Load())
	printStatistics(client)
}
