// Package voice реализует клиент голосового транспорта реального времени.
//
// Пакет предоставляет полный цикл одной голосовой сессии: рукопожатие через
// управляющий WebSocket канал, обнаружение внешнего адреса через UDP,
// получение сеансового ключа и передачу Opus аудио в зашифрованных пакетах
// с шагом 20 мс, включая маркеры границ дорожек и прием входящего аудио.
//
// # Основные возможности
//
//   - Конечный автомат сессии с контролируемыми переходами и историей
//   - Передача аудио пакетами по 20 мс с монотонными счетчиками
//   - Шифрование XSalsa20-Poly1305 с детерминированным nonce из заголовка
//   - Кодирование PCM в Opus со слиянием кадров в один пакет
//   - Маркеры границ дорожек с метаданными и пропуском до следующей дорожки
//   - Очередь управляющих сообщений с внеочередной вставкой
//   - Прием и расшифровка входящего аудио с выдачей Opus или PCM
//   - Классификация сетевых ошибок и повтор временных сбоев отправки
//   - Prometheus метрики и структурное логирование
//
// # Архитектура
//
// Пакет состоит из следующих основных компонентов:
//
//   - Client - центральный компонент, ведущий сессию от запуска до остановки
//   - messageQueue - очередь исходящих сообщений управляющего канала
//   - outputBuffer - буфер зашифрованных аудио пакетов и маркеров дорожек
//   - UDPTransport - подключенный голосовой сокет с классификацией ошибок
//   - packetCipher - шифратор полезной нагрузки пакетов
//
// Очередь сообщений и аудио буфер защищены независимыми блокировками:
// постановка управляющего сообщения никогда не конкурирует с тактом
// отправки аудио.
//
// # Быстрый старт
//
//	config := voice.DefaultConfig()
//	config.ServerID = "165553335558275073"
//	config.UserID = "155037590859284481"
//	config.SessionID = sessionID // из события голосового состояния
//	config.Token = token         // из события голосового сервера
//	config.Endpoint = endpoint   // хост управляющего канала
//	config.OnReady = func() {
//	    log.Println("сессия готова")
//	}
//
//	client, err := voice.NewClient(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop()
//
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Отправка аудио после готовности
//	pcm := readPCMFrame() // 48 кГц s16le стерео, до 11520 байт
//	err = client.SendAudio(pcm, true)
//
//	// Маркеры границ дорожек
//	client.InsertMarker("track-1")
//
// # Состояния сессии
//
// Сессия проходит состояния Disconnected, Identifying,
// AwaitingSessionDescription, Ready и Terminating. Отправка аудио возможна
// только в Ready (после получения сеансового ключа); Terminating —
// терминальное состояние, переподключение выполняет владелец клиента
// созданием нового экземпляра.
//
// # Обработка ошибок
//
// Ошибки делятся на четыре класса: транспортные поглощаются и повторяются
// на следующем такте, протокольные логируются и игнорируются, сессионные
// завершают сессию с уведомлением через OnError, ресурсные фатальны на
// этапе создания. Типизированные коды смотрите в VoiceErrorCode.
package voice
