// Package audio реализует кодек-адаптер голосового транспорта.
//
// Пакет оборачивает внешний Opus кодек (gopkg.in/hraban/opus.v2) в узкий
// интерфейс: кодирование фиксированных PCM кадров в сжатые кадры, обратное
// декодирование и репакетизация (слияние нескольких сжатых кадров в один
// сетевой пакет для снижения накладных расходов на пакет).
//
// # Формат входного аудио
//
// Вход кодировщика - 16-битный знаковый PCM с чередованием каналов
// (interleaved stereo, little-endian), частота дискретизации 48 кГц.
// Длина буфера должна быть положительной, кратной 4 байтам (пара сэмплов
// двух каналов) и не превышать одного полного кадра:
//
//	MaxFrameBytes = 11520 байт = 2880 сэмплов на канал
//
// # Репакетизация
//
// Если буфер содержит несколько базовых кадров по 960 сэмплов на канал,
// каждый кадр кодируется отдельно, после чего кадры сливаются в один
// Opus пакет (код 3, VBR) согласно RFC 6716. Полный кадр 11520 байт
// даёт ровно один сетевой пакет.
//
// # Быстрый старт
//
//	enc, err := audio.NewEncoder(audio.DefaultEncoderConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer enc.Close()
//
//	packet, err := enc.Encode(pcm) // pcm - до 11520 байт s16le stereo
//
// # Ссылки
//
//   - RFC 6716 - Definition of the Opus Audio Codec
package audio
