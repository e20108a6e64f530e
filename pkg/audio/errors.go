package audio

import "errors"

// Ошибки кодек-адаптера. Вызывающая сторона (клиент голосового транспорта)
// классифицирует их: ошибки создания кодека фатальны для соединения, ошибки
// валидации буфера возвращаются вызывающему как мягкий отказ.
var (
	// ErrEmptyPCM пустой или отрицательной длины PCM буфер
	ErrEmptyPCM = errors.New("пустой PCM буфер")

	// ErrUnalignedPCM длина буфера не кратна паре стерео сэмплов
	ErrUnalignedPCM = errors.New("невыровненный PCM буфер")

	// ErrFrameTooLarge буфер превышает один полный кадр
	ErrFrameTooLarge = errors.New("PCM буфер больше одного кадра")

	// ErrUnencodableLength длина не раскладывается на допустимые Opus кадры
	ErrUnencodableLength = errors.New("длина PCM не кодируется в Opus кадры")

	// ErrNoFrames репакетизатору не передано ни одного кадра
	ErrNoFrames = errors.New("нет кадров для слияния")

	// ErrTooManyFrames превышен лимит кадров одного Opus пакета (RFC 6716)
	ErrTooManyFrames = errors.New("слишком много кадров для одного пакета")

	// ErrFrameConfigMismatch кадры с разной конфигурацией TOC нельзя слить
	ErrFrameConfigMismatch = errors.New("кадры имеют разную Opus конфигурацию")

	// ErrFrameTooLong сжатый кадр превышает лимит длины внутри пакета
	ErrFrameTooLong = errors.New("сжатый кадр длиннее 1275 байт")

	// ErrClosed операция над закрытым кодеком
	ErrClosed = errors.New("кодек закрыт")
)
