package audio

import (
	"fmt"
	"sync"

	"gopkg.in/hraban/opus.v2"
)

// EncoderConfig содержит параметры создания кодировщика
type EncoderConfig struct {
	SampleRate  int              // Частота дискретизации (протокол: 48000)
	Channels    int              // Число каналов (протокол: 2)
	Application opus.Application // Профиль кодека Opus
	Bitrate     int              // Битрейт в бит/с, 0 = значение библиотеки
}

// DefaultEncoderConfig возвращает конфигурацию по умолчанию:
// 48 кГц стерео, музыкальный профиль с битрейтом 128 кбит/с,
// что соответствует кадру наивысшего качества протокола.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		SampleRate:  SampleRate,
		Channels:    Channels,
		Application: opus.AppAudio,
		Bitrate:     128000,
	}
}

// Encoder кодирует PCM кадры в Opus пакеты.
//
// Буферы кратные базовому кадру (960 сэмплов на канал) кодируются
// покадрово и сливаются репакетизатором в один пакет; буферы равные
// одному допустимому размеру Opus кадра кодируются напрямую.
// Все операции сериализованы внутренним мьютексом - состояние кодека
// Opus не допускает конкурентного использования.
type Encoder struct {
	config EncoderConfig
	enc    *opus.Encoder
	mutex  sync.Mutex

	// Рабочий буфер одного сжатого кадра (максимум 1275 байт по RFC 6716,
	// с запасом под нестандартные битрейты)
	scratch []byte

	closed bool
}

// NewEncoder создает кодировщик с указанной конфигурацией.
// Ошибка создания кодека фатальна для голосового соединения.
func NewEncoder(config EncoderConfig) (*Encoder, error) {
	if config.SampleRate == 0 {
		config.SampleRate = SampleRate
	}
	if config.Channels == 0 {
		config.Channels = Channels
	}
	if config.Application == 0 {
		config.Application = opus.AppAudio
	}

	enc, err := opus.NewEncoder(config.SampleRate, config.Channels, config.Application)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Opus кодировщика: %w", err)
	}

	if config.Bitrate > 0 {
		if err := enc.SetBitrate(config.Bitrate); err != nil {
			return nil, fmt.Errorf("ошибка установки битрейта %d: %w", config.Bitrate, err)
		}
	}

	return &Encoder{
		config:  config,
		enc:     enc,
		scratch: make([]byte, 4000),
	}, nil
}

// Encode кодирует PCM буфер (s16le, interleaved stereo) в один Opus пакет.
// Длина буфера проверяется по ограничениям протокола (ValidatePCM), затем
// раскладывается на Opus кадры:
//   - кратная 960 сэмплам на канал - по 20мс кадрам со слиянием в один пакет
//   - равная допустимому размеру кадра (2.5/5/10 мс) - один кадр
//
// Прочие длины не кодируются и возвращают ErrUnencodableLength.
func (e *Encoder) Encode(pcm []byte) ([]byte, error) {
	if err := ValidatePCM(len(pcm)); err != nil {
		return nil, err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	samples := SamplesPerChannel(len(pcm))
	chunk, ok := frameChunk(samples)
	if !ok {
		return nil, fmt.Errorf("%w: %d сэмплов на канал", ErrUnencodableLength, samples)
	}

	chunkBytes := chunk * Channels * BytesPerSample
	frames := make([][]byte, 0, len(pcm)/chunkBytes)
	for off := 0; off < len(pcm); off += chunkBytes {
		n, err := e.enc.Encode(bytesToPCM(pcm[off:off+chunkBytes]), e.scratch)
		if err != nil {
			return nil, fmt.Errorf("ошибка кодирования кадра: %w", err)
		}
		frame := make([]byte, n)
		copy(frame, e.scratch[:n])
		frames = append(frames, frame)
	}

	if len(frames) == 1 {
		return frames[0], nil
	}
	return MergeFrames(frames)
}

// Close помечает кодировщик закрытым. Память состояния Opus управляется
// сборщиком мусора, явное освобождение не требуется.
func (e *Encoder) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.closed = true
	return nil
}

// DecoderConfig содержит параметры создания декодера
type DecoderConfig struct {
	SampleRate int // Частота дискретизации (протокол: 48000)
	Channels   int // Число каналов (протокол: 2)
}

// DefaultDecoderConfig возвращает конфигурацию декодера по умолчанию
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		SampleRate: SampleRate,
		Channels:   Channels,
	}
}

// Decoder декодирует Opus пакеты обратно в PCM (s16le, interleaved)
type Decoder struct {
	config DecoderConfig
	dec    *opus.Decoder
	mutex  sync.Mutex

	// Рабочий буфер: максимальный пакет 120мс = 5760 сэмплов на канал
	scratch []int16

	closed bool
}

// NewDecoder создает декодер с указанной конфигурацией
func NewDecoder(config DecoderConfig) (*Decoder, error) {
	if config.SampleRate == 0 {
		config.SampleRate = SampleRate
	}
	if config.Channels == 0 {
		config.Channels = Channels
	}

	dec, err := opus.NewDecoder(config.SampleRate, config.Channels)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Opus декодера: %w", err)
	}

	return &Decoder{
		config:  config,
		dec:     dec,
		scratch: make([]int16, 5760*config.Channels),
	}, nil
}

// Decode декодирует один Opus пакет (возможно многокадровый) в PCM байты
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, ErrNoFrames
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	n, err := d.dec.Decode(packet, d.scratch)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования пакета: %w", err)
	}

	return pcmToBytes(d.scratch[:n*d.config.Channels]), nil
}

// Close помечает декодер закрытым
func (d *Decoder) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.closed = true
	return nil
}
