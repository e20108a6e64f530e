package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Константы аудио формата голосового транспорта.
// Протокол фиксирует 48 кГц 16-битный стерео PCM на входе кодека.
const (
	// SampleRate частота дискретизации входного PCM
	SampleRate = 48000

	// Channels число каналов (протокол передает стерео)
	Channels = 2

	// BytesPerSample размер одного сэмпла одного канала (s16le)
	BytesPerSample = 2

	// MaxFrameSamples максимальное число сэмплов на канал в одном кадре
	MaxFrameSamples = 2880

	// MaxFrameBytes максимальная длина PCM буфера одного вызова отправки:
	// 2880 сэмплов * 2 канала * 2 байта = один полный кадр
	MaxFrameBytes = MaxFrameSamples * Channels * BytesPerSample

	// FrameDuration учетная длительность одного сетевого пакета в очереди
	// воспроизведения
	FrameDuration = 20 * time.Millisecond

	// FrameSamples число сэмплов на канал в одном 20 мс кадре
	FrameSamples = 960

	// baseFrameSamples размер базового кадра кодирования (20ms при 48 кГц);
	// буферы кратные этому размеру кодируются по кадрам и сливаются
	// репакетизатором в один пакет
	baseFrameSamples = FrameSamples
)

// SilenceFrame константный Opus кадр тишины. Передается несколько раз в
// конце аудио потока чтобы удаленные декодеры корректно сбросили состояние.
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}

// legalFrameSamples допустимые размеры Opus кадра в сэмплах на канал
// (2.5, 5, 10, 20, 40 и 60 мс при 48 кГц)
var legalFrameSamples = map[int]bool{
	120:  true,
	240:  true,
	480:  true,
	960:  true,
	1920: true,
	2880: true,
}

// ValidatePCM проверяет длину PCM буфера согласно ограничениям протокола:
// положительная, кратная 4 (пара 16-битных сэмплов двух каналов) и не
// больше одного полного кадра.
func ValidatePCM(length int) error {
	if length <= 0 {
		return fmt.Errorf("%w: длина %d", ErrEmptyPCM, length)
	}
	if length%4 != 0 {
		return fmt.Errorf("%w: длина %d не кратна 4", ErrUnalignedPCM, length)
	}
	if length > MaxFrameBytes {
		return fmt.Errorf("%w: длина %d больше максимума %d", ErrFrameTooLarge, length, MaxFrameBytes)
	}
	return nil
}

// SamplesPerChannel возвращает число сэмплов на канал для PCM буфера
// указанной длины в байтах.
func SamplesPerChannel(length int) int {
	return length / (Channels * BytesPerSample)
}

// frameChunk выбирает размер кадра кодирования для буфера из samples
// сэмплов на канал. Буферы короче базового кадра кодируются одним кадром
// допустимого размера; буферы кратные базовому кадру режутся на 20мс кадры
// (сливаемые затем в один пакет); остальные длины раскладываются на равные
// кадры наибольшего подходящего размера.
func frameChunk(samples int) (int, bool) {
	if samples <= baseFrameSamples && legalFrameSamples[samples] {
		return samples, true
	}
	for _, c := range []int{baseFrameSamples, 480, 240, 120} {
		if samples%c == 0 {
			return c, true
		}
	}
	return 0, false
}

// bytesToPCM преобразует little-endian байтовый буфер в int16 сэмплы
func bytesToPCM(data []byte) []int16 {
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return pcm
}

// pcmToBytes преобразует int16 сэмплы обратно в little-endian байты
func pcmToBytes(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
