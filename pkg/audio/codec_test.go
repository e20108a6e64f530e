package audio

import (
	"errors"
	"math"
	"testing"
)

// makeSinePCM генерирует синусоиду указанной длины в байтах
// (s16le, interleaved stereo, 440 Гц)
func makeSinePCM(length int) []byte {
	samples := make([]int16, length/2)
	for i := 0; i < len(samples); i += 2 {
		v := int16(10000 * math.Sin(2*math.Pi*440*float64(i/2)/float64(SampleRate)))
		samples[i] = v
		samples[i+1] = v
	}
	return pcmToBytes(samples)
}

// === ТЕСТЫ КОДИРОВЩИКА ===

// TestEncoderCreation проверяет создание кодировщика и отказ на
// неподдерживаемой частоте дискретизации
func TestEncoderCreation(t *testing.T) {
	enc, err := NewEncoder(DefaultEncoderConfig())
	if err != nil {
		t.Fatalf("Ошибка создания кодировщика: %v", err)
	}
	defer enc.Close()

	_, err = NewEncoder(EncoderConfig{SampleRate: 44100, Channels: 2})
	if err == nil {
		t.Error("Ожидалась ошибка для частоты 44100 Гц")
	}
}

// TestEncodeFullFrame проверяет сценарий полного кадра: 11520 байт PCM
// дают ровно один пакет из трех слитых 20мс кадров, который декодируется
// обратно в полный кадр.
func TestEncodeFullFrame(t *testing.T) {
	enc, err := NewEncoder(DefaultEncoderConfig())
	if err != nil {
		t.Fatalf("Ошибка создания кодировщика: %v", err)
	}
	defer enc.Close()

	packet, err := enc.Encode(makeSinePCM(MaxFrameBytes))
	if err != nil {
		t.Fatalf("Ошибка кодирования полного кадра: %v", err)
	}
	if len(packet) < 3 {
		t.Fatalf("Подозрительно короткий пакет: %d байт", len(packet))
	}

	// Полный кадр - это три базовых кадра, слитых в пакет кода 3
	if packet[0]&0x03 != 0x03 {
		t.Errorf("Ожидался код пакета 3, получен %d", packet[0]&0x03)
	}
	if packet[1] != 0x80|3 {
		t.Errorf("Ожидался VBR пакет из 3 кадров, байт счетчика %#x", packet[1])
	}

	dec, err := NewDecoder(DefaultDecoderConfig())
	if err != nil {
		t.Fatalf("Ошибка создания декодера: %v", err)
	}
	defer dec.Close()

	pcm, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Слитый пакет не декодируется: %v", err)
	}
	if len(pcm) != MaxFrameBytes {
		t.Errorf("Декодировано %d байт, ожидалось %d", len(pcm), MaxFrameBytes)
	}
}

// TestEncodeBaseFrame проверяет что базовый 20мс кадр кодируется одним
// кадром без репакетизации
func TestEncodeBaseFrame(t *testing.T) {
	enc, err := NewEncoder(DefaultEncoderConfig())
	if err != nil {
		t.Fatalf("Ошибка создания кодировщика: %v", err)
	}
	defer enc.Close()

	packet, err := enc.Encode(makeSinePCM(3840))
	if err != nil {
		t.Fatalf("Ошибка кодирования: %v", err)
	}
	if packet[0]&0x03 != 0 {
		t.Errorf("Ожидался однокадровый пакет (код 0), получен код %d", packet[0]&0x03)
	}

	dec, err := NewDecoder(DefaultDecoderConfig())
	if err != nil {
		t.Fatalf("Ошибка создания декодера: %v", err)
	}
	defer dec.Close()

	pcm, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Ошибка декодирования: %v", err)
	}
	if len(pcm) != 3840 {
		t.Errorf("Декодировано %d байт, ожидалось 3840", len(pcm))
	}
}

// TestEncodeValidation проверяет мягкие отказы кодировщика на невалидных
// буферах
func TestEncodeValidation(t *testing.T) {
	enc, err := NewEncoder(DefaultEncoderConfig())
	if err != nil {
		t.Fatalf("Ошибка создания кодировщика: %v", err)
	}
	defer enc.Close()

	tests := []struct {
		name      string
		pcm       []byte
		expectErr error
	}{
		{"Пустой буфер", nil, ErrEmptyPCM},
		{"Некратная длина", make([]byte, 10), ErrUnalignedPCM},
		{"Больше кадра", make([]byte, MaxFrameBytes+4), ErrFrameTooLarge},
		{"Один сэмпл на канал", make([]byte, 4), ErrUnencodableLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Encode(tt.pcm)
			if !errors.Is(err, tt.expectErr) {
				t.Errorf("Ожидалась ошибка %v, получено %v", tt.expectErr, err)
			}
		})
	}
}

// TestEncoderClosed проверяет отказ операций после закрытия
func TestEncoderClosed(t *testing.T) {
	enc, err := NewEncoder(DefaultEncoderConfig())
	if err != nil {
		t.Fatalf("Ошибка создания кодировщика: %v", err)
	}
	enc.Close()

	if _, err := enc.Encode(makeSinePCM(3840)); !errors.Is(err, ErrClosed) {
		t.Errorf("Ожидалась ErrClosed, получено %v", err)
	}
}

// TestDecodeSilenceFrame проверяет что константный кадр тишины декодируется
func TestDecodeSilenceFrame(t *testing.T) {
	dec, err := NewDecoder(DefaultDecoderConfig())
	if err != nil {
		t.Fatalf("Ошибка создания декодера: %v", err)
	}
	defer dec.Close()

	pcm, err := dec.Decode(SilenceFrame)
	if err != nil {
		t.Fatalf("Кадр тишины не декодируется: %v", err)
	}
	if len(pcm) == 0 {
		t.Error("Кадр тишины дал пустой PCM")
	}
}
