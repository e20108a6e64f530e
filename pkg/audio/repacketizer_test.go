package audio

import (
	"bytes"
	"errors"
	"testing"
)

// === ТЕСТЫ РЕПАКЕТИЗАТОРА (RFC 6716, код 3) ===

// TestMergeFramesLayout проверяет байтовую структуру слитого пакета:
// TOC с кодом 3, байт числа кадров с VBR флагом, длины всех кадров кроме
// последнего, затем полезные нагрузки кадров по порядку.
func TestMergeFramesLayout(t *testing.T) {
	frames := [][]byte{
		{0xF8, 0x01, 0x02},       // данные 2 байта
		{0xF8, 0xAA, 0xBB, 0xCC}, // данные 3 байта
	}

	packet, err := MergeFrames(frames)
	if err != nil {
		t.Fatalf("Неожиданная ошибка слияния: %v", err)
	}

	expected := []byte{
		0xF8 | 0x03, // TOC исходной конфигурации с кодом 3
		0x80 | 2,    // VBR, 2 кадра
		0x02,        // длина первого кадра
		0x01, 0x02,  // кадр 1
		0xAA, 0xBB, 0xCC, // кадр 2
	}
	if !bytes.Equal(packet, expected) {
		t.Errorf("Неверная структура пакета:\nполучено  %v\nожидалось %v", packet, expected)
	}
}

// TestMergeFramesLongLength проверяет двухбайтовое кодирование длин кадров
// от 252 байт (длина = первый_байт + 4*второй_байт)
func TestMergeFramesLongLength(t *testing.T) {
	tests := []struct {
		name     string
		dataLen  int
		expected []byte
	}{
		{"Граница 252", 252, []byte{252, 0}},
		{"Кратная четырем", 300, []byte{252, 12}},
		{"С остатком", 255, []byte{255, 0}},
		{"Максимальная 1275", 1275, []byte{255, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := make([]byte, tt.dataLen+1)
			first[0] = 0xF8
			second := []byte{0xF8, 0x00}

			packet, err := MergeFrames([][]byte{first, second})
			if err != nil {
				t.Fatalf("Неожиданная ошибка: %v", err)
			}

			// Байты длины следуют сразу за TOC и байтом числа кадров
			lengthBytes := packet[2 : 2+len(tt.expected)]
			if !bytes.Equal(lengthBytes, tt.expected) {
				t.Errorf("Кодирование длины %d: получено %v, ожидалось %v",
					tt.dataLen, lengthBytes, tt.expected)
			}

			// Проверяем декодирование длины по формуле RFC
			decoded := int(tt.expected[0])
			if tt.expected[0] >= 252 {
				decoded += 4 * int(tt.expected[1])
			}
			if decoded != tt.dataLen {
				t.Errorf("Длина декодируется как %d, ожидалось %d", decoded, tt.dataLen)
			}
		})
	}
}

// TestMergeFramesErrors проверяет отказы репакетизатора
func TestMergeFramesErrors(t *testing.T) {
	valid := []byte{0xF8, 0x01}

	manyFrames := make([][]byte, maxFramesPerPacket+1)
	for i := range manyFrames {
		manyFrames[i] = valid
	}

	tests := []struct {
		name      string
		frames    [][]byte
		expectErr error
	}{
		{"Нет кадров", nil, ErrNoFrames},
		{"Пустой кадр", [][]byte{valid, {}}, ErrNoFrames},
		{"Пустой первый кадр", [][]byte{{}, valid}, ErrNoFrames},
		{"Слишком много кадров", manyFrames, ErrTooManyFrames},
		{"Разная конфигурация", [][]byte{{0xF8, 0x01}, {0x78, 0x01}}, ErrFrameConfigMismatch},
		{"Многокадровый вход", [][]byte{{0xF8, 0x01}, {0xF8 | 0x03, 0x01}}, ErrFrameConfigMismatch},
		{"Кадр длиннее 1275", [][]byte{valid, append([]byte{0xF8}, make([]byte, 1276)...)}, ErrFrameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MergeFrames(tt.frames)
			if !errors.Is(err, tt.expectErr) {
				t.Errorf("Ожидалась ошибка %v, получено %v", tt.expectErr, err)
			}
		})
	}
}

// TestMergeFramesDurationCeiling проверяет потолок суммарной длительности
// пакета: слияние не может нести больше 120 мс аудио (RFC 6716, R5),
// сколько бы кадров ни укладывалось в лимит их числа
func TestMergeFramesDurationCeiling(t *testing.T) {
	repeat := func(frame []byte, n int) [][]byte {
		frames := make([][]byte, n)
		for i := range frames {
			frames[i] = frame
		}
		return frames
	}

	celt20 := []byte{0xF8, 0x01} // CELT 20 мс
	silk60 := []byte{0x18, 0x01} // SILK 60 мс
	celt25 := []byte{0x80, 0x01} // CELT 2.5 мс

	tests := []struct {
		name      string
		frames    [][]byte
		expectErr error
	}{
		{"Ровно 120 мс кадрами 20 мс", repeat(celt20, 6), nil},
		{"140 мс кадрами 20 мс", repeat(celt20, 7), ErrTooManyFrames},
		{"Ровно 120 мс кадрами 60 мс", repeat(silk60, 2), nil},
		{"180 мс кадрами 60 мс", repeat(silk60, 3), ErrTooManyFrames},
		{"48 кадров по 2.5 мс", repeat(celt25, maxFramesPerPacket), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := MergeFrames(tt.frames)
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("Ожидалась ошибка %v, получено %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Неожиданная ошибка слияния: %v", err)
			}
			if got := int(packet[1] & 0x3F); got != len(tt.frames) {
				t.Errorf("Число кадров в пакете %d, ожидалось %d", got, len(tt.frames))
			}
		})
	}
}

// TestMergeSingleFrame проверяет что один кадр возвращается независимой копией
func TestMergeSingleFrame(t *testing.T) {
	frame := []byte{0xF8, 0x11, 0x22}

	packet, err := MergeFrames([][]byte{frame})
	if err != nil {
		t.Fatalf("Неожиданная ошибка: %v", err)
	}
	if !bytes.Equal(packet, frame) {
		t.Fatalf("Один кадр должен вернуться без изменений: %v", packet)
	}

	// Мутация результата не должна затрагивать исходный кадр
	packet[1] = 0xFF
	if frame[1] != 0x11 {
		t.Error("Результат слияния разделяет память с исходным кадром")
	}
}
