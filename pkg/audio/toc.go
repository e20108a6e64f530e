package audio

// Разбор TOC байта opus пакета (RFC 6716, раздел 3.1).
//
// Длительность пакета нужна тракту отправки для продвижения временной
// метки: метка растет на число сэмплов, представленных пакетом.

// samplesPerFrame возвращает число сэмплов одного кадра пакета при 48 кГц
func samplesPerFrame(toc byte) int {
	switch {
	case toc&0x80 != 0:
		// CELT: 2.5, 5, 10 или 20 мс
		return (SampleRate << ((toc >> 3) & 0x3)) / 400
	case toc&0x60 == 0x60:
		// Гибридный режим: 10 или 20 мс
		if toc&0x08 != 0 {
			return SampleRate / 50
		}
		return SampleRate / 100
	default:
		// SILK: 10, 20, 40 или 60 мс
		size := (toc >> 3) & 0x3
		if size == 3 {
			return SampleRate * 60 / 1000
		}
		return (SampleRate << size) / 100
	}
}

// frameCount возвращает число кадров в пакете по коду кадрирования
func frameCount(packet []byte) (int, error) {
	switch packet[0] & 0x03 {
	case 0:
		return 1, nil
	case 1, 2:
		return 2, nil
	default:
		if len(packet) < 2 {
			return 0, ErrNoFrames
		}
		count := int(packet[1] & 0x3F)
		if count == 0 || count > maxFramesPerPacket {
			return 0, ErrTooManyFrames
		}
		return count, nil
	}
}

// PacketSamples возвращает число сэмплов на канал, представленных opus
// пакетом, при частоте 48 кГц. Используется для продвижения временной
// метки при отправке готовых opus пакетов в обход кодировщика.
func PacketSamples(packet []byte) (int, error) {
	if len(packet) == 0 {
		return 0, ErrNoFrames
	}

	frames, err := frameCount(packet)
	if err != nil {
		return 0, err
	}

	samples := frames * samplesPerFrame(packet[0])
	// Потолок тракта отправки: один пакет несет не больше 60 мс аудио
	if samples > MaxFrameSamples {
		return 0, ErrFrameTooLarge
	}
	return samples, nil
}
