package audio

import "fmt"

// Лимиты Opus пакета согласно RFC 6716 §3.2
const (
	// maxFramesPerPacket максимум кадров в одном пакете
	maxFramesPerPacket = 48

	// maxPacketSamples потолок суммарной длительности пакета:
	// 120 мс аудио при 48 кГц (ограничение R5)
	maxPacketSamples = SampleRate * 120 / 1000

	// maxCompressedFrame максимальная длина одного кадра внутри пакета,
	// кодируемая двухбайтовой длиной
	maxCompressedFrame = 1275

	// tocConfigMask биты конфигурации и стерео-флага TOC байта; кадры с
	// различающимися битами не сливаются в один пакет
	tocConfigMask = 0xFC
)

// MergeFrames сливает несколько однокадровых Opus пакетов одинаковой
// конфигурации в один пакет кода 3 (VBR, без паддинга) согласно RFC 6716.
// Пакет ограничен 48 кадрами и 120 мс аудио суммарно.
// Репакетизация снижает накладные расходы транспорта: заголовок, шифрование
// и затраты на отправку оплачиваются один раз на несколько кадров.
//
// Один кадр возвращается копией без изменений.
func MergeFrames(frames [][]byte) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	if len(frames) > maxFramesPerPacket {
		return nil, fmt.Errorf("%w: %d кадров (максимум %d)", ErrTooManyFrames, len(frames), maxFramesPerPacket)
	}

	if len(frames) == 1 {
		out := make([]byte, len(frames[0]))
		copy(out, frames[0])
		return out, nil
	}

	if len(frames[0]) == 0 {
		return nil, fmt.Errorf("%w: кадр 0 пуст", ErrNoFrames)
	}

	toc := frames[0][0] & tocConfigMask
	// Пакет не может нести больше 120 мс аудио (RFC 6716, ограничение R5)
	if perFrame := samplesPerFrame(frames[0][0]); len(frames)*perFrame > maxPacketSamples {
		return nil, fmt.Errorf("%w: %d кадров по %d сэмплов (потолок пакета %d)",
			ErrTooManyFrames, len(frames), perFrame, maxPacketSamples)
	}

	total := 2 // TOC + байт числа кадров
	for i, f := range frames {
		if len(f) == 0 {
			return nil, fmt.Errorf("%w: кадр %d пуст", ErrNoFrames, i)
		}
		if f[0]&0x03 != 0 {
			return nil, fmt.Errorf("%w: кадр %d не однокадровый пакет (код %d)", ErrFrameConfigMismatch, i, f[0]&0x03)
		}
		if f[0]&tocConfigMask != toc {
			return nil, fmt.Errorf("%w: кадр %d (TOC %#x, ожидается %#x)", ErrFrameConfigMismatch, i, f[0]&tocConfigMask, toc)
		}
		data := len(f) - 1
		if data > maxCompressedFrame {
			return nil, fmt.Errorf("%w: кадр %d длиной %d", ErrFrameTooLong, i, data)
		}
		total += data
		if i < len(frames)-1 {
			// Длина каждого кадра кроме последнего кодируется 1-2 байтами
			if data >= 252 {
				total += 2
			} else {
				total++
			}
		}
	}

	out := make([]byte, 0, total)
	out = append(out, toc|0x03)               // код 3: произвольное число кадров
	out = append(out, 0x80|byte(len(frames))) // VBR=1, padding=0, число кадров
	for _, f := range frames[:len(frames)-1] {
		out = appendFrameLength(out, len(f)-1)
	}
	for _, f := range frames {
		out = append(out, f[1:]...)
	}
	return out, nil
}

// appendFrameLength кодирует длину кадра по схеме RFC 6716 §3.2.1:
// значения до 251 - один байт, от 252 до 1275 - два байта, где
// длина = первый_байт + 4*второй_байт.
func appendFrameLength(out []byte, length int) []byte {
	if length < 252 {
		return append(out, byte(length))
	}
	first := 252 + (length-252)%4
	return append(out, byte(first), byte((length-first)/4))
}
