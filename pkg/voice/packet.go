package voice

import (
	"encoding/binary"

	"github.com/pion/rtp"
)

const (
	// packetHeaderSize — длина заголовка голосового пакета
	packetHeaderSize = 12
	// voicePayloadType — тип полезной нагрузки opus в заголовке
	voicePayloadType = 0x78
	// packetVersion — версия протокола в первом байте заголовка
	packetVersion = 2

	// MinPacketSize — минимальный размер входящего пакета: пакет короче
	// заголовка отбрасывается без логирования
	MinPacketSize = packetHeaderSize
	// MaxPacketSize — верхняя граница размера пакета. Слитые кадры
	// максимального битрейта превышают типичный MTU, такие пакеты
	// уходят с IP фрагментацией.
	MaxPacketSize = 4096
)

// buildPacketHeader собирает 12-байтовый заголовок голосового пакета:
// {0x80, 0x78, seq, timestamp, ssrc} с сетевым порядком байт.
func buildPacketHeader(sequence uint16, timestamp, ssrc uint32) ([]byte, error) {
	header := rtp.Header{
		Version:        packetVersion,
		PayloadType:    voicePayloadType,
		SequenceNumber: sequence,
		Timestamp:      timestamp,
		SSRC:           ssrc,
	}
	buf, err := header.Marshal()
	if err != nil {
		return nil, WrapVoiceError(ErrorCodeInvalidHeader, "",
			"ошибка сборки заголовка пакета", err)
	}
	return buf, nil
}

// parsePacketHeader разбирает заголовок входящего голосового пакета.
//
// Заголовок фиксированной длины: шифротекст всегда начинается со смещения
// 12 независимо от флагов, поэтому переменная длина RTP здесь не действует.
// Расширение заголовка (если флаг установлен) лежит внутри шифротекста и
// отрезается вызывающим после расшифровки.
func parsePacketHeader(packet []byte) (*rtp.Header, error) {
	if len(packet) < packetHeaderSize {
		return nil, NewVoiceError(ErrorCodePacketTooShort, "",
			"пакет короче заголовка").
			WithContext("size", len(packet))
	}

	header := &rtp.Header{
		Version:        packet[0] >> 6,
		Padding:        packet[0]&0x20 != 0,
		Extension:      packet[0]&0x10 != 0,
		Marker:         packet[1]&0x80 != 0,
		PayloadType:    packet[1] & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(packet[2:4]),
		Timestamp:      binary.BigEndian.Uint32(packet[4:8]),
		SSRC:           binary.BigEndian.Uint32(packet[8:12]),
	}
	if header.Version != packetVersion {
		return nil, NewVoiceError(ErrorCodeInvalidHeader, "",
			"неподдерживаемая версия заголовка").
			WithContext("version", header.Version)
	}
	return header, nil
}
