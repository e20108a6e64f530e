package voice

import (
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// SecretKeySize — длина сеансового ключа в байтах
	SecretKeySize = 32
	// nonceSize — длина nonce XSalsa20-Poly1305
	nonceSize = 24
	// cipherOverhead — накладные расходы аутентификации на пакет
	cipherOverhead = secretbox.Overhead
)

// packetCipher шифрует и расшифровывает полезную нагрузку голосовых пакетов
// режимом XSalsa20-Poly1305. Nonce строится из 12 байт заголовка пакета,
// дополненных нулями: заголовок уникален за счет монотонных счетчиков,
// поэтому nonce не повторяется в пределах одного ключа.
type packetCipher struct {
	key [SecretKeySize]byte
}

// newPacketCipher создает шифратор из сеансового ключа
func newPacketCipher(key []byte) (*packetCipher, error) {
	if len(key) != SecretKeySize {
		return nil, NewVoiceError(ErrorCodeMalformedPayload, "",
			"неверная длина сеансового ключа").
			WithContext("expected", SecretKeySize).
			WithContext("actual", len(key))
	}
	c := &packetCipher{}
	copy(c.key[:], key)
	return c, nil
}

// seal шифрует полезную нагрузку и возвращает готовый пакет:
// заголовок + шифротекст с тегом аутентификации.
func (c *packetCipher) seal(header, payload []byte) []byte {
	var nonce [nonceSize]byte
	copy(nonce[:], header)

	packet := make([]byte, len(header), len(header)+len(payload)+cipherOverhead)
	copy(packet, header)
	return secretbox.Seal(packet, payload, &nonce, &c.key)
}

// open расшифровывает входящий пакет и возвращает полезную нагрузку.
// Пакет должен содержать полный заголовок и тег аутентификации.
func (c *packetCipher) open(packet []byte) ([]byte, error) {
	if len(packet) < packetHeaderSize+cipherOverhead {
		return nil, NewVoiceError(ErrorCodePacketTooShort, "",
			"пакет короче заголовка с тегом аутентификации").
			WithContext("size", len(packet))
	}

	var nonce [nonceSize]byte
	copy(nonce[:], packet[:packetHeaderSize])

	payload, ok := secretbox.Open(nil, packet[packetHeaderSize:], &nonce, &c.key)
	if !ok {
		return nil, NewVoiceError(ErrorCodeDecryptFailed, "",
			"не удалось расшифровать пакет")
	}
	return payload, nil
}
