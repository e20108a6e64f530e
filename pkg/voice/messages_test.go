package voice

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
)

// === ТЕСТЫ СООБЩЕНИЙ УПРАВЛЯЮЩЕГО КАНАЛА ===

// TestMarshalIdentify проверяет точную форму конверта идентификации
func TestMarshalIdentify(t *testing.T) {
	frame, err := marshalMessage(OpcodeIdentify, identifyPayload{
		ServerID:  "165553335558275073",
		UserID:    "155037590859284481",
		SessionID: "session-abc",
		Token:     "token-xyz",
	})
	if err != nil {
		t.Fatalf("сериализация не удалась: %v", err)
	}

	expected := `{"op":0,"d":{"server_id":"165553335558275073","user_id":"155037590859284481","session_id":"session-abc","token":"token-xyz"}}`
	if string(frame) != expected {
		t.Errorf("конверт:\nожидалось %s\nполучено  %s", expected, frame)
	}
}

// TestMarshalHeartbeat проверяет, что нагрузка пульса — голое число
func TestMarshalHeartbeat(t *testing.T) {
	frame, err := marshalMessage(OpcodeHeartbeat, int64(1693241870123))
	if err != nil {
		t.Fatalf("сериализация не удалась: %v", err)
	}

	expected := `{"op":3,"d":1693241870123}`
	if string(frame) != expected {
		t.Errorf("пульс:\nожидалось %s\nполучено  %s", expected, frame)
	}
}

// TestMarshalSelectProtocol проверяет форму выбора протокола
func TestMarshalSelectProtocol(t *testing.T) {
	frame, err := marshalMessage(OpcodeSelectProtocol, selectProtocolPayload{
		Protocol: "udp",
		Data: selectProtocolData{
			Address: "203.0.113.5",
			Port:    41234,
			Mode:    EncryptionModeXSalsa20,
		},
	})
	if err != nil {
		t.Fatalf("сериализация не удалась: %v", err)
	}

	expected := `{"op":1,"d":{"protocol":"udp","data":{"address":"203.0.113.5","port":41234,"mode":"xsalsa20_poly1305"}}}`
	if string(frame) != expected {
		t.Errorf("выбор протокола:\nожидалось %s\nполучено  %s", expected, frame)
	}
}

// TestMarshalSpeaking проверяет форму уведомления о речи
func TestMarshalSpeaking(t *testing.T) {
	frame, err := marshalMessage(OpcodeSpeaking, speakingPayload{
		Speaking: true,
		Delay:    0,
		SSRC:     524291,
	})
	if err != nil {
		t.Fatalf("сериализация не удалась: %v", err)
	}

	expected := `{"op":5,"d":{"speaking":true,"delay":0,"ssrc":524291}}`
	if string(frame) != expected {
		t.Errorf("уведомление о речи:\nожидалось %s\nполучено  %s", expected, frame)
	}
}

// TestParseEnvelope проверяет разбор входящего конверта
func TestParseEnvelope(t *testing.T) {
	op, raw, err := parseEnvelope([]byte(`{"op":8,"d":{"heartbeat_interval":41250}}`))
	if err != nil {
		t.Fatalf("разбор конверта не удался: %v", err)
	}
	if op != OpcodeHello {
		t.Errorf("ожидался opcode Hello, получен %s", op)
	}
	if string(raw) != `{"heartbeat_interval":41250}` {
		t.Errorf("нагрузка искажена: %s", raw)
	}
}

// TestParseEnvelopeMalformed проверяет отклонение некорректных кадров
func TestParseEnvelopeMalformed(t *testing.T) {
	malformed := [][]byte{
		[]byte(`не json`),
		[]byte(`{"op":`),
		[]byte(``),
	}
	for _, frame := range malformed {
		if _, _, err := parseEnvelope(frame); err == nil {
			t.Errorf("кадр %q разобран без ошибки", frame)
		}
	}
}

// TestDecodeHello проверяет декодирование интервала пульса (JSON число
// приходит как float64 и приводится к полю структуры)
func TestDecodeHello(t *testing.T) {
	var payload helloPayload
	if err := decodePayload(json.RawMessage(`{"heartbeat_interval":41250.5}`), &payload); err != nil {
		t.Fatalf("декодирование не удалось: %v", err)
	}
	if payload.HeartbeatInterval != 41250.5 {
		t.Errorf("интервал: %v", payload.HeartbeatInterval)
	}
}

// TestDecodeReady проверяет декодирование параметров UDP с приведением
// числовых типов
func TestDecodeReady(t *testing.T) {
	raw := json.RawMessage(`{
		"ssrc": 524291,
		"ip": "203.0.113.5",
		"port": 1234,
		"modes": ["plain", "xsalsa20_poly1305"]
	}`)

	var payload readyPayload
	if err := decodePayload(raw, &payload); err != nil {
		t.Fatalf("декодирование не удалось: %v", err)
	}

	if payload.SSRC != 524291 {
		t.Errorf("ssrc: %d", payload.SSRC)
	}
	if payload.IP != "203.0.113.5" {
		t.Errorf("ip: %q", payload.IP)
	}
	if payload.Port != 1234 {
		t.Errorf("port: %d", payload.Port)
	}
	if len(payload.Modes) != 2 || payload.Modes[1] != EncryptionModeXSalsa20 {
		t.Errorf("modes: %v", payload.Modes)
	}
}

// TestDecodeSessionDescription проверяет декодирование сеансового ключа:
// сервер шлет ключ массивом чисел, декодер приводит его к байтовому срезу
func TestDecodeSessionDescription(t *testing.T) {
	key := make([]byte, SecretKeySize)
	for i := range key {
		key[i] = byte(i)
	}

	numbers := make([]string, len(key))
	for i, b := range key {
		numbers[i] = strconv.Itoa(int(b))
	}
	raw := json.RawMessage(`{"mode":"xsalsa20_poly1305","secret_key":[` +
		strings.Join(numbers, ",") + `]}`)

	var payload sessionDescriptionPayload
	if err := decodePayload(raw, &payload); err != nil {
		t.Fatalf("декодирование не удалось: %v", err)
	}
	if payload.Mode != EncryptionModeXSalsa20 {
		t.Errorf("mode: %q", payload.Mode)
	}
	if !bytes.Equal(payload.SecretKey, key) {
		t.Errorf("ключ искажен: %v", payload.SecretKey)
	}
}

// TestDecodeNonce проверяет разбор голого числа из подтверждения пульса
func TestDecodeNonce(t *testing.T) {
	nonce, err := decodeNonce(json.RawMessage(`1693241870123`))
	if err != nil {
		t.Fatalf("разбор nonce не удался: %v", err)
	}
	if nonce != 1693241870123 {
		t.Errorf("nonce: %d", nonce)
	}

	if _, err := decodeNonce(json.RawMessage(`{"x":1}`)); err == nil {
		t.Error("объект принят вместо числа")
	}
}

// TestDecodeSpeaking проверяет декодирование входящего уведомления о речи
func TestDecodeSpeaking(t *testing.T) {
	var payload speakingPayload
	raw := json.RawMessage(`{"speaking":true,"delay":0,"ssrc":99}`)
	if err := decodePayload(raw, &payload); err != nil {
		t.Fatalf("декодирование не удалось: %v", err)
	}
	if !payload.Speaking || payload.SSRC != 99 {
		t.Errorf("нагрузка: %+v", payload)
	}
}

// TestOpcodeString проверяет строковые представления opcode
func TestOpcodeString(t *testing.T) {
	tests := map[Opcode]string{
		OpcodeIdentify:           "Identify",
		OpcodeSelectProtocol:     "SelectProtocol",
		OpcodeReady:              "Ready",
		OpcodeHeartbeat:          "Heartbeat",
		OpcodeSessionDescription: "SessionDescription",
		OpcodeSpeaking:           "Speaking",
		OpcodeHeartbeatAck:       "HeartbeatAck",
		OpcodeResume:             "Resume",
		OpcodeHello:              "Hello",
		OpcodeResumed:            "Resumed",
		Opcode(42):               "Opcode(42)",
	}
	for op, want := range tests {
		if got := op.String(); got != want {
			t.Errorf("opcode %d: ожидалось %q, получено %q", int(op), want, got)
		}
	}
}
