package voice

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Opcode идентифицирует тип сообщения управляющего канала
type Opcode int

const (
	// OpcodeIdentify — идентификация сессии (клиент → сервер)
	OpcodeIdentify Opcode = 0
	// OpcodeSelectProtocol — выбор транспорта и режима шифрования (клиент → сервер)
	OpcodeSelectProtocol Opcode = 1
	// OpcodeReady — параметры UDP: SSRC, адрес, режимы (сервер → клиент)
	OpcodeReady Opcode = 2
	// OpcodeHeartbeat — периодический пульс (клиент → сервер)
	OpcodeHeartbeat Opcode = 3
	// OpcodeSessionDescription — сеансовый ключ (сервер → клиент)
	OpcodeSessionDescription Opcode = 4
	// OpcodeSpeaking — уведомление о начале/окончании речи (двунаправленный)
	OpcodeSpeaking Opcode = 5
	// OpcodeHeartbeatAck — подтверждение пульса (сервер → клиент)
	OpcodeHeartbeatAck Opcode = 6
	// OpcodeResume — возобновление сессии после обрыва (клиент → сервер)
	OpcodeResume Opcode = 7
	// OpcodeHello — интервал пульса (сервер → клиент)
	OpcodeHello Opcode = 8
	// OpcodeResumed — подтверждение возобновления (сервер → клиент)
	OpcodeResumed Opcode = 9
)

// String возвращает строковое представление opcode для логов
func (op Opcode) String() string {
	switch op {
	case OpcodeIdentify:
		return "Identify"
	case OpcodeSelectProtocol:
		return "SelectProtocol"
	case OpcodeReady:
		return "Ready"
	case OpcodeHeartbeat:
		return "Heartbeat"
	case OpcodeSessionDescription:
		return "SessionDescription"
	case OpcodeSpeaking:
		return "Speaking"
	case OpcodeHeartbeatAck:
		return "HeartbeatAck"
	case OpcodeResume:
		return "Resume"
	case OpcodeHello:
		return "Hello"
	case OpcodeResumed:
		return "Resumed"
	default:
		return fmt.Sprintf("Opcode(%d)", int(op))
	}
}

// EncryptionModeXSalsa20 — единственный поддерживаемый режим шифрования:
// XSalsa20-Poly1305 с nonce из заголовка пакета.
const EncryptionModeXSalsa20 = "xsalsa20_poly1305"

// envelope — конверт сообщения управляющего канала: {"op": N, "d": {...}}
type envelope struct {
	Op   Opcode      `json:"op"`
	Data interface{} `json:"d"`
}

// inboundEnvelope — входящий конверт, полезная нагрузка разбирается лениво
type inboundEnvelope struct {
	Op   Opcode          `json:"op"`
	Data json.RawMessage `json:"d"`
}

// identifyPayload — полезная нагрузка Identify (op 0)
type identifyPayload struct {
	ServerID  string `json:"server_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// resumePayload — полезная нагрузка Resume (op 7)
type resumePayload struct {
	ServerID  string `json:"server_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// selectProtocolPayload — полезная нагрузка SelectProtocol (op 1)
type selectProtocolPayload struct {
	Protocol string             `json:"protocol"`
	Data     selectProtocolData `json:"data"`
}

type selectProtocolData struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

// speakingPayload — полезная нагрузка Speaking (op 5)
type speakingPayload struct {
	Speaking bool   `json:"speaking" mapstructure:"speaking"`
	Delay    int    `json:"delay" mapstructure:"delay"`
	SSRC     uint32 `json:"ssrc" mapstructure:"ssrc"`
}

// helloPayload — полезная нагрузка Hello (op 8)
type helloPayload struct {
	// HeartbeatInterval задается сервером в миллисекундах
	HeartbeatInterval float64 `mapstructure:"heartbeat_interval"`
}

// readyPayload — полезная нагрузка Ready (op 2)
type readyPayload struct {
	SSRC  uint32   `mapstructure:"ssrc"`
	IP    string   `mapstructure:"ip"`
	Port  uint16   `mapstructure:"port"`
	Modes []string `mapstructure:"modes"`
}

// sessionDescriptionPayload — полезная нагрузка SessionDescription (op 4)
type sessionDescriptionPayload struct {
	Mode      string `mapstructure:"mode"`
	SecretKey []byte `mapstructure:"secret_key"`
}

// marshalMessage сериализует сообщение управляющего канала в конверт {op, d}.
// Полезная нагрузка heartbeat — голое число (nonce), остальные — объекты.
func marshalMessage(op Opcode, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(envelope{Op: op, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации сообщения %s: %w", op, err)
	}
	return data, nil
}

// parseEnvelope разбирает входящий кадр управляющего канала на opcode и
// сырую полезную нагрузку
func parseEnvelope(frame []byte) (Opcode, json.RawMessage, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return 0, nil, fmt.Errorf("ошибка разбора конверта сообщения: %w", err)
	}
	return env.Op, env.Data, nil
}

// decodeNonce разбирает полезную нагрузку heartbeat ack — голое число
func decodeNonce(raw json.RawMessage) (int64, error) {
	var nonce int64
	if err := json.Unmarshal(raw, &nonce); err != nil {
		return 0, fmt.Errorf("ошибка разбора nonce подтверждения: %w", err)
	}
	return nonce, nil
}

// decodePayload разбирает полезную нагрузку входящего сообщения в типизированную
// структуру. JSON числа приходят как float64, поэтому декодер работает в
// нестрогом режиме и приводит числовые типы к полям структуры.
func decodePayload(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("пустая полезная нагрузка")
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("ошибка разбора полезной нагрузки: %w", err)
	}

	cfg := &mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return fmt.Errorf("ошибка создания декодера: %w", err)
	}
	if err := decoder.Decode(generic); err != nil {
		return fmt.Errorf("ошибка декодирования полезной нагрузки: %w", err)
	}
	return nil
}
