package voice

import (
	"errors"
	"fmt"
)

// ErrorClass определяет класс ошибки голосового клиента.
// От класса зависит реакция клиента: транспортные ошибки поглощаются
// и пакет отправляется повторно, протокольные логируются и пропускаются,
// сессионные приводят к завершению сессии, ресурсные фатальны.
type ErrorClass int

const (
	// ErrorClassTransport — временные сбои отправки/приема UDP.
	// Поглощается: пакет возвращается в начало буфера и уходит при
	// следующем событии готовности.
	ErrorClassTransport ErrorClass = iota + 1
	// ErrorClassProtocol — некорректные данные от удаленной стороны
	// (неразбираемый payload, неожиданный opcode, не прошедшая
	// расшифровка). Логируется и игнорируется.
	ErrorClassProtocol
	// ErrorClassSession — ошибки рукопожатия и жизненного цикла сессии.
	// Приводят к вызову Error(code) и завершению сессии.
	ErrorClassSession
	// ErrorClassResource — невозможность создать сокет/кодек/клиент.
	// Фатальны, автоматическое восстановление не выполняется.
	ErrorClassResource
)

// String возвращает строковое представление класса ошибки
func (c ErrorClass) String() string {
	switch c {
	case ErrorClassTransport:
		return "Transport"
	case ErrorClassProtocol:
		return "Protocol"
	case ErrorClassSession:
		return "Session"
	case ErrorClassResource:
		return "Resource"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// VoiceErrorCode определяет типизированные коды ошибок голосового клиента.
// Коды сгруппированы по классам: 2000-2099 транспорт, 2100-2199 протокол,
// 2200-2299 сессия, 2300-2399 ресурсы.
type VoiceErrorCode int

const (
	// Транспортные ошибки
	ErrorCodeSendFailed VoiceErrorCode = iota + 2000
	ErrorCodeReceiveFailed
	ErrorCodeTransportClosed
	ErrorCodePacketTooShort
	ErrorCodePacketTooLarge
)

const (
	// Протокольные ошибки
	ErrorCodeMalformedPayload VoiceErrorCode = iota + 2100
	ErrorCodeUnexpectedOpcode
	ErrorCodeDecryptFailed
	ErrorCodeInvalidHeader
)

const (
	// Ошибки сессии
	ErrorCodeHandshakeTimeout VoiceErrorCode = iota + 2200
	ErrorCodeDiscoveryFailed
	ErrorCodeModeUnsupported
	ErrorCodeNoSecretKey
	ErrorCodeInvalidTransition
	ErrorCodeSessionClosed
	ErrorCodeRemoteTerminated
	ErrorCodeSignalingFailed
)

const (
	// Ресурсные ошибки
	ErrorCodeSocketCreateFailed VoiceErrorCode = iota + 2300
	ErrorCodeCodecInitFailed
	ErrorCodeInvalidConfig
	ErrorCodeChannelConnectFailed
)

// String возвращает строковое представление кода ошибки
func (code VoiceErrorCode) String() string {
	switch code {
	case ErrorCodeSendFailed:
		return "SendFailed"
	case ErrorCodeReceiveFailed:
		return "ReceiveFailed"
	case ErrorCodeTransportClosed:
		return "TransportClosed"
	case ErrorCodePacketTooShort:
		return "PacketTooShort"
	case ErrorCodePacketTooLarge:
		return "PacketTooLarge"
	case ErrorCodeMalformedPayload:
		return "MalformedPayload"
	case ErrorCodeUnexpectedOpcode:
		return "UnexpectedOpcode"
	case ErrorCodeDecryptFailed:
		return "DecryptFailed"
	case ErrorCodeInvalidHeader:
		return "InvalidHeader"
	case ErrorCodeHandshakeTimeout:
		return "HandshakeTimeout"
	case ErrorCodeDiscoveryFailed:
		return "DiscoveryFailed"
	case ErrorCodeModeUnsupported:
		return "ModeUnsupported"
	case ErrorCodeNoSecretKey:
		return "NoSecretKey"
	case ErrorCodeInvalidTransition:
		return "InvalidTransition"
	case ErrorCodeSessionClosed:
		return "SessionClosed"
	case ErrorCodeRemoteTerminated:
		return "RemoteTerminated"
	case ErrorCodeSignalingFailed:
		return "SignalingFailed"
	case ErrorCodeSocketCreateFailed:
		return "SocketCreateFailed"
	case ErrorCodeCodecInitFailed:
		return "CodecInitFailed"
	case ErrorCodeInvalidConfig:
		return "InvalidConfig"
	case ErrorCodeChannelConnectFailed:
		return "ChannelConnectFailed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// Class возвращает класс ошибки по диапазону кода.
func (code VoiceErrorCode) Class() ErrorClass {
	switch {
	case code >= 2000 && code < 2100:
		return ErrorClassTransport
	case code >= 2100 && code < 2200:
		return ErrorClassProtocol
	case code >= 2200 && code < 2300:
		return ErrorClassSession
	case code >= 2300 && code < 2400:
		return ErrorClassResource
	default:
		return ErrorClass(0)
	}
}

// VoiceError базовая структура ошибок голосового клиента.
// Содержит типизированный код, идентификатор сессии для сопоставления
// с логами и контекстную информацию (параметры, состояние клиента).
type VoiceError struct {
	Code      VoiceErrorCode
	Message   string
	SessionID string
	Context   map[string]interface{}
	Wrapped   error
}

// Error реализует интерфейс error, возвращая форматированное сообщение об ошибке.
func (e *VoiceError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("[голос:%d] сессия %s: %s", e.Code, e.SessionID, e.Message)
	}
	return fmt.Sprintf("[голос:%d] %s", e.Code, e.Message)
}

// Unwrap возвращает обернутую ошибку, поддерживая errors.Unwrap.
func (e *VoiceError) Unwrap() error {
	return e.Wrapped
}

// Is поддерживает errors.Is, позволяя сравнивать ошибки по коду.
func (e *VoiceError) Is(target error) bool {
	if t, ok := target.(*VoiceError); ok {
		return e.Code == t.Code
	}
	return false
}

// GetContext возвращает значение из контекста ошибки по ключу.
func (e *VoiceError) GetContext(key string) interface{} {
	if e.Context == nil {
		return nil
	}
	return e.Context[key]
}

// WithContext добавляет пару ключ-значение в контекст ошибки и возвращает её же.
func (e *VoiceError) WithContext(key string, value interface{}) *VoiceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewVoiceError создает новую ошибку голосового клиента
func NewVoiceError(code VoiceErrorCode, sessionID, message string) *VoiceError {
	return &VoiceError{
		Code:      code,
		Message:   message,
		SessionID: sessionID,
	}
}

// WrapVoiceError оборачивает существующую ошибку в VoiceError
func WrapVoiceError(code VoiceErrorCode, sessionID, message string, err error) *VoiceError {
	return &VoiceError{
		Code:      code,
		Message:   message,
		SessionID: sessionID,
		Wrapped:   err,
	}
}

// HasErrorCode проверяет, содержит ли цепочка ошибок указанный код
func HasErrorCode(err error, code VoiceErrorCode) bool {
	var voiceErr *VoiceError
	if AsVoiceError(err, &voiceErr) {
		return voiceErr.Code == code
	}
	return false
}

// AsVoiceError пытается привести ошибку к VoiceError через цепочку обертываний
func AsVoiceError(err error, target **VoiceError) bool {
	if err == nil {
		return false
	}
	var voiceErr *VoiceError
	if errors.As(err, &voiceErr) {
		*target = voiceErr
		return true
	}
	return false
}

// ErrorClassOf возвращает класс произвольной ошибки. Ошибки, не являющиеся
// VoiceError, считаются транспортными: это ошибки операционной системы
// из сетевого стека, на которые клиент отвечает повтором.
func ErrorClassOf(err error) ErrorClass {
	var voiceErr *VoiceError
	if AsVoiceError(err, &voiceErr) {
		return voiceErr.Code.Class()
	}
	return ErrorClassTransport
}

// IsFatalError определяет, является ли ошибка фатальной (ресурсный класс).
// После фатальной ошибки клиент не пытается восстановиться.
func IsFatalError(err error) bool {
	return ErrorClassOf(err) == ErrorClassResource
}

// IsRecoverableError определяет, можно ли продолжить работу после ошибки.
// Транспортные и протокольные ошибки не прерывают сессию.
func IsRecoverableError(err error) bool {
	class := ErrorClassOf(err)
	return class == ErrorClassTransport || class == ErrorClassProtocol
}
