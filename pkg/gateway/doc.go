// Package gateway реализует управляющий канал голосовой сессии поверх
// WebSocket.
//
// Канал доставляет текстовые кадры вида {"op": N, "d": {...}} в обе стороны.
// Пакет не знает семантики сообщений: разбор кадров выполняет подписчик
// через обработчик кадров, а gateway отвечает за подключение, сериализацию
// записи и уведомление о закрытии канала удаленной стороной.
//
// Интерфейс Channel позволяет подменять реализацию в тестах.
package gateway
