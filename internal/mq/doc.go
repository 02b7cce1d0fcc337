// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - session.handoff_ready — сессия дошла до шага handoff, нужно резюме
//
// Exchanges:
//   - botflow.sessions — события сессий
//   - botflow.dlq      — dead letter queue
package mq
