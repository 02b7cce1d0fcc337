// Package api содержит HTTP API сервер Botflow.
//
// Структура:
//   - handler.go          — Handler с DI (сервис диалогов, каталог, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, metrics, CORS)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - session_handler.go  — обработчики для /sessions
//   - template_handler.go — каталог фрагментов и предпросмотр сборки
//
// Клиент чата опрашивает GET /sessions/{id} и отправляет события через
// POST /sessions/{id}/events; сервер сам продвигает курсор сессии.
package api
