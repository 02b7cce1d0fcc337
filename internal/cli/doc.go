// Package cli реализует инструмент командной строки Botflow.
//
// # Обзор
//
// CLI — клиентская утилита для Botflow API: создаёт сессии, ведёт диалог
// из терминала и запрашивает резюме handoff. Сессионные команды работают
// через HTTP и не импортируют internal/api; template compose собирает
// встроенный каталог локально, без сервера.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Botflow API. Инкапсулирует HTTP-запросы,
// парсинг ответов ({"data": ...} и {"error": ...}) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	created, err := client.CreateSession(cli.CreateSessionRequest{Goal: "faqs"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success) — в stderr.
// Это позволяет использовать pipe: botflow session show ID --json | jq .
//
// ## Commands
//
//   - session: create, show, say, next, handoff, language
//   - catalog
//   - template: compose
//
// Каждая группа создаётся через фабричную функцию (NewSessionCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
