// Package engine содержит движок диалоговых flow.
//
// Включает:
//   - merge.go    — сборка шаблона из фрагментов (base → specialty → goal)
//   - runner.go   — state machine: что происходит после события
//   - template.go — локализация текста и интерполяция {variable}
//   - parser.go   — разбор фрагментов (JSON/YAML) и валидация
//   - graph.go    — граф переходов между flows
//
// Все функции движка синхронные и без побочных эффектов: они не пишут
// в хранилище и не меняют переданные значения. Структурные ошибки
// шаблона не приводят к ошибке выполнения — runner сводит их к completed.
package engine
