// Package report collects per-case failures and renders run output.
//
// Назначение:
//   - Bag: ограниченный список ошибок одного тестового случая;
//   - Log: буферизованный подробный журнал, выводится после вердикта;
//   - Printer: строки PASS/FAIL/FUZZ и итоговая сводка.
//
// Зависимости: internal/scene, github.com/fatih/color.
package report
