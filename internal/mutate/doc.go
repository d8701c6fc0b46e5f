// Package mutate runs corruption sweeps against a scene.Loader.
//
// Назначение:
//   - описать одну попытку загрузки (Candidate) и классифицировать её исход (Trial);
//   - прогнать четыре серии: лимит временных аллокаций, лимит результирующих
//     аллокаций, усечение файла, замена одного байта;
//   - передать каждую ожидаемую ошибку загрузки в Recorder.
//
// Не делает:
//   - не хранит и не сливает регрессионные проверки (см. internal/regress);
//   - не читает файлы и не знает про тестовые случаи (см. internal/harness).
//
// Зависимости: internal/scene, internal/trace, golang.org/x/sync/errgroup.
package mutate
