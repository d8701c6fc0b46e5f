// Package fuzztests houses Go fuzz harnesses that complement the sweep engine
// with coverage-guided inputs: the .mfx loader and the .obj oracle parser must
// never panic or hang, and every scene the loader accepts must be well formed.
//
// Назначение: запускать fuzz-обработчики, которые подают произвольные байты
// в meshfmt.Load и oracle.Parse.
//
// Не делает: детерминированные sweep-прогоны, запись регрессионных таблиц,
// выполнение CLI.
//
// Зависимости: internal/meshfmt, internal/oracle, internal/scene,
// internal/testkit.

package fuzztests
