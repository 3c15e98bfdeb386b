// Package window реализует помесячное окно учёта использования.
//
// Счётчик генераций ведётся в рамках календарного месяца: ключ окна — строка
// вида "YYYY-MM". Сброс счётчика не требует планировщика: при первом запросе
// в новом месяце ключ окна перестаёт совпадать с сохранённым, и накопленное
// значение считается равным нулю.
package window

import "time"

// Layout формат ключа окна: год и месяц.
const Layout = "2006-01"

// Key возвращает ключ окна для момента времени t.
// Ключ всегда вычисляется в UTC, чтобы границы месяца не зависели
// от часового пояса узла.
func Key(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Same сообщает, относятся ли два ключа к одному окну.
func Same(a, b string) bool {
	return a != "" && a == b
}
