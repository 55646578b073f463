package domain

import "time"

// Dia 1970-01-01 no calendário ordinal proleptico (0001-01-01 = 1).
const unixEpochOrdinal = 719163

const secondsPerDay = 24 * 60 * 60

// MaxOrdinal é 9999-12-31, o último dia representável no índice e no fio.
const MaxOrdinal = 3652059

// ValidOrdinal diz se n cabe no calendário de 0001-01-01 a 9999-12-31.
func ValidOrdinal(n int) bool {
	return n >= 1 && n <= MaxOrdinal
}

// Day trunca o instante para meia-noite UTC do mesmo dia civil.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Ordinal converte uma data para o número de dias usado no índice e no fio.
func Ordinal(t time.Time) int {
	secs := Day(t).Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return int(days) + unixEpochOrdinal
}

func FromOrdinal(n int) time.Time {
	return time.Unix(int64(n-unixEpochOrdinal)*secondsPerDay, 0).UTC()
}
