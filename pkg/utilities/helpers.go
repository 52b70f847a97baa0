package utilities

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// NormalizeCode приводит код входа к виду, в котором он хранится
func NormalizeCode(code string) string {
	return strings.TrimSpace(strings.ToUpper(code))
}

// ParseIDList разбирает список Telegram ID через запятую, пропуская мусор
func ParseIDList(s string) []int64 {
	var ids []int64
	for _, idStr := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// SplitList разбивает строку через запятую, отбрасывая пустые элементы
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Truncate обрезает строку до n символов и добавляет "..."
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
