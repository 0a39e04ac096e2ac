package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/domain"
)

func pgnResult(f Final) string {
	switch f.Result {
	case domain.ResultDraw:
		return "1/2-1/2"
	case domain.ResultCheckmate, domain.ResultResign:
		if f.WinnerID != "" && f.WinnerID == f.WhiteID {
			return "1-0"
		}
		if f.WinnerID != "" && f.WinnerID == f.BlackID {
			return "0-1"
		}
	}
	return "*"
}

// BuildPGN renders the final game from its SAN list.
func BuildPGN(f Final) string {
	var b strings.Builder
	date := f.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := pgnResult(f)
	b.WriteString("[Event \"Cheese Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(string(f.Kind))))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(nameOr(f.WhiteName, f.WhiteID))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(nameOr(f.BlackName, f.BlackID))))
	if strings.TrimSpace(f.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(f.Method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(f.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(f.MovesSAN[i])))
		if i+1 < len(f.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(f.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func nameOr(name, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return id
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
