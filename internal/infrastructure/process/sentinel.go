package process

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
)

// Маркеры старого протокола скриптов: JSON результата печатается в stdout между ними.
const (
	SentinelStart = "###RESULT_JSON_START###"
	SentinelEnd   = "###RESULT_JSON_END###"
)

// ExtractSentinelJSON достаёт JSON-объект между маркерами. Разбор строгий:
// ровно одна пара маркеров в правильном порядке и корректный объект между ними.
// Весь остальной вывод считается диагностикой.
func ExtractSentinelJSON(stdout string) (json.RawMessage, error) {
	if n := strings.Count(stdout, SentinelStart); n != 1 {
		return nil, fmt.Errorf("%w: expected exactly one start marker, found %d", e.ErrMalformedOutput, n)
	}
	if n := strings.Count(stdout, SentinelEnd); n != 1 {
		return nil, fmt.Errorf("%w: expected exactly one end marker, found %d", e.ErrMalformedOutput, n)
	}

	start := strings.Index(stdout, SentinelStart) + len(SentinelStart)
	end := strings.Index(stdout, SentinelEnd)
	if end < start {
		return nil, fmt.Errorf("%w: end marker precedes start marker", e.ErrMalformedOutput)
	}

	payload := strings.TrimSpace(stdout[start:end])
	if !strings.HasPrefix(payload, "{") || !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("%w: payload between markers is not a JSON object", e.ErrMalformedOutput)
	}

	return json.RawMessage(payload), nil
}
