package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NumberGenerator produces human-facing order numbers. Uniqueness is
// enforced by the database; callers retry with a fresh number on collision.
type NumberGenerator interface {
	Next(now time.Time) string
}

type NumberGeneratorFunc func(now time.Time) string

func (f NumberGeneratorFunc) Next(now time.Time) string { return f(now) }

// RandomNumbers yields numbers like ORD-20260131-9F2C41AB.
var RandomNumbers NumberGenerator = NumberGeneratorFunc(func(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return "ORD-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(suffix)
})
