package glucose

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Treatment is a logged carbohydrate intake and/or insulin dose.
// Carbs and Insulin are present when Valid is set.
type Treatment struct {
	Timestamp int64 // epoch milliseconds
	Carbs     decimal.NullDecimal
	Insulin   decimal.NullDecimal
}

// NewTreatment validates amounts and builds a Treatment.
func NewTreatment(ts int64, carbs, insulin decimal.NullDecimal) (Treatment, error) {
	if carbs.Valid && carbs.Decimal.IsNegative() {
		return Treatment{}, fmt.Errorf("treatment %d: negative carbs %s", ts, carbs.Decimal)
	}
	if insulin.Valid && insulin.Decimal.IsNegative() {
		return Treatment{}, fmt.Errorf("treatment %d: negative insulin %s", ts, insulin.Decimal)
	}
	return Treatment{Timestamp: ts, Carbs: carbs, Insulin: insulin}, nil
}

// CarbTreatment is a shorthand for a carbs-only treatment.
func CarbTreatment(ts int64, grams float64) Treatment {
	return Treatment{Timestamp: ts, Carbs: decimal.NewNullDecimal(decimal.NewFromFloat(grams))}
}

// InsulinTreatment is a shorthand for an insulin-only treatment.
func InsulinTreatment(ts int64, units float64) Treatment {
	return Treatment{Timestamp: ts, Insulin: decimal.NewNullDecimal(decimal.NewFromFloat(units))}
}

// HasCarbs reports whether the event recorded a carbohydrate intake.
func (t Treatment) HasCarbs() bool { return t.Carbs.Valid }

// HasInsulin reports whether the event recorded an insulin dose.
func (t Treatment) HasInsulin() bool { return t.Insulin.Valid }

// Time returns the treatment timestamp as a time.Time.
func (t Treatment) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// AgeSeconds is the whole number of seconds between the treatment and now, floored.
func (t Treatment) AgeSeconds(now time.Time) int64 {
	return ageSeconds(t.Timestamp, now)
}

func (t Treatment) String() string {
	carbs, insulin := "none", "none"
	if t.Carbs.Valid {
		carbs = t.Carbs.Decimal.String()
	}
	if t.Insulin.Valid {
		insulin = t.Insulin.Decimal.String()
	}
	return fmt.Sprintf("Treatment(%d, %s, %s)", t.Timestamp, carbs, insulin)
}
