package columns

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/opsgrid/pkg/record"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// EmptyMarker is rendered for absent or blank values.
const EmptyMarker = "—"

// Kind selects how a field is rendered.
type Kind int

const (
	KindText Kind = iota
	KindTimestamp
	KindStatus
	KindMoney
	KindCount
	KindObject
)

var fieldKinds = map[string]Kind{
	"creation":     KindTimestamp,
	"lastUpdate":   KindTimestamp,
	"status":       KindStatus,
	"state":        KindStatus,
	"total":        KindMoney,
	"subTotal":     KindMoney,
	"price":        KindMoney,
	"attempts":     KindCount,
	"itemQuantity": KindCount,
	"quantity":     KindCount,
	"discounts":    KindObject,
	"errorDetail":  KindObject,
	"message":      KindObject,
	"marketPlace":  KindObject,
	"omniChannel":  KindObject,
	"taxes":        KindObject,
	"extras":       KindObject,
	"documents":    KindObject,
	"comments":     KindObject,
	"stages":       KindObject,
}

// KindOf returns the rendering kind of field.
func KindOf(field string) Kind {
	if k, ok := fieldKinds[field]; ok {
		return k
	}
	return KindText
}

// StatusLabels maps normalized state keys to display labels.
var StatusLabels = map[string]string{
	"ingresada":  "Ingresada",
	"pendiente":  "Pendiente",
	"procesada":  "Procesada",
	"error":      "Error",
	"en_proceso": "En proceso",
	"descartada": "Descartada",
}

// StatusKey normalizes a state value: lowercased, whitespace runs become "_".
func StatusKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// DateTimeLayout is the rendered timestamp layout (day-month-year).
const DateTimeLayout = "02-01-2006 15:04"

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Formatter renders record fields as display text.
type Formatter struct {
	loc            *time.Location
	printer        *message.Printer
	currencySymbol string
	labels         map[string]string
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithLocation renders timestamps in loc.
func WithLocation(loc *time.Location) FormatterOption {
	return func(f *Formatter) {
		if loc != nil {
			f.loc = loc
		}
	}
}

// WithLocale formats numbers with tag's separators.
func WithLocale(tag language.Tag) FormatterOption {
	return func(f *Formatter) {
		f.printer = message.NewPrinter(tag)
	}
}

// WithStatusLabels replaces the status label table.
func WithStatusLabels(labels map[string]string) FormatterOption {
	return func(f *Formatter) {
		f.labels = labels
	}
}

// NewFormatter creates a formatter for Chilean pesos in es-CL, rendering
// timestamps in UTC unless configured otherwise.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		loc:            time.UTC,
		printer:        message.NewPrinter(language.MustParse("es-CL")),
		currencySymbol: "$",
		labels:         StatusLabels,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format renders field of rec.
func (f *Formatter) Format(field string, rec record.Record) string {
	v, _ := rec.Lookup(field)
	return f.FormatValue(field, v)
}

// FormatValue renders v as the value of field.
func (f *Formatter) FormatValue(field string, v any) string {
	if record.IsEmpty(v) {
		return EmptyMarker
	}

	switch KindOf(field) {
	case KindTimestamp:
		if t, ok := parseTimestamp(v); ok {
			return t.In(f.loc).Format(DateTimeLayout)
		}
	case KindStatus:
		if label, ok := f.labels[StatusKey(record.Text(v))]; ok {
			return label
		}
	case KindMoney:
		if m, ok := v.(map[string]any); ok {
			v = m["amount"]
			if record.IsEmpty(v) {
				return EmptyMarker
			}
		}
		if d, ok := toDecimal(v); ok {
			return f.money(d)
		}
	case KindCount:
		if d, ok := toDecimal(v); ok {
			return d.String()
		}
	}

	return record.Text(v)
}

func (f *Formatter) money(d decimal.Decimal) string {
	d = d.Round(0)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	amount := f.printer.Sprintf("%v", number.Decimal(d.IntPart(), number.MaxFractionDigits(0)))
	return sign + f.currencySymbol + amount
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

func parseTimestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), true
		}
	case json.Number, float64, int64, int:
		if d, ok := toDecimal(val); ok {
			return time.UnixMilli(d.IntPart()), true
		}
	}
	return time.Time{}, false
}
