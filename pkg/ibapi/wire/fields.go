package wire

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
)

// Canonical text layouts for date and timestamp fields.
const (
	DateLayout = "20060102"
	TimeLayout = "20060102-15:04:05"
)

// Values the gateway uses in place of an empty field.
const (
	unsetInt     = "2147483647"
	unsetLong    = "9223372036854775807"
	unsetDouble  = "1.7976931348623157E308"
	unsetDouble2 = "1.7976931348623157e+308"
)

var canonicalDecimal = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// Absent reports whether a raw field carries no value.
func Absent(s string) bool {
	switch s {
	case "", unsetInt, unsetLong, unsetDouble, unsetDouble2:
		return true
	}
	return false
}

/* --- Encoder --- */

// Encoder accumulates the ordered fields of one outgoing message.
// The first failure is kept and reported by Err; later calls are no-ops.
type Encoder struct {
	fields []string
	err    error
}

// NewEncoder starts a message with its code.
func NewEncoder(code int) *Encoder {
	e := &Encoder{fields: make([]string, 0, 16)}
	e.Int(code)
	return e
}

func (e *Encoder) add(s string) {
	if e.err != nil {
		return
	}
	if i := strings.IndexByte(s, Delimiter); i >= 0 {
		e.err = iberr.Invalid(len(e.fields), "", s, fmt.Errorf("delimiter at byte %d", i))
		return
	}
	e.fields = append(e.fields, s)
}

func (e *Encoder) Empty()          { e.add("") }
func (e *Encoder) String(s string) { e.add(s) }

// Raw appends pre-formatted fields verbatim.
func (e *Encoder) Raw(fields ...string) {
	for _, f := range fields {
		e.add(f)
	}
}
func (e *Encoder) Int(v int)       { e.add(strconv.Itoa(v)) }
func (e *Encoder) Int64(v int64)   { e.add(strconv.FormatInt(v, 10)) }

// OptInt encodes nil as an empty field.
func (e *Encoder) OptInt(v *int) {
	if v == nil {
		e.Empty()
		return
	}
	e.Int(*v)
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.add("1")
		return
	}
	e.add("0")
}

func (e *Encoder) Decimal(d decimal.Decimal) { e.add(d.String()) }

// OptDecimal encodes an invalid NullDecimal as an empty field.
func (e *Encoder) OptDecimal(d decimal.NullDecimal) {
	if !d.Valid {
		e.Empty()
		return
	}
	e.Decimal(d.Decimal)
}

func (e *Encoder) Float(f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		if e.err == nil {
			e.err = iberr.Invalid(len(e.fields), "", strconv.FormatFloat(f, 'g', -1, 64), nil)
		}
		return
	}
	e.add(strconv.FormatFloat(f, 'f', -1, 64))
}

// OptFloat encodes nil as an empty field.
func (e *Encoder) OptFloat(f *float64) {
	if f == nil {
		e.Empty()
		return
	}
	e.Float(*f)
}

// Date encodes the zero time as an empty field.
func (e *Encoder) Date(t time.Time) {
	if t.IsZero() {
		e.Empty()
		return
	}
	e.add(t.Format(DateLayout))
}

// Time encodes in UTC; the zero time is an empty field.
func (e *Encoder) Time(t time.Time) {
	if t.IsZero() {
		e.Empty()
		return
	}
	e.add(t.UTC().Format(TimeLayout))
}

// Fields returns the accumulated field list.
func (e *Encoder) Fields() []string { return e.fields }

func (e *Encoder) Err() error { return e.err }

// Frame returns the encoded frame or the first field error.
func (e *Encoder) Frame() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return EncodeFields(e.fields)
}

/* --- Decoder --- */

// Decoder is a cursor over the fields of one inbound message.
// Like Encoder it keeps the first error; reads after a failure return zero values.
type Decoder struct {
	fields []string
	pos    int
	err    error
}

func NewDecoder(fields []string) *Decoder {
	return &Decoder{fields: fields}
}

func (d *Decoder) Err() error     { return d.err }
func (d *Decoder) Pos() int       { return d.pos }
func (d *Decoder) Remaining() int { return len(d.fields) - d.pos }

func (d *Decoder) next(name string) (string, bool) {
	if d.err != nil {
		return "", false
	}
	if d.pos >= len(d.fields) {
		d.err = iberr.Truncated(d.pos, name)
		return "", false
	}
	s := d.fields[d.pos]
	d.pos++
	return s, true
}

func (d *Decoder) fail(name, raw string, err error) {
	if d.err == nil {
		d.err = iberr.Invalid(d.pos-1, name, raw, err)
	}
}

// Skip consumes n fields regardless of content.
func (d *Decoder) Skip(n int, name string) {
	for i := 0; i < n; i++ {
		d.next(name)
	}
}

func (d *Decoder) String(name string) string {
	s, ok := d.next(name)
	if !ok || Absent(s) {
		return ""
	}
	return s
}

func (d *Decoder) Int(name string) int {
	v := d.OptInt(name)
	if v == nil {
		return 0
	}
	return *v
}

func (d *Decoder) OptInt(name string) *int {
	s, ok := d.next(name)
	if !ok || Absent(s) {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		d.fail(name, s, err)
		return nil
	}
	return &n
}

func (d *Decoder) Int64(name string) int64 {
	s, ok := d.next(name)
	if !ok || Absent(s) {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		d.fail(name, s, err)
		return 0
	}
	return n
}

func (d *Decoder) Bool(name string) bool {
	s, ok := d.next(name)
	if !ok {
		return false
	}
	switch s {
	case "", "0", "false":
		return false
	case "1", "true":
		return true
	}
	d.fail(name, s, fmt.Errorf("not a boolean"))
	return false
}

func (d *Decoder) Float(name string) float64 {
	v := d.OptFloat(name)
	if v == nil {
		return 0
	}
	return *v
}

func (d *Decoder) OptFloat(name string) *float64 {
	s, ok := d.next(name)
	if !ok || Absent(s) {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		d.fail(name, s, err)
		return nil
	}
	return &f
}

// Decimal reads a canonical decimal; absent values are zero.
func (d *Decoder) Decimal(name string) decimal.Decimal {
	return d.OptDecimal(name).Decimal
}

func (d *Decoder) OptDecimal(name string) decimal.NullDecimal {
	s, ok := d.next(name)
	if !ok || Absent(s) {
		return decimal.NullDecimal{}
	}
	if !canonicalDecimal.MatchString(s) {
		d.fail(name, s, fmt.Errorf("not a canonical decimal"))
		return decimal.NullDecimal{}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		d.fail(name, s, err)
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}
}

func (d *Decoder) Date(name string) time.Time {
	return d.parseTime(name, DateLayout)
}

func (d *Decoder) Time(name string) time.Time {
	return d.parseTime(name, TimeLayout)
}

func (d *Decoder) parseTime(name, layout string) time.Time {
	s, ok := d.next(name)
	if !ok || Absent(s) {
		return time.Time{}
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		d.fail(name, s, err)
		return time.Time{}
	}
	return t
}
