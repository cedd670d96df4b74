package xsd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Duration is an xs:duration value. Seconds keep their full decimal
// precision.
type Duration struct {
	Negative bool
	Years    int
	Months   int
	Days     int
	Hours    int
	Minutes  int
	Seconds  decimal.Decimal
}

// ParseDuration parses the lexical form PnYnMnDTnHnMnS.
func ParseDuration(s string) (Duration, error) {
	if err := validateDuration(s); err != nil {
		return Duration{}, err
	}
	m := durationPattern.FindStringSubmatch(s)
	var d Duration
	d.Negative = m[1] == "-"
	ints := []*int{&d.Years, &d.Months, &d.Days, &d.Hours, &d.Minutes}
	for i, target := range ints {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+2])
		if err != nil {
			return Duration{}, fmt.Errorf("invalid duration value: %s", s)
		}
		*target = n
	}
	if m[7] != "" {
		sec, err := decimal.NewFromString(m[7])
		if err != nil {
			return Duration{}, fmt.Errorf("invalid duration value: %s", s)
		}
		d.Seconds = sec
	}
	return d, nil
}

// DurationOf converts a time.Duration into hours, minutes and seconds.
func DurationOf(td time.Duration) Duration {
	var d Duration
	if td < 0 {
		d.Negative = true
		td = -td
	}
	d.Hours = int(td / time.Hour)
	td -= time.Duration(d.Hours) * time.Hour
	d.Minutes = int(td / time.Minute)
	td -= time.Duration(d.Minutes) * time.Minute
	d.Seconds = decimal.New(int64(td), -9)
	return d
}

func (d Duration) String() string {
	var b strings.Builder
	if d.Negative {
		b.WriteByte('-')
	}
	b.WriteByte('P')
	if d.Years != 0 {
		fmt.Fprintf(&b, "%dY", d.Years)
	}
	if d.Months != 0 {
		fmt.Fprintf(&b, "%dM", d.Months)
	}
	if d.Days != 0 {
		fmt.Fprintf(&b, "%dD", d.Days)
	}
	if d.Hours != 0 || d.Minutes != 0 || !d.Seconds.IsZero() {
		b.WriteByte('T')
		if d.Hours != 0 {
			fmt.Fprintf(&b, "%dH", d.Hours)
		}
		if d.Minutes != 0 {
			fmt.Fprintf(&b, "%dM", d.Minutes)
		}
		if !d.Seconds.IsZero() {
			fmt.Fprintf(&b, "%sS", d.Seconds.String())
		}
	}
	if b.Len() == 1 || (d.Negative && b.Len() == 2) {
		b.WriteString("T0S")
	}
	return b.String()
}

// Equal compares durations by their month and second totals.
func (d Duration) Equal(o Duration) bool {
	c, ok := d.compare(o)
	return ok && c == 0
}

// compare orders durations when the order does not depend on the length of
// the months involved.
func (d Duration) compare(o Duration) (int, bool) {
	dm, ds := d.totals()
	om, os := o.totals()
	mc := compareInts(dm, om)
	sc := ds.Cmp(os)
	switch {
	case mc == 0:
		return sc, true
	case sc == 0 || sc == mc:
		return mc, true
	}
	return 0, false
}

func (d Duration) totals() (int, decimal.Decimal) {
	months := d.Years*12 + d.Months
	secs := decimal.NewFromInt(int64(d.Days)*86400 + int64(d.Hours)*3600 + int64(d.Minutes)*60).Add(d.Seconds)
	if d.Negative {
		return -months, secs.Neg()
	}
	return months, secs
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
