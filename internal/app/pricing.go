package app

import (
	"math"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

// The display duration divides elapsed days by the mean Gregorian month.
// It is a coarser figure than the billable one and the two can disagree;
// both are surfaced so the discrepancy stays visible.
const meanMonthDays = 30.44

var one = decimal.NewFromInt(1)

func rentDecimal(monthlyRent int64) decimal.Decimal { return decimal.NewFromInt(monthlyRent) }

// Quote prices a [checkIn, checkOut) stay against a monthly rent. It is
// pure and it never fails: an invalid or inverted range falls back to
// exactly one month, so the wizard always has a price to show.
func Quote(monthlyRent decimal.Decimal, checkIn, checkOut time.Time) domain.Quote {
	months := billableMonths(checkIn, checkOut)

	// Round up to the whole franc; the owner is never underpaid by rounding.
	total := monthlyRent.Mul(months).Ceil()

	return domain.Quote{
		TotalAmount:    total,
		BillableMonths: months,
		DurationMonths: displayMonths(checkIn, checkOut),
	}
}

// billableMonths walks anchor dates month by month: the calendar-month
// delta, corrected by a day fraction when the days of month differ. A
// stay from the 10th to the 10th is exactly its whole-month count; the
// result is never below one.
func billableMonths(checkIn, checkOut time.Time) decimal.Decimal {
	if checkIn.IsZero() || checkOut.IsZero() || !checkOut.After(checkIn) {
		return one
	}

	months := decimal.NewFromInt(int64(
		(checkOut.Year()-checkIn.Year())*12 + int(checkOut.Month()) - int(checkIn.Month()),
	))

	switch {
	case checkOut.Day() > checkIn.Day():
		extra := decimal.NewFromInt(int64(checkOut.Day() - checkIn.Day()))
		months = months.Add(extra.Div(daysInMonth(checkOut)))
	case checkOut.Day() < checkIn.Day():
		missing := decimal.NewFromInt(int64(checkIn.Day() - checkOut.Day()))
		months = months.Sub(missing.Div(daysInMonth(checkIn)))
	}

	if months.LessThan(one) {
		return one
	}
	return months
}

func daysInMonth(t time.Time) decimal.Decimal {
	return decimal.NewFromInt(int64(now.With(t).EndOfMonth().Day()))
}

func displayMonths(checkIn, checkOut time.Time) int {
	if checkIn.IsZero() || checkOut.IsZero() || !checkOut.After(checkIn) {
		return 1
	}
	days := checkOut.Sub(checkIn).Hours() / 24
	n := int(math.Round(days / meanMonthDays))
	if n < 1 {
		return 1
	}
	return n
}
