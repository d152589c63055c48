package metrics

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

type PeriodMode string

const (
	ModeDay    PeriodMode = "day"
	ModeWeek   PeriodMode = "week"
	ModeMonth  PeriodMode = "month"
	ModeCustom PeriodMode = "custom"
)

var ErrInvalidPeriod = errors.New("invalid period")

// Period işletme saat diliminde [From, To) aralığı.
// Gün sınırları UTC'ye göre değil restoranın yerel takvimine göre hesaplanır.
type Period struct {
	Mode PeriodMode
	From time.Time
	To   time.Time
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// LocalDate verilen anın işletme takvimindeki gününü "YYYY-MM-DD" olarak döner.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

func DayPeriod(date time.Time, loc *time.Location) Period {
	start := startOfDay(date, loc)
	return Period{Mode: ModeDay, From: start, To: start.AddDate(0, 0, 1)}
}

// WeekPeriod ISO hafta: Pazartesi - Pazar
func WeekPeriod(date time.Time, loc *time.Location) Period {
	start := startOfDay(date, loc)
	daysToMonday := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -daysToMonday)
	return Period{Mode: ModeWeek, From: start, To: start.AddDate(0, 0, 7)}
}

func MonthPeriod(date time.Time, loc *time.Location) Period {
	d := date.In(loc)
	start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, loc)
	return Period{Mode: ModeMonth, From: start, To: start.AddDate(0, 1, 0)}
}

// CustomPeriod iki günü de kapsar: from 00:00 - to+1 00:00
func CustomPeriod(from, to time.Time, loc *time.Location) (Period, error) {
	start := startOfDay(from, loc)
	end := startOfDay(to, loc)
	if end.Before(start) {
		return Period{}, fmt.Errorf("%w: bitiş tarihi başlangıçtan önce", ErrInvalidPeriod)
	}
	return Period{Mode: ModeCustom, From: start, To: end.AddDate(0, 0, 1)}, nil
}

// ParsePeriod HTTP query parametrelerinden dönem üretir. date boşsa now kullanılır.
func ParsePeriod(mode, date, from, to string, loc *time.Location, now time.Time) (Period, error) {
	ref := now
	if date != "" {
		d, err := time.ParseInLocation(dateLayout, date, loc)
		if err != nil {
			return Period{}, fmt.Errorf("%w: tarih formatı 'YYYY-MM-DD' olmalı", ErrInvalidPeriod)
		}
		ref = d
	}

	switch PeriodMode(mode) {
	case "", ModeDay:
		return DayPeriod(ref, loc), nil
	case ModeWeek:
		return WeekPeriod(ref, loc), nil
	case ModeMonth:
		return MonthPeriod(ref, loc), nil
	case ModeCustom:
		if from == "" || to == "" {
			return Period{}, fmt.Errorf("%w: from ve to zorunlu", ErrInvalidPeriod)
		}
		f, err := time.ParseInLocation(dateLayout, from, loc)
		if err != nil {
			return Period{}, fmt.Errorf("%w: from tarihi geçersiz", ErrInvalidPeriod)
		}
		t, err := time.ParseInLocation(dateLayout, to, loc)
		if err != nil {
			return Period{}, fmt.Errorf("%w: to tarihi geçersiz", ErrInvalidPeriod)
		}
		return CustomPeriod(f, t, loc)
	}
	return Period{}, fmt.Errorf("%w: bilinmeyen dönem %q (day|week|month|custom)", ErrInvalidPeriod, mode)
}

// Days dönemdeki günlerin başlangıç anları.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := p.From; d.Before(p.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
