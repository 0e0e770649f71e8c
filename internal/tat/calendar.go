// Package tat implements turnaround-time arithmetic on a business calendar.
package tat

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Useful for tests and tooling.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }

// Calendar defines which wall-clock periods count as business time.
// Each working day contributes the window [DayStartHour, DayEndHour).
type Calendar struct {
	Location     *time.Location
	DayStartHour int
	DayEndHour   int
	WorkingDays  map[time.Weekday]bool
	Holidays     map[string]bool // keyed by YYYY-MM-DD in Location
}

// DefaultCalendar counts Monday through Saturday in full and skips Sunday.
func DefaultCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{
		Location:     loc,
		DayStartHour: 0,
		DayEndHour:   24,
		WorkingDays: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
			time.Saturday:  true,
		},
		Holidays: map[string]bool{},
	}
}

// Validate reports configuration mistakes that would make arithmetic loop forever.
func (c Calendar) Validate() error {
	if c.DayStartHour < 0 || c.DayEndHour > 24 || c.DayStartHour >= c.DayEndHour {
		return fmt.Errorf("invalid business day window %d-%d", c.DayStartHour, c.DayEndHour)
	}
	for _, on := range c.WorkingDays {
		if on {
			return nil
		}
	}
	return fmt.Errorf("calendar has no working days")
}

// HoursPerDay is the length of one business day.
func (c Calendar) HoursPerDay() int {
	return c.DayEndHour - c.DayStartHour
}

func (c Calendar) isBusinessDay(day time.Time) bool {
	if !c.WorkingDays[day.Weekday()] {
		return false
	}
	return !c.Holidays[day.Format("2006-01-02")]
}

// windowOf returns the business window of the calendar day starting at day.
func (c Calendar) windowOf(day time.Time) (time.Time, time.Time, bool) {
	if !c.isBusinessDay(day) {
		return time.Time{}, time.Time{}, false
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), c.DayStartHour, 0, 0, 0, c.Location)
	end := time.Date(day.Year(), day.Month(), day.Day(), c.DayEndHour, 0, 0, 0, c.Location)
	return start, end, true
}

func (c Calendar) startOfDay(t time.Time) time.Time {
	local := t.In(c.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location)
}

func (c Calendar) nextDay(t time.Time) time.Time {
	local := t.In(c.Location)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.Location)
}

func (c Calendar) previousDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()-1, 0, 0, 0, 0, c.Location)
}

type calendarFile struct {
	Timezone     string   `yaml:"timezone"`
	DayStartHour *int     `yaml:"day_start_hour"`
	DayEndHour   *int     `yaml:"day_end_hour"`
	WorkingDays  []string `yaml:"working_days"`
	Holidays     []string `yaml:"holidays"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// LoadCalendarFile reads a YAML calendar definition, starting from base for
// any field the file leaves out.
func LoadCalendarFile(path string, base Calendar) (Calendar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read calendar file: %w", err)
	}
	var file calendarFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return base, fmt.Errorf("parse calendar file: %w", err)
	}
	return file.apply(base)
}

func (f calendarFile) apply(base Calendar) (Calendar, error) {
	cal := base
	if f.Timezone != "" {
		loc, err := time.LoadLocation(f.Timezone)
		if err != nil {
			return base, fmt.Errorf("calendar timezone: %w", err)
		}
		cal.Location = loc
	}
	if f.DayStartHour != nil {
		cal.DayStartHour = *f.DayStartHour
	}
	if f.DayEndHour != nil {
		cal.DayEndHour = *f.DayEndHour
	}
	if len(f.WorkingDays) > 0 {
		cal.WorkingDays = make(map[time.Weekday]bool, len(f.WorkingDays))
		for _, name := range f.WorkingDays {
			day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return base, fmt.Errorf("unknown working day %q", name)
			}
			cal.WorkingDays[day] = true
		}
	}
	if len(f.Holidays) > 0 {
		cal.Holidays = make(map[string]bool, len(f.Holidays))
		for _, h := range f.Holidays {
			if _, err := time.Parse("2006-01-02", h); err != nil {
				return base, fmt.Errorf("holiday %q: %w", h, err)
			}
			cal.Holidays[h] = true
		}
	}
	return cal, cal.Validate()
}
