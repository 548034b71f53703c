package delivery

import (
	"fmt"
	"sort"
	"time"

	"github.com/giftbasket/giftcart/pkg/enums"
)

const (
	// SlotLength is the longest slot offered inside a window.
	SlotLength = 60 * time.Minute
	// SearchDays bounds the forward scan for the next open window.
	SearchDays = 14
	// BookableDays is how many calendar days AvailableDates evaluates.
	BookableDays = 7

	minPreparationHours = 1
	dateLayout          = "2006-01-02"
)

// Requirement is anything whose contents drive preparation time, usually a cart.
type Requirement interface {
	FulfillmentClasses() []enums.FulfillmentClass
}

// TimeSlot is one selectable delivery interval.
type TimeSlot struct {
	Value string    `json:"value"`
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AvailableDate is a bookable day with its slots.
type AvailableDate struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

// Bounds is the range a delivery date picker may offer.
type Bounds struct {
	MinDate time.Time `json:"min_date"`
	MaxDate time.Time `json:"max_date"`
}

// Engine answers delivery scheduling questions against fixed service windows.
type Engine struct {
	windows  Windows
	weekdays []span
	weekends []span
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Engine)

// WithWindows replaces DefaultWindows.
func WithWindows(w Windows) Option {
	return func(e *Engine) { e.windows = w.clone() }
}

// WithLocation sets the calendar the windows are expressed in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		windows: DefaultWindows.clone(),
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	var err error
	if e.weekdays, err = parseSpans(e.windows.Weekdays); err != nil {
		return nil, fmt.Errorf("weekday windows: %w", err)
	}
	if e.weekends, err = parseSpans(e.windows.Weekends); err != nil {
		return nil, fmt.Errorf("weekend windows: %w", err)
	}
	return e, nil
}

// Windows returns the configured service windows.
func (e *Engine) Windows() Windows {
	return e.windows.clone()
}

// Location returns the engine's calendar location.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Now returns the current instant in the engine's location.
func (e *Engine) Now() time.Time {
	return e.now().In(e.loc)
}

// ParseDate reads a YYYY-MM-DD calendar date in the engine's location.
func (e *Engine) ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, value, e.loc)
}

// MinPreparationHours is the slowest lead time across everything in req, at least one hour.
func (e *Engine) MinPreparationHours(req Requirement) int {
	hours := minPreparationHours
	if req == nil {
		return hours
	}
	for _, class := range req.FulfillmentClasses() {
		if lead := class.LeadHours(); lead > hours {
			hours = lead
		}
	}
	return hours
}

// EarliestDeliveryDateTime is the first bookable instant for req. When no
// window is open right now it is never earlier than one hour after the next
// window opens.
func (e *Engine) EarliestDeliveryDateTime(req Requirement) time.Time {
	now := e.Now()
	earliest := now.Add(time.Duration(e.MinPreparationHours(req)) * time.Hour)
	if e.inWindow(now) {
		return earliest
	}
	if next, ok := e.NextServiceWindowStart(now); ok {
		if opened := next.Add(time.Hour); opened.After(earliest) {
			earliest = opened
		}
	}
	return earliest
}

// NextServiceWindowStart returns from itself when a window is open, otherwise
// the start of the next window within SearchDays. ok is false when none exists.
func (e *Engine) NextServiceWindowStart(from time.Time) (time.Time, bool) {
	from = from.In(e.loc)
	day := startOfDay(from)
	for _, s := range e.spansFor(day) {
		start, end := e.at(day, s.start), e.at(day, s.end)
		if from.Before(start) {
			return start, true
		}
		if from.Before(end) {
			return from, true
		}
	}
	for offset := 1; offset <= SearchDays; offset++ {
		next := day.AddDate(0, 0, offset)
		if spans := e.spansFor(next); len(spans) > 0 {
			return e.at(next, spans[0].start), true
		}
	}
	return time.Time{}, false
}

// GenerateTimeSlots splits the windows of date into slots of at most one hour
// and drops those that cannot be prepared in time for req.
func (e *Engine) GenerateTimeSlots(date time.Time, req Requirement) []TimeSlot {
	day := startOfDay(date.In(e.loc))
	now := e.Now()
	earliest := e.EarliestDeliveryDateTime(req)
	today := sameDay(day, now)
	useEnd := today && e.inWindow(now)

	seen := map[string]struct{}{}
	slots := []TimeSlot{}
	for _, s := range e.spansFor(day) {
		for m := s.start; m < s.end; m += int(SlotLength / time.Minute) {
			endMinute := m + int(SlotLength/time.Minute)
			if endMinute > s.end {
				endMinute = s.end
			}
			start, end := e.at(day, m), e.at(day, endMinute)
			boundary := start
			if useEnd {
				boundary = end
			}
			if boundary.Before(earliest) {
				continue
			}
			value := formatClock(m)
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			slots = append(slots, TimeSlot{
				Value: value,
				Label: value + " - " + formatClock(endMinute),
				Start: start,
				End:   end,
			})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

// SlotOffered reports whether value (HH:MM) is one of the slots for date.
func (e *Engine) SlotOffered(date time.Time, value string, req Requirement) bool {
	for _, slot := range e.GenerateTimeSlots(date, req) {
		if slot.Value == value {
			return true
		}
	}
	return false
}

// AvailableDates lists the days, starting at the earliest bookable day, that
// still have slots.
func (e *Engine) AvailableDates(req Requirement) []AvailableDate {
	first := startOfDay(e.EarliestDeliveryDateTime(req))
	dates := []AvailableDate{}
	for offset := 0; offset < BookableDays; offset++ {
		day := first.AddDate(0, 0, offset)
		slots := e.GenerateTimeSlots(day, req)
		if len(slots) == 0 {
			continue
		}
		dates = append(dates, AvailableDate{Date: day.Format(dateLayout), Slots: slots})
	}
	return dates
}

// DeliveryDateBounds spans from the earliest bookable day to one year from today.
func (e *Engine) DeliveryDateBounds(req Requirement) Bounds {
	yearOut := startOfDay(e.Now()).AddDate(1, 0, 0)
	return Bounds{
		MinDate: startOfDay(e.EarliestDeliveryDateTime(req)),
		MaxDate: yearOut.AddDate(0, 0, 1).Add(-time.Nanosecond),
	}
}

func (e *Engine) spansFor(day time.Time) []span {
	if IsWeekend(day) {
		return e.weekends
	}
	return e.weekdays
}

// inWindow treats window ends as closed: at 12:00 the 07:30-12:00 window is over.
func (e *Engine) inWindow(t time.Time) bool {
	day := startOfDay(t)
	for _, s := range e.spansFor(day) {
		if !t.Before(e.at(day, s.start)) && t.Before(e.at(day, s.end)) {
			return true
		}
	}
	return false
}

func (e *Engine) at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, e.loc)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
