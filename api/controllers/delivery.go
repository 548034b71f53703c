package controllers

import (
	"net/http"
	"time"

	"github.com/giftbasket/giftcart/api/responses"
	"github.com/giftbasket/giftcart/api/validators"
	"github.com/giftbasket/giftcart/internal/delivery"
	"github.com/giftbasket/giftcart/pkg/logger"
)

type deliveryPlanner interface {
	Windows() delivery.Windows
	Location() *time.Location
	MinPreparationHours(req delivery.Requirement) int
	EarliestDeliveryDateTime(req delivery.Requirement) time.Time
	GenerateTimeSlots(date time.Time, req delivery.Requirement) []delivery.TimeSlot
	AvailableDates(req delivery.Requirement) []delivery.AvailableDate
	DeliveryDateBounds(req delivery.Requirement) delivery.Bounds
}

type slotsResponse struct {
	Date  string              `json:"date"`
	Slots []delivery.TimeSlot `json:"slots"`
}

type boundsResponse struct {
	MinDate             string    `json:"min_date"`
	MaxDate             string    `json:"max_date"`
	EarliestDelivery    time.Time `json:"earliest_delivery"`
	MinPreparationHours int       `json:"min_preparation_hours"`
}

// DeliveryWindows lists the configured service windows.
func DeliveryWindows(planner deliveryPlanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, planner.Windows())
	}
}

// DeliverySlots lists the bookable slots for ?date= given the session cart.
func DeliverySlots(provider sessionProvider, planner deliveryPlanner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := validators.ParseQueryDate(r, "date", planner.Location())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		slots := planner.GenerateTimeSlots(date, session.Store.State())
		if slots == nil {
			slots = []delivery.TimeSlot{}
		}
		responses.WriteSuccess(w, slotsResponse{Date: date.Format("2006-01-02"), Slots: slots})
	}
}

// DeliveryDates lists the next bookable dates with their slots.
func DeliveryDates(provider sessionProvider, planner deliveryPlanner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dates := planner.AvailableDates(session.Store.State())
		if dates == nil {
			dates = []delivery.AvailableDate{}
		}
		responses.WriteSuccess(w, dates)
	}
}

// DeliveryBounds returns the date picker range for the session cart.
func DeliveryBounds(provider sessionProvider, planner deliveryPlanner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state := session.Store.State()
		bounds := planner.DeliveryDateBounds(state)
		responses.WriteSuccess(w, boundsResponse{
			MinDate:             bounds.MinDate.Format("2006-01-02"),
			MaxDate:             bounds.MaxDate.Format("2006-01-02"),
			EarliestDelivery:    planner.EarliestDeliveryDateTime(state),
			MinPreparationHours: planner.MinPreparationHours(state),
		})
	}
}
