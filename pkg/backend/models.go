package backend

import "time"

// Profile is the signed-in customer's account.
type Profile struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingStatus is the lifecycle state of a transfer booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is one ride/transfer reservation.
type Booking struct {
	ID         string        `json:"id"`
	UID        string        `json:"uid"`
	Pickup     string        `json:"pickup"`
	Dropoff    string        `json:"dropoff"`
	PickupAt   time.Time     `json:"pickup_at"`
	Passengers int           `json:"passengers"`
	Status     BookingStatus `json:"status"`
}

// BookingRequest is what the customer submits from the booking form.
type BookingRequest struct {
	UID        string    `json:"uid"`
	Pickup     string    `json:"pickup"`
	Dropoff    string    `json:"dropoff"`
	PickupAt   time.Time `json:"pickup_at"`
	Passengers int       `json:"passengers"`
}

// Location is a geocoded address.
type Location struct {
	Address string  `json:"formatted_address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Route is the driving route between two addresses.
type Route struct {
	Origin          Location `json:"origin"`
	Destination     Location `json:"destination"`
	DistanceMeters  int      `json:"distance_meters"`
	DurationSeconds int      `json:"duration_seconds"`
}
