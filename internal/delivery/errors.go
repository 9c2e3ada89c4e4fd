package delivery

import "errors"

// Domain errors for delivery.
var (
	// ErrEmptyText is returned when there is nothing to deliver.
	ErrEmptyText = errors.New("delivery: text is empty")

	// ErrReviewNotFound is returned for unknown, resolved or expired reviews.
	ErrReviewNotFound = errors.New("delivery: review not found")

	// ErrReviewBusy is returned while another confirmation of the same
	// review is in progress.
	ErrReviewBusy = errors.New("delivery: review is being delivered")

	// ErrPasteFailed is returned when neither the clipboard nor direct
	// insertion accepted the text.
	ErrPasteFailed = errors.New("delivery: paste failed")
)
