package admin

import "glazestudio/internal/domain"

type CreateRangeRequest struct {
	Date      string `form:"date" json:"date" validate:"required,datetime=2006-01-02"`
	StartHour int    `form:"start_hour" json:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int    `form:"end_hour" json:"end_hour" validate:"gte=1,lte=24,gtfield=StartHour"`
	BatchKey  string `form:"batch_key" json:"batch_key"`
}

type CreateRangeResult struct {
	Date    string        `json:"date"`
	Created int           `json:"created"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Slots   []domain.Slot `json:"slots"`
	Message string        `json:"message"`
}

type DeleteAllResult struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message"`
}

// rangeForm is the HTML form, where hours may arrive as "10" or "10:00".
type rangeForm struct {
	Date      string `form:"date"`
	StartHour string `form:"start_hour"`
	EndHour   string `form:"end_hour"`
	BatchKey  string `form:"batch_key"`
}
