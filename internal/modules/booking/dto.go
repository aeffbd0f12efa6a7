package booking

type SelectRequest struct {
	Date   string `form:"date" json:"date" validate:"required,datetime=2006-01-02"`
	SlotID int64  `form:"slot_id" json:"slot_id" validate:"required,gt=0"`
}

type SubmitRequest struct {
	ClientName  string `form:"client_name" json:"client_name" validate:"required"`
	ClientEmail string `form:"client_email" json:"client_email" validate:"required,email"`
}

type PageQuery struct {
	Date string `form:"date"`
	Week string `form:"week"`
}
