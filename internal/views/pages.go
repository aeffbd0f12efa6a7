package views

// Page data handed to the HTML templates.

type Status struct {
	Text string
	OK   bool
}

type AdminPage struct {
	Username string
	Rows     []AdminRow
	Date     string
	BatchKey string
	Status   Status
	// LoadError replaces the list when slots were never loaded.
	LoadError string
}

type AgendaPage struct {
	Username  string
	Agenda    Agenda
	LoadError string
}

// BookingModal is the booking dialog for the selected chip.
type BookingModal struct {
	SlotID      int64
	Date        string
	Label       string
	Time        string
	Name        string
	Email       string
	State       string
	Status      Status
	Confirmed   bool
	CalendarURL string
}

type BookPage struct {
	Week      Week
	Grid      *DayGrid
	GridError string
	Modal     *BookingModal
}

type LoginPage struct {
	Username string
	Error    string
}
