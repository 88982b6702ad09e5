package entities

import "time"

type AccountStatus string

const (
	AccountStatusActive      AccountStatus = "active"
	AccountStatusBlacklisted AccountStatus = "blacklisted"
)

// Member is a library patron. ActiveLendings mirrors the number of open
// lendings referencing the member and is only changed inside the library
// service's critical sections.
type Member struct {
	Party
	Status         AccountStatus `json:"status"`
	ActiveLendings int           `json:"active_lendings"`
}

func (m Member) Key() string { return m.ID }

// NewMember creates an active member with no lendings.
func NewMember(id, name, email, phone string, at time.Time) Member {
	return Member{
		Party:  NewParty(id, name, email, phone, at),
		Status: AccountStatusActive,
	}
}

func (m *Member) IsActive() bool {
	return m.Status == AccountStatusActive
}

// Block blacklists the account; open lendings stay open and can be returned.
func (m *Member) Block() {
	m.Status = AccountStatusBlacklisted
}

func (m *Member) Unblock() {
	m.Status = AccountStatusActive
}

// IncrementLendings and DecrementLendings keep the counter in [0, ∞).
func (m *Member) IncrementLendings() {
	m.ActiveLendings++
}

func (m *Member) DecrementLendings() {
	if m.ActiveLendings > 0 {
		m.ActiveLendings--
	}
}
