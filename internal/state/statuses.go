package state

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) String() string {
	return string(s)
}

var AllStatuses = []PaymentStatus{
	StatusPending,
	StatusCompleted,
	StatusFailed,
}

type Transition struct {
	From PaymentStatus
	To   PaymentStatus
}

// ValidTransitions lists every allowed status change. The only way back out
// of a terminal state is the explicit failed -> pending manual retry.
var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusCompleted},
	{From: StatusPending, To: StatusFailed},
	{From: StatusFailed, To: StatusPending},
}

func IsValidTransition(from, to PaymentStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
