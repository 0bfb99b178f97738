package lifecycle

// Action is a console control offered for a fiche.
type Action string

const (
	ActionInvitation Action = "invitation"
	ActionSimulate   Action = "simulate"
	ActionRemind     Action = "remind"
	ActionPrint      Action = "print"
	ActionSign       Action = "sign"
	ActionDelete     Action = "delete"
)

// AvailableActions lists what the console may offer for a status. Signed
// fiches get nothing.
func AvailableActions(s Status) []Action {
	switch s {
	case StatusSent:
		return []Action{ActionInvitation, ActionSimulate, ActionRemind, ActionDelete}
	case StatusFilled:
		return []Action{ActionPrint, ActionDelete}
	case StatusPrinted:
		return []Action{ActionPrint, ActionSign, ActionDelete}
	}
	return []Action{}
}

func Allows(s Status, a Action) bool {
	for _, have := range AvailableActions(s) {
		if have == a {
			return true
		}
	}
	return false
}
