package connection

// State is the connection's position in the IMAP4rev1 session state
// machine: not-authenticated, authenticated, or selected (a mailbox is
// open). Logout is terminal.
type State int

const (
	StateNotAuthenticated State = iota
	StateAuthenticated
	StateSelected
	StateLogout
)

func (s State) String() string {
	switch s {
	case StateNotAuthenticated:
		return "not-authenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateSelected:
		return "selected"
	case StateLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// Mode is a selected mailbox's access mode.
type Mode int

const (
	ModeReadWrite Mode = iota
	ModeReadOnly
)

func (m Mode) String() string {
	if m == ModeReadOnly {
		return "RO"
	}
	return "RW"
}
