package model

// Permission collaborator permission level
type Permission string

const (
	PermissionView  Permission = "VIEW"
	PermissionEdit  Permission = "EDIT"
	PermissionAdmin Permission = "ADMIN"
)

func (p Permission) String() string {
	return string(p)
}

// rank for precedence checks: ADMIN > EDIT > VIEW
func (p Permission) rank() int {
	switch p {
	case PermissionAdmin:
		return 3
	case PermissionEdit:
		return 2
	case PermissionView:
		return 1
	default:
		return 0
	}
}

// Covers reports whether p grants at least the required level
func (p Permission) Covers(required Permission) bool {
	return p.rank() >= required.rank()
}

// Valid reports whether p is a known permission level
func (p Permission) Valid() bool {
	return p.rank() > 0
}

// Visibility canvas visibility
type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityPublic  Visibility = "PUBLIC"
)

func (v Visibility) String() string {
	return string(v)
}

// TokenPolicy share token access policy
type TokenPolicy string

const (
	TokenPolicyOneTime    TokenPolicy = "ONE_TIME"
	TokenPolicyIndefinite TokenPolicy = "INDEFINITE"
)

func (t TokenPolicy) String() string {
	return string(t)
}

// EventKind drawing event kind
type EventKind string

const (
	EventKindStroke          EventKind = "stroke"
	EventKindErase           EventKind = "erase"
	EventKindText            EventKind = "text"
	EventKindClear           EventKind = "clear"
	EventKindBackgroundColor EventKind = "background-color"
)

func (k EventKind) String() string {
	return string(k)
}

// Mutates reports whether the event kind changes canvas content
// (cursor moves and presence messages are not EventKinds at all)
func (k EventKind) Mutates() bool {
	switch k {
	case EventKindStroke, EventKindErase, EventKindText, EventKindClear, EventKindBackgroundColor:
		return true
	default:
		return false
	}
}
