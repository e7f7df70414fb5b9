package domain

// Actor is the caller on whose behalf a service operation runs. It is
// resolved once per request and passed explicitly to every service call.
type Actor struct {
	UserID       uint
	Role         Role
	FoundationID *uint
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsModerator reports whether the actor may moderate content.
func (a Actor) IsModerator() bool { return a.Role == RoleModerator || a.Role == RoleAdmin }

// Represents reports whether the actor is the representative of foundationID.
func (a Actor) Represents(foundationID *uint) bool {
	if a.Role != RoleFoundationRep || a.FoundationID == nil || foundationID == nil {
		return false
	}
	return *a.FoundationID == *foundationID
}

// ActorFor builds the actor view of a persisted user.
func ActorFor(u *User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{UserID: u.ID, Role: u.Role, FoundationID: u.FoundationID}
}
