package service

// AuthContext identifies the caller of a service operation. The zero value
// is an anonymous caller.
type AuthContext struct {
	UserID uint
}

func Anonymous() AuthContext {
	return AuthContext{}
}

func AuthFor(userID uint) AuthContext {
	return AuthContext{UserID: userID}
}

func (a AuthContext) Authenticated() bool {
	return a.UserID != 0
}
