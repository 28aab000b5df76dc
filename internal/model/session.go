package model

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is the authenticated user's credential bundle, distinct from
// ChatSession (a named conversation thread).
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Complete reports whether all three fields are present. A partially
// written session must never be persisted.
func (s *Session) Complete() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != "" && s.User.ID != ""
}
