package models

// User is a persistent account record. The session fabric only ever sees the
// username; everything else stays behind the registration/login endpoints.
type User struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
}
