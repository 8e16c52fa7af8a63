package models

// User is the read-only projection of an account supplied by the external
// user collaborator. Email and Name may be empty.
type User struct {
	ID    string `json:"id"`
	Tier  string `json:"tier"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
