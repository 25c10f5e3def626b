package models

// Profile is the identity record returned by the account/student directory.
type Profile struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// UnknownIdentity is shown when a directory lookup cannot be completed.
const UnknownIdentity = "Unknown"
