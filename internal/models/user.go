// Package models defines the records persisted by the document store.
//
// Field names follow the on-disk JSON files exactly so existing data stays
// readable:
//   - user.json holds a JSON array of User
//   - house.json holds a JSON array of House
//   - house/<id>.json holds one HouseDetail
package models

// User is a person who can log in.
//
// Password holds a bcrypt hash. Older files may still carry a plaintext
// value; it is replaced by a hash on the next successful login.
type User struct {
	ID       string `json:"id" jsonschema:"description=Unique user identifier (UUID)"`
	Username string `json:"username" jsonschema:"description=Login name, unique across users"`
	Password string `json:"password" jsonschema:"description=Opaque credential hash"`
	Token    string `json:"token" jsonschema:"description=Current session token; rotated on login and logout"`
}
