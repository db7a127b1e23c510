package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrInvalidUserID = errors.New("invalid user reference")

// UserID is the normalized identity of a user. A reference may arrive either as
// a plain id or as a populated user object; both decode to the same UserID.
type UserID string

func (u UserID) String() string {
	return string(u)
}

// UnmarshalJSON accepts "id", {"_id": "id"} and {"id": "id"}.
func (u *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}

	var populated struct {
		MongoID json.RawMessage `json:"_id"`
		ID      json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &populated); err != nil {
		return ErrInvalidUserID
	}

	raw := populated.MongoID
	if len(raw) == 0 {
		raw = populated.ID
	}
	if len(raw) == 0 {
		return ErrInvalidUserID
	}

	// extended JSON: {"_id": {"$oid": "..."}}
	var inner UserID
	if raw[0] == '{' {
		var oid struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(raw, &oid); err != nil || oid.OID == "" {
			return ErrInvalidUserID
		}
		*u = UserID(oid.OID)
		return nil
	}
	if err := inner.UnmarshalJSON(raw); err != nil {
		return err
	}
	*u = inner
	return nil
}

// User represents a user document in MongoDB
type User struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserName  string             `json:"userName" bson:"userName"`
	FirstName string             `json:"firstName" bson:"firstName"`
	LastName  string             `json:"lastName" bson:"lastName"`
	Email     string             `json:"email" bson:"email"`
	Avatar    string             `json:"avatar" bson:"profileImg"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// DisplayName returns the name shown in conversation summaries.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.UserName
	}
}

// Book is the slice of a catalog book the chat needs.
type Book struct {
	ID     primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Title  string             `json:"title" bson:"title"`
	Seller primitive.ObjectID `json:"sellerId" bson:"addedBy"`
}
