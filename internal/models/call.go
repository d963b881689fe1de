package models

import "time"

// CallCredential is a signed, room-scoped video access token. It is
// never persisted.
type CallCredential struct {
	Token     string    `json:"token"`
	RoomName  string    `json:"roomName"`
	Identity  string    `json:"identity"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
