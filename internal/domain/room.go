// Package domain contains entity without logic, just meta-data
package domain

type RoomID string

// DeriveRoomID resolves the broadcast room for an authenticated subject:
// an explicit room claim wins, otherwise every subject gets a private
// per-user room.
func DeriveRoomID(room string, subject string) RoomID {
	if room != "" {
		return RoomID(room)
	}
	return RoomID("user:" + subject)
}
