package battle

import "fmt"

// RoomID names one battle room. It is a tuple of the two paired
// connection IDs in pairing order, so distinct pairs can never collide
// the way a formatted string could. Comparable, usable as a map key.
//
// Clients receive it inside their Setup and echo it back verbatim on
// every battle-scoped message.
type RoomID struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

func (r RoomID) String() string {
	return fmt.Sprintf("battle:%s_VS_%s", r.First, r.Second)
}
