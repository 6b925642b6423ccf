package entity

// Mark identifies one of the two player slots in a room. The first
// connection to join a room plays "x", the second plays "o".
type Mark string

const (
	MarkX Mark = "x"
	MarkO Mark = "o"
)

func (that Mark) String() string {
	return string(that)
}
