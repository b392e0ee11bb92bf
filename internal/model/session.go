package model

// State is the step of a multi-message dialog the chat is in.
type State int

const (
	DefaultState State = iota
	ExpectingCapital
	ExpectingReinvestTicker
)

type Session struct {
	State State `json:"state"`
}
