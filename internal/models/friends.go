package models

// FriendStatus is a user's view of the social graph. All lists are sorted.
type FriendStatus struct {
	Friends  []string `json:"friends"`
	Incoming []string `json:"incoming"`
	Outgoing []string `json:"outgoing"`
}
