package enums

import "fmt"

type ProposalStatus string

const (
	ProposalActive ProposalStatus = "ACTIVE"
	ProposalClosed ProposalStatus = "CLOSED"
)

func (s ProposalStatus) IsValid() bool {
	return s == ProposalActive || s == ProposalClosed
}

type VoteChoice string

const (
	VoteYes VoteChoice = "YES"
	VoteNo  VoteChoice = "NO"
)

func (c VoteChoice) IsValid() bool {
	return c == VoteYes || c == VoteNo
}

// ParseVoteChoice converts raw input into a VoteChoice.
func ParseVoteChoice(value string) (VoteChoice, error) {
	c := VoteChoice(value)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid vote choice %q", value)
	}
	return c, nil
}
