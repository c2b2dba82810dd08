package enums

// MemberKind separates real members from platform-owned accounts.
type MemberKind string

const (
	MemberKindMember MemberKind = "member"
	MemberKindSystem MemberKind = "system"
)

var validMemberKinds = []MemberKind{MemberKindMember, MemberKindSystem}

func (k MemberKind) IsValid() bool {
	for _, candidate := range validMemberKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// AllowsNegativeBalance reports whether the ledger may drive this account below zero.
func (k MemberKind) AllowsNegativeBalance() bool {
	return k == MemberKindSystem
}
