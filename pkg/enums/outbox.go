package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateMember      OutboxAggregateType = "member"
	AggregateQuota       OutboxAggregateType = "quota"
	AggregateLoan        OutboxAggregateType = "loan"
	AggregateEscrowOrder OutboxAggregateType = "escrow_order"
	AggregateListing     OutboxAggregateType = "listing"
	AggregateProposal    OutboxAggregateType = "proposal"
	AggregateSettlement  OutboxAggregateType = "settlement"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMember,
	AggregateQuota,
	AggregateLoan,
	AggregateEscrowOrder,
	AggregateListing,
	AggregateProposal,
	AggregateSettlement,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventMemberDeposited      OutboxEventType = "member_deposited"
	EventWithdrawalRequested  OutboxEventType = "withdrawal_requested"
	EventQuotasPurchased      OutboxEventType = "quotas_purchased"
	EventQuotaRedeemed        OutboxEventType = "quota_redeemed"
	EventLoanDisbursed        OutboxEventType = "loan_disbursed"
	EventLoanPaymentRecorded  OutboxEventType = "loan_payment_recorded"
	EventLoanPaid             OutboxEventType = "loan_paid"
	EventLoanOverdue          OutboxEventType = "loan_overdue"
	EventEscrowOrderCreated   OutboxEventType = "escrow_order_created"
	EventEscrowOrderCompleted OutboxEventType = "escrow_order_completed"
	EventListingBoosted       OutboxEventType = "listing_boosted"
	EventProposalClosed       OutboxEventType = "proposal_closed"
	EventPaymentRequested     OutboxEventType = "payment_requested"
	EventPaymentSettled       OutboxEventType = "payment_settled"
	EventPaymentFailed        OutboxEventType = "payment_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventMemberDeposited,
	EventWithdrawalRequested,
	EventQuotasPurchased,
	EventQuotaRedeemed,
	EventLoanDisbursed,
	EventLoanPaymentRecorded,
	EventLoanPaid,
	EventLoanOverdue,
	EventEscrowOrderCreated,
	EventEscrowOrderCompleted,
	EventListingBoosted,
	EventProposalClosed,
	EventPaymentRequested,
	EventPaymentSettled,
	EventPaymentFailed,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
