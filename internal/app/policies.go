package app

import (
	"github.com/angelmondragon/cred30-backend/internal/credit"
	"github.com/angelmondragon/cred30-backend/internal/governance"
	"github.com/angelmondragon/cred30-backend/internal/marketplace"
	"github.com/angelmondragon/cred30-backend/internal/quotas"
	"github.com/angelmondragon/cred30-backend/pkg/config"
)

// Policies maps the environment's business constants onto each domain package.
type Policies struct {
	Quotas      quotas.Policy
	Credit      credit.Policy
	Marketplace marketplace.Policy
	Governance  governance.Policy
}

func PoliciesFromConfig(cfg config.PolicyConfig) Policies {
	return Policies{
		Quotas: quotas.Policy{
			PenaltyRate: cfg.EarlyRedemptionPenalty,
			Window:      cfg.EarlyRedemptionWindow,
		},
		Credit: credit.Policy{
			InterestRate:      cfg.LoanInterestRate,
			MaxInstallments:   cfg.LoanMaxInstallments,
			InstallmentPeriod: cfg.LoanInstallmentPeriod,
			MinScore:          cfg.MinCreditScore,
			Collateral:        credit.RatioPolicy{Ratio: cfg.CollateralRatio},
		},
		Marketplace: marketplace.Policy{
			FeeRate:       cfg.EscrowFeeRate,
			BoostFee:      cfg.BoostFee,
			BoostDuration: cfg.BoostDuration,
		},
		Governance: governance.Policy{
			MinActiveQuotas: int64(cfg.VoteMinQuotas),
			MinScore:        cfg.VoteMinScore,
		},
	}
}
