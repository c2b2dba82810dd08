package app

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/credit"
	"github.com/angelmondragon/cred30-backend/internal/governance"
	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/internal/marketplace"
	"github.com/angelmondragon/cred30-backend/internal/members"
	"github.com/angelmondragon/cred30-backend/internal/quotas"
	"github.com/angelmondragon/cred30-backend/internal/settlements"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/metrics"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Params carries what every domain service shares.
type Params struct {
	DB       *gorm.DB
	Tx       txRunner
	Logger   *logger.Logger
	Metrics  *metrics.LedgerMetrics
	Policies Policies
	Now      func() time.Time
}

// Services is the wired domain layer.
type Services struct {
	Ledger      ledger.Service
	Members     members.Service
	Quotas      quotas.Service
	Credit      credit.Service
	Marketplace marketplace.Service
	Governance  governance.Service
	Settlements settlements.Service
	Outbox      *outbox.Service
	OutboxRepo  *outbox.Repository
}

// Build constructs the domain services. Quotas and credit depend on each
// other, so credit reads collateral through a repository-backed reader and
// quotas receives the finished credit service.
func Build(p Params) (*Services, error) {
	if p.DB == nil || p.Tx == nil {
		return nil, errors.New("database required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	outboxRepo := outbox.NewRepository(p.DB)
	emitter := outbox.NewService(outboxRepo, p.Logger)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(p.DB),
		Logger:  p.Logger,
		Metrics: p.Metrics,
		Now:     now,
	})
	if err != nil {
		return nil, err
	}

	quotaRepo := quotas.NewRepository(p.DB)
	settlementRepo := settlements.NewRepository(p.DB)
	opener, err := settlements.NewOpener(settlementRepo, ledgerSvc, emitter)
	if err != nil {
		return nil, err
	}

	creditSvc, err := credit.NewService(credit.ServiceParams{
		Repo:       credit.NewRepository(p.DB),
		Ledger:     ledgerSvc,
		Collateral: quotas.NewCollateral(quotaRepo),
		Payments:   opener,
		Outbox:     emitter,
		DB:         p.Tx,
		Logger:     p.Logger,
		Policy:     p.Policies.Credit,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	quotaSvc, err := quotas.NewService(quotas.ServiceParams{
		Repo:   quotaRepo,
		Ledger: ledgerSvc,
		Outbox: emitter,
		DB:     p.Tx,
		Loans:  creditSvc,
		Policy: p.Policies.Quotas,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	settlementSvc, err := settlements.NewService(settlements.ServiceParams{
		Repo:     settlementRepo,
		Opener:   opener,
		Ledger:   ledgerSvc,
		Payments: creditSvc,
		Outbox:   emitter,
		DB:       p.Tx,
		Logger:   p.Logger,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}

	marketSvc, err := marketplace.NewService(marketplace.ServiceParams{
		Repo:   marketplace.NewRepository(p.DB),
		Ledger: ledgerSvc,
		Loans:  creditSvc,
		Outbox: emitter,
		DB:     p.Tx,
		Policy: p.Policies.Marketplace,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	governanceSvc, err := governance.NewService(governance.ServiceParams{
		Repo:   governance.NewRepository(p.DB),
		Quotas: quotas.NewCollateral(quotaRepo),
		Outbox: emitter,
		DB:     p.Tx,
		Policy: p.Policies.Governance,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	memberSvc, err := members.NewService(members.ServiceParams{
		Repo:   members.NewRepository(p.DB),
		Ledger: ledgerSvc,
		Outbox: emitter,
		DB:     p.Tx,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	return &Services{
		Ledger:      ledgerSvc,
		Members:     memberSvc,
		Quotas:      quotaSvc,
		Credit:      creditSvc,
		Marketplace: marketSvc,
		Governance:  governanceSvc,
		Settlements: settlementSvc,
		Outbox:      emitter,
		OutboxRepo:  outboxRepo,
	}, nil
}
