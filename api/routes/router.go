package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/cred30-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/cred30-backend/api/controllers/webhooks"
	"github.com/angelmondragon/cred30-backend/api/middleware"
	"github.com/angelmondragon/cred30-backend/internal/credit"
	"github.com/angelmondragon/cred30-backend/internal/governance"
	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/internal/marketplace"
	"github.com/angelmondragon/cred30-backend/internal/members"
	"github.com/angelmondragon/cred30-backend/internal/quotas"
	"github.com/angelmondragon/cred30-backend/internal/settlements"
	"github.com/angelmondragon/cred30-backend/pkg/config"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/cred30-backend/pkg/redis"
)

// RedisStore is the redis surface the HTTP edge needs: request dedupe,
// write throttling and the readiness ping.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, externalID string) (bool, error)
	Delete(ctx context.Context, externalID string) error
}

// Dependencies carries every collaborator the router wires into handlers.
type Dependencies struct {
	DB           controllers.HealthPinger
	Redis        RedisStore
	Ledger       ledger.Service
	Members      members.Service
	Quotas       quotas.Service
	Credit       credit.Service
	Marketplace  marketplace.Service
	Governance   governance.Service
	Settlements  settlements.Service
	WebhookGuard webhookGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	writePolicy := middleware.NewRateLimitPolicy("writes", cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitMax)
	webhookPolicy := middleware.NewRateLimitPolicy("webhook", cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitMax*10)

	var redisStore RedisStore
	var rateStore interface {
		IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	}
	health := map[string]controllers.HealthPinger{}
	if deps.DB != nil {
		health["db"] = deps.DB
	}
	if deps.Redis != nil {
		redisStore = deps.Redis
		rateStore = deps.Redis
		health["redis"] = deps.Redis
	}
	idempotent := func(r chi.Router) chi.Router {
		if redisStore == nil {
			return r
		}
		return r.With(middleware.Idempotency(redisStore, logg))
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, health, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, rateStore, logg))
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(deps.Settlements, cfg.Gateway.WebhookSecret, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(writePolicy, rateStore, logg))

		r.Route("/members/me", func(r chi.Router) {
			r.Get("/", controllers.MemberMe(deps.Members, logg))
			r.Get("/transactions", controllers.MemberTransactions(deps.Ledger, logg))
			idempotent(r).Post("/withdraw", controllers.MemberWithdraw(deps.Members, logg))
		})

		r.Route("/quotas", func(r chi.Router) {
			r.Get("/", controllers.QuotaList(deps.Quotas, logg))
			idempotent(r).Post("/", controllers.QuotaPurchase(deps.Quotas, logg))
			idempotent(r).Post("/redeem-all", controllers.QuotaRedeemAll(deps.Quotas, logg))
			idempotent(r).Post("/{quotaId}/redeem", controllers.QuotaRedeem(deps.Quotas, logg))
		})

		r.Route("/loans", func(r chi.Router) {
			r.Get("/", controllers.LoanList(deps.Credit, logg))
			r.Get("/limit", controllers.LoanLimit(deps.Credit, logg))
			r.Get("/{loanId}", controllers.LoanGet(deps.Credit, logg))
			idempotent(r).Post("/", controllers.LoanRequest(deps.Credit, logg))
			idempotent(r).Post("/{loanId}/installments", controllers.LoanPayInstallment(deps.Credit, logg))
			idempotent(r).Post("/{loanId}/payoff", controllers.LoanPayFull(deps.Credit, logg))
		})

		r.Route("/marketplace", func(r chi.Router) {
			r.Get("/listings", controllers.ListingList(deps.Marketplace, logg))
			r.Get("/listings/{listingId}", controllers.ListingGet(deps.Marketplace, logg))
			idempotent(r).Post("/listings", controllers.ListingCreate(deps.Marketplace, logg))
			idempotent(r).Post("/listings/{listingId}/buy", controllers.ListingBuy(deps.Marketplace, logg))
			idempotent(r).Post("/listings/{listingId}/buy-on-credit", controllers.ListingBuyOnCredit(deps.Marketplace, logg))
			idempotent(r).Post("/listings/{listingId}/boost", controllers.ListingBoost(deps.Marketplace, logg))
			r.Get("/orders", controllers.OrderList(deps.Marketplace, logg))
			r.Get("/orders/{orderId}", controllers.OrderGet(deps.Marketplace, logg))
			idempotent(r).Post("/orders/{orderId}/confirm", controllers.OrderConfirm(deps.Marketplace, logg))
		})

		r.Route("/governance/proposals", func(r chi.Router) {
			r.Get("/", controllers.ProposalList(deps.Governance, logg))
			r.Get("/{proposalId}", controllers.ProposalGet(deps.Governance, logg))
			idempotent(r).Post("/{proposalId}/votes", controllers.ProposalVote(deps.Governance, logg))
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", controllers.SettlementList(deps.Settlements, logg))
			r.Get("/{reference}", controllers.SettlementGet(deps.Settlements, logg))
			idempotent(r).Post("/deposits", controllers.SettlementDeposit(deps.Settlements, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.MemberRoleAdmin, logg))

			idempotent(r).Post("/members", controllers.AdminRegisterMember(deps.Members, logg))
			idempotent(r).Post("/members/{memberId}/deposits", controllers.AdminMemberDeposit(deps.Members, logg))
			r.Put("/members/{memberId}/score", controllers.AdminMemberScore(deps.Members, logg))
			r.Put("/members/{memberId}/security-lock", controllers.AdminSecurityLock(deps.Members, logg))
			idempotent(r).Post("/quotas/{quotaId}/valuation", controllers.AdminQuotaValuation(deps.Quotas, logg))
			r.Get("/loans/overdue", controllers.AdminOverdueLoans(deps.Credit, logg))
			idempotent(r).Post("/governance/proposals", controllers.AdminProposalCreate(deps.Governance, logg))
			idempotent(r).Post("/governance/proposals/{proposalId}/close", controllers.AdminProposalClose(deps.Governance, logg))
			r.Get("/reconciliation", controllers.AdminReconcileAll(deps.Ledger, logg))
			r.Get("/reconciliation/{memberId}", controllers.AdminReconcileMember(deps.Ledger, logg))
		})
	})

	return r
}
