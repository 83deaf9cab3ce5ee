// handlers/reward_routes.go
package handlers

import (
	"camly-reward-system/middleware"
	"camly-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupRewardRoutes registers the full surface. Everything already sits behind
// the gateway token; the /s group additionally requires user context and the
// /s/admin group an admin role.
func SetupRewardRoutes(
	app *fiber.App,
	accrual *services.AccrualService,
	claims *services.ClaimService,
	wallets *services.WalletService,
	sync *services.SyncService,
	accountClient *services.AccountServiceClient,
) {
	// 🔐 Secured routes — require user context (userID, roles) from Gateway
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/rewards/award-batch", accrual.AwardBatchHandler)
	secured.Get("/rewards/balance", accrual.GetBalanceHandler)
	secured.Get("/rewards/history", accrual.GetHistoryHandler)

	secured.Post("/claims", claims.SubmitClaimHandler)
	secured.Get("/claims", claims.ListClaimsHandler)

	secured.Post("/wallet/link", wallets.LinkWalletHandler)
	secured.Get("/wallet", wallets.ListWalletsHandler)

	// SSE stream authenticates via query params (EventSource can't set headers)
	if accountClient != nil {
		app.Get("/s/rewards/stream", middleware.SSEAuthMiddleware(accountClient), accrual.StreamRewardsSSE)
	}

	// 🔐 Admin routes — ops tooling for review, reconciliation, forensics
	admin := secured.Group("/admin", middleware.RequireAdmin())

	admin.Post("/rewards/:id/approve", accrual.ApproveEntryHandler)
	admin.Get("/claims", claims.AdminListClaimsHandler)

	admin.Post("/sync/wallet", sync.SyncWalletHandler)
	admin.Post("/sync/run", sync.RunSyncHandler)
	admin.Get("/sync/cursors", sync.CursorsHandler)
	admin.Get("/transfers/:wallet", sync.TransfersByWalletHandler)
}
