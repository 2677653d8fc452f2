package components

import (
	"loyalty-core/internal/handler"
	"loyalty-core/internal/handler/api"
	"loyalty-core/internal/handler/middleware"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		api.NewAuthHandler,
		api.NewRewardHandler,
		api.NewRedemptionHandler,
		api.NewReferralHandler,
		middleware.NewAuthMiddleware,
	),
	fx.Invoke(handler.NewRouter),
)
