package components

import (
	"loyalty-core/internal/pkg/clock"
	"loyalty-core/internal/usecase/commands"
	"loyalty-core/internal/usecase/queries"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	usecaseBaseOption,
	usecaseQueriesModule,
	usecaseCommandsModule,
)

var usecaseBaseOption = fx.Provide(
	clock.NewRealClock,
)

var usecaseQueriesModule = fx.Module("usecase/queries",
	fx.Provide(
		queries.NewUserQueries,
		queries.NewRewardQueries,
		queries.NewBalanceQueries,
		queries.NewRedemptionQueries,
	),
)

var usecaseCommandsModule = fx.Module("usecase/commands",
	fx.Provide(
		commands.NewAuthCommands,
		commands.NewTokenValidator,
		commands.NewRedemptionCommands,
		commands.NewRefundCommands,
		commands.NewReferralCommands,
	),
)
