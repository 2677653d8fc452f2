package components

import (
	"context"

	"loyalty-core/internal/infra/feed"
	"loyalty-core/internal/worker"

	"go.uber.org/fx"
)

var WorkerModule = fx.Module("worker",
	fx.Provide(
		worker.NewRefundCoordinator,
	),
	fx.Invoke(runBackgroundLoops),
)

// runBackgroundLoops ties the change-feed listener and the refund coordinator
// to the application lifecycle. Startup order between the two does not
// matter: subscription channels exist independently of the listener's
// connection state.
func runBackgroundLoops(lc fx.Lifecycle, listener *feed.Listener, coordinator *worker.RefundCoordinator) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				listener.Run(ctx)
				done <- struct{}{}
			}()
			go func() {
				coordinator.Run(ctx)
				done <- struct{}{}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			for i := 0; i < 2; i++ {
				select {
				case <-done:
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			}
			return nil
		},
	})
}
