// Package server manages the HTTP server lifecycle with graceful shutdown.
//
// The server runs until its context ends, so the caller decides which
// signals stop it:
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	srv := server.New(handler,
//		server.WithHost(":3000"),
//		server.WithShutdownFunc(func(ctx context.Context) error {
//			reg.Close()
//			return nil
//		}),
//	)
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
