// Package mongo opens MongoDB clients configured from the environment.
//
// Connect retries the initial ping so the service can start before the
// database is reachable, and Healthcheck plugs into the HTTP readiness probe:
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.ConnectDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
package mongo
