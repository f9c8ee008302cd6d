/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package coordkit_test

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/acronis/go-appkit/config"
	"github.com/acronis/go-appkit/log"

	coordkit "github.com/cloudward/go-coordkit"
)

func Example() {
	cfgData := bytes.NewBufferString(`
redisStore:
  address: "127.0.0.1:6379"
rateLimit:
  tiers:
    public:
      capacity: 100
      window: 60
  endpointOverrides:
    - method: POST
      path: /api/v2/projects
      capacity: 10
      window: 60
cache:
  defaultTTL: 5m
`)
	cfg := coordkit.NewDefaultConfig()
	if err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg); err != nil {
		panic(err)
	}

	logger, closeLogger := log.NewLogger(log.NewDefaultConfig())
	defer closeLogger()

	provider := coordkit.New(cfg, coordkit.Opts{Logger: logger})
	defer func() { _ = provider.Close() }()

	apiHandler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		res, err := provider.Cache.GetOrCompute(r.Context(), "projects:list:all", 0,
			func(ctx context.Context) ([]byte, error) {
				return queryProjects(ctx)
			})
		if err != nil {
			http.Error(rw, "internal error", http.StatusInternalServerError)
			return
		}
		_, _ = rw.Write(res.Value)
	})

	mux := http.NewServeMux()
	mux.Handle("/api/v2/projects",
		provider.RequestScopeMiddleware()(
			provider.RateLimitMiddleware("MyService")(apiHandler)))

	server := &http.Server{Addr: ":8080", Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	_ = server.ListenAndServe()
}

func queryProjects(_ context.Context) ([]byte, error) {
	return []byte(`{"projects":[]}`), nil
}
