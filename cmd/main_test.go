package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/pkg/logger"
)

func memoryConfig() *config.Config {
	cfg := config.New()
	cfg.StoreDriver = config.DriverMemory
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			t.Setenv("PITWALL_ENV_FILE", "")
			t.Setenv("PITWALL_ADDR", ":9090")
			t.Setenv("PITWALL_STORE_DRIVER", "memory")
			t.Setenv("PITWALL_MAX_REORDER_ENTRIES", "64")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.MaxReorderEntries, convey.ShouldEqual, 64)
			})
		})

		convey.Convey("When the address is blanked", func() {
			t.Setenv("PITWALL_ENV_FILE", "")
			t.Setenv("PITWALL_ADDR", "")

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given a started memory-backed service", t, func() {
		ctx := context.Background()
		cfg := memoryConfig()
		svc := app.New(cfg, app.WithLogger(logger.Discard()))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := newMux(ctx, cfg, svc)

		convey.Convey("Then business and docs routes are served", func() {
			for _, path := range []string{"/healthz", "/stats", "/metrics", "/openapi.yaml", "/api-docs"} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then a collection can be created", func() {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/collections", strings.NewReader(`{"kind":"race","name":"gt3 cup"}`))
			mux.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a run on an ephemeral port", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		convey.Convey("Then it shuts down cleanly when the context ends", func() {
			convey.So(run(ctx, memoryConfig(), logger.Discard()), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given an unusable store driver", t, func() {
		cfg := memoryConfig()
		cfg.StoreDriver = "cassandra"

		convey.Convey("Then run fails before serving", func() {
			convey.So(run(context.Background(), cfg, logger.Discard()), convey.ShouldNotBeNil)
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loop returns when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})
	})
}
