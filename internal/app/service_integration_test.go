package service_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/internal/domain/leaderboard"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
)

func TestServiceIntegration_SQLite(t *testing.T) {
	Convey("Given a service backed by a sqlite file", t, func() {
		cfg := config.New()
		cfg.StoreDriver = config.DriverSQLite
		cfg.DatabaseURL = "file:" + filepath.Join(t.TempDir(), "pitwall.db") +
			"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
		cfg.ReorderRetryBackoffMS = 0

		svc := service.New(cfg, service.WithLogger(logger.Discard()))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a race roster is filled concurrently", func() {
			c, err := svc.CreateCollection(ctx, model.KindRace, "endurance", "host")
			So(err, ShouldBeNil)

			const members = 16
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				errs []error
			)
			for i := 0; i < members; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					member, _ := json.Marshal(map[string]int{"member": i})
					_, err := svc.AppendEntry(ctx, c.ID, model.Payload{"member": member})
					if err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()

			Convey("Then every member gets a distinct dense position", func() {
				So(errs, ShouldBeEmpty)
				got, err := svc.GetCollection(ctx, c.ID)
				So(err, ShouldBeNil)
				So(got.Entries, ShouldHaveLength, members)
				for i, e := range got.Entries {
					So(e.Position, ShouldEqual, i+1)
				}
			})

			Convey("Then a partial reorder moves the named members to the front", func() {
				got, err := svc.GetCollection(ctx, c.ID)
				So(err, ShouldBeNil)
				last := got.Entries[members-1].ID
				out, err := svc.Reorder(ctx, c.ID, []string{last})
				So(err, ShouldBeNil)
				So(out[0].ID, ShouldEqual, last)
				So(out[1].ID, ShouldEqual, got.Entries[0].ID)
				So(out[members-1].ID, ShouldEqual, got.Entries[members-2].ID)
			})
		})

		Convey("When laps are recorded", func() {
			for _, ms := range []int64{88000, 86500, 87500} {
				_, err := svc.RecordLap(ctx, model.LapRecord{DriverID: "d1", CarID: "gt4", TrackID: "suzuka", ElapsedMS: ms})
				So(err, ShouldBeNil)
			}

			Convey("Then the standings survive the round trip through sqlite", func() {
				st, err := svc.Standings(ctx, leaderboard.Query{Scope: model.Scope{CarID: "gt4", TrackID: "suzuka"}})
				So(err, ShouldBeNil)
				So(st.Leaderboard, ShouldHaveLength, 1)
				So(st.Leaderboard[0].BestTimeMS, ShouldEqual, int64(86500))
				So(*st.Statistics.AverageTimeMS, ShouldEqual, int64(87333))
			})
		})
	})
}
