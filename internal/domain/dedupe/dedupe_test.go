package dedupe_test

import (
	"context"
	"sync"
	"testing"

	"github.com/okian/cadence/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLedger(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new ledger", t, func() {
		l := dedupe.NewLedger(dedupe.WithCapacity(16))

		Convey("Then it should be empty", func() {
			So(l.Size(), ShouldEqual, 0)
		})

		Convey("When a circle id is recorded", func() {
			first := l.SeenAndRecord(ctx, 3)
			second := l.SeenAndRecord(ctx, 3)

			Convey("Then only the first call should report it as new", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(l.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the ledger is reset", func() {
			for id := uint64(0); id < 10; id++ {
				l.SeenAndRecord(ctx, id)
			}
			l.Reset(ctx)

			Convey("Then every id should be forgotten", func() {
				So(l.Size(), ShouldEqual, 0)
				So(l.SeenAndRecord(ctx, 5), ShouldBeFalse)
			})
		})

		Convey("When many goroutines record the same ids", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for id := uint64(0); id < 100; id++ {
						if !l.SeenAndRecord(ctx, id) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each id should be new exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(l.Size(), ShouldEqual, 100)
			})
		})
	})
}
