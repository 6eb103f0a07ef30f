package model_test

import (
	"testing"

	model "github.com/okian/cadence/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestHitKind(t *testing.T) {
	convey.Convey("Given the hit kinds", t, func() {
		convey.Convey("When parsing their configuration names", func() {
			convey.Convey("Then every kind should round trip", func() {
				for _, k := range model.Kinds {
					parsed, ok := model.ParseHitKind(k.String())
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(parsed, convey.ShouldEqual, k)
				}
			})

			convey.Convey("And unknown names should be rejected", func() {
				_, ok := model.ParseHitKind("great")
				convey.So(ok, convey.ShouldBeFalse)
				_, ok = model.ParseHitKind("none")
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a circle is created with zero values", func() {
			var c model.HitCircle

			convey.Convey("Then it should be pending and unjudged", func() {
				convey.So(c.State, convey.ShouldEqual, model.Pending)
				convey.So(c.Result, convey.ShouldEqual, model.KindNone)
				convey.So(c.State.String(), convey.ShouldEqual, "pending")
			})
		})
	})
}

func TestScoreState(t *testing.T) {
	convey.Convey("Given a score state with counters", t, func() {
		s := model.ScoreState{Perfects: 3, Goods: 2, Bads: 1, Misses: 4}

		convey.Convey("Then Judged should sum every counter", func() {
			convey.So(s.Judged(), convey.ShouldEqual, 10)
		})

		convey.Convey("Then Count should select by kind", func() {
			convey.So(s.Count(model.Perfect), convey.ShouldEqual, 3)
			convey.So(s.Count(model.Good), convey.ShouldEqual, 2)
			convey.So(s.Count(model.Bad), convey.ShouldEqual, 1)
			convey.So(s.Count(model.Miss), convey.ShouldEqual, 4)
			convey.So(s.Count(model.KindNone), convey.ShouldEqual, 0)
		})
	})
}
