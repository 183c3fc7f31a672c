package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRunStore(t *testing.T) {
	Convey("Given a run store with a one hour TTL", t, func() {
		clk := &clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
		s := New(WithTTL(time.Hour), WithClock(clk.Now))

		Convey("When a run is stored", func() {
			rec, err := s.Put("bv", map[string]string{"secret": "1011"}, map[string]interface{}{"recovered": "1011"})
			So(err, ShouldBeNil)
			So(rec.ID, ShouldNotEqual, uuid.Nil)
			So(rec.ExpiresAt.Equal(rec.CreatedAt.Add(time.Hour)), ShouldBeTrue)

			Convey("It can be fetched with its payload intact", func() {
				got, err := s.Get(rec.ID)
				So(err, ShouldBeNil)
				So(got.Kind, ShouldEqual, "bv")
				So(string(got.Input), ShouldEqual, `{"secret":"1011"}`)
				So(string(got.Output), ShouldEqual, `{"recovered":"1011"}`)
				So(got.CreatedAt.Equal(rec.CreatedAt), ShouldBeTrue)
			})

			Convey("It is listed", func() {
				list := s.List("")
				So(len(list), ShouldEqual, 1)
				So(list[0].ID, ShouldEqual, rec.ID)
				So(len(s.List("bb84")), ShouldEqual, 0)
			})

			Convey("Delete removes it", func() {
				So(s.Delete(rec.ID), ShouldBeNil)
				_, err := s.Get(rec.ID)
				So(errors.Is(err, ErrRunNotFound), ShouldBeTrue)
				So(errors.Is(s.Delete(rec.ID), ErrRunNotFound), ShouldBeTrue)
			})

			Convey("After the TTL it expires and is cleaned up", func() {
				clk.Advance(time.Hour + time.Second)

				_, err := s.Get(rec.ID)
				So(errors.Is(err, ErrRunExpired), ShouldBeTrue)
				So(len(s.List("")), ShouldEqual, 0)

				So(s.CleanupExpired(), ShouldEqual, 1)
				So(s.Len(), ShouldEqual, 0)
				_, err = s.Get(rec.ID)
				So(errors.Is(err, ErrRunNotFound), ShouldBeTrue)
			})
		})

		Convey("Runs are listed oldest first and filtered by kind", func() {
			first, _ := s.Put("qpe", 1, 2)
			clk.Advance(time.Minute)
			second, _ := s.Put("bb84", 3, 4)
			clk.Advance(time.Minute)
			third, _ := s.Put("qpe", 5, 6)

			all := s.List("")
			So(len(all), ShouldEqual, 3)
			So(all[0].ID, ShouldEqual, first.ID)
			So(all[1].ID, ShouldEqual, second.ID)
			So(all[2].ID, ShouldEqual, third.ID)

			qpe := s.List("qpe")
			So(len(qpe), ShouldEqual, 2)
		})

		Convey("Unmarshalable payloads are rejected", func() {
			_, err := s.Put("bad", make(chan int), nil)
			So(err, ShouldNotBeNil)
			So(s.Len(), ShouldEqual, 0)
		})

		Convey("Concurrent writers do not lose runs", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = s.Put("rotate", i, i)
				}(i)
			}
			wg.Wait()
			So(s.Len(), ShouldEqual, 50)
		})
	})
}

func TestJanitor(t *testing.T) {
	Convey("Given a store whose runs expire immediately", t, func() {
		clk := &clock{now: time.Now()}
		s := New(WithTTL(time.Millisecond), WithClock(clk.Now))
		_, err := s.Put("bell", nil, nil)
		So(err, ShouldBeNil)
		clk.Advance(time.Second)

		Convey("The janitor removes them and stops with its context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				s.Janitor(ctx, 5*time.Millisecond)
				close(done)
			}()

			deadline := time.After(2 * time.Second)
			for s.Len() > 0 {
				select {
				case <-deadline:
					t.Fatal("janitor did not clean up")
				case <-time.After(5 * time.Millisecond):
				}
			}
			cancel()
			<-done
			So(s.Len(), ShouldEqual, 0)
		})
	})
}
