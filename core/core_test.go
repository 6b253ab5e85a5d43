// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"bytes"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestIDs(t *testing.T) {
	c := qt.New(t)

	ids := NewIDs(10)
	c.Assert(ids.Next(), qt.Equals, uint32(10))
	c.Assert(ids.Next(), qt.Equals, uint32(11))
	c.Assert(ids.Reserve(3), qt.Equals, uint32(12))
	c.Assert(ids.Next(), qt.Equals, uint32(15))
}

func TestIDsConcurrent(t *testing.T) {
	ids := NewIDs(0)
	seen := make(chan uint32, 100)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				seen <- ids.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[uint32]bool)
	for id := range seen {
		unique[id] = true
	}
	qt.Assert(t, unique, qt.HasLen, 100)
}

func TestLoggerLevel(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	logger, err := newLogger(LogConfiguration{Level: "warning"}, &buf)
	c.Assert(err, qt.IsNil)

	Component(logger, "registry", 7).Info("hidden")
	Component(logger, "registry", 7).Warn("shown")
	c.Assert(buf.String(), qt.Not(qt.Contains), "hidden")
	c.Assert(buf.String(), qt.Contains, "shown")
	c.Assert(buf.String(), qt.Contains, "component=registry")
	c.Assert(buf.String(), qt.Contains, "instance=7")

	_, err = newLogger(LogConfiguration{Level: "loud"}, &buf)
	c.Assert(err, qt.ErrorIs, ErrConfiguration)
}

func TestFrameInterval(t *testing.T) {
	c := qt.New(t)

	c.Assert(FrameInterval(0), qt.Equals, time.Nanosecond)
	c.Assert(FrameInterval(50), qt.Equals, 20*time.Millisecond)
}

func TestTimeTickers(t *testing.T) {
	tm := NewTime(TimeConfiguration{FramesPerSecond: 1000, EventPollDelay: 1})
	defer tm.Stop()

	qt.Assert(t, tm.Fps(), qt.Equals, 1000)
	select {
	case <-tm.FpsTicker().C:
	case <-time.After(time.Second):
		t.Fatal("fps ticker did not fire")
	}
	select {
	case <-tm.EventTicker().C:
	case <-time.After(time.Second):
		t.Fatal("event ticker did not fire")
	}
}
