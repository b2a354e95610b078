package debounce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

type recorder struct {
	mu     sync.Mutex
	values map[string][]string
}

func newRecorder() *recorder { return &recorder{values: map[string][]string{}} }

func (r *recorder) commit(group, value string) Func {
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.values[group] = append(r.values[group], value)
		return nil
	}
}

func (r *recorder) get(group string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values[group]...)
}

func TestDebouncer_RapidEditsCommitOnceWithLastValue(t *testing.T) {
	d := New(30*time.Millisecond, testLogger())
	defer d.Close()
	rec := newRecorder()

	for _, v := range []string{"H", "He", "Hel", "Hell", "Hello"} {
		d.Trigger("prompt", rec.commit("prompt", v))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(rec.get("prompt")) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"Hello"}, rec.get("prompt"))
}

func TestDebouncer_GroupsAreIndependent(t *testing.T) {
	d := New(20*time.Millisecond, testLogger())
	defer d.Close()
	rec := newRecorder()

	d.Trigger("prompt", rec.commit("prompt", "p1"))
	d.Trigger("model", rec.commit("model", "m1"))
	d.Trigger("prompt", rec.commit("prompt", "p2"))

	require.Eventually(t, func() bool {
		return len(rec.get("prompt")) == 1 && len(rec.get("model")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"p2"}, rec.get("prompt"))
	assert.Equal(t, []string{"m1"}, rec.get("model"))
}

func TestDebouncer_FlushRunsSynchronously(t *testing.T) {
	d := New(time.Hour, testLogger())
	defer d.Close()
	rec := newRecorder()

	d.Trigger("voice", rec.commit("voice", "a"))
	d.Trigger("tools", rec.commit("tools", "b"))
	assert.Equal(t, []string{"tools", "voice"}, d.Groups())

	require.NoError(t, d.Flush("voice"))
	assert.Equal(t, []string{"a"}, rec.get("voice"))
	assert.False(t, d.Pending("voice"))
	assert.True(t, d.Pending("tools"))

	require.NoError(t, d.FlushAll())
	assert.Equal(t, []string{"b"}, rec.get("tools"))
	assert.Empty(t, d.Groups())

	assert.NoError(t, d.Flush("voice"))
}

func TestDebouncer_CancelDropsCommit(t *testing.T) {
	d := New(20*time.Millisecond, testLogger())
	defer d.Close()
	rec := newRecorder()

	d.Trigger("knowledge", rec.commit("knowledge", "x"))
	d.Cancel("knowledge")
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.get("knowledge"))
}

func TestDebouncer_CloseCancelsPendingAndIgnoresTriggers(t *testing.T) {
	d := New(20*time.Millisecond, testLogger())
	rec := newRecorder()

	d.Trigger("model", rec.commit("model", "stale"))
	d.Close()
	d.Trigger("model", rec.commit("model", "late"))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.get("model"))
	assert.False(t, d.Pending("model"))
	assert.NoError(t, d.Flush("model"))
}

func TestDebouncer_ErrorCallbackKeepsGoing(t *testing.T) {
	d := New(10*time.Millisecond, testLogger())
	defer d.Close()

	var failures atomic.Int32
	var gotGroup atomic.Value
	d.OnError(func(group string, err error) {
		failures.Add(1)
		gotGroup.Store(group)
	})

	boom := errors.New("backend down")
	d.Trigger("transfer", func(context.Context) error { return boom })
	require.Eventually(t, func() bool { return failures.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "transfer", gotGroup.Load())

	d.Trigger("transfer", func(context.Context) error { return boom })
	assert.ErrorIs(t, d.Flush("transfer"), boom)
	assert.Equal(t, int32(2), failures.Load())
}

func TestDebouncer_CommitsOfOneGroupDoNotOverlap(t *testing.T) {
	d := New(time.Hour, testLogger())
	defer d.Close()

	var inFlight, maxInFlight atomic.Int32
	slow := func(context.Context) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Trigger("model", slow)
			_ = d.Flush("model")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestDebouncer_DefaultWait(t *testing.T) {
	d := New(0, testLogger())
	defer d.Close()
	assert.Equal(t, DefaultWait, d.wait)
}

func TestDebouncer_RunWaitsForRunningCommit(t *testing.T) {
	d := New(50*time.Millisecond, testLogger())
	defer d.Close()
	rec := newRecorder()

	entered := make(chan struct{})
	release := make(chan struct{})
	d.Trigger("prompt", func(ctx context.Context) error {
		close(entered)
		<-release
		return rec.commit("prompt", "debounced")(ctx)
	})
	<-entered

	d.Trigger("prompt", rec.commit("prompt", "stale"))
	ran := make(chan error, 1)
	go func() { ran <- d.Run("prompt", rec.commit("prompt", "manual")) }()

	select {
	case <-ran:
		t.Fatal("run overlapped the running commit")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-ran)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{"debounced", "manual"}, rec.get("prompt"))
	assert.False(t, d.Pending("prompt"))
}

func TestDebouncer_RunAfterClose(t *testing.T) {
	d := New(10*time.Millisecond, testLogger())
	d.Close()
	assert.ErrorIs(t, d.Run("prompt", newRecorder().commit("prompt", "x")), ErrClosed)
}
