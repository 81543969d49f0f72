package queue

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgepath/queue/internal/observability"
	"github.com/ridgepath/queue/internal/queueerr"
)

// panicRollStrategy is a fault-injecting RollStrategy used to force the
// I/O worker to panic mid-event, for exercising Shutdown's panic-surfacing
// path.
type panicRollStrategy struct{}

func (panicRollStrategy) ShouldRoll(uint64, time.Duration, uint64) bool {
	panic("synthetic roll strategy fault")
}

func testConfig(base string) Config {
	return Config{
		BasePath: base,
		FileSize: 1 << 20, // 1 MiB
		FlushMode: FlushMode{Kind: FlushSync},
		Logger:   observability.NewNoOpLogger(),
	}
}

func drainAll(t *testing.T, tailer *Tailer) []*Message {
	t.Helper()
	var out []*Message
	for {
		msg, err := tailer.Next()
		require.NoError(t, err)
		if msg == nil {
			return out
		}
		out = append(out, msg)
	}
}

// Scenario 1: write and read 100 messages.
func TestScenarioWriteAndRead100Messages(t *testing.T) {
	base := t.TempDir()
	q, err := Open(testConfig(base))
	require.NoError(t, err)

	appender := q.CreateAppender()
	for i := 0; i < 100; i++ {
		seq, err := appender.Append([]byte(fmt.Sprintf("message-%04d", i)))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), seq)
	}

	require.NoError(t, q.Shutdown())

	tailer, err := q.CreateTailer()
	require.NoError(t, err)
	defer tailer.Close()

	msgs := drainAll(t, tailer)
	require.Len(t, msgs, 100)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i), msg.Sequence)
		assert.Equal(t, fmt.Sprintf("message-%04d", i), string(msg.Payload))
	}
}

// Scenario 2: recovery across a restart.
func TestScenarioRecoveryAcrossRestart(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(base)

	q1, err := Open(cfg)
	require.NoError(t, err)
	a1 := q1.CreateAppender()
	for i := 0; i < 50; i++ {
		_, err := a1.Append([]byte(fmt.Sprintf("message-%04d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, q1.Shutdown())

	q2, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), q2.CurrentSequence())

	a2 := q2.CreateAppender()
	for i := 50; i < 100; i++ {
		seq, err := a2.Append([]byte(fmt.Sprintf("message-%04d", i)))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), seq)
	}
	require.NoError(t, q2.Shutdown())

	tailer, err := NewTailer(base)
	require.NoError(t, err)
	defer tailer.Close()

	msgs := drainAll(t, tailer)
	require.Len(t, msgs, 100)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i), msg.Sequence)
		assert.Equal(t, fmt.Sprintf("message-%04d", i), string(msg.Payload))
	}
}

// Scenario 3: batch append.
func TestScenarioBatchAppend(t *testing.T) {
	base := t.TempDir()
	q, err := Open(testConfig(base))
	require.NoError(t, err)

	appender := q.CreateAppender()
	items := make([][]byte, 10)
	for i := range items {
		items[i] = []byte(fmt.Sprintf("batch-msg-%d", i))
	}
	seqs, err := appender.AppendBatch(items)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seqs)

	require.NoError(t, q.Shutdown())

	tailer, err := q.CreateTailer()
	require.NoError(t, err)
	defer tailer.Close()

	msgs := drainAll(t, tailer)
	require.Len(t, msgs, 10)
	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprintf("batch-msg-%d", i), string(msg.Payload))
	}
}

// Scenario 4: seek via sparse index.
func TestScenarioSeekViaSparseIndex(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(base)
	cfg.IndexInterval = 10

	q, err := Open(cfg)
	require.NoError(t, err)
	appender := q.CreateAppender()
	for i := 0; i < 100; i++ {
		_, err := appender.Append([]byte(fmt.Sprintf("seek-msg-%04d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, q.Shutdown())

	tailer, err := q.CreateTailerAt(50)
	require.NoError(t, err)
	defer tailer.Close()

	msg, err := tailer.Next()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, uint64(50), msg.Sequence)
	assert.Equal(t, "seek-msg-0050", string(msg.Payload))
}

// Scenario 5: file rolling by count.
func TestScenarioFileRollingByCount(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(base)
	cfg.FileSize = 1024
	cfg.RollStrategy = RollByCount(10)

	q, err := Open(cfg)
	require.NoError(t, err)
	appender := q.CreateAppender()
	for i := 0; i < 25; i++ {
		_, err := appender.Append([]byte(fmt.Sprintf("m-%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, q.Shutdown())

	files, err := scanDataFiles(base)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	tailer, err := NewTailer(base)
	require.NoError(t, err)
	defer tailer.Close()

	msgs := drainAll(t, tailer)
	require.Len(t, msgs, 25)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i), msg.Sequence)
	}
}

// Boundary: an empty base path yields current_sequence() == 0 and a tailer
// whose first read returns nil.
func TestEmptyQueueBoundary(t *testing.T) {
	base := t.TempDir()
	q, err := Open(testConfig(base))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), q.CurrentSequence())

	tailer, err := q.CreateTailer()
	require.NoError(t, err)
	defer tailer.Close()

	msg, err := tailer.Next()
	require.NoError(t, err)
	assert.Nil(t, msg)

	require.NoError(t, q.Shutdown())
}

// Boundary: a zero-length payload is allowed and round-trips.
func TestZeroLengthPayload(t *testing.T) {
	base := t.TempDir()
	q, err := Open(testConfig(base))
	require.NoError(t, err)

	appender := q.CreateAppender()
	seq, err := appender.Append(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)

	require.NoError(t, q.Shutdown())

	tailer, err := q.CreateTailer()
	require.NoError(t, err)
	defer tailer.Close()

	msg, err := tailer.Next()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Empty(t, msg.Payload)
}

// Property: concurrent appenders hand out the dense set {0..N-1} with no
// duplicates.
func TestConcurrentAppendersAssignDenseSequences(t *testing.T) {
	base := t.TempDir()
	q, err := Open(testConfig(base))
	require.NoError(t, err)

	const appenders = 8
	const perAppender = 50

	var wg sync.WaitGroup
	seqCh := make(chan uint64, appenders*perAppender)
	for i := 0; i < appenders; i++ {
		wg.Add(1)
		a := q.CreateAppender()
		go func() {
			defer wg.Done()
			for j := 0; j < perAppender; j++ {
				seq, err := a.Append([]byte("x"))
				assert.NoError(t, err)
				seqCh <- seq
			}
		}()
	}
	wg.Wait()
	close(seqCh)

	var seqs []uint64
	for s := range seqCh {
		seqs = append(seqs, s)
	}
	require.NoError(t, q.Shutdown())

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	require.Len(t, seqs, appenders*perAppender)
	for i, s := range seqs {
		assert.Equal(t, uint64(i), s)
	}
}

// Property: after shutdown, reopening yields the same current_sequence.
func TestShutdownThenReopenPreservesSequence(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(base)

	q, err := Open(cfg)
	require.NoError(t, err)
	appender := q.CreateAppender()
	for i := 0; i < 17; i++ {
		_, err := appender.Append([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, q.Shutdown())

	q2, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), q2.CurrentSequence())
	require.NoError(t, q2.Shutdown())
}

func TestAppendAfterShutdownReturnsError(t *testing.T) {
	base := t.TempDir()
	q, err := Open(testConfig(base))
	require.NoError(t, err)

	appender := q.CreateAppender()
	require.NoError(t, q.Shutdown())

	_, err = appender.Append([]byte("too late"))
	require.Error(t, err)
}

// Shutdown surfaces a panicking worker as a KindInternal error, mirroring a
// thread join reporting a panic across the boundary.
func TestShutdownSurfacesWorkerPanicAsInternal(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(base)
	cfg.RollStrategy = panicRollStrategy{}

	q, err := Open(cfg)
	require.NoError(t, err)

	appender := q.CreateAppender()
	_, err = appender.Append([]byte("boom"))
	require.NoError(t, err) // enqueue succeeds; the panic happens on the worker side

	err = q.Shutdown()
	require.Error(t, err)
	var qerr *queueerr.Error
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, queueerr.KindInternal, qerr.Kind)
}

func TestSweepRemovesRolledFilesByCount(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(base)
	cfg.FileSize = 1024
	cfg.RollStrategy = RollByCount(5)

	q, err := Open(cfg)
	require.NoError(t, err)
	appender := q.CreateAppender()
	for i := 0; i < 22; i++ {
		_, err := appender.Append([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, q.Shutdown())

	filesBefore, err := scanDataFiles(base)
	require.NoError(t, err)
	require.Len(t, filesBefore, 5)

	removed, err := q.Sweep(RetentionOptions{MaxFiles: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	filesAfter, err := scanDataFiles(base)
	require.NoError(t, err)
	assert.Len(t, filesAfter, 2) // one rolled file kept, plus the active file
}
