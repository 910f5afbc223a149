package scanner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/thermolisten/internal/testutils"
	"github.com/srg/thermolisten/scanner"
)

// fakeScanner records Start/Stop calls and flags overlapping starts.
type fakeScanner struct {
	mu        sync.Mutex
	events    []string
	running   bool
	overlap   bool
	startErrs []error
	stopErr   error
	starts    chan struct{}
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{starts: make(chan struct{}, 1024)}
}

func (f *fakeScanner) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, "start")
	defer func() { f.starts <- struct{}{} }()

	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.running {
		f.overlap = true
	}
	f.running = true
	return nil
}

func (f *fakeScanner) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, "stop")
	f.running = false
	return f.stopErr
}

func (f *fakeScanner) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeScanner) waitStarts(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.starts:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for start %d", i+1)
		}
	}
}

func runAsync(ctx context.Context, s scanner.Scanner, opts *scanner.LoopOptions) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- scanner.Run(ctx, s, opts) }()
	return errCh
}

func waitResult(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRunAlternatesStartAndStop(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	fake := newFakeScanner()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := runAsync(ctx, fake, &scanner.LoopOptions{
		Interval: 5 * time.Millisecond,
		Logger:   helper.Logger,
	})

	fake.waitStarts(t, 4)
	cancel()
	require.NoError(t, waitResult(t, errCh))

	events := fake.Events()
	require.NotEmpty(t, events)
	require.Equal(t, 0, len(events)%2, "every start is paired with a stop: %v", events)
	for i, e := range events {
		if i%2 == 0 {
			assert.Equal(t, "start", e, "event %d", i)
		} else {
			assert.Equal(t, "stop", e, "event %d", i)
		}
	}
	assert.False(t, fake.overlap, "starts must never overlap")

	restarts := 0
	for _, m := range helper.Messages(logrus.InfoLevel) {
		if m == "(re)starting scanner" {
			restarts++
		}
	}
	assert.Equal(t, len(events)/2, restarts, "one info line per cycle")
}

func TestRunStopsRunningScanOnCancel(t *testing.T) {
	fake := newFakeScanner()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := runAsync(ctx, fake, &scanner.LoopOptions{
		Interval: time.Hour,
		Logger:   testutils.NewTestHelper(t).Logger,
	})

	fake.waitStarts(t, 1)
	cancel()

	require.NoError(t, waitResult(t, errCh))
	assert.Equal(t, []string{"start", "stop"}, fake.Events())
}

func TestRunWithCancelledContextNeverStarts(t *testing.T) {
	fake := newFakeScanner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := scanner.Run(ctx, fake, &scanner.LoopOptions{Interval: time.Second})

	require.NoError(t, err)
	assert.Empty(t, fake.Events())
}

func TestRunRejectsInvalidInterval(t *testing.T) {
	err := scanner.Run(context.Background(), newFakeScanner(), &scanner.LoopOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scan interval")
}

func TestRunGivesUpAfterConsecutiveFailures(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	boom := errors.New("adapter unplugged")

	fake := newFakeScanner()
	fake.startErrs = []error{boom, boom, boom, boom}

	err := scanner.Run(context.Background(), fake, &scanner.LoopOptions{
		Interval:               time.Millisecond,
		MaxConsecutiveFailures: 3,
		Logger:                 helper.Logger,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "3 times in a row")
	assert.Equal(t, []string{"start", "start", "start"}, fake.Events(), "failed starts are not stopped")

	assert.True(t, helper.Contains("Scan cycle failed"))
	warns := helper.EntriesAt(logrus.WarnLevel)
	require.Len(t, warns, 3)
	assert.Equal(t, 3, warns[2].Data["failures"])
}

func TestRunSuccessResetsFailureCount(t *testing.T) {
	boom := errors.New("transient")

	fake := newFakeScanner()
	fake.startErrs = []error{boom, boom, nil, boom, boom, nil, boom, boom}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := runAsync(ctx, fake, &scanner.LoopOptions{
		Interval:               time.Millisecond,
		MaxConsecutiveFailures: 3,
		Logger:                 testutils.NewTestHelper(t).Logger,
	})

	fake.waitStarts(t, 8)
	cancel()

	require.NoError(t, waitResult(t, errCh), "never three failures in a row")
}

func TestRunCountsStopFailures(t *testing.T) {
	boom := errors.New("hci stop failed")

	fake := newFakeScanner()
	fake.stopErr = boom

	err := scanner.Run(context.Background(), fake, &scanner.LoopOptions{
		Interval:               time.Millisecond,
		MaxConsecutiveFailures: 2,
		Logger:                 testutils.NewTestHelper(t).Logger,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stop:")
	assert.Equal(t, []string{"start", "stop", "start", "stop"}, fake.Events())
}

func TestRunUnlimitedFailures(t *testing.T) {
	fake := newFakeScanner()
	for i := 0; i < 20; i++ {
		fake.startErrs = append(fake.startErrs, errors.New("nope"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := runAsync(ctx, fake, &scanner.LoopOptions{
		Interval:               time.Millisecond,
		MaxConsecutiveFailures: 0,
		Logger:                 testutils.NewTestHelper(t).Logger,
	})

	fake.waitStarts(t, 10)
	cancel()

	require.NoError(t, waitResult(t, errCh))
}

func TestDefaultLoopOptions(t *testing.T) {
	opts := scanner.DefaultLoopOptions()

	assert.Equal(t, 60*time.Second, opts.Interval)
	assert.Equal(t, 5, opts.MaxConsecutiveFailures)
	assert.Nil(t, opts.Logger)
}
