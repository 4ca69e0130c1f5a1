package groutine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/blesense/internal/groutine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoCarriesName(t *testing.T) {
	got := make(chan string, 1)
	groutine.Go(nil, "advertiser", func(ctx context.Context) {
		got <- groutine.Name(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "advertiser", name, "context MUST carry the goroutine name")
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGoErrReportsFailures(t *testing.T) {
	boom := errors.New("boom")
	errs := make(chan error, 2)

	groutine.GoErr(context.Background(), "worker", func(ctx context.Context) error { return boom }, func(err error) { errs <- err })
	groutine.GoErr(context.Background(), "panicker", func(ctx context.Context) error { panic("bad") }, func(err error) { errs <- err })

	var got []error
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			got = append(got, err)
		case <-time.After(time.Second):
			t.Fatal("worker error not reported")
		}
	}

	var wrapped, panicked bool
	for _, err := range got {
		if errors.Is(err, boom) {
			wrapped = true
			assert.Contains(t, err.Error(), "worker:", "error MUST be prefixed with the goroutine name")
		} else {
			panicked = true
			assert.Contains(t, err.Error(), "panicker panicked: bad")
		}
	}
	require.True(t, wrapped, "returned error MUST be reported")
	require.True(t, panicked, "panic MUST be reported")
}

func TestNameWithoutLabel(t *testing.T) {
	assert.Equal(t, "", groutine.Name(context.Background()))
}
