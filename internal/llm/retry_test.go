package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/contractops/msa-extractor/internal/common"
)

func newTestRetrier(maxRetries int) (*Retrier, *[]time.Duration) {
	r := NewRetrier(maxRetries, 100*time.Millisecond, time.Second, nil)
	var slept []time.Duration
	r.sleep = func(d time.Duration) { slept = append(slept, d) }
	return r, &slept
}

func TestDo_TransientFailuresThenSuccess(t *testing.T) {
	r, slept := newTestRetrier(3)

	calls := 0
	out, err := r.Do(context.Background(), "text_llm", func() (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("http 429 too many requests")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if out != "ok" {
		t.Fatalf("out = %q, want %q", out, "ok")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("sleep calls = %d, want 2", len(*slept))
	}
	if (*slept)[1] < (*slept)[0] {
		t.Fatalf("second delay %v < first %v, want non-decreasing backoff", (*slept)[1], (*slept)[0])
	}
}

func TestDo_ExhaustionNamesAttemptCount(t *testing.T) {
	r, slept := newTestRetrier(3)

	calls := 0
	_, err := r.Do(context.Background(), "text_llm", func() (string, error) {
		calls++
		return "", errors.New("service unavailable")
	})
	if !errors.Is(err, common.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4 (3 retries)", calls)
	}
	if len(*slept) != 3 {
		t.Fatalf("sleep calls = %d, want 3", len(*slept))
	}
	if !strings.Contains(err.Error(), "after 4 attempts") {
		t.Fatalf("error %q does not name the attempt count", err.Error())
	}
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	r, slept := newTestRetrier(3)

	calls := 0
	_, err := r.Do(context.Background(), "text_llm", func() (string, error) {
		calls++
		return "", errors.New("invalid api key")
	})
	if !errors.Is(err, common.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on non-transient)", calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("sleep calls = %d, want 0", len(*slept))
	}
}

func TestDo_DelayDoublesAndCaps(t *testing.T) {
	r := NewRetrier(5, 300*time.Millisecond, time.Second, nil)
	var slept []time.Duration
	r.sleep = func(d time.Duration) { slept = append(slept, d) }

	_, _ = r.Do(context.Background(), "text_llm", func() (string, error) {
		return "", errors.New("gateway timeout")
	})
	want := []time.Duration{
		300 * time.Millisecond,
		600 * time.Millisecond,
		time.Second,
		time.Second,
		time.Second,
	}
	if len(slept) != len(want) {
		t.Fatalf("sleep calls = %d, want %d", len(slept), len(want))
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestDo_CanceledContext(t *testing.T) {
	r, _ := newTestRetrier(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Do(ctx, "text_llm", func() (string, error) {
		t.Fatal("fn must not run with canceled context")
		return "", nil
	})
	if !errors.Is(err, common.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestIsTransient_KeywordsAndTypes(t *testing.T) {
	r, _ := newTestRetrier(0)

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", errors.New("Rate Limit exceeded"), true},
		{"quota", errors.New("insufficient quota remaining"), true},
		{"status 503", errors.New("upstream returned 503"), true},
		{"deadline", errors.New("context deadline exceeded"), true},
		{"auth failure", errors.New("invalid api key"), false},
		{"bad request", errors.New("model not found"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.isTransient(tc.err); got != tc.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
