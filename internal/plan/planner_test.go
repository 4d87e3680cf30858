package plan

import (
	"context"
	"strings"
	"unicode/utf8"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilobridge/kilobridge/internal/chat"
	"github.com/kilobridge/kilobridge/internal/provider"
)

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   [][]chat.Message
	opts    []provider.Options
}

func (s *scriptedCompleter) Complete(ctx context.Context, messages []chat.Message, opts provider.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.calls)
	s.calls = append(s.calls, messages)
	s.opts = append(s.opts, opts)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return s.replies[len(s.replies)-1], nil
}

func fastOptions() Options {
	return Options{MaxAttempts: 3, Temperature: 0.2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestPlan(t *testing.T) {
	c := &scriptedCompleter{replies: []string{`{"plan":["Add a route","Write tests"],"summary":"Two steps"}`}}
	p := New(c, fastOptions())

	res, err := p.Plan(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "add login"}})
	require.NoError(t, err)

	assert.Equal(t, Result{Plan: []string{"Add a route", "Write tests"}, Summary: "Two steps"}, res)
	require.Len(t, c.calls, 1)
	assert.Equal(t, chat.RoleSystem, c.calls[0][0].Role)
	assert.Contains(t, c.calls[0][0].Content, "senior software planner")
	assert.Equal(t, chat.Message{Role: chat.RoleUser, Content: "add login"}, c.calls[0][1])
	assert.True(t, c.opts[0].JSONMode)
	require.NotNil(t, c.opts[0].Temperature)
	assert.InDelta(t, 0.2, *c.opts[0].Temperature, 1e-9)
}

func TestPlan_RetriesRateLimit(t *testing.T) {
	c := &scriptedCompleter{
		errs: []error{
			&provider.Error{Kind: provider.KindRateLimited, Message: "slow down"},
			&provider.Error{Kind: provider.KindTransport, Message: "reset"},
		},
		replies: []string{"", "", `{"plan":["x"]}`},
	}

	res, err := New(c, fastOptions()).Plan(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, res.Plan)
	assert.Len(t, c.calls, 3)
}

func TestPlan_GivesUpAfterMaxAttempts(t *testing.T) {
	rl := &provider.Error{Kind: provider.KindRateLimited, Message: "slow down"}
	c := &scriptedCompleter{errs: []error{rl, rl, rl, rl}, replies: []string{""}}

	_, err := New(c, fastOptions()).Plan(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, provider.KindRateLimited, provider.KindOf(err))
	assert.Len(t, c.calls, 3)
}

func TestPlan_DoesNotRetryPermanentErrors(t *testing.T) {
	c := &scriptedCompleter{
		errs:    []error{&provider.Error{Kind: provider.KindInvalidCredentials, Message: "bad key"}},
		replies: []string{""},
	}

	_, err := New(c, fastOptions()).Plan(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, provider.KindInvalidCredentials, provider.KindOf(err))
	assert.Len(t, c.calls, 1)
}

func TestPlan_ContextCancelledDuringBackoff(t *testing.T) {
	rl := &provider.Error{Kind: provider.KindRateLimited, Message: "slow down"}
	c := &scriptedCompleter{errs: []error{rl, rl, rl}, replies: []string{""}}
	opts := fastOptions()
	opts.InitialInterval = time.Minute
	opts.MaxInterval = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(c, opts).Plan(ctx, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, c.calls, 1)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"strings", `{"plan":["a","b"]}`, []string{"a", "b"}},
		{"invalid json", `not json`, []string{}},
		{"missing plan", `{"summary":"x"}`, []string{}},
		{"plan not a list", `{"plan":"do it"}`, []string{}},
		{"top-level array", `["a"]`, []string{}},
		{"non-string steps", `{"plan":[1,{"step":"x"},true]}`, []string{"1", `{"step":"x"}`, "true"}},
		{"markup stripped", `{"plan":["<b>Run</b> the &amp; tests","<script>x</script>"]}`, []string{"Run the & tests"}},
		{"blank steps dropped", `{"plan":["  ","ok",null]}`, []string{"ok"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "Two steps", Summary(`{"summary":"Two steps"}`))
	assert.Equal(t, "", Summary(`{"summary":3}`))
	assert.Equal(t, "", Summary(`nope`))
}

func TestNormalize_LongStepIsCapped(t *testing.T) {
	long := strings.Repeat("x", MaxStepLength+50)
	steps := Normalize(`{"plan":["` + long + `"]}`)
	require.Len(t, steps, 1)
	assert.Equal(t, MaxStepLength, utf8.RuneCountInString(steps[0]))
}
