package captcha_test

import (
	"context"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore/credstoremem"
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/captcha"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixed always asks the same question
type fixed struct{ problem, answer string }

func (f fixed) Generate() (string, string) { return f.problem, f.answer }

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want int
	}{
		{"12+34", 46},
		{"12+34*2", 80},
		{"90/15-10", -4},
		{"10-20-30", -40},
		{"48/12/2", 2},
		{"11*12/66", 2},
	}
	for _, tc := range cases {
		got, err := captcha.Evaluate(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}

	for _, bad := range []string{"", "1+", "+1", "10/3", "1 + 2", "4/0"} {
		_, err := captcha.Evaluate(bad)
		assert.Error(t, err, bad)
	}
}

func TestMathCaptcha_GeneratesSolvableProblems(t *testing.T) {
	m := captcha.NewMathCaptcha(3, rand.New(rand.NewPCG(1, 2)))

	for i := 0; i < 500; i++ {
		problem, answer := m.Generate()
		got, err := captcha.Evaluate(problem)
		require.NoError(t, err, problem)
		assert.Equal(t, answer, strconv.Itoa(got), problem)
	}
}

func TestService_CheckValue(t *testing.T) {
	ctx := context.Background()
	svc := captcha.NewService(fixed{"12+30", "42"}, credstoremem.New(), 1, time.Minute)

	ok, err := svc.CheckValue(ctx, "1.2.3.4", "anything")
	require.NoError(t, err)
	assert.True(t, ok, "no outstanding challenge passes")

	problem, err := svc.GenerateProblem(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "12+30", problem)

	ok, err = svc.CheckValue(ctx, "1.2.3.4", "41")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.CheckValue(ctx, "1.2.3.4", "42")
	require.NoError(t, err)
	assert.True(t, ok)

	prev, found, err := svc.Unblock(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", prev)

	ok, err = svc.CheckValue(ctx, "1.2.3.4", "wrong")
	require.NoError(t, err)
	assert.True(t, ok, "after unblock any answer passes again")
}

func TestService_ChallengeExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	store := credstoremem.NewWithClock(func() time.Time { return now })
	svc := captcha.NewService(fixed{"12+30", "42"}, store, 1, 60*time.Second)

	_, err := svc.GenerateProblem(ctx, "ip")
	require.NoError(t, err)

	blocked, err := svc.IsBlocked(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, blocked)

	now = now.Add(60 * time.Second)
	blocked, err = svc.IsBlocked(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestService_SolveRegeneratesAfterMaxCount(t *testing.T) {
	ctx := context.Background()
	svc := captcha.NewService(fixed{"12+30", "42"}, credstoremem.New(), 2, time.Minute)

	_, err := svc.GenerateProblem(ctx, "ip")
	require.NoError(t, err)

	err = svc.Solve(ctx, "ip", "1")
	require.True(t, errx.HasCode(err, captcha.CodeNotValid))
	var e *errx.Error
	require.ErrorAs(t, err, &e)
	assert.NotContains(t, e.Details, "captcha")

	err = svc.Solve(ctx, "ip", "2")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "12+30", e.Details["captcha"])

	require.NoError(t, svc.Solve(ctx, "ip", "42"))

	blocked, err := svc.IsBlocked(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, blocked)
}
