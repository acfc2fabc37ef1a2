package captcha

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
)

const (
	minOperand = 10
	maxOperand = 99
)

var operators = []byte{'+', '-', '*', '/'}

// Generator produces a challenge and its expected answer.
type Generator interface {
	Generate() (problem, answer string)
}

// MathCaptcha builds arithmetic problems such as "34*12-57" over two-digit
// operands. Division is always exact so every answer is an integer.
type MathCaptcha struct {
	members int

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand
}

// NewMathCaptcha creates a generator with the given number of operands
// (at least two) drawing from rnd. A nil rnd uses a randomly seeded source.
func NewMathCaptcha(members int, rnd *rand.Rand) *MathCaptcha {
	if members < 2 {
		members = 2
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &MathCaptcha{members: members, rnd: rnd}
}

// Generate returns a problem and its integer answer as a decimal string.
func (m *MathCaptcha) Generate() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nums := make([]int, m.members)
	for i := range nums {
		nums[i] = minOperand + m.rnd.IntN(maxOperand-minOperand+1)
	}
	ops := make([]byte, m.members-1)
	for i := range ops {
		ops[i] = operators[m.rnd.IntN(len(operators))]
	}

	// Pick each divisor among the two-digit divisors of the running product
	// of its term. Fall back to multiplication when there are none.
	term := nums[0]
	for i, op := range ops {
		next := nums[i+1]
		switch op {
		case '*':
			term *= next
		case '/':
			divs := divisorsInRange(term)
			if len(divs) == 0 {
				ops[i] = '*'
				term *= next
				continue
			}
			nums[i+1] = divs[m.rnd.IntN(len(divs))]
			term /= nums[i+1]
		default:
			term = next
		}
	}

	var b strings.Builder
	for i, n := range nums {
		b.WriteString(strconv.Itoa(n))
		if i < len(ops) {
			b.WriteByte(ops[i])
		}
	}
	problem := b.String()

	result, err := Evaluate(problem)
	if err != nil {
		// Generate only emits expressions Evaluate accepts.
		panic(fmt.Sprintf("captcha: generated invalid problem %q: %v", problem, err))
	}
	return problem, strconv.Itoa(result)
}

func divisorsInRange(n int) []int {
	var out []int
	for d := minOperand; d <= maxOperand && d <= n; d++ {
		if n%d == 0 {
			out = append(out, d)
		}
	}
	return out
}

// Evaluate computes an expression of non-negative integers joined by + - * /
// with the usual precedence. Division must be exact.
func Evaluate(expr string) (int, error) {
	var (
		nums []int
		ops  []byte
		cur  = -1
	)
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c >= '0' && c <= '9':
			if cur < 0 {
				cur = 0
			}
			cur = cur*10 + int(c-'0')
		case strings.IndexByte("+-*/", c) >= 0:
			if cur < 0 {
				return 0, fmt.Errorf("operator %q at %d has no left operand", c, i)
			}
			nums = append(nums, cur)
			ops = append(ops, c)
			cur = -1
		default:
			return 0, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	if cur < 0 {
		return 0, fmt.Errorf("expression %q ends without an operand", expr)
	}
	nums = append(nums, cur)

	total, sign := 0, 1
	term := nums[0]
	for i, op := range ops {
		n := nums[i+1]
		switch op {
		case '*':
			term *= n
		case '/':
			if n == 0 || term%n != 0 {
				return 0, fmt.Errorf("inexact division %d/%d", term, n)
			}
			term /= n
		case '+', '-':
			total += sign * term
			sign = 1
			if op == '-' {
				sign = -1
			}
			term = n
		}
	}
	return total + sign*term, nil
}
