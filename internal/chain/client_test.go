package chain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRangeTooLarge(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"query returned too many results", errors.New("query returned more than 10000 results"), true},
		{"block range too large", fmt.Errorf("rpc error: %s", "block range is too large"), true},
		{"unrelated error", errors.New("connection reset by peer"), false},
		{"mixed case", errors.New("Query Returned More Than 10000 Results"), true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsRangeTooLarge(c.err); got != c.want {
				t.Fatalf("IsRangeTooLarge(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}
