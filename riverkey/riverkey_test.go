package riverkey_test

import (
	"testing"

	"github.com/eastein/riverfish/riverkey"
)

func TestRiver(t *testing.T) {
	s := riverkey.For("abc")
	if got, want := s.River(), "t:abc:rn"; got != want {
		t.Errorf("River() = %q, want %q", got, want)
	}
}

func TestNode(t *testing.T) {
	s := riverkey.For("abc")
	tests := []struct {
		g, k int64
		want string
	}{
		{10_000_000, 3, "t:abc:in:10000000:0"},
		{10_000_000, 10_000_003, "t:abc:in:10000000:1"},
		{100, 250, "t:abc:in:100:2"},
	}
	for _, test := range tests {
		if got := s.Node(test.g, test.k); got != test.want {
			t.Errorf("Node(%d, %d) = %q, want %q", test.g, test.k, got, test.want)
		}
	}
}

func TestBucketNegative(t *testing.T) {
	if got, want := riverkey.Bucket(10, -5), int64(-1); got != want {
		t.Errorf("Bucket(10, -5) = %d, want %d", got, want)
	}
	if got, want := riverkey.Bucket(10, -10), int64(-1); got != want {
		t.Errorf("Bucket(10, -10) = %d, want %d", got, want)
	}
}

func TestBase(t *testing.T) {
	if got, want := riverkey.Base(10, -1), int64(-10); got != want {
		t.Errorf("Base(10, -1) = %d, want %d", got, want)
	}
}
