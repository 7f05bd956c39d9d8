package codec_test

import (
	"testing"

	"github.com/eastein/riverfish/codec"
	"github.com/google/go-cmp/cmp"
)

func TestMapRoundTrip(t *testing.T) {
	in := map[string]any{
		"KEY": float64(450),
		"hi":  "there",
	}
	data, err := codec.PackMap(in)
	if err != nil {
		t.Fatalf("PackMap: %v", err)
	}
	out, err := codec.UnpackMap(data)
	if err != nil {
		t.Fatalf("UnpackMap: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestListRoundTrip(t *testing.T) {
	in := []map[string]any{
		{"KEY": float64(1), "t": "a"},
		{"KEY": float64(1), "t": "b"},
	}
	data, err := codec.PackList(in)
	if err != nil {
		t.Fatalf("PackList: %v", err)
	}
	out, err := codec.UnpackList(data)
	if err != nil {
		t.Fatalf("UnpackList: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFingerprintStable(t *testing.T) {
	data := []byte("some packed bytes")
	a := codec.Fingerprint(data)
	b := codec.Fingerprint(append([]byte(nil), data...))
	if a != b {
		t.Errorf("Fingerprint not stable across equal inputs")
	}
	if c := codec.Fingerprint([]byte("different")); c == a {
		t.Errorf("Fingerprint collided for different inputs")
	}
}
