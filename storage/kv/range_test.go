package kv

import (
	"bytes"
	"testing"
)

func TestPrefix(t *testing.T) {
	for _, tc := range []struct {
		prefix, limit []byte
	}{
		{[]byte("a"), []byte("b")},
		{[]byte{'a', 0xff}, []byte("b")},
		{[]byte{'a', 0xfe, 0xff}, []byte{'a', 0xff}},
		{[]byte{0xff, 0xff}, nil},
		{nil, nil},
	} {
		rg := Prefix(tc.prefix)
		if !bytes.Equal(rg.Start, tc.prefix) || !bytes.Equal(rg.Limit, tc.limit) {
			t.Errorf("Prefix(%x) = [%x, %x), want limit %x", tc.prefix, rg.Start, rg.Limit, tc.limit)
		}
		if tc.limit == nil && rg.Limit != nil {
			t.Errorf("Prefix(%x) must be unbounded", tc.prefix)
		}
	}

	prefix := []byte{'a', 0xff}
	Prefix(prefix)
	if prefix[1] != 0xff {
		t.Error("Prefix modified its argument")
	}
}
