package rabbitmq

import "testing"

func TestSplitAddress(t *testing.T) {
	cases := []struct {
		address, exchange, routingKey string
	}{
		{"qmf.default.direct/broker", "qmf.default.direct", "broker"},
		{"tasks", "", "tasks"},
		{"a/b/c", "a", "b/c"},
	}
	for _, c := range cases {
		ex, rk := splitAddress(c.address)
		if ex != c.exchange || rk != c.routingKey {
			t.Errorf("splitAddress(%q) = (%q, %q), want (%q, %q)", c.address, ex, rk, c.exchange, c.routingKey)
		}
	}
}
