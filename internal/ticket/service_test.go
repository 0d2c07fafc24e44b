package ticket

import "testing"

func TestRoutePriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		sentiment float64
		current   string
		want      string
	}{
		{"very negative forces high", 0.1, "medium", PriorityHigh},
		{"very negative from low", 0.2, "low", PriorityHigh},
		{"mildly negative promotes low", 0.4, "low", PriorityHigh},
		{"mildly negative keeps medium", 0.4, "medium", PriorityMedium},
		{"neutral keeps low", 0.6, "low", PriorityLow},
		{"positive keeps current", 0.9, "high", PriorityHigh},
		{"empty current defaults medium", 0.7, "", PriorityMedium},
		{"urgent never demoted", 0.9, PriorityUrgent, PriorityUrgent},
	}
	for _, tc := range cases {
		if got := RoutePriority(tc.sentiment, tc.current); got != tc.want {
			t.Fatalf("%s: RoutePriority(%v, %q) = %q, want %q", tc.name, tc.sentiment, tc.current, got, tc.want)
		}
	}
}
