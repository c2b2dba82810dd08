package pubsub

import "testing"

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project string
		name    string
		want    string
	}{
		{"coop", "cred30-ledger-events", "projects/coop/topics/cred30-ledger-events"},
		{"coop", " cred30-ledger-events ", "projects/coop/topics/cred30-ledger-events"},
		{"", "projects/other/topics/x", "projects/other/topics/x"},
		{"", "x", ""},
		{"coop", "", ""},
	}
	for _, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("TopicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}
