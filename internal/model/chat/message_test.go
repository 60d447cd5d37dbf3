package chat

import "testing"

func TestSenderValid(t *testing.T) {
	for _, s := range []Sender{SenderPatient, SenderAI, SenderClinician} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []Sender{"", "nurse", "PATIENT"} {
		if s.Valid() {
			t.Errorf("%q should not be valid", s)
		}
	}
}

func TestBucketConfidence(t *testing.T) {
	cases := []struct {
		score int
		want  ConfidenceLevel
	}{
		{0, ConfidenceLow},
		{39, ConfidenceLow},
		{40, ConfidenceMedium},
		{74, ConfidenceMedium},
		{75, ConfidenceHigh},
		{100, ConfidenceHigh},
	}
	for _, tc := range cases {
		if got := BucketConfidence(tc.score); got != tc.want {
			t.Errorf("BucketConfidence(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
