package profile

import "testing"

func TestNormalize(t *testing.T) {
	if got := Normalize("  Lisinopril "); got != "lisinopril" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := Profile{
		Medications: {
			{Category: Medications, Value: "lisinopril", Status: StatusActive},
		},
	}

	snapshot := original.Clone()
	original[Medications][0].Status = StatusStopped
	original[Symptoms] = append(original[Symptoms], Item{Category: Symptoms, Value: "headache", Status: StatusActive})

	if snapshot[Medications][0].Status != StatusActive {
		t.Fatalf("snapshot mutated along with original: %s", snapshot[Medications][0].Status)
	}
	if len(snapshot[Symptoms]) != 0 {
		t.Fatalf("snapshot picked up new category entries")
	}
}

func TestCloneNil(t *testing.T) {
	var p Profile
	if got := p.Clone(); got == nil {
		t.Fatal("clone of nil profile should be an empty profile")
	}
}

func TestFind(t *testing.T) {
	p := Profile{
		Allergies: {{Category: Allergies, Value: "penicillin", Status: StatusActive}},
	}
	if _, ok := p.Find(Allergies, "penicillin"); !ok {
		t.Fatal("expected to find penicillin")
	}
	if _, ok := p.Find(Medications, "penicillin"); ok {
		t.Fatal("category must scope the lookup")
	}
}
