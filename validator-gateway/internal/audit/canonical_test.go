package audit

import "testing"

func TestCanonicalJSON(t *testing.T) {
	type sample struct {
		Zeta  string    `json:"zeta"`
		Alpha []float64 `json:"alpha"`
	}
	got, err := canonicalJSON(sample{Zeta: "<a&b>", Alpha: []float64{0.5, 1}})
	if err != nil {
		t.Fatalf("canonicalJSON: %v", err)
	}
	want := `{"alpha":[0.5,1],"zeta":"<a&b>"}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}

	again, err := canonicalJSON(map[string]interface{}{"zeta": "<a&b>", "alpha": []interface{}{0.5, 1.0}})
	if err != nil {
		t.Fatalf("canonicalJSON: %v", err)
	}
	if string(again) != want {
		t.Fatalf("map form differs: %s", again)
	}
}
