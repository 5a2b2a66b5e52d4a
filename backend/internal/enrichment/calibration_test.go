package enrichment

import "testing"

func TestClassifyDecision(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Category
	}{
		{
			name: "architecture",
			text: "Split the monolith into microservices to reduce coupling between components",
			want: CategoryArchitecture,
		},
		{
			name: "technology",
			text: "Choosing a database and framework for the new platform api",
			want: CategoryTechnology,
		},
		{
			name: "process",
			text: "Change the deployment workflow so every release goes through review",
			want: CategoryProcess,
		},
		{
			name: "single keyword is not enough",
			text: "We talked about the database over lunch",
			want: CategoryGeneral,
		},
		{
			name: "no keywords",
			text: "Let's go with the second option",
			want: CategoryGeneral,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyDecision(tc.text); got != tc.want {
				t.Errorf("ClassifyDecision(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestCalibrateMissingRationale(t *testing.T) {
	full := DecisionDraft{
		Trigger:   "Need a database",
		Decision:  "Use PostgreSQL",
		Rationale: "The team knows SQL well and the data is relational so it fits",
	}
	noRationale := full
	noRationale.Rationale = ""

	withRationale := CalibrateConfidence(0.9, full)
	withoutRationale := CalibrateConfidence(0.9, noRationale)

	if withRationale-withoutRationale < 0.15 {
		t.Errorf("missing rationale should cost at least 0.15: %f vs %f", withRationale, withoutRationale)
	}
}

func TestCalibrateClampsLow(t *testing.T) {
	empty := DecisionDraft{Trigger: defaultTrigger}
	if got := CalibrateConfidence(0.2, empty); got != 0.1 {
		t.Errorf("expected clamp to 0.1, got %f", got)
	}
}

func TestCalibrateClampsHigh(t *testing.T) {
	rich := DecisionDraft{
		Trigger:   "Need to pick a message broker for event delivery",
		Context:   "High throughput requirements across three regional deployments",
		Options:   []string{"Kafka", "RabbitMQ", "NATS"},
		Decision:  "Use Kafka",
		Rationale: "Kafka was chosen because it handles our throughput and the trade-off of operational complexity is acceptable since the platform team already runs it for analytics workloads today",
	}
	if got := CalibrateConfidence(0.98, rich); got != 1.0 {
		t.Errorf("expected clamp to 1.0, got %f", got)
	}
}

func TestCalibrateOptionBonuses(t *testing.T) {
	base := DecisionDraft{
		Trigger:   "Need a cache",
		Decision:  "Use Redis",
		Rationale: "It is the simplest fit for the workload we have measured here",
	}
	two := base
	two.Options = []string{"Redis", "Memcached"}
	three := base
	three.Options = []string{"Redis", "Memcached", "Hazelcast"}

	noOptions := CalibrateConfidence(0.5, base)
	twoOptions := CalibrateConfidence(0.5, two)
	threeOptions := CalibrateConfidence(0.5, three)

	if twoOptions <= noOptions {
		t.Error("two options should raise confidence")
	}
	if threeOptions <= twoOptions {
		t.Error("three options should raise confidence further")
	}
}

func TestCalibrateReasoningBonusCapped(t *testing.T) {
	d := DecisionDraft{
		Trigger:  "Need an auth approach",
		Decision: "Use sessions",
		Rationale: "Chosen because sessions are simpler, since revocation matters, " +
			"therefore we accept the trade-off, due to compliance, instead of JWTs, " +
			"compared to the alternative, so that audits pass",
	}
	// every phrase matches but the bonus must stop at the cap; the long
	// rationale also earns its length bonus
	capped := CalibrateConfidence(0.5, d)
	if capped > 0.5+0.05+reasoningBonusCap+1e-9 {
		t.Errorf("reasoning bonus exceeded cap: %f", capped)
	}
}
