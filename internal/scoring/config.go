package scoring

// DefaultStability is the placeholder stability term used until a rolling
// variance of past scores is tracked.
const DefaultStability = 50.0

// Config carries the flat weight and cap maps read from configuration.
// Weight keys are "<category>.<term>_<parameter>" plus "<category>.baseline",
// e.g. "labor.violation_penalty" or "labor.fine_floor". Cap keys name the
// plural term: "labor.violations", "labor.fines", "labor.severe_incidents",
// "politics.donations", "social.recalls". Missing keys fall back to built-in
// defaults.
type Config struct {
	Weights map[string]float64 `yaml:"weights"`
	Caps    map[string]float64 `yaml:"caps"`
	// Stability is the constant stability input of the confidence composite.
	// Zero selects DefaultStability.
	Stability float64 `yaml:"stability"`
}

func (c Config) stability() float64 {
	if c.Stability <= 0 {
		return DefaultStability
	}
	return c.Stability
}
