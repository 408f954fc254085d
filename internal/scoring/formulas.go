package scoring

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"EvidenceLedger/internal/domain"
)

const defaultBaseline = 70.0

var printer = message.NewPrinter(language.English)

// tally accumulates individually clamped contributions of one category.
type tally struct {
	value    float64
	drivers  []string
	present  int
	expected int
}

func (t *tally) add(contribution float64, present bool, driver string) {
	t.expected++
	t.value += contribution
	if present {
		t.present++
		if driver != "" {
			t.drivers = append(t.drivers, driver)
		}
	}
}

func (t *tally) finish() tally {
	t.value = clamp(t.value, 0, 100)
	return *t
}

// capNames maps a term onto the plural its cap is keyed by.
var capNames = map[string]string{
	"violation":     "violations",
	"fine":          "fines",
	"severe":        "severe_incidents",
	"certification": "certifications",
	"donation":      "donations",
	"lawsuit":       "lawsuits",
}

// capKey is "<category>.<plural term>", e.g. "labor.violations".
func capKey(prefix, name string) string {
	if plural, ok := capNames[name]; ok {
		name = plural
	}
	return prefix + "." + name
}

func (e *Engine) start(prefix string) *tally {
	return &tally{value: e.weight(prefix+".baseline", defaultBaseline)}
}

// linear is count × penalty bounded to [0, cap].
func (e *Engine) linear(prefix, name string, count, per, limit float64) float64 {
	per = e.weight(prefix+"."+name+"_penalty", per)
	limit = e.cap(capKey(prefix, name), limit)
	return clamp(count*per, 0, limit)
}

// logarithmic is multiplier × log10(amount / floor) above the floor, bounded to [0, cap].
func (e *Engine) logarithmic(prefix, name string, amount, floor, multiplier, limit float64) float64 {
	floor = e.weight(prefix+"."+name+"_floor", floor)
	multiplier = e.weight(prefix+"."+name+"_multiplier", multiplier)
	limit = e.cap(capKey(prefix, name), limit)
	if floor <= 0 || amount <= floor {
		return 0
	}
	return clamp(multiplier*math.Log10(amount/floor), 0, limit)
}

// signed maps a centered input onto [-cap, cap].
func (e *Engine) signed(prefix, name string, value, multiplier, limit float64) float64 {
	multiplier = e.weight(prefix+"."+name+"_multiplier", multiplier)
	limit = e.cap(capKey(prefix, name), limit)
	return clamp(value*multiplier, -limit, limit)
}

func (e *Engine) sentiment(t *tally, prefix string, value float64, long bool) {
	if !long {
		t.add(0, false, "")
		return
	}
	t.add(e.signed(prefix, "sentiment", value, 10, 10), value != 0, fmt.Sprintf("sentiment %+.2f", value))
}

func (e *Engine) labor(in domain.BaselineInputs, long bool) tally {
	const p = "labor"
	st := in.Stats(domain.CategoryLabor)
	t := e.start(p)

	t.add(-e.linear(p, "violation", float64(st.Violations), 4, 30), st.Violations > 0, count(st.Violations, "violation"))
	t.add(-e.logarithmic(p, "fine", st.Fines, 10_000, 8, 20), st.Fines > 0, money(st.Fines)+" in fines")
	e.sentiment(t, p, st.Sentiment, long)
	t.add(-e.linear(p, "severe", float64(st.SevereIncidents), 10, 25), st.SevereIncidents > 0, count(st.SevereIncidents, "severe incident"))

	return t.finish()
}

func (e *Engine) environment(in domain.BaselineInputs, long bool) tally {
	const p = "environment"
	st := in.Stats(domain.CategoryEnvironment)
	t := e.start(p)

	t.add(-e.linear(p, "violation", float64(st.Violations), 5, 30), st.Violations > 0, count(st.Violations, "violation"))
	t.add(-e.logarithmic(p, "fine", st.Fines, 25_000, 8, 20), st.Fines > 0, money(st.Fines)+" in fines")

	// Percentile 0 means unknown; 50 is neutral.
	percentile := in.EmissionsPercentile
	if long && percentile > 0 {
		t.add(-e.signed(p, "percentile", (percentile-50)/50, 10, 10), percentile != 50,
			fmt.Sprintf("emissions percentile %.0f", percentile))
	} else {
		t.add(0, false, "")
	}

	if long {
		t.add(e.linear(p, "certification", float64(in.Certifications), 3, 9), in.Certifications > 0, count(in.Certifications, "certification"))
	} else {
		t.add(0, false, "")
	}

	e.sentiment(t, p, st.Sentiment, long)
	t.add(-e.linear(p, "severe", float64(st.SevereIncidents), 12, 25), st.SevereIncidents > 0, count(st.SevereIncidents, "severe incident"))

	return t.finish()
}

func (e *Engine) politics(in domain.BaselineInputs, long bool) tally {
	const p = "politics"
	st := in.Stats(domain.CategoryPolitics)
	t := e.start(p)

	donations := in.DonationsLeft + in.DonationsRight
	t.add(-e.logarithmic(p, "donation", donations, 100_000, 6, 15), donations > 0, money(donations)+" in political donations")

	var skew float64
	if donations > e.weight(p+".donation_floor", 100_000) {
		skew = math.Abs(in.DonationsLeft-in.DonationsRight) / donations
	}
	t.add(-clamp(skew*e.weight(p+".skew_multiplier", 10), 0, e.cap(p+".skew", 10)), skew > 0,
		fmt.Sprintf("%.0f%% partisan skew", skew*100))

	if long {
		t.add(-e.logarithmic(p, "lobbying", in.Lobbying, 500_000, 6, 15), in.Lobbying > 0, money(in.Lobbying)+" in lobbying")
	} else {
		t.add(0, false, "")
	}

	t.add(-e.linear(p, "violation", float64(st.Violations), 5, 20), st.Violations > 0, count(st.Violations, "violation"))
	e.sentiment(t, p, st.Sentiment, long)
	t.add(-e.linear(p, "severe", float64(st.SevereIncidents), 10, 20), st.SevereIncidents > 0, count(st.SevereIncidents, "severe incident"))

	return t.finish()
}

func (e *Engine) social(in domain.BaselineInputs, long bool) tally {
	const p = "social"
	st := in.Stats(domain.CategorySocial)
	t := e.start(p)

	r := in.Recalls
	recallPenalty := float64(r.ClassI)*e.weight(p+".recall_class_i_penalty", 8) +
		float64(r.ClassII)*e.weight(p+".recall_class_ii_penalty", 4) +
		float64(r.ClassIII)*e.weight(p+".recall_class_iii_penalty", 1)
	recalls := r.ClassI + r.ClassII + r.ClassIII
	t.add(-clamp(recallPenalty, 0, e.cap(p+".recalls", 30)), recalls > 0, count(recalls, "recall"))

	t.add(-e.linear(p, "lawsuit", float64(in.Lawsuits), 3, 15), in.Lawsuits > 0, count(in.Lawsuits, "lawsuit"))
	t.add(-e.linear(p, "violation", float64(st.Violations), 3, 15), st.Violations > 0, count(st.Violations, "violation"))
	t.add(-e.logarithmic(p, "fine", st.Fines, 50_000, 6, 15), st.Fines > 0, money(st.Fines)+" in fines")
	e.sentiment(t, p, st.Sentiment, long)
	t.add(-e.linear(p, "severe", float64(st.SevereIncidents), 12, 25), st.SevereIncidents > 0, count(st.SevereIncidents, "severe incident"))

	return t.finish()
}

func count(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func money(v float64) string {
	return printer.Sprintf("$%d", int64(math.Round(v)))
}
