package classifier

import "EvidenceLedger/internal/domain"

// Dictionary holds the keyword vocabulary for one category.
type Dictionary struct {
	Phrases []string `yaml:"phrases"`
	Words   []string `yaml:"words"`
}

// Guard is a phrase that signals a false positive for one category.
// A zeroing guard drops the category score to 0, otherwise Penalty is subtracted.
type Guard struct {
	Phrase   string          `yaml:"phrase"`
	Category domain.Category `yaml:"category"`
	Penalty  int             `yaml:"penalty"`
	Zero     bool            `yaml:"zero"`
}

// Rules configures a Classifier. Different call sites vary the rules, not the code.
type Rules struct {
	Dictionaries       map[domain.Category]Dictionary `yaml:"dictionaries"`
	Guards             []Guard                        `yaml:"guards"`
	RegulatorDomains   map[string]domain.Category     `yaml:"regulatorDomains"`
	OfficialSuffixes   []string                       `yaml:"officialSuffixes"`
	HighCredibility    []string                       `yaml:"highCredibility"`
	LowSignalDomains   []string                       `yaml:"lowSignalDomains"`
	NoisePatterns      []string                       `yaml:"noisePatterns"`
	SevereTerms        []string                       `yaml:"severeTerms"`
	ModerateTerms      []string                       `yaml:"moderateTerms"`
	NegativeTerms      []string                       `yaml:"negativeTerms"`
	PositiveTerms      []string                       `yaml:"positiveTerms"`
	SeverityWeights    map[domain.Severity]float64    `yaml:"severityWeights"`
	PhraseScore        int                            `yaml:"phraseScore"`
	WordScore          int                            `yaml:"wordScore"`
	SecondaryThreshold int                            `yaml:"secondaryThreshold"`
	SecondaryShare     float64                        `yaml:"secondaryShare"`
	OverrideConfidence float64                        `yaml:"overrideConfidence"`
	OverrideRelevance  int                            `yaml:"overrideRelevance"`
	OfficialCredit     float64                        `yaml:"officialCredibilityWeight"`
	HighCredit         float64                        `yaml:"highCredibilityWeight"`
	DefaultCredit      float64                        `yaml:"defaultCredibilityWeight"`
}

// DefaultRules returns the built-in dictionaries and thresholds.
func DefaultRules() Rules {
	return Rules{
		Dictionaries: map[domain.Category]Dictionary{
			domain.CategoryLabor: {
				Phrases: []string{
					"wage theft", "unfair labor practice", "workplace safety", "worker safety",
					"collective bargaining", "union busting", "child labor", "forced labor",
					"minimum wage", "overtime pay", "labor dispute", "labor law", "mass layoff",
					"working conditions", "heat illness", "living wage",
				},
				Words: []string{
					"osha", "nlrb", "union", "unions", "unionize", "unionization", "strike", "strikers",
					"layoff", "layoffs", "wages", "workers", "employees", "workplace", "overtime",
					"picket", "walkout", "sweatshop", "staffing",
				},
			},
			domain.CategoryEnvironment: {
				Phrases: []string{
					"clean air act", "clean water act", "greenhouse gas", "carbon emissions",
					"oil spill", "chemical spill", "toxic waste", "hazardous waste", "air pollution",
					"water pollution", "climate change", "renewable energy", "net zero", "carbon neutral",
				},
				Words: []string{
					"epa", "emissions", "pollution", "pollutant", "pollutants", "spill", "contamination",
					"contaminated", "environmental", "climate", "carbon", "deforestation", "wastewater",
					"sustainability", "renewable", "recycling", "superfund", "methane",
				},
			},
			domain.CategoryPolitics: {
				Phrases: []string{
					"campaign contribution", "campaign contributions", "political donation",
					"political donations", "super pac", "lobbying disclosure",
					"political action committee", "federal election commission", "dark money",
				},
				Words: []string{
					"lobbying", "lobbyist", "lobbyists", "pac", "donation", "donations", "fec",
					"congress", "senator", "senate", "lawmakers", "election", "campaign", "bribery",
					"corruption", "legislation", "partisan",
				},
			},
			domain.CategorySocial: {
				Phrases: []string{
					"product recall", "class action", "consumer safety", "data breach",
					"racial discrimination", "gender discrimination", "food safety",
					"false advertising", "price gouging", "community investment",
				},
				Words: []string{
					"recall", "recalls", "recalled", "lawsuit", "lawsuits", "sued", "discrimination",
					"consumer", "consumers", "customers", "privacy", "fda", "cpsc", "nhtsa", "ftc",
					"charity", "philanthropy", "diversity", "boycott", "salmonella", "listeria",
				},
			},
		},
		Guards: []Guard{
			{Phrase: "european union", Category: domain.CategoryLabor, Penalty: 2},
			{Phrase: "credit union", Category: domain.CategoryLabor, Penalty: 2},
			{Phrase: "student union", Category: domain.CategoryLabor, Penalty: 2},
			{Phrase: "union pacific", Category: domain.CategoryLabor, Penalty: 2},
			{Phrase: "union station", Category: domain.CategoryLabor, Penalty: 2},
			{Phrase: "union square", Category: domain.CategoryLabor, Penalty: 2},
			{Phrase: "soviet union", Category: domain.CategoryLabor, Zero: true},
			{Phrase: "state of the union", Category: domain.CategoryLabor, Zero: true},
			{Phrase: "strike price", Category: domain.CategoryLabor, Zero: true},
			{Phrase: "lucky strike", Category: domain.CategoryLabor, Zero: true},
			{Phrase: "air strike", Category: domain.CategoryLabor, Zero: true},
			{Phrase: "strike a deal", Category: domain.CategoryLabor, Penalty: 2},
			{Phrase: "political climate", Category: domain.CategoryEnvironment, Penalty: 2},
			{Phrase: "business climate", Category: domain.CategoryEnvironment, Penalty: 2},
			{Phrase: "economic climate", Category: domain.CategoryEnvironment, Penalty: 2},
			{Phrase: "investment climate", Category: domain.CategoryEnvironment, Penalty: 2},
			{Phrase: "carbon copy", Category: domain.CategoryEnvironment, Zero: true},
			{Phrase: "marketing campaign", Category: domain.CategoryPolitics, Penalty: 2},
			{Phrase: "advertising campaign", Category: domain.CategoryPolitics, Penalty: 2},
			{Phrase: "ad campaign", Category: domain.CategoryPolitics, Penalty: 2},
			{Phrase: "office politics", Category: domain.CategoryPolitics, Zero: true},
			{Phrase: "recall election", Category: domain.CategorySocial, Zero: true},
		},
		RegulatorDomains: map[string]domain.Category{
			"osha.gov":  domain.CategoryLabor,
			"dol.gov":   domain.CategoryLabor,
			"nlrb.gov":  domain.CategoryLabor,
			"epa.gov":   domain.CategoryEnvironment,
			"fec.gov":   domain.CategoryPolitics,
			"fda.gov":   domain.CategorySocial,
			"cpsc.gov":  domain.CategorySocial,
			"nhtsa.gov": domain.CategorySocial,
			"ftc.gov":   domain.CategorySocial,
		},
		OfficialSuffixes: []string{".gov", ".mil", ".gov.uk", ".gc.ca", ".europa.eu"},
		HighCredibility: []string{
			"reuters.com", "apnews.com", "bloomberg.com", "nytimes.com", "wsj.com", "ft.com",
			"washingtonpost.com", "bbc.co.uk", "bbc.com", "theguardian.com", "npr.org",
			"propublica.org", "economist.com", "cnbc.com",
		},
		LowSignalDomains: []string{
			"fool.com", "seekingalpha.com", "zacks.com", "marketbeat.com", "benzinga.com",
			"investorplace.com", "simplywall.st", "tipranks.com", "stocktitan.net",
			"defenseworld.net", "etfdailynews.com",
		},
		NoisePatterns: []string{
			"price target", "shares rose", "shares fell", "stock price", "analyst rating",
			"buy rating", "sell rating", "earnings call", "dividend", "market cap",
			"trading volume", "short interest", "institutional investors", "stake in",
			"shares of", "52 week high", "52 week low",
		},
		SevereTerms: []string{
			"death", "deaths", "died", "dies", "killed", "fatal", "fatality", "fatalities",
			"explosion", "collapse", "manslaughter", "criminal charges", "class i recall",
			"hospitalized", "life threatening", "catastrophic", "indicted", "felony",
		},
		ModerateTerms: []string{
			"fine", "fined", "fines", "penalty", "penalties", "violation", "violations", "violated",
			"lawsuit", "lawsuits", "sued", "litigation", "settlement", "settled", "citation",
			"cited", "recall", "recalls", "recalled", "investigation", "probe", "injured",
			"injuries", "charged", "complaint",
		},
		NegativeTerms: []string{
			"violation", "violations", "violated", "fine", "fined", "penalty", "lawsuit", "sued",
			"recall", "recalled", "spill", "pollution", "death", "killed", "injured", "injuries",
			"discrimination", "harassment", "fraud", "bribery", "corruption", "unsafe", "hazard",
			"hazardous", "contamination", "layoffs", "wage theft", "accused", "alleged", "illegal",
			"toxic", "breach", "misconduct", "negligence", "union busting",
		},
		PositiveTerms: []string{
			"award", "awarded", "praised", "commended", "certified", "certification", "donated",
			"pledge", "pledged", "invests", "investment in", "improved", "improves",
			"raises wages", "raised wages", "recognized", "honored", "carbon neutral", "net zero",
			"volunteer", "scholarship", "best places to work",
		},
		SeverityWeights: map[domain.Severity]float64{
			domain.SeverityMinor:    1,
			domain.SeverityModerate: 3,
			domain.SeveritySevere:   5,
		},
		PhraseScore:        5,
		WordScore:          2,
		SecondaryThreshold: 4,
		SecondaryShare:     0.35,
		OverrideConfidence: 0.85,
		OverrideRelevance:  10,
		OfficialCredit:     1.0,
		HighCredit:         0.9,
		DefaultCredit:      0.6,
	}
}
