package config

type Criteria struct {
	RulesFile      string `env:"RULES_FILE" envDefault:"configs/precise_hbr.yaml"`
	TerminologyDir string `env:"TERMINOLOGY_DIR"`
	TradeoffFile   string `env:"TRADEOFF_FILE" envDefault:"configs/tradeoff.yaml"`
}

var _ CriteriaConfig = Criteria{}

func (c Criteria) GetRulesFile() string {
	return c.RulesFile
}

// GetTerminologyDir is empty when no value sets are installed.
func (c Criteria) GetTerminologyDir() string {
	return c.TerminologyDir
}

// GetTradeoffFile is empty when the bleeding and thrombotic tradeoff is disabled.
func (c Criteria) GetTradeoffFile() string {
	return c.TradeoffFile
}
