package services

// ChampionLedger is the set of logins already recorded as champions.
// Only the crawl goroutine touches it.
type ChampionLedger struct {
	names map[string]struct{}
}

// NewChampionLedger seeds the ledger with previously recorded logins
func NewChampionLedger(names []string) *ChampionLedger {
	ledger := &ChampionLedger{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		ledger.Add(name)
	}
	return ledger
}

// ChampionLoader reads recorded champion names from storage
type ChampionLoader interface {
	LoadNames() ([]string, error)
}

// LoadChampionLedger rebuilds the ledger from persisted champions
func LoadChampionLedger(loader ChampionLoader) (*ChampionLedger, error) {
	names, err := loader.LoadNames()
	if err != nil {
		return nil, err
	}
	return NewChampionLedger(names), nil
}

func (l *ChampionLedger) Contains(name string) bool {
	_, ok := l.names[name]
	return ok
}

func (l *ChampionLedger) Add(name string) {
	if name == "" {
		return
	}
	l.names[name] = struct{}{}
}

func (l *ChampionLedger) Len() int {
	return len(l.names)
}
