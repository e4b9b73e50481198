package cutover

import "strings"

// MarkerSet lists the substrings that identify a manager answer for one action.
type MarkerSet struct {
	Acknowledged []string `toml:"acknowledged"`
	Already      []string `toml:"already"`
}

type markerKey struct {
	kind   UnitKind
	action Action
}

// MarkerCatalog holds the recognized answers per unit kind and action.
// The manager does not signal success uniformly across actions, so each pair has its own set.
type MarkerCatalog struct {
	sets map[markerKey]MarkerSet
}

func NewMarkerCatalog() *MarkerCatalog {
	return &MarkerCatalog{sets: make(map[markerKey]MarkerSet)}
}

// DefaultMarkerCatalog returns the marker vocabulary observed from the GoldenGate manager.
func DefaultMarkerCatalog() *MarkerCatalog {
	c := NewMarkerCatalog()
	stopped := MarkerSet{
		Acknowledged: []string{"stopped"},
		Already:      []string{"not running", "already stopped"},
	}
	c.Set(KindExtract, ActionStop, stopped)
	c.Set(KindReplicat, ActionStop, stopped)
	c.Set(KindExtract, ActionReposition, MarkerSet{
		Acknowledged: []string{"OGG-08100"},
	})
	c.Set(KindReplicat, ActionReposition, MarkerSet{
		Acknowledged: []string{"OGG-08100", "altered"},
	})
	c.Set(KindExtract, ActionStart, MarkerSet{
		Acknowledged: []string{"OGG-15426", "started"},
		Already:      []string{"already running"},
	})
	c.Set(KindReplicat, ActionStart, MarkerSet{
		Acknowledged: []string{"OGG-15445", "OGG-00975", "started"},
		Already:      []string{"already running"},
	})
	return c
}

func (c *MarkerCatalog) Set(kind UnitKind, action Action, set MarkerSet) {
	c.sets[markerKey{kind: kind, action: action}] = set
}

func (c *MarkerCatalog) Get(kind UnitKind, action Action) (MarkerSet, bool) {
	s, ok := c.sets[markerKey{kind: kind, action: action}]
	return s, ok
}

// Override replaces the non-empty lists of the given set, keeping the rest.
func (c *MarkerCatalog) Override(kind UnitKind, action Action, set MarkerSet) {
	cur := c.sets[markerKey{kind: kind, action: action}]
	if len(set.Acknowledged) > 0 {
		cur.Acknowledged = set.Acknowledged
	}
	if len(set.Already) > 0 {
		cur.Already = set.Already
	}
	c.sets[markerKey{kind: kind, action: action}] = cur
}

// Classify matches body against the markers of (kind, action). Already-in-state markers are
// checked first.
func (c *MarkerCatalog) Classify(kind UnitKind, action Action, body string) CommandOutcome {
	set, ok := c.Get(kind, action)
	if !ok || body == "" {
		return CommandOutcome{Kind: OutcomeUnexpected, Body: body}
	}
	lower := strings.ToLower(body)
	if containsAny(lower, set.Already) {
		return CommandOutcome{Kind: OutcomeAlreadyInState}
	}
	if containsAny(lower, set.Acknowledged) {
		return CommandOutcome{Kind: OutcomeAcknowledged}
	}
	return CommandOutcome{Kind: OutcomeUnexpected, Body: body}
}

func containsAny(lowerBody string, markers []string) bool {
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(lowerBody, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
