package cutover

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Issuer sends state changing requests and classifies the answers. It never retries:
// retry policy belongs to the orchestrator.
type Issuer struct {
	transport Transport
	markers   *MarkerCatalog
	log       logrus.FieldLogger
	journal   *Journal
	metrics   *Metrics
}

func NewIssuer(transport Transport, markers *MarkerCatalog, log logrus.FieldLogger, journal *Journal, metrics *Metrics) *Issuer {
	if markers == nil {
		markers = DefaultMarkerCatalog()
	}
	return &Issuer{
		transport: transport,
		markers:   markers,
		log:       log,
		journal:   journal,
		metrics:   metrics,
	}
}

func (i *Issuer) Issue(ctx context.Context, unit ReplicationUnit, action Action) CommandOutcome {
	var outcome CommandOutcome
	resp, err := i.transport.Patch(ctx, unit.Endpoint(), action.Payload())
	if err != nil {
		outcome = CommandOutcome{Kind: OutcomeUnexpected}
	} else {
		outcome = i.markers.Classify(unit.Kind, action, string(resp.Body))
	}
	i.log.WithFields(logrus.Fields{
		"unit":    unit.Name,
		"kind":    unit.Kind.String(),
		"action":  action.String(),
		"outcome": outcome.Kind.String(),
	}).Debug("command ", action, " ", unit.String())
	i.journal.RecordCommand(unit, action, outcome)
	i.metrics.observeCommand(unit, action, outcome)
	return outcome
}

// prettyBody indents a JSON body for the operator, falling back to the raw text.
func prettyBody(body string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
		return body
	}
	return buf.String()
}
