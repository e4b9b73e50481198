package cutover

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/meidoworks/nekoq-cutover/client"
)

// Transport is the subset of the manager REST API the orchestration needs.
type Transport interface {
	Get(ctx context.Context, endpoint string) (*client.Response, error)
	Patch(ctx context.Context, endpoint string, payload any) (*client.Response, error)
}

var _ Transport = new(client.ManagerClient)

type statusDocument struct {
	Response *struct {
		Status *string `json:"status"`
	} `json:"response"`
}

// Prober reads the lifecycle state of a unit. Status is advisory: every failure to obtain
// or interpret it yields StateUnknown instead of an error.
type Prober struct {
	transport Transport
	log       logrus.FieldLogger
	journal   *Journal
	metrics   *Metrics
}

func NewProber(transport Transport, log logrus.FieldLogger, journal *Journal, metrics *Metrics) *Prober {
	return &Prober{
		transport: transport,
		log:       log,
		journal:   journal,
		metrics:   metrics,
	}
}

func (p *Prober) Probe(ctx context.Context, unit ReplicationUnit) UnitState {
	state, _ := p.ProbeStatus(ctx, unit)
	return state
}

// ProbeStatus is Probe plus the raw status value, empty when none was read.
func (p *Prober) ProbeStatus(ctx context.Context, unit ReplicationUnit) (UnitState, string) {
	state, raw := p.probe(ctx, unit)
	p.log.WithFields(logrus.Fields{
		"unit":   unit.Name,
		"kind":   unit.Kind.String(),
		"state":  state.String(),
		"status": raw,
	}).Debug("probe ", unit.String())
	p.journal.RecordProbe(unit, state)
	p.metrics.observeProbe(unit, state)
	return state, raw
}

func (p *Prober) probe(ctx context.Context, unit ReplicationUnit) (UnitState, string) {
	resp, err := p.transport.Get(ctx, unit.Endpoint())
	if err != nil {
		return StateUnknown, ""
	}
	if !resp.IsSuccess() {
		return StateUnknown, ""
	}
	var doc statusDocument
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		p.log.Warnf("status of %s is not valid json: %v", unit, err)
		return StateUnknown, ""
	}
	if doc.Response == nil || doc.Response.Status == nil {
		return StateUnknown, ""
	}
	return ParseUnitState(*doc.Response.Status), *doc.Response.Status
}
