// Package checkpoint creates the checkpoint tables a Replicat records its progress in.
package checkpoint

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Status int

const (
	StatusCreated Status = iota + 1
	StatusExists
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusExists:
		return "exists"
	default:
		return "failed"
	}
}

type TableResult struct {
	Table  Table
	Status Status
	Err    error
}

type Report struct {
	Results []TableResult
}

// OK is true when every table exists after provisioning.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return false
		}
	}
	return true
}

func Open(dialect Dialect, info ConnInfo) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName(), dialect.DSN(info))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s connection", dialect.Name())
	}
	return db, nil
}

type Provisioner struct {
	db      *sql.DB
	dialect Dialect
	log     logrus.FieldLogger
}

func NewProvisioner(db *sql.DB, dialect Dialect, log logrus.FieldLogger) *Provisioner {
	return &Provisioner{
		db:      db,
		dialect: dialect,
		log:     log,
	}
}

// Provision creates the checkpoint table and its overflow table. Both are attempted even
// when the first fails; an existing table counts as success.
func (p *Provisioner) Provision(ctx context.Context, t Table) *Report {
	report := new(Report)
	for _, step := range []struct {
		table Table
		ddl   string
	}{
		{t, p.dialect.CheckpointDDL(t)},
		{t.Overflow(), p.dialect.OverflowDDL(t.Overflow())},
	} {
		res := TableResult{Table: step.table}
		_, err := p.db.ExecContext(ctx, step.ddl)
		switch {
		case err == nil:
			res.Status = StatusCreated
			p.log.Infof("OK: Created %s", step.table)
		case p.dialect.AlreadyExists(err):
			res.Status = StatusExists
			p.log.Infof("OK: %s already exists", step.table)
		default:
			res.Status = StatusFailed
			res.Err = errors.Wrapf(err, "create %s", step.table)
			p.log.Errorf("ERROR creating %s: %v", step.table, err)
		}
		report.Results = append(report.Results, res)
	}
	return report
}
