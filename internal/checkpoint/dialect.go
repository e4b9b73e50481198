package checkpoint

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	go_ora "github.com/sijms/go-ora/v2"
	"github.com/sijms/go-ora/v2/network"
)

type ConnInfo struct {
	Host     string
	Port     int
	Service  string
	User     string
	Password string
}

// Dialect is the database specific part of provisioning.
type Dialect interface {
	Name() string
	DriverName() string
	DSN(info ConnInfo) string
	CheckpointDDL(t Table) string
	OverflowDDL(t Table) string
	AlreadyExists(err error) bool
}

func DialectByName(name string) (Dialect, bool) {
	switch strings.ToLower(name) {
	case "oracle", "":
		return Oracle{}, true
	case "postgres", "postgresql":
		return Postgres{}, true
	default:
		return nil, false
	}
}

type Oracle struct{}

func (Oracle) Name() string {
	return "oracle"
}

func (Oracle) DriverName() string {
	return "oracle"
}

func (Oracle) DSN(info ConnInfo) string {
	return go_ora.BuildUrl(info.Host, info.Port, info.Service, info.User, info.Password, nil)
}

func (Oracle) CheckpointDDL(t Table) string {
	return `CREATE TABLE ` + t.String() + ` (
    GROUP_NAME      VARCHAR2(8)    NOT NULL,
    GROUP_KEY       NUMBER(19)     NOT NULL,
    SEQNO           NUMBER(10),
    RBA             NUMBER(19)     NOT NULL,
    AUDIT_TS        VARCHAR2(29),
    CREATE_TS       DATE           NOT NULL,
    LAST_UPDATE_TS  DATE           NOT NULL,
    CURRENT_DIR     VARCHAR2(255)  NOT NULL,
    LOG_BSN         VARCHAR2(64),
    LOG_CSN         VARCHAR2(64),
    LOG_XID         VARCHAR2(255),
    LOG_CMPLT_CSN   VARCHAR2(64),
    LOG_CMPLT_XIDS  VARCHAR2(255),
    VERSION         VARCHAR2(64),
    PRIMARY KEY (GROUP_NAME, GROUP_KEY)
)`
}

func (Oracle) OverflowDDL(t Table) string {
	return `CREATE TABLE ` + t.String() + ` (
    GROUP_NAME      VARCHAR2(8)    NOT NULL,
    GROUP_KEY       NUMBER(19)     NOT NULL,
    LOG_CMPLT_CSN   VARCHAR2(64),
    LOG_CMPLT_XIDS  VARCHAR2(255),
    SEQUENCE        NUMBER(19)     NOT NULL,
    PRIMARY KEY (GROUP_NAME, GROUP_KEY, SEQUENCE)
)`
}

// ORA-00955: name is already used by an existing object
func (Oracle) AlreadyExists(err error) bool {
	var oe *network.OracleError
	if errors.As(err, &oe) {
		return oe.ErrCode == 955
	}
	return strings.Contains(err.Error(), "ORA-00955")
}

// Postgres provisions the same layout for a PostgreSQL target.
type Postgres struct{}

func (Postgres) Name() string {
	return "postgres"
}

func (Postgres) DriverName() string {
	return "pgx"
}

func (Postgres) DSN(info ConnInfo) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(info.User, info.Password),
		Host:   net.JoinHostPort(info.Host, strconv.Itoa(info.Port)),
		Path:   "/" + info.Service,
	}
	return u.String()
}

func (Postgres) CheckpointDDL(t Table) string {
	return `CREATE TABLE ` + t.String() + ` (
    GROUP_NAME      VARCHAR(8)     NOT NULL,
    GROUP_KEY       NUMERIC(19)    NOT NULL,
    SEQNO           NUMERIC(10),
    RBA             NUMERIC(19)    NOT NULL,
    AUDIT_TS        VARCHAR(29),
    CREATE_TS       TIMESTAMP      NOT NULL,
    LAST_UPDATE_TS  TIMESTAMP      NOT NULL,
    CURRENT_DIR     VARCHAR(255)   NOT NULL,
    LOG_BSN         VARCHAR(64),
    LOG_CSN         VARCHAR(64),
    LOG_XID         VARCHAR(255),
    LOG_CMPLT_CSN   VARCHAR(64),
    LOG_CMPLT_XIDS  VARCHAR(255),
    VERSION         VARCHAR(64),
    PRIMARY KEY (GROUP_NAME, GROUP_KEY)
)`
}

func (Postgres) OverflowDDL(t Table) string {
	return `CREATE TABLE ` + t.String() + ` (
    GROUP_NAME      VARCHAR(8)     NOT NULL,
    GROUP_KEY       NUMERIC(19)    NOT NULL,
    LOG_CMPLT_CSN   VARCHAR(64),
    LOG_CMPLT_XIDS  VARCHAR(255),
    SEQUENCE        NUMERIC(19)    NOT NULL,
    PRIMARY KEY (GROUP_NAME, GROUP_KEY, SEQUENCE)
)`
}

// 42P07: duplicate_table
func (Postgres) AlreadyExists(err error) bool {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "42P07"
	}
	return strings.Contains(err.Error(), "SQLSTATE 42P07")
}
