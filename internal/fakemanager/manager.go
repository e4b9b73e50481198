// Package fakemanager serves the subset of the replication manager REST API used by a cutover:
// reading a process status and patching its status or begin position. It keeps process state
// in memory and enforces the manager's rules, e.g. a reposition needs a stopped process.
package fakemanager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/meidoworks/nekoq-cutover/internal/httpserver"
)

const (
	CollectionExtracts  = "extracts"
	CollectionReplicats = "replicats"

	StatusRunning = "running"
	StatusStopped = "stopped"
)

type Unit struct {
	Collection string
	Name       string
	Status     string

	// IgnoreStart acknowledges start requests but leaves the process stopped.
	IgnoreStart bool
	// StopLag is the number of status reads that still report running after a stop.
	StopLag int
	// Broken makes status reads fail with a server error.
	Broken bool

	Repositions int
	pendingStop int
}

type Request struct {
	Method string
	Path   string
	Body   map[string]string
}

type message struct {
	Schema   string `json:"$schema"`
	Code     string `json:"code,omitempty"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
}

type document struct {
	Schema   string         `json:"$schema"`
	Messages []message      `json:"messages"`
	Response map[string]any `json:"response,omitempty"`
}

type Manager struct {
	server *httpserver.HttpServer

	username string
	password string

	units    map[string]*Unit
	requests []Request
	lock     sync.Mutex
}

func New(addr, username, password string) *Manager {
	m := &Manager{
		server:   httpserver.NewHttpServer(addr),
		username: username,
		password: password,
		units:    make(map[string]*Unit),
	}
	m.server.Add(httpserver.MethodGet, "/services/v2/:collection/:name", m.getUnit)
	m.server.Add(httpserver.MethodPatch, "/services/v2/:collection/:name", m.patchUnit)
	return m
}

func (m *Manager) SetLogger(log logrus.FieldLogger) {
	m.server.Log = log
}

func (m *Manager) SetTLS(certFile, keyFile string) {
	m.server.CertFile = certFile
	m.server.KeyFile = keyFile
}

func (m *Manager) Start() error {
	return m.server.Startup()
}

func (m *Manager) Stop() error {
	return m.server.Stop(context.Background())
}

func (m *Manager) Wait() {
	m.server.Wait()
}

// URL is the base URL clients should use, valid after Start.
func (m *Manager) URL() string {
	scheme := "http"
	if m.server.CertFile != "" {
		scheme = "https"
	}
	addr := m.server.Addr()
	if strings.HasPrefix(addr, "[::]:") || strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1:" + addr[strings.LastIndex(addr, ":")+1:]
	}
	return scheme + "://" + addr
}

func (m *Manager) AddUnit(u Unit) {
	m.lock.Lock()
	defer m.lock.Unlock()
	cp := u
	m.units[key(u.Collection, u.Name)] = &cp
}

// Unit returns a snapshot of the unit state.
func (m *Manager) Unit(collection, name string) (Unit, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	u, ok := m.units[key(collection, name)]
	if !ok {
		return Unit{}, false
	}
	return *u, true
}

// SetStatus changes a unit behind the cutover's back, e.g. to simulate an abend.
func (m *Manager) SetStatus(collection, name, status string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if u, ok := m.units[key(collection, name)]; ok {
		u.Status = status
		u.pendingStop = 0
	}
}

// SetBroken toggles server errors on status reads of a unit.
func (m *Manager) SetBroken(collection, name string, broken bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if u, ok := m.units[key(collection, name)]; ok {
		u.Broken = broken
	}
}

func (m *Manager) Requests() []Request {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Mutations returns the PATCH requests received so far.
func (m *Manager) Mutations() []Request {
	var out []Request
	for _, r := range m.Requests() {
		if r.Method == http.MethodPatch {
			out = append(out, r)
		}
	}
	return out
}

func key(collection, name string) string {
	return collection + "/" + name
}

func processType(collection string) string {
	if collection == CollectionReplicats {
		return "REPLICAT"
	}
	return "EXTRACT"
}

func reply(status int, msgs ...message) httpserver.HttpResult {
	return httpserver.JsonResult(status, document{Schema: "api:standardResponse", Messages: msgs})
}

func info(code, title string) message {
	return message{Schema: "ogg:message", Code: code, Severity: "INFO", Title: title}
}

func failure(title string) message {
	return message{Schema: "ogg:message", Severity: "ERROR", Title: title}
}

func (m *Manager) authorized(r *http.Request) bool {
	if m.username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	return ok && user == m.username && pass == m.password
}

func (m *Manager) record(r *http.Request, body map[string]string) {
	m.requests = append(m.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
}

func (m *Manager) getUnit(r *http.Request, params httprouter.Params) (httpserver.HttpResult, error) {
	if !m.authorized(r) {
		return httpserver.ChallengeResult("ogg"), nil
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.record(r, nil)

	collection, name := params.ByName("collection"), params.ByName("name")
	u, ok := m.units[key(collection, name)]
	if !ok {
		return reply(http.StatusNotFound, failure(fmt.Sprintf("The item type with name '%s' does not exist.", name))), nil
	}
	if u.Broken {
		return reply(http.StatusInternalServerError, failure("Internal error")), nil
	}
	status := u.Status
	if u.pendingStop > 0 {
		u.pendingStop--
		status = StatusRunning
		if u.pendingStop == 0 {
			u.Status = StatusStopped
		}
	}
	return httpserver.JsonResult(http.StatusOK, document{
		Schema:   "api:standardResponse",
		Messages: []message{},
		Response: map[string]any{
			"$schema": "ogg:" + strings.TrimSuffix(collection, "s"),
			"name":    name,
			"status":  status,
		},
	}), nil
}

func (m *Manager) patchUnit(r *http.Request, params httprouter.Params) (httpserver.HttpResult, error) {
	if !m.authorized(r) {
		return httpserver.ChallengeResult("ogg"), nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	body := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return reply(http.StatusBadRequest, failure("Malformed request body")), nil
		}
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.record(r, body)

	collection, name := params.ByName("collection"), params.ByName("name")
	u, ok := m.units[key(collection, name)]
	if !ok {
		return reply(http.StatusNotFound, failure(fmt.Sprintf("The item type with name '%s' does not exist.", name))), nil
	}
	pt := processType(collection)
	running := u.Status == StatusRunning || u.pendingStop > 0

	if body["begin"] != "" {
		if running {
			return reply(http.StatusBadRequest, failure(fmt.Sprintf("%s %s must be stopped first.", pt, name))), nil
		}
		u.Repositions++
		return reply(http.StatusOK, info("OGG-08100", fmt.Sprintf("%s %s altered.", pt, name))), nil
	}

	switch body["status"] {
	case StatusRunning:
		if running {
			return reply(http.StatusBadRequest, failure(fmt.Sprintf("%s %s is already running.", pt, name))), nil
		}
		if !u.IgnoreStart {
			u.Status = StatusRunning
		}
		code := "OGG-15426"
		if collection == CollectionReplicats {
			code = "OGG-00975"
		}
		return reply(http.StatusOK, info(code, fmt.Sprintf("%s %s started.", pt, name))), nil
	case StatusStopped:
		if !running {
			return reply(http.StatusBadRequest, failure(fmt.Sprintf("%s %s is not running.", pt, name))), nil
		}
		if u.StopLag > 0 {
			u.pendingStop = u.StopLag
		} else {
			u.Status = StatusStopped
		}
		return reply(http.StatusOK, info("", fmt.Sprintf("%s %s stopped.", pt, name))), nil
	default:
		return reply(http.StatusBadRequest, failure("Unsupported status")), nil
	}
}
