package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fiscalis/proposta-bff/model"
)

// MockAccountingAPI simulates the upstream accounting service. It serves
// clients, activity types, proposals, and notifications from mutable
// in-memory state, records every request for later assertion, and supports
// per-endpoint failure injection.
type MockAccountingAPI struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	clients       []model.Client
	activityTypes []model.ActivityType
	proposals     []model.Proposal
	notifications []model.Notification
	nextID        int64

	// failStatus maps a path prefix to a forced response status. A zero
	// map entry means the endpoint behaves normally.
	failStatus map[string]int
	requests   []RecordedRequest
}

// RecordedRequest captures one request received by the mock backend.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          []byte
}

func newMockAccountingAPI(t *testing.T) *MockAccountingAPI {
	t.Helper()

	m := &MockAccountingAPI{
		t:          t,
		nextID:     1000,
		failStatus: make(map[string]int),
		clients: []model.Client{
			{ID: 1, Name: "Padaria Central Ltda", Active: true},
			{ID: 2, Name: "Oficina Silva ME", Active: true},
			{ID: 3, Name: "Antiga Importadora SA", Active: false},
		},
		activityTypes: []model.ActivityType{
			{ID: 10, Code: "COM", Name: "Comercio", ApplicableToCompany: true, Active: true},
			{ID: 11, Code: "SRV", Name: "Servicos", ApplicableToCompany: true, Active: true},
			{ID: 20, Code: "MEI", Name: "Microempreendedor", ApplicableToCompany: false, Active: true},
		},
		proposals: []model.Proposal{
			{ID: 900, ClientID: 1, ActivityTypeID: 10, TaxRegimeID: 1, Total: 1200, Status: "sent", CreatedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)},
		},
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.server.Close)
	return m
}

// URL returns the mock server's base URL.
func (m *MockAccountingAPI) URL() string {
	return m.server.URL
}

// FailWith forces every request whose path starts with prefix to return the
// given status. Pass 0 to restore normal behavior.
func (m *MockAccountingAPI) FailWith(prefix string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == 0 {
		delete(m.failStatus, prefix)
		return
	}
	m.failStatus[prefix] = status
}

// AddNotification appends a notification to the feed and returns its ID.
func (m *MockAccountingAPI) AddNotification(n model.Notification) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	n.Active = true
	m.notifications = append(m.notifications, n)
	return n.ID
}

// CreatedProposals returns the proposals created through the mock since start.
func (m *MockAccountingAPI) CreatedProposals() []model.Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var created []model.Proposal
	for _, p := range m.proposals {
		if p.ID > 1000 {
			created = append(created, p)
		}
	}
	return created
}

// Requests returns all requests recorded so far, optionally filtered by
// path prefix.
func (m *MockAccountingAPI) Requests(prefix string) []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RecordedRequest
	for _, r := range m.requests {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func (m *MockAccountingAPI) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	forced := 0
	for prefix, status := range m.failStatus {
		if strings.HasPrefix(r.URL.Path, prefix) {
			forced = status
		}
	}
	m.mu.Unlock()

	if forced != 0 {
		w.WriteHeader(forced)
		json.NewEncoder(w).Encode(map[string]string{"message": "injected failure"})
		return
	}

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/clientes":
		m.writeJSON(w, m.snapshotClients())

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/clientes/"):
		id := pathID(r.URL.Path, "/clientes/")
		for _, c := range m.snapshotClients() {
			if c.ID == id {
				m.writeJSON(w, c)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	case r.Method == http.MethodGet && r.URL.Path == "/tipos-atividade":
		m.mu.Lock()
		types := append([]model.ActivityType(nil), m.activityTypes...)
		m.mu.Unlock()
		m.writeJSON(w, types)

	case r.Method == http.MethodGet && r.URL.Path == "/propostas":
		m.mu.Lock()
		proposals := append([]model.Proposal(nil), m.proposals...)
		m.mu.Unlock()
		m.writeJSON(w, proposals)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/propostas/"):
		id := pathID(r.URL.Path, "/propostas/")
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, p := range m.proposals {
			if p.ID == id {
				m.writeJSON(w, p)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	case r.Method == http.MethodPost && r.URL.Path == "/propostas":
		var create model.ProposalCreate
		if err := json.Unmarshal(body, &create); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.nextID++
		var total float64
		for _, s := range create.Services {
			total += s.Subtotal
		}
		proposal := model.Proposal{
			ID:               m.nextID,
			ClientID:         create.ClientID,
			ActivityTypeID:   create.ActivityTypeID,
			TaxRegimeID:      create.TaxRegimeID,
			RevenueBracketID: create.RevenueBracketID,
			Services:         create.Services,
			Total:            total,
			Status:           "draft",
			CreatedAt:        time.Now().UTC(),
		}
		m.proposals = append(m.proposals, proposal)
		m.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		m.writeJSON(w, proposal)

	case r.Method == http.MethodGet && r.URL.Path == "/notificacoes":
		m.mu.Lock()
		notifications := append([]model.Notification(nil), m.notifications...)
		m.mu.Unlock()
		m.writeJSON(w, notifications)

	case r.Method == http.MethodPost && r.URL.Path == "/notificacoes/ler-todas":
		m.mu.Lock()
		for i := range m.notifications {
			m.notifications[i].IsRead = true
		}
		m.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/notificacoes/") && strings.HasSuffix(r.URL.Path, "/ler"):
		id := pathID(strings.TrimSuffix(r.URL.Path, "/ler"), "/notificacoes/")
		m.mu.Lock()
		defer m.mu.Unlock()
		for i := range m.notifications {
			if m.notifications[i].ID == id {
				m.notifications[i].IsRead = true
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "mock: no route for " + r.Method + " " + r.URL.Path,
		})
	}
}

func (m *MockAccountingAPI) snapshotClients() []model.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Client(nil), m.clients...)
}

func (m *MockAccountingAPI) writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.t.Errorf("mock: encode response: %v", err)
	}
}

func pathID(path, prefix string) int64 {
	id, _ := strconv.ParseInt(strings.TrimPrefix(path, prefix), 10, 64)
	return id
}
