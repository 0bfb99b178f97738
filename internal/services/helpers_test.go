package services

import (
	"context"
	"sync"

	"github.com/zaqqye/fiche_backend_v1/internal/lifecycle"
	"github.com/zaqqye/fiche_backend_v1/internal/mailer"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) (mailer.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return mailer.Delivery{Sent: true}, nil
}

func (m *recordingMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []FicheEvent
}

func (n *recordingNotifier) FicheChanged(ev FicheEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) kinds() []FicheEventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]FicheEventKind, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

var operatorSession = &Session{OperatorID: "op-1", Email: "op@example.org"}

func validPayload() lifecycle.Payload {
	return lifecycle.Payload{
		NomEnfant:             "Martin",
		PrenomEnfant:          "Léa",
		DateNaissance:         "2017-09-04",
		Sexe:                  "F",
		NomParents:            "Martin",
		Telephone:             "06 11 22 33 44",
		AutorisationTransport: "oui",
		AutorisationPhotos:    "non",
	}
}
