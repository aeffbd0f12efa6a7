package views

import (
	"sync"

	"glazestudio/internal/domain"
)

type View string

const (
	ViewAdmin  View = "admin"
	ViewAgenda View = "agenda"
)

// Source is the snapshot cache as seen by views.
type Source interface {
	Current() *domain.Snapshot
	Subscribe(fn func(*domain.Snapshot)) (unsubscribe func())
}

// RenderHook observes every re-render.
type RenderHook func(v View, s *domain.Snapshot)

// Live keeps the admin list and agenda rendered from the latest changed
// snapshot. Each view has its own subscription and re-renders only when the
// cache reports a change.
type Live struct {
	hook RenderHook

	mu        sync.RWMutex
	admin     []AdminRow
	agenda    Agenda
	adminSeq  uint64
	agendaSeq uint64
	renders   map[View]int

	unsubs []func()
}

func NewLive(src Source, hook RenderHook) *Live {
	l := &Live{
		hook:    hook,
		agenda:  Agenda{Entries: []AgendaEntry{}, Empty: true},
		renders: make(map[View]int),
	}
	if s := src.Current(); s != nil {
		l.renderAdmin(s)
		l.renderAgenda(s)
	}
	l.unsubs = append(l.unsubs, src.Subscribe(l.renderAdmin), src.Subscribe(l.renderAgenda))
	return l
}

func (l *Live) renderAdmin(s *domain.Snapshot) {
	rows := AdminList(s)
	l.mu.Lock()
	l.admin = rows
	l.adminSeq = s.Seq
	l.renders[ViewAdmin]++
	l.mu.Unlock()
	l.fire(ViewAdmin, s)
}

func (l *Live) renderAgenda(s *domain.Snapshot) {
	agenda := BuildAgenda(s)
	l.mu.Lock()
	l.agenda = agenda
	l.agendaSeq = s.Seq
	l.renders[ViewAgenda]++
	l.mu.Unlock()
	l.fire(ViewAgenda, s)
}

func (l *Live) fire(v View, s *domain.Snapshot) {
	if l.hook != nil {
		l.hook(v, s)
	}
}

// Admin returns the last rendered admin list and the snapshot seq it came from.
func (l *Live) Admin() ([]AdminRow, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]AdminRow(nil), l.admin...), l.adminSeq
}

func (l *Live) Agenda() (Agenda, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := l.agenda
	out.Entries = append(make([]AgendaEntry, 0, len(l.agenda.Entries)), l.agenda.Entries...)
	return out, l.agendaSeq
}

// Renders counts how often v was rendered.
func (l *Live) Renders(v View) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.renders[v]
}

// Close drops both subscriptions.
func (l *Live) Close() {
	for _, u := range l.unsubs {
		u()
	}
}
