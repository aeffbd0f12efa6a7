// Package fakebackend is an in-memory stand-in for the slot backend, used by
// tests. It speaks the same HTTP routes and push protocol.
package fakebackend

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"glazestudio/internal/domain"
	"glazestudio/internal/realtime"
)

type slotCreateBody struct {
	Date     string `json:"date" binding:"required"`
	Time     string `json:"time" binding:"required"`
	IsBooked bool   `json:"is_booked"`
}

type bookBody struct {
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Server is a running fake backend.
type Server struct {
	Hub *realtime.Hub

	httpSrv *httptest.Server

	mu          sync.Mutex
	slots       map[int64]domain.Slot
	nextID      int64
	users       map[string]string
	tokens      map[string]bool
	requireAuth bool
	failStatus  int
	listCalls   int
	createCalls int
	idemKeys    []string
}

type Option func(*Server)

// WithUser registers login credentials.
func WithUser(username, password string) Option {
	return func(s *Server) {
		s.users[username] = password
	}
}

// WithAuthRequired makes mutating admin routes demand a bearer token from /login.
func WithAuthRequired() Option {
	return func(s *Server) {
		s.requireAuth = true
	}
}

// Start launches the fake backend on a loopback port.
func Start(opts ...Option) *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		Hub:    realtime.NewHub(nil),
		slots:  make(map[int64]domain.Slot),
		nextID: 1,
		users:  make(map[string]string),
		tokens: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(s.failureInjector())
	r.POST("/slots/", s.authorized(s.createSlot))
	r.GET("/slots/", s.listAll)
	r.GET("/slots/:date", s.listByDate)
	r.DELETE("/slots/:id", s.authorized(s.deleteSlot))
	r.DELETE("/slots_all/", s.authorized(s.deleteAll))
	r.POST("/book/:id", s.book)
	r.POST("/login", s.login)
	r.GET(realtime.Path, gin.WrapH(s.Hub))

	s.httpSrv = httptest.NewServer(r)
	return s
}

// URL is the http origin of the backend.
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// Port is the loopback port, shared by HTTP and the push endpoint.
func (s *Server) Port() string {
	u, _ := url.Parse(s.httpSrv.URL)
	return u.Port()
}

// PushURL is the ws:// address of the push endpoint.
func (s *Server) PushURL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + realtime.Path
}

func (s *Server) Close() {
	s.Hub.CloseAll()
	s.httpSrv.CloseClientConnections()
	s.httpSrv.Close()
}

// DropPushClients severs every push connection without stopping the server.
func (s *Server) DropPushClients() {
	s.Hub.CloseAll()
}

// FailWith makes every HTTP route answer status until reset with 0.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// Seed inserts slots directly, without broadcasting.
func (s *Server) Seed(slots ...domain.Slot) []domain.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Slot, 0, len(slots))
	for _, sl := range slots {
		sl.ID = s.nextID
		s.nextID++
		s.slots[sl.ID] = sl
		out = append(out, sl)
	}
	return out
}

// MarkBooked flips a slot to booked behind the front end's back and pushes
// the change, the way another visitor's booking would.
func (s *Server) MarkBooked(id int64, name, email string) bool {
	s.mu.Lock()
	sl, ok := s.slots[id]
	if ok {
		sl.IsBooked = true
		sl.ClientName = name
		sl.ClientEmail = email
		s.slots[id] = sl
	}
	s.mu.Unlock()
	if ok {
		s.Hub.Broadcast(realtime.NewBookingMessage(sl))
	}
	return ok
}

func (s *Server) Slots() []domain.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *Server) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

// IdempotencyKeys lists the Idempotency-Key headers seen on slot creation.
func (s *Server) IdempotencyKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.idemKeys...)
}

func (s *Server) sortedLocked() []domain.Slot {
	out := make([]domain.Slot, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, sl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) failureInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		status := s.failStatus
		s.mu.Unlock()
		if status != 0 && c.FullPath() != realtime.Path {
			c.AbortWithStatusJSON(status, gin.H{"detail": http.StatusText(status)})
			return
		}
		c.Next()
	}
}

func (s *Server) authorized(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.requireAuth {
			token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
			s.mu.Lock()
			ok := s.tokens[token]
			s.mu.Unlock()
			if !ok {
				c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
				return
			}
		}
		next(c)
	}
}

func (s *Server) createSlot(c *gin.Context) {
	var body slotCreateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "Field required"}}})
		return
	}

	s.mu.Lock()
	s.createCalls++
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		s.idemKeys = append(s.idemKeys, key)
	}
	for _, sl := range s.slots {
		if sl.Date == body.Date && sl.Time == body.Time {
			s.mu.Unlock()
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Slot already exists"})
			return
		}
	}
	sl := domain.Slot{ID: s.nextID, Date: body.Date, Time: body.Time, IsBooked: body.IsBooked}
	s.nextID++
	s.slots[sl.ID] = sl
	s.mu.Unlock()

	s.Hub.Broadcast(realtime.RefreshMessage())
	c.JSON(http.StatusOK, sl)
}

func (s *Server) listAll(c *gin.Context) {
	s.mu.Lock()
	s.listCalls++
	out := s.sortedLocked()
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) listByDate(c *gin.Context) {
	date := c.Param("date")
	s.mu.Lock()
	out := make([]domain.Slot, 0)
	for _, sl := range s.sortedLocked() {
		if sl.Date == date {
			out = append(out, sl)
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteSlot(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "Input should be a valid integer"}}})
		return
	}

	s.mu.Lock()
	_, ok := s.slots[id]
	delete(s.slots, id)
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Slot not found"})
		return
	}

	s.Hub.Broadcast(realtime.RefreshMessage())
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) deleteAll(c *gin.Context) {
	s.mu.Lock()
	n := len(s.slots)
	s.slots = make(map[int64]domain.Slot)
	s.mu.Unlock()

	s.Hub.Broadcast(realtime.RefreshMessage())
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": n})
}

func (s *Server) book(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "Input should be a valid integer"}}})
		return
	}
	var body bookBody
	_ = c.ShouldBindJSON(&body)

	s.mu.Lock()
	sl, ok := s.slots[id]
	switch {
	case !ok:
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"detail": "Slot not found"})
		return
	case sl.IsBooked:
		s.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Already booked"})
		return
	}
	sl.IsBooked = true
	sl.ClientName = body.ClientName
	sl.ClientEmail = body.ClientEmail
	s.slots[id] = sl
	s.mu.Unlock()

	s.Hub.Broadcast(realtime.NewBookingMessage(sl))
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Slot booked"})
}

func (s *Server) login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "Field required"}}})
		return
	}

	s.mu.Lock()
	want, ok := s.users[body.Username]
	if !ok || want != body.Password {
		s.mu.Unlock()
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "detail": "Incorrect username or password"})
		return
	}
	token := uuid.NewString()
	s.tokens[token] = true
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}
