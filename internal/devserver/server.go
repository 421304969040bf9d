// Package devserver is an in-process stand-in for the production
// event-management backend. It serves the REST surface the request
// channel talks to and a WebSocket endpoint speaking the push protocol,
// all backed by in-memory state. Integration tests and the `dev` CLI
// command run against it.
package devserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/ports"
	"github.com/stueble/guestsync/internal/protocol"
)

// Options configure the dev server.
type Options struct {
	// SeedUser / SeedPassword form the initial login. Defaults to
	// admin / admin.
	SeedUser     string
	SeedPassword string
	// JWTSecret signs session tokens. A default is used when empty.
	JWTSecret string
	// SessionTTL bounds issued tokens. Defaults to 24h.
	SessionTTL time.Duration
	// Metrics enables the echoprometheus middleware and /metrics.
	Metrics bool
}

// Server is the stub backend.
type Server struct {
	Echo *echo.Echo

	state  *state
	hub    *hub
	secret []byte
	ttl    time.Duration
	log    zerolog.Logger
}

// New builds the dev server and registers all routes.
func New(opts Options, log zerolog.Logger) (*Server, error) {
	if opts.SeedUser == "" {
		opts.SeedUser = "admin"
	}
	if opts.SeedPassword == "" {
		opts.SeedPassword = "admin"
	}
	if opts.JWTSecret == "" {
		opts.JWTSecret = "guestsync-dev-secret"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s := &Server{
		state:  newState(),
		hub:    newHub(log),
		secret: []byte(opts.JWTSecret),
		ttl:    opts.SessionTTL,
		log:    log,
	}
	s.state.addAccount(account{ID: "seed-admin", Username: opts.SeedUser, PasswordHash: hash})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	if opts.Metrics {
		e.Use(echoprometheus.NewMiddleware("guestsync_dev"))
		e.GET("/metrics", echoprometheus.NewHandler())
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.POST("/api/auth/login", s.login)
	e.POST("/api/auth/signup", s.signup)
	e.POST("/api/auth/verify_signup", s.verifySignup)

	api := e.Group("", s.auth)
	api.POST("/api/auth/logout", s.logout)
	api.DELETE("/api/auth/delete", s.deleteAccount)

	api.GET("/api/user", s.getUser)
	api.PUT("/api/user", s.createUser)
	api.POST("/api/user", s.modifyUser)
	api.GET("/api/user/search", s.searchUsers)

	api.GET("/api/guests", s.getGuests)
	api.PUT("/api/guests", s.addGuest)
	api.DELETE("/api/guests", s.removeGuest)
	api.POST("/api/guest", s.modifyGuest)
	api.PUT("/api/guests/invitee", s.inviteExtern)

	api.GET("/api/hosts", s.getHosts)
	api.PUT("/api/hosts", s.addHosts)
	api.DELETE("/api/hosts", s.removeHosts)
	api.GET("/api/tutors", s.getTutors)
	api.PUT("/api/tutors", s.addTutors)
	api.DELETE("/api/tutors", s.removeTutors)

	api.POST("/api/motto", s.modifyMotto)
	api.GET("/api/config", s.getConfig)
	api.POST("/api/config", s.modifyConfig)

	e.GET("/api/websocket", s.websocket)

	s.Echo = e
	return s, nil
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("dev server listening")
	return s.Echo.Start(addr)
}

// Sessions reports connected push channel peers.
func (s *Server) Sessions() int { return s.hub.count() }

// UnacknowledgedDeliveries sums event frames sent with a resId that no
// peer has acknowledged yet.
func (s *Server) UnacknowledgedDeliveries() int {
	s.hub.mu.Lock()
	peers := make([]*session, 0, len(s.hub.sessions))
	for sess := range s.hub.sessions {
		peers = append(peers, sess)
	}
	s.hub.mu.Unlock()

	total := 0
	for _, sess := range peers {
		total += sess.unacknowledged()
	}
	return total
}

// SetEventDate moves the event and pushes the new status to all peers.
func (s *Server) SetEventDate(date time.Time) {
	status := s.state.setEventDate(date)
	s.hub.push(protocol.PartyStatus{Data: status})
}

/* Auth */

func (s *Server) issueToken(a account) (string, error) {
	claims := jwt.MapClaims{
		"sub":      a.ID,
		"username": a.Username,
		"exp":      time.Now().Add(s.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

func (s *Server) auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
		}
		claims, err := s.parseToken(parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		c.Set("username", claims["username"])
		return next(c)
	}
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	a, ok := s.state.findAccount(req.User)
	if !ok || bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(req.Password)) != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}

	token, err := s.issueToken(a)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "token not issued"})
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

type signupRequest struct {
	domain.UserProperties
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

func (s *Server) signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "username and password required"})
	}
	if _, exists := s.state.findAccount(req.Username); exists {
		return c.JSON(http.StatusConflict, map[string]string{"error": "username taken"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "hash failed"})
	}
	user := s.state.upsertUser(domain.User{UserProperties: req.UserProperties})
	s.state.addAccount(account{ID: user.ID, Username: req.Username, PasswordHash: hash})
	return c.JSON(http.StatusCreated, user)
}

func (s *Server) verifySignup(c echo.Context) error {
	// The dev server has no mail loop; every signup is pre-verified.
	return c.NoContent(http.StatusOK)
}

func (s *Server) logout(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) deleteAccount(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

/* Users */

func (s *Server) getUser(c echo.Context) error {
	username, _ := c.Get("username").(string)
	a, ok := s.state.findAccount(username)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown account"})
	}
	return c.JSON(http.StatusOK, domain.User{ID: a.ID})
}

type createUserRequest struct {
	domain.CreateUserPayload
	Verified bool `json:"verified"`
}

func (s *Server) createUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if !req.Residence.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown residence"})
	}

	user := s.state.upsertUser(domain.User{UserProperties: req.UserProperties, Verified: req.Verified})
	guest, _ := s.state.addGuestByUserID(user.ID)
	s.hub.broadcast(protocol.EventGuestAdded, func(resID *uint64) protocol.ServerMessage {
		return protocol.GuestAdded{ResID: resID, Data: guest}
	})
	return c.JSON(http.StatusCreated, guest)
}

func (s *Server) modifyUser(c echo.Context) error {
	var req domain.ModifyUserPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	user, ok := s.state.patchUser(req)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown user"})
	}

	guest := domain.GuestIntern{User: user}.AsGuest()
	s.hub.broadcast(protocol.EventGuestModified, func(resID *uint64) protocol.ServerMessage {
		return protocol.GuestModified{ResID: resID, Data: guest}
	})
	return c.JSON(http.StatusOK, guest)
}

func (s *Server) searchUsers(c echo.Context) error {
	q := ports.UserSearch{}
	if v := c.QueryParam("first_name"); v != "" {
		q.FirstName = &v
	}
	if v := c.QueryParam("last_name"); v != "" {
		q.LastName = &v
	}
	if v := c.QueryParam("residence"); v != "" {
		r := domain.Residence(v)
		q.Residence = &r
	}
	if v := c.QueryParam("room_number"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad room number"})
		}
		room := uint32(parsed)
		q.RoomNumber = &room
	}
	return c.JSON(http.StatusOK, s.state.searchUsers(q))
}

/* Guests */

func (s *Server) getGuests(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.guestList())
}

func (s *Server) addGuest(c echo.Context) error {
	var req domain.AddToGuestListPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	guest, ok := s.state.addGuestByUserID(req.UserID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown user"})
	}
	s.hub.broadcast(protocol.EventGuestAdded, func(resID *uint64) protocol.ServerMessage {
		return protocol.GuestAdded{ResID: resID, Data: guest}
	})
	return c.JSON(http.StatusOK, guest)
}

func (s *Server) modifyGuest(c echo.Context) error {
	var req domain.ModifyGuestPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	guest, ok := s.state.modifyGuest(req)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown guest"})
	}
	s.hub.broadcast(protocol.EventGuestModified, func(resID *uint64) protocol.ServerMessage {
		return protocol.GuestModified{ResID: resID, Data: guest}
	})
	return c.JSON(http.StatusOK, guest)
}

func (s *Server) removeGuest(c echo.Context) error {
	var req domain.RemoveFromGuestListPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	if !s.state.removeGuest(req.UserID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not on the list"})
	}
	s.hub.broadcast(protocol.EventGuestRemoved, func(resID *uint64) protocol.ServerMessage {
		return protocol.GuestRemoved{ResID: resID, Data: req.UserID}
	})
	return c.NoContent(http.StatusOK)
}

type inviteRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func (s *Server) inviteExtern(c echo.Context) error {
	var req inviteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if req.FirstName == "" || req.LastName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name required"})
	}

	guest := s.state.addExternGuest(req.FirstName, req.LastName, req.Email)
	s.hub.broadcast(protocol.EventGuestAdded, func(resID *uint64) protocol.ServerMessage {
		return protocol.GuestAdded{ResID: resID, Data: guest}
	})
	return c.JSON(http.StatusCreated, guest)
}

/* Hosts and tutors */

type memberIDsRequest struct {
	Hosts  []string `json:"hosts,omitempty"`
	Tutors []string `json:"tutors,omitempty"`
}

func (s *Server) getHosts(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.members(s.state.hosts))
}

func (s *Server) addHosts(c echo.Context) error {
	var req memberIDsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	added := s.state.addMembers(s.state.hosts, req.Hosts)
	for _, m := range added {
		member := m
		s.hub.broadcast(protocol.EventHostAdded, func(resID *uint64) protocol.ServerMessage {
			return protocol.HostAdded{ResID: resID, Data: member}
		})
	}
	return c.JSON(http.StatusOK, s.state.members(s.state.hosts))
}

func (s *Server) removeHosts(c echo.Context) error {
	var req memberIDsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	for _, id := range s.state.removeMembers(s.state.hosts, req.Hosts) {
		removed := id
		s.hub.broadcast(protocol.EventHostRemoved, func(resID *uint64) protocol.ServerMessage {
			return protocol.HostRemoved{ResID: resID, Data: removed}
		})
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) getTutors(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.members(s.state.tutors))
}

func (s *Server) addTutors(c echo.Context) error {
	var req memberIDsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	added := s.state.addMembers(s.state.tutors, req.Tutors)
	for _, m := range added {
		member := m
		s.hub.broadcast(protocol.EventTutorAdded, func(resID *uint64) protocol.ServerMessage {
			return protocol.TutorAdded{ResID: resID, Data: member}
		})
	}
	return c.JSON(http.StatusOK, s.state.members(s.state.tutors))
}

func (s *Server) removeTutors(c echo.Context) error {
	var req memberIDsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	for _, id := range s.state.removeMembers(s.state.tutors, req.Tutors) {
		removed := id
		s.hub.broadcast(protocol.EventTutorRemoved, func(resID *uint64) protocol.ServerMessage {
			return protocol.TutorRemoved{ResID: resID, Data: removed}
		})
	}
	return c.NoContent(http.StatusOK)
}

/* Motto and config */

type mottoRequest struct {
	Motto       *string `json:"motto"`
	Description *string `json:"description"`
}

func (s *Server) modifyMotto(c echo.Context) error {
	var req mottoRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	motto := s.state.setMotto(req.Motto, req.Description)
	s.hub.push(protocol.Motto{Data: motto})
	return c.NoContent(http.StatusOK)
}

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.getConfig())
}

func (s *Server) modifyConfig(c echo.Context) error {
	var req domain.Config
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	return c.JSON(http.StatusOK, s.state.setConfig(req))
}

/* Push channel */

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// websocket upgrades the connection and speaks the push protocol: a
// status frame immediately after connect, then correlated replies for
// ping/motto/qrCode/publicKey requests and acknowledgment bookkeeping.
func (s *Server) websocket(c echo.Context) error {
	authorized := false
	var subject string
	if header := c.Request().Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 {
			if claims, err := s.parseToken(parts[1]); err == nil {
				authorized = true
				subject, _ = claims["sub"].(string)
			}
		}
	}

	enc := protocol.Binary
	if c.QueryParam("encoding") == "json" {
		enc = protocol.Text
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	sess := newSession(conn, enc)

	status := protocol.Status{Data: protocol.StatusData{Authorized: authorized}}
	if authorized {
		status.Data.Capabilities = []domain.Capability{domain.CapabilityHost, domain.CapabilityAdmin}
	}
	if err := sess.send(status); err != nil {
		conn.Close()
		return nil
	}
	if !authorized {
		conn.Close()
		return nil
	}

	s.hub.add(sess)
	defer func() {
		s.hub.remove(sess)
		conn.Close()
	}()

	for {
		frameType, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		frameEnc := protocol.Binary
		if frameType == websocket.TextMessage {
			frameEnc = protocol.Text
		}

		msg, err := protocol.DecodeClient(frameEnc, data)
		if err != nil {
			s.log.Debug().Err(err).Msg("undecodable client frame")
			continue
		}
		s.handleClientMessage(sess, subject, msg)
	}
}

func (s *Server) handleClientMessage(sess *session, subject string, msg protocol.ClientMessage) {
	switch m := msg.(type) {
	case protocol.Ping:
		sess.send(protocol.Pong{ReqID: m.ReqID, Data: true})
	case protocol.Heartbeat:
		// keepalive only
	case protocol.Acknowledgment:
		if !sess.acknowledge(m.ResID) {
			s.log.Debug().Uint64("resId", m.ResID).Msg("acknowledgment for unknown delivery")
		}
	case protocol.RequestMotto:
		sess.send(protocol.Motto{ReqID: m.ReqID, Data: s.state.getMotto()})
	case protocol.RequestQRCode:
		sess.send(protocol.QRCode{ReqID: m.ReqID, Data: s.signQRCode(subject)})
	case protocol.RequestPublicKey:
		sess.send(protocol.PublicKey{ReqID: m.ReqID, Data: domain.JSONWebKey{
			"kty": "oct",
			"alg": "HS256",
			"use": "sig",
		}})
	}
}

// signQRCode produces an entry code signed with the server secret.
func (s *Server) signQRCode(subject string) domain.QRCodePayload {
	claims := domain.QRCodeClaims{ID: subject, Timestamp: uint32(time.Now().Unix())}

	encoded, _ := json.Marshal(claims)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(encoded)
	return domain.QRCodePayload{Data: claims, Signature: hex.EncodeToString(mac.Sum(nil))}
}
