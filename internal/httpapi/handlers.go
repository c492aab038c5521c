// Package httpapi exposes a small read-only debug/health HTTP surface for a
// node: is it up, who does it think the leader is, how many peers are
// live. It is ambient observability, not an operator control plane — there
// is no route here that mutates cluster state.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatusSource is the subset of *node.Node this package needs, kept as an
// interface so httpapi has no import-time dependency on internal/node's
// full surface.
type StatusSource interface {
	CurrentLeader() string
	IsLeader() bool
	LiveNodes() []string
	StabilizedCount() int
}

// Handler wires a StatusSource into a gin router.
type Handler struct {
	nodeID string
	src    StatusSource
	log    *logrus.Entry
}

// NewHandler constructs a Handler for nodeID backed by src.
func NewHandler(nodeID string, src StatusSource) *Handler {
	return &Handler{
		nodeID: nodeID,
		src:    src,
		log:    logrus.WithField("component", "httpapi").WithField("node", nodeID),
	}
}

// Register attaches this handler's routes to router.
func (h *Handler) Register(router *gin.Engine) {
	router.GET("/healthz", h.healthz)
	router.GET("/status", h.status)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"node": h.nodeID, "status": "ok"})
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"node":            h.nodeID,
		"isLeader":        h.src.IsLeader(),
		"currentLeader":   h.src.CurrentLeader(),
		"liveNodes":       h.src.LiveNodes(),
		"stabilizedCount": h.src.StabilizedCount(),
	})
}

// NewRouter builds a gin.Engine with logging/recovery middleware and this
// handler's routes already registered, mirroring the teacher's
// cmd/server/main.go wiring (router := gin.New(); router.Use(...)).
func NewRouter(nodeID string, src StatusSource) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	log := logrus.WithField("component", "httpapi").WithField("node", nodeID)

	router := gin.New()
	router.Use(Logger(log), Recovery(log))

	NewHandler(nodeID, src).Register(router)
	return router
}
