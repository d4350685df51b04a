package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"peercore/internal/core/domain"
	"peercore/internal/infrastructure/signal"
)

// PeerHandler exposes admin/debug endpoints over the attached Peers, mirroring
// mediasoup's Peer.dump() diagnostic surface. It is deliberately read-only:
// every mutating operation belongs to the control-channel request/response
// protocol, not HTTP.
type PeerHandler struct {
	server *signal.Server
}

func NewPeerHandler(server *signal.Server) *PeerHandler {
	return &PeerHandler{server: server}
}

func (h *PeerHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/peers", h.ListPeers)
		api.GET("/peers/:id/dump", h.DumpPeer)
	}
}

func (h *PeerHandler) ListPeers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"peers": h.server.GetConnectedPeers(),
	})
}

func (h *PeerHandler) DumpPeer(c *gin.Context) {
	raw, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer id"})
		return
	}
	peerID := domain.ID(raw)

	p, ok := h.server.PeerByID(peerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "peer not attached"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"peer": p.ToJson(),
	})
}
