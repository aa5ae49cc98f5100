package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

const inviteQRSize = 256

type inviteRequest struct {
	Role string `form:"role" binding:"omitempty,oneof=player viewer"`
}

var inviteMessages = bindMessages{
	"Role": {"oneof": "role must be player or viewer"},
}

// InviteURL is the link a guest opens to join with role.
func InviteURL(publicURL, role string) string {
	base := strings.TrimRight(publicURL, "/")
	return base + "/?" + url.Values{"role": {role}}.Encode()
}

// handleInviteQR renders the join link as a PNG for the host to put on screen.
func (s *Server) handleInviteQR(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, resolveBindError(err, inviteMessages, "invalid invite request"))
		return
	}
	if req.Role == "" {
		req.Role = "player"
	}
	link := InviteURL(s.cfg.PublicURL, req.Role)
	png, err := qrcode.Encode(link, qrcode.Medium, inviteQRSize)
	if err != nil {
		s.log.Error().Err(err).Str("url", link).Msg("invite qr failed")
		writeError(c, http.StatusInternalServerError, "failed to render invite")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("X-Invite-URL", link)
	c.Data(http.StatusOK, "image/png", png)
}
