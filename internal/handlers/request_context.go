package handlers

import (
	"net/http"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// requestContext builds audit details. Values forwarded by the calling service win
// over the ones seen on this connection.
func requestContext(r *http.Request, ipConfig *pkghttp.IPConfig, fwd ClientInfo) models.RequestContext {
	rc := models.RequestContext{
		IPAddress: fwd.IPAddress,
		UserAgent: fwd.UserAgent,
		Location:  fwd.Location,
	}
	if rc.IPAddress == "" {
		rc.IPAddress = pkghttp.ExtractClientIP(r, ipConfig)
	}
	if rc.UserAgent == "" {
		rc.UserAgent = r.UserAgent()
	}
	return rc
}
