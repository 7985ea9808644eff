package ja3

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/logging"
)

// FingerprintHeader carries the client's JA3 TLS fingerprint, typically
// injected by the terminating proxy.
const FingerprintHeader = "X-JA3-Fingerprint"

// Gate returns middleware that records a hit for every fingerprinted request
// and rejects blocked fingerprints with 403. Requests without a fingerprint
// pass through unrecorded.
func Gate(d *Detector) gin.HandlerFunc {
	return func(c *gin.Context) {
		fingerprint := c.GetHeader(FingerprintHeader)
		if d.IsBot(fingerprint) {
			logging.L(c.Request.Context()).Warn("blocked bot fingerprint rejected",
				"ja3", fingerprint,
				"path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "automated traffic detected",
			})
			return
		}
		c.Next()
	}
}
