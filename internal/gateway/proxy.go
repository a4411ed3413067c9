// internal/gateway/proxy.go
package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	commonauth "platform-services/internal/common/auth"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/logger"
)

// NewProxy builds the reverse proxy to the platform server. The authenticated
// identity travels as trusted headers; the upstream runs its handlers behind
// a header-based middleware.
func NewProxy(upstream string, log logger.Logger) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)

	baseDirector := proxy.Director
	proxy.Director = func(r *http.Request) {
		baseDirector(r)
		r.Host = target.Host

		if userID := commonauth.UserID(r.Context()); userID != "" {
			r.Header.Set("X-User-ID", userID)
			r.Header.Set("X-User-Email", commonauth.Email(r.Context()))
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.WithError(err).WithFields(map[string]interface{}{
			"path": r.URL.Path,
		}).Error("upstream request failed")
		commonerrors.WriteHTTP(w, commonerrors.NewVendorError(commonerrors.ErrCodeUpstreamFailed, "platform", err))
	}

	return proxy, nil
}
