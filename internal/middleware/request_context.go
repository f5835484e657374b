package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lims/internal/reqctx"
)

const (
	changeReasonHeader  = "X-Change-Reason"
	eSignPasswordHeader = "X-ESign-Password"

	// maxPeekBytes bounds how much of a JSON body is read for attribution fields.
	maxPeekBytes = 1 << 20
)

// attributionBody holds the optional attribution fields of a JSON body.
type attributionBody struct {
	Reason        string `json:"reason"`
	ESignPassword string `json:"e_sign_password"`
}

// RequestContext establishes the request's attribution context: client IP,
// request ID, change reason and e-signature password. AuthMiddleware later
// patches the acting user into the same context.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.RequestContext{
			IP:            clientIP(c.Request),
			RequestID:     c.GetString(requestIDKey),
			Reason:        strings.TrimSpace(c.GetHeader(changeReasonHeader)),
			ESignPassword: c.GetHeader(eSignPasswordHeader),
		}

		if rc.Reason == "" || rc.ESignPassword == "" {
			body := peekAttribution(c.Request)
			if rc.Reason == "" {
				rc.Reason = strings.TrimSpace(body.Reason)
			}
			if rc.ESignPassword == "" {
				rc.ESignPassword = body.ESignPassword
			}
		}
		if rc.Reason == "" {
			rc.Reason = strings.TrimSpace(c.Query("reason"))
		}

		c.Request = c.Request.WithContext(reqctx.With(c.Request.Context(), rc))
		c.Next()
	}
}

// clientIP returns the first X-Forwarded-For entry, else the host of the
// socket address, else an empty string.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// peekAttribution reads attribution fields from a JSON object body and
// restores the body for the handler. Other bodies yield zero values.
func peekAttribution(r *http.Request) attributionBody {
	var out attributionBody
	if r.Body == nil || r.Body == http.NoBody || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return out
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes+1))
	if err != nil {
		return out
	}
	if len(raw) > maxPeekBytes {
		// Too large to inspect; hand the handler the full stream.
		r.Body = readCloser{io.MultiReader(bytes.NewReader(raw), r.Body), r.Body}
		return out
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))

	_ = json.Unmarshal(raw, &out)
	return out
}

type readCloser struct {
	io.Reader
	io.Closer
}
