package http

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/leshachaplin/capirelay/internal/domain"
)

func encodeJSONResponse[T any](w http.ResponseWriter, code int, data T) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if code == http.StatusNoContent {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP and
// CF-Connecting-IP, then the peer address.
func getClientIP(req *http.Request) string {
	candidates := []string{
		strings.Split(req.Header.Get("X-Forwarded-For"), ",")[0],
		req.Header.Get("X-Real-IP"),
		req.Header.Get("CF-Connecting-IP"),
	}
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		candidates = append(candidates, host)
	} else {
		candidates = append(candidates, req.RemoteAddr)
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if ip := net.ParseIP(c); ip != nil {
			if ip.IsLoopback() {
				return "127.0.0.1"
			}
			return c
		}
	}

	return ""
}

func cookie(req *http.Request, name string) string {
	c, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// enrich fills what the page did not send from the request itself. Values
// present in the body always win.
func enrich(req *http.Request, action *domain.UserAction, now time.Time) {
	u := &action.UserData

	if u.IP == "" {
		u.IP = getClientIP(req)
	}
	if u.UserAgent == "" {
		u.UserAgent = req.UserAgent()
	}
	if action.Referrer == "" {
		action.Referrer = req.Referer()
	}
	if action.EventSourceURL == "" {
		action.EventSourceURL = action.Referrer
	}

	if u.FBC == "" {
		u.FBC = cookie(req, "_fbc")
	}
	if u.FBP == "" {
		u.FBP = cookie(req, "_fbp")
	}
	if u.TTP == "" {
		u.TTP = cookie(req, "_ttp")
	}

	query := sourceQuery(action.EventSourceURL)
	if u.FBC == "" {
		if fbclid := query.Get("fbclid"); fbclid != "" {
			u.FBC = "fb.1." + strconv.FormatInt(now.UnixMilli(), 10) + "." + fbclid
		}
	}
	if u.TTCLID == "" {
		u.TTCLID = query.Get("ttclid")
	}
	if u.ScClickID == "" {
		u.ScClickID = query.Get("ScCid")
	}
}

func sourceQuery(rawURL string) url.Values {
	if rawURL == "" {
		return url.Values{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}
