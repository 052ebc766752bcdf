package web

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/mscrnt/candecode/pkg/db"
)

// SessionCookie names the cookie carrying the session id
const SessionCookie = "candecode_session"

// session returns the caller's session, creating it and setting the cookie
// when the request has none or carries an invalid id.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*db.Session, error) {
	id := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			id = parsed.String()
		}
	}

	if id == "" {
		id = uuid.New().String()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}

	if err := s.store.EnsureSession(id); err != nil {
		return nil, err
	}
	sess, err := s.store.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// uploadStatus describes the files stored in a session
func uploadStatus(sess *db.Session) string {
	dbcName, traceName := "none", "none"
	if len(sess.DBC) > 0 {
		dbcName = sess.DBCName
	}
	if len(sess.Trace) > 0 {
		traceName = sess.TraceName
	}
	return fmt.Sprintf("DBC uploaded: %s | TRC uploaded: %s", dbcName, traceName)
}
