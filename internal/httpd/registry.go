package httpd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tsawler/lectern"
	"github.com/tsawler/lectern/logging"
)

// Registry tracks the open viewing sessions of a lecternd instance and
// moves their annotations in and out of the persistent store.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*lectern.Session
	store    AnnotationStore
	log      logging.Logger
}

// NewRegistry creates an empty registry. The store may be nil, in which
// case annotations live only as long as the session.
func NewRegistry(store AnnotationStore, log logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{
		sessions: make(map[string]*lectern.Session),
		store:    store,
		log:      log,
	}
}

// Open builds a session from an uploaded document and registers it.
// Annotations previously synced for the same document are restored.
func (r *Registry) Open(ctx context.Context, name string, data []byte, password string) (string, *lectern.Session, error) {
	opts := []lectern.Option{
		lectern.WithName(name),
		lectern.WithLogger(r.log),
	}
	if password != "" {
		opts = append(opts, lectern.WithPassword(password))
	}

	sess, err := lectern.OpenBytes(data, opts...)
	if err != nil {
		return "", nil, err
	}

	if r.store != nil {
		env, ok, err := r.store.Load(ctx, sess.Fingerprint())
		switch {
		case err != nil:
			r.log.Warn("annotation restore failed", "document", name, "error", err)
		case ok:
			if err := sess.Annotations().ImportAll(env, sess.OriginalPageCount()); err != nil {
				r.log.Warn("stored annotations rejected", "document", name, "error", err)
			}
		}
	}

	id := r.Add(sess)
	r.log.Info("session opened", "id", id, "document", name, "pages", sess.PageCount())
	return id, sess, nil
}

// Add registers an already-open session and returns its id.
func (r *Registry) Add(sess *lectern.Session) string {
	id := newSessionID()
	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()
	return id
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*lectern.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// IDs returns the registered session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sync writes the session's annotations to the persistent store.
func (r *Registry) Sync(ctx context.Context, id string) error {
	sess, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	if r.store == nil {
		return fmt.Errorf("no annotation store configured")
	}
	return r.store.Save(ctx, sess.Fingerprint(), sess.Annotations().ExportAll())
}

// Close syncs the session's annotations, closes it and forgets it.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}

	r.persist(ctx, sess)
	err := sess.Close()
	r.log.Info("session closed", "id", id)
	return err
}

// CloseAll shuts down every session, syncing annotations first. Used on
// server shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*lectern.Session)
	r.mu.Unlock()

	for id, sess := range sessions {
		r.persist(ctx, sess)
		if err := sess.Close(); err != nil {
			r.log.Warn("session close failed", "id", id, "error", err)
		}
	}
}

// persist is the best-effort annotation sync used on close paths.
func (r *Registry) persist(ctx context.Context, sess *lectern.Session) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, sess.Fingerprint(), sess.Annotations().ExportAll()); err != nil {
		r.log.Warn("annotation sync failed", "document", sess.Name(), "error", err)
	}
}

func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
