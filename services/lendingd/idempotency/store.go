// Package idempotency replays stored responses for repeated Idempotency-Key
// requests.
package idempotency

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"lendcore/gateway/middleware"
)

// HeaderKey is the request header carrying the client supplied key.
const HeaderKey = "Idempotency-Key"

const maxKeyLength = 128

var (
	bucketResponses = []byte("responses")

	// ErrKeyMismatch reports a key reused with a different request body.
	ErrKeyMismatch = errors.New("idempotency key reused with a different request")
)

// Record is a cached response.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	StatusCode  int       `json:"statusCode"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"storedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Store persists responses in BoltDB.
type Store struct {
	db       *bolt.DB
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	mu       sync.Mutex
	inflight map[string]struct{}
}

// Open initialises the BoltDB-backed store.
func Open(path string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, ttl: ttl, now: time.Now, logger: logger, inflight: make(map[string]struct{})}, nil
}

// Close releases the underlying Bolt database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the live record stored under key.
func (s *Store) Get(key string) (Record, bool, error) {
	var rec Record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketResponses).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		found = s.now().Before(rec.ExpiresAt)
		return nil
	})
	return rec, found, err
}

// Put stores rec under key, stamping its expiry.
func (s *Store) Put(key string, rec Record) error {
	now := s.now().UTC()
	rec.StoredAt = now
	rec.ExpiresAt = now.Add(s.ttl)
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResponses).Put([]byte(key), encoded)
	})
}

// Prune removes expired records and returns how many were dropped.
func (s *Store) Prune() (int, error) {
	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketResponses)
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil || !now.Before(rec.ExpiresAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (s *Store) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Store) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

// Middleware executes each keyed request once per subject, method and path.
// Replays of a stored response carry the Idempotent-Replayed header; a
// concurrent duplicate gets 409 and a reused key with another body gets 422.
// Server errors are not cached.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderKey))
		if key == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLength {
			http.Error(w, "idempotency key too long", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		sum := blake3.Sum256(body)
		fingerprint := hex.EncodeToString(sum[:])

		subject, _ := middleware.SubjectFromContext(r.Context())
		scoped := subject + "|" + r.Method + "|" + r.URL.Path + "|" + key

		if !s.acquire(scoped) {
			http.Error(w, "request with this idempotency key is in progress", http.StatusConflict)
			return
		}
		defer s.release(scoped)

		rec, ok, err := s.Get(scoped)
		if err != nil {
			s.logger.Error("idempotency lookup failed", slog.Any("error", err))
			http.Error(w, "idempotency store unavailable", http.StatusServiceUnavailable)
			return
		}
		if ok {
			if rec.Fingerprint != fingerprint {
				http.Error(w, ErrKeyMismatch.Error(), http.StatusUnprocessableEntity)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if recorder.status >= http.StatusInternalServerError {
			return
		}
		if err := s.Put(scoped, Record{Fingerprint: fingerprint, StatusCode: recorder.status, Body: recorder.buf.Bytes()}); err != nil {
			s.logger.Warn("idempotency store failed", slog.Any("error", err))
		}
	})
}

type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}
