package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
	maxIdempotentBodyLen = 1 << 20
)

// IdempotencyMiddleware делает intake-эндпоинт безопасным для повторов.
// Повтор с тем же ключом и тем же телом отдаёт сохранённый ответ; тот же ключ
// с другим телом отклоняется. Запрос без ключа обрабатывается как обычный.
func IdempotencyMiddleware(repo domain.IdempotencyRepository, logger *log.Entry) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.New().WithField("component", "idempotency-middleware")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBodyLen))
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			requestHash := hex.EncodeToString(sum[:])

			if record, err := repo.Get(key); err == nil {
				if record.RequestHash != requestHash {
					writeError(w, http.StatusUnprocessableEntity, "idempotency key reused with different request payload")
					return
				}
				switch record.Status {
				case domain.IdempotencyStatusProcessing:
					writeError(w, http.StatusConflict, "request with this idempotency key is still being processed")
				default:
					replayStored(w, record)
				}
				return
			} else if !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
				logger.WithError(err).WithField("key", key).Error("idempotency lookup failed")
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			if _, err := repo.CreateProcessing(key, requestHash, time.Now().UTC().Add(idempotencyTTL)); err != nil {
				if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
					// Гонка двух одинаковых запросов: этот экземпляр проиграл.
					writeError(w, http.StatusConflict, "request with this idempotency key is still being processed")
					return
				}
				logger.WithError(err).WithField("key", key).Error("idempotency record create failed")
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.status < http.StatusInternalServerError {
				if err := repo.MarkDone(key, recorder.body.Bytes(), recorder.status); err != nil {
					logger.WithError(err).WithField("key", key).Warn("mark idempotency record done failed")
				}
			} else {
				if err := repo.MarkFailed(key, recorder.body.Bytes(), recorder.status); err != nil {
					logger.WithError(err).WithField("key", key).Warn("mark idempotency record failed failed")
				}
			}
		})
	}
}

func replayStored(w http.ResponseWriter, record domain.IdempotencyRecord) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replay", "true")
	status := record.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// responseRecorder дублирует ответ в буфер для сохранения в idempotency-записи.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
