package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"figaro/internal/config"
	"figaro/internal/database"
	"figaro/internal/domain"
	"figaro/internal/metrics"
	"figaro/internal/models"
	"figaro/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Broadcaster запускает рассылку; вынесено в интерфейс ради тестов.
type Broadcaster interface {
	Dispatch(ctx context.Context, text, audience string) (int, error)
}

// HTTPServer exposes the booking engine to the salon's website.
type HTTPServer struct {
	cfg         config.APIConfig
	booking     domain.BookingService
	broadcaster Broadcaster
	server      *http.Server
	auth        *HTTPAuth
	logger      zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, booking domain.BookingService, broadcaster Broadcaster, logger zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:         cfg,
		booking:     booking,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "http_api").Logger(),
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/slots", srv.handleSlots)
	mux.HandleFunc("/api/v1/appointments", srv.handleAppointments)
	mux.HandleFunc("/api/v1/appointments/", srv.handleAppointmentByID)
	mux.HandleFunc("/api/v1/broadcast", srv.handleBroadcast)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler возвращает корневой обработчик; используется в тестах.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// GET /api/v1/slots?date=YYYY-MM-DD&barber_id=N
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	barberID := models.BarberAny
	if raw := strings.TrimSpace(r.URL.Query().Get("barber_id")); raw != "" {
		barberID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid barber_id")
			return
		}
	}

	if err := s.booking.ValidateDate(r.Context(), date); err != nil {
		writeBookingError(w, err)
		return
	}

	slots, err := s.booking.AvailableSlots(r.Context(), date, barberID)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	hours := make([]string, 0, len(slots))
	for _, h := range slots {
		hours = append(hours, models.FormatHour(h))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":  dateStr,
		"slots": slots,
		"hours": hours,
	})
}

type appointmentRequest struct {
	CustomerName string `json:"customer_name"`
	Phone        string `json:"phone"`
	Date         string `json:"date"`
	Hour         int    `json:"hour"`
	ServiceID    int64  `json:"service_id"`
	BarberID     int64  `json:"barber_id"`
	Double       bool   `json:"double"`
	Notes        string `json:"notes"`
}

// POST /api/v1/appointments
func (s *HTTPServer) handleAppointments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointments")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var body appointmentRequest
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(body.CustomerName) == "" {
		writeError(w, http.StatusBadRequest, "customer_name is required")
		return
	}
	if strings.TrimSpace(body.Phone) == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(body.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	req := &models.BookingRequest{
		CustomerName: strings.TrimSpace(body.CustomerName),
		Phone:        strings.TrimSpace(body.Phone),
		Date:         date,
		Hour:         body.Hour,
		ServiceID:    body.ServiceID,
		BarberID:     body.BarberID,
		CreatedFrom:  models.CreatedFromWeb,
		Notes:        body.Notes,
	}

	if body.Double {
		appointments, err := s.booking.BookDouble(r.Context(), req)
		if err != nil {
			var partial *service.PartialBookingError
			if errors.As(err, &partial) {
				// Первый час записан, второй занят
				writeJSON(w, http.StatusConflict, map[string]any{
					"error":       "second hour is already taken",
					"appointment": partial.Confirmed,
					"failed_hour": partial.FailedHour,
				})
				return
			}
			writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"appointments": appointments})
		return
	}

	appointment, err := s.booking.Book(r.Context(), req)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"appointment": appointment})
}

// GET|DELETE /api/v1/appointments/{id}
func (s *HTTPServer) handleAppointmentByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointment_by_id")

	const prefix = "/api/v1/appointments/"
	idStr := strings.TrimPrefix(r.URL.Path, prefix)
	if idStr == "" || strings.Contains(idStr, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		appointment, err := s.booking.GetAppointment(r.Context(), id)
		if err != nil {
			writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"appointment": appointment})
	case http.MethodDelete:
		if err := s.booking.Cancel(r.Context(), id); err != nil {
			writeBookingError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// POST /api/v1/broadcast — принимает рассылку и сразу отвечает 202.
func (s *HTTPServer) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("broadcast")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.broadcaster == nil {
		writeError(w, http.StatusServiceUnavailable, "broadcasts are disabled")
		return
	}

	type request struct {
		Text     string `json:"text"`
		Audience string `json:"audience"`
	}
	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if body.Audience == "" {
		body.Audience = "all"
	}

	total, err := s.broadcaster.Dispatch(r.Context(), body.Text, body.Audience)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":   true,
		"recipients": total,
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeBookingError переводит доменные ошибки в HTTP-статусы.
func writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot is already taken")
	case errors.Is(err, database.ErrPastDate):
		writeError(w, http.StatusUnprocessableEntity, "date or hour is in the past")
	case errors.Is(err, database.ErrDateTooFar):
		writeError(w, http.StatusUnprocessableEntity, "date is beyond the booking range")
	case errors.Is(err, database.ErrClosedDay):
		writeError(w, http.StatusUnprocessableEntity, "salon is closed on this date")
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, service.ErrInvalidHour):
		writeError(w, http.StatusUnprocessableEntity, "hour is outside working hours")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
