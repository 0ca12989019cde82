// Package ops поднимает служебный HTTP-интерфейс: проверку живости и метрики.
package ops

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taskflow_bot/internal/metrics"
)

// NewRouter создает маршрутизатор служебного интерфейса.
func NewRouter(m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, m.GetStats())
	})

	return r
}

// Serve запускает служебный HTTP-сервер на указанном адресе.
// Вызов блокирующий, ошибки отличные от закрытия сервера логируются.
func Serve(addr string, m *metrics.Metrics) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(m),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("Служебный интерфейс слушает %s", addr)
	return srv.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Ошибка кодирования ответа служебного интерфейса: %v", err)
	}
}
