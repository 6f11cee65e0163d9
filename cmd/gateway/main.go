// A mock payout gateway for manual testing of the withdrawal confirmation
// flow. It accepts payout notifications and occasionally misbehaves the way a
// real gateway would.
package main

import (
	"encoding/json"
	"flag"
	"io/ioutil"
	"log"
	"math/rand"
	"net/http"

	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
)

type Response struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type PayoutNotification struct {
	RequestID    string `json:"request_id"`
	Amount       int64  `json:"amount"`
	PayoutMethod string `json:"payout_method"`
}

type ServerConfig struct {
	ServerAddress string `env:"RUN_ADDRESS"`
}

func NewServerConfig() (*ServerConfig, error) {
	cfg := ServerConfig{}
	err := env.Parse(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func (c *ServerConfig) ParseFlags() {
	a := flag.String("a", ":7070", "Server address")
	flag.Parse()
	if isFlagPassed("a") || c.ServerAddress == "" {
		c.ServerAddress = *a
	}
}

func HandleMockPayoutGateway() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// mock http status 429 error
		chance429 := 10
		if chance429 > rand.Intn(100) {
			log.Println("responding with error 429")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			response429 := Response{
				Error: "No more than N requests per minute allowed",
			}
			resBody, _ := json.Marshal(response429)
			w.Write(resBody)
			return
		}

		// mock http status 500 error
		chance500 := 20
		if chance500 > rand.Intn(100) {
			log.Println("responding with error 500")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		b, err := ioutil.ReadAll(r.Body)
		if err != nil {
			log.Println("responding with error 500")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var notification PayoutNotification
		err = json.Unmarshal(b, &notification)
		if err != nil {
			log.Println("responding with error 400")
			w.WriteHeader(http.StatusBadRequest)
			response400 := Response{
				Error: "Malformed payout notification",
			}
			resBody, _ := json.Marshal(response400)
			w.Write(resBody)
			return
		}
		if notification.RequestID == "" || notification.Amount <= 0 {
			log.Println("responding with error 422")
			w.WriteHeader(http.StatusUnprocessableEntity)
			response422 := Response{
				Error: "Illegal payout notification",
			}
			resBody, _ := json.Marshal(response422)
			w.Write(resBody)
			return
		}

		log.Println("accepted payout notification for request", notification.RequestID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		response202 := Response{
			Message: "Payout scheduled",
		}
		resBody, _ := json.Marshal(response202)
		w.Write(resBody)
	}
}

func main() {
	cfg, err := NewServerConfig()
	if err != nil {
		log.Fatal(err)
	}
	cfg.ParseFlags()
	r := chi.NewRouter()
	r.Post("/api/payouts", HandleMockPayoutGateway())
	log.Println("starting mock payout gateway on", cfg.ServerAddress)
	log.Fatal(http.ListenAndServe(cfg.ServerAddress, r))
}
