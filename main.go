package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"passage-race/internal/gateway"
	"passage-race/internal/geo"
	"passage-race/internal/lobby"
	"passage-race/internal/passage"
	"passage-race/internal/race"
	"passage-race/internal/results"
	"passage-race/internal/session"

	"github.com/joho/godotenv"
)

const (
	janitorInterval = time.Minute
	roomIdleTTL     = 10 * time.Minute
	archiveTimeout  = 5 * time.Second
)

func main() {
	_ = godotenv.Load()

	signer, err := session.NewSignerFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init session signer: %v", err)
	}

	passageSvc, passageMode, err := passage.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init passage service: %v", err)
	}
	defer passageSvc.Close()

	resultsSvc, resultsMode, err := results.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init results service: %v", err)
	}
	defer resultsSvc.Close()

	geoSvc := geo.NewServiceFromEnv()

	archive := func(record race.RaceRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := resultsSvc.Append(ctx, record); err != nil {
			log.Printf("[Server] Failed to archive race %s: %v", record.Code, err)
		}
	}

	lby := lobby.New(race.DefaultConfig(), archive)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lby.StartJanitor(ctx, janitorInterval, roomIdleTTL)

	gw := gateway.New(lby, signer, passageSvc, geoSvc, baseURLFromEnv())
	resultsHTTP := results.NewHTTPHandler(resultsSvc)

	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)
	resultsHTTP.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := listenAddrFromEnv()
	log.Printf("[Server] Passage mode: %s", passageMode)
	log.Printf("[Server] Results mode: %s", resultsMode)
	log.Printf("[Server] Listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("[Server] Failed to start: %v", err)
	}
}

func listenAddrFromEnv() string {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		return ":" + port
	}
	return ":8080"
}

func baseURLFromEnv() string {
	if base := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")); base != "" {
		return strings.TrimRight(base, "/")
	}
	return "http://localhost:8080"
}
