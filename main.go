package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"p9e.in/mfgops/config"
	"p9e.in/mfgops/handlers"
	"p9e.in/mfgops/pkg/kvcache"
	"p9e.in/mfgops/routes"
)

var (
	Version   = "dev"
	BuildTime = ""
)

func main() {

	versionFlag := flag.Bool("version", false, "Print version info and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("Version:   %s\n", Version)
		fmt.Printf("BuildTime: %s\n", BuildTime)
		os.Exit(0)
	}
	config.Connect()
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Verification codes live in Redis when an address is configured,
	// otherwise in process memory.
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		store, err := kvcache.NewRedis(addr, "mfgops")
		if err != nil {
			log.Fatalf("could not connect to redis at %s: %v", addr, err)
		}
		handlers.VerificationCodes = store
	} else {
		handlers.VerificationCodes = kvcache.NewMemory(time.Minute)
	}
	defer handlers.VerificationCodes.Close()

	handler := routes.RegisterRoutes()
	handlerWithCORS := enableCORS(handler)
	log.Println("Server starting at port", port)
	log.Fatal(http.ListenAndServe(":"+port, handlerWithCORS))
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		// Handle preflight (OPTIONS)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
