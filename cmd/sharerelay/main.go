package main

import (
	"flag"
	"log"
	"os"

	"lanparty/screenshare/internal/relay"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	defaultAddr := os.Getenv("LANPARTY_RELAY_LISTEN")
	if defaultAddr == "" {
		defaultAddr = ":47800"
	}
	addr := flag.String("listen", defaultAddr, "listen address for the relay websocket")
	flag.Parse()

	srv := relay.NewServer()
	if err := srv.ListenAndServe(*addr); err != nil {
		log.Fatalf("[main] relay: %v", err)
	}
}
