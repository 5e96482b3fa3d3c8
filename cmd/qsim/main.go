// Command qsim runs a simulated run engine queue server for development
// and testing. It serves the 0MQ control protocol, the 0MQ console info
// socket and the HTTP REST API against a Redis-backed queue, without a
// real run engine or hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/beamline/queueserver/internal/sim"
)

func main() {
	var (
		zmqAddr     = flag.String("zmq", "tcp://127.0.0.1:60615", "0MQ control socket listen address")
		zmqInfoAddr = flag.String("zmq-info", "tcp://127.0.0.1:60625", "0MQ info socket listen address")
		httpAddr    = flag.String("http", "127.0.0.1:60610", "HTTP listen address")
		redisURL    = flag.String("redis", "redis://localhost:6379", "Redis URL for queue storage")
		name        = flag.String("name", "qsim", "Instance name (Redis key prefix)")
		profilePath = flag.String("profile", "", "Path to a profile YAML file (default: built-in profile)")
	)
	flag.Parse()

	redisOpts, err := redis.ParseURL(*redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid Redis URL: %v\n", err)
		os.Exit(1)
	}

	store, err := sim.NewStore(redisOpts, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	profile := sim.DefaultProfile()
	if *profilePath != "" {
		profile, err = sim.LoadProfile(*profilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	mgr := sim.NewManager(store, sim.Options{
		Name:    *name,
		Profile: profile,
		OnStop:  cancel,
	})

	srv := sim.NewServer(mgr, sim.ServerConfig{
		ZMQControlAddr: *zmqAddr,
		ZMQInfoAddr:    *zmqInfoAddr,
		HTTPAddr:       *httpAddr,
	})
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		log.Printf("[Sim] Server stopped with error: %v", err)
		os.Exit(1)
	}
	log.Printf("[Sim] Shutdown complete")
}
