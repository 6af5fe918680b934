package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// healthcheck probes a running msgledger instance and exits non-zero when
// it is unreachable or unhealthy. Intended for container health checks.
func main() {
	target := flag.String("target", "http://127.0.0.1:8080/healthz", "health endpoint URL")
	timeout := flag.Duration("timeout", 3*time.Second, "request timeout")
	flag.Parse()

	status, body, err := fasthttp.GetTimeout(nil, *target, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
	if status != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status=%d body=%s\n", status, body)
		os.Exit(1)
	}
	fmt.Println("ok")
}
